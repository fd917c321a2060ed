package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/requester"
)

type historyResponse struct {
	Data struct {
		ProductByID *struct {
			PriceHistory *struct {
				Points []struct {
					Price     *money `json:"price"`
					ValidFrom string `json:"validFrom"`
				} `json:"points"`
			} `json:"priceHistory"`
		} `json:"productById"`
	} `json:"data"`
}

// encodeProductID monta o ID global usado pela consulta de histórico
func encodeProductID(productID int64) string {
	raw := "Product\nd" + strconv.FormatInt(productID, 10) + ":1:406802"
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// priceHistory consulta o cache antes da API e grava o resultado quando conhecido
func (c *GalaxusClient) priceHistory(ctx context.Context, productID int64) (models.PriceRange, error) {
	if c.cache != nil {
		r, ok, err := c.cache.Get(ctx, productID)
		if err != nil {
			c.logger.Warn("falha ao ler cache de histórico", "product_id", productID, "error", err)
		} else if ok {
			return r, nil
		}
	}

	r, err := c.fetchHistory(ctx, productID)
	if err != nil {
		return models.PriceRange{}, err
	}

	if c.cache != nil && r.Known() {
		if err := c.cache.Set(ctx, productID, r); err != nil {
			c.logger.Warn("falha ao gravar cache de histórico", "product_id", productID, "error", err)
		}
	}
	return r, nil
}

func (c *GalaxusClient) fetchHistory(ctx context.Context, productID int64) (models.PriceRange, error) {
	payload := map[string]any{
		"variables": map[string]any{
			"id":                       encodeProductID(productID),
			"olderThan3MonthTimestamp": c.now().UTC().Format("2006-01-02T15:04:05.000000") + "Z",
			"historyFrom":              nil,
		},
	}
	resp, err := c.requester.Execute(ctx, requester.Request{Endpoint: c.opts.HistoryURL, Payload: payload})
	if err != nil {
		return models.PriceRange{}, err
	}

	var decoded historyResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return models.PriceRange{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	product := decoded.Data.ProductByID
	if product == nil || product.PriceHistory == nil {
		return models.PriceRange{}, nil
	}

	var r models.PriceRange
	first := true
	for _, point := range product.PriceHistory.Points {
		if point.Price == nil || point.Price.AmountInclusive == nil || point.ValidFrom == "" {
			continue
		}
		v := amount(point.Price.AmountInclusive)
		if first {
			r.Min, r.Max = v, v
			first = false
			continue
		}
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	return r, nil
}

// ForgetHistory descarta o histórico em cache, para que o produto volte a
// consultar a API se for adicionado de novo
func (c *GalaxusClient) ForgetHistory(ctx context.Context, productID int64) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx, productID)
}
