package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/requester"
)

// Options define os endpoints usados pelo cliente
type Options struct {
	DetailsURL string
	HistoryURL string
	SiteURL    string
}

// GalaxusClient implementa Source sobre a API GraphQL da Galaxus/Digitec
type GalaxusClient struct {
	requester *requester.Requester
	opts      Options
	cache     HistoryCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewGalaxusClient cria o cliente. O cache de histórico é opcional.
func NewGalaxusClient(r *requester.Requester, opts Options, cache HistoryCache, logger *slog.Logger) *GalaxusClient {
	if opts.DetailsURL == "" {
		opts.DetailsURL = DefaultDetailsURL
	}
	if opts.HistoryURL == "" {
		opts.HistoryURL = DefaultHistoryURL
	}
	if opts.SiteURL == "" {
		opts.SiteURL = DefaultSiteURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GalaxusClient{
		requester: r,
		opts:      opts,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// productDetails é o resultado da consulta obrigatória de detalhes
type productDetails struct {
	Name     string
	Brand    string
	Category string
	Price    float64
	ImageURL string
	URL      string
	Offer    *offer
}

type money struct {
	AmountInclusive *decimal.Decimal `json:"amountInclusive"`
}

type offer struct {
	OfferID     *int64 `json:"offerId"`
	ShopOfferID *int64 `json:"shopOfferId"`
	Type        string `json:"type"`
	Price       *money `json:"price"`
	Supplier    *struct {
		Name string `json:"name"`
	} `json:"supplier"`
}

// valid exige fornecedor com nome e preço informado
func (o offer) valid() bool {
	return o.Supplier != nil && strings.TrimSpace(o.Supplier.Name) != "" &&
		o.Price != nil && o.Price.AmountInclusive != nil
}

type detailsResponse struct {
	Data struct {
		ProductDetails *struct {
			Product struct {
				Name            string `json:"name"`
				BrandName       string `json:"brandName"`
				ProductTypeName string `json:"productTypeName"`
				Images          []struct {
					URL string `json:"url"`
				} `json:"images"`
			} `json:"product"`
			Offers         []offer `json:"offers"`
			ProductDetails struct {
				CanonicalURL string `json:"canonicalUrl"`
			} `json:"productDetails"`
		} `json:"productDetails"`
	} `json:"data"`
}

type availabilityResponse struct {
	Data struct {
		OfferAvailabilityV2 *struct {
			Mail *struct {
				StockDetails *struct {
					StockCount int `json:"stockCount"`
				} `json:"stockDetails"`
			} `json:"mail"`
		} `json:"offerAvailabilityV2"`
	} `json:"data"`
}

const detailsQuery = `query PDP_GET_PRODUCT_DETAILS($productId: Int!) {
  productDetails: productDetailsV3(productId: $productId) {
    product { id productId name productTypeName brandName images { url } }
    offers { id productId offerId shopOfferId type price { amountInclusive } supplier { name } }
    productDetails { canonicalUrl }
  }
}`

const availabilityQuery = `query GET_OFFER_AVAILABILITY_V2($productId: Int!, $salesOfferId: Int!, $salesOfferType: ShopOfferType!, $refurbishedId: Int, $resaleId: Int) {
  offerAvailabilityV2(productId: $productId, salesOfferId: $salesOfferId, offerType: $salesOfferType, refurbishedId: $refurbishedId, resaleId: $resaleId) {
    id
    mail { stockDetails { stockCount } }
  }
}`

// Fetch busca os dados completos de um produto. Detalhes são obrigatórios;
// falhas de estoque e histórico usam valores padrão e apenas geram aviso.
func (c *GalaxusClient) Fetch(ctx context.Context, productID int64, includeHistory bool) (models.FetchedProduct, error) {
	if productID <= 0 {
		return models.FetchedProduct{}, fmt.Errorf("%w: ID de produto %d", models.ErrInvalidArgument, productID)
	}
	c.logger.Debug("buscando detalhes completos do produto", "product_id", productID, "history", includeHistory)

	details, err := c.fetchDetails(ctx, productID)
	if err != nil {
		return models.FetchedProduct{}, fmt.Errorf("detalhes do produto %d: %w", productID, err)
	}

	var (
		stock   int
		history models.PriceRange
		g       errgroup.Group
	)
	g.Go(func() error {
		if details.Offer == nil {
			return nil
		}
		n, err := c.fetchStock(ctx, productID, *details.Offer)
		if err != nil {
			c.logger.Warn("estoque indisponível, usando 0", "product_id", productID, "error", err)
			return nil
		}
		stock = n
		return nil
	})
	if includeHistory {
		g.Go(func() error {
			r, err := c.priceHistory(ctx, productID)
			if err != nil {
				c.logger.Warn("histórico de preços indisponível", "product_id", productID, "error", err)
				return nil
			}
			history = r
			return nil
		})
	}
	_ = g.Wait()

	minPrice, maxPrice := reconcileBounds(details.Price, history)
	return models.FetchedProduct{
		ID:           productID,
		Name:         details.Name,
		Brand:        details.Brand,
		Category:     details.Category,
		CurrentPrice: details.Price,
		StockCount:   stock,
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		URL:          details.URL,
		ImageURL:     details.ImageURL,
	}, nil
}

// reconcileBounds garante que o preço atual nunca fique fora dos extremos informados
func reconcileBounds(price float64, history models.PriceRange) (float64, float64) {
	minPrice, maxPrice := price, price
	if history.Min > 0 {
		minPrice = math.Min(history.Min, price)
	}
	if history.Max > 0 {
		maxPrice = math.Max(history.Max, price)
	}
	return minPrice, maxPrice
}

func (c *GalaxusClient) fetchDetails(ctx context.Context, productID int64) (productDetails, error) {
	payload := []map[string]any{{
		"operationName": "PDP_GET_PRODUCT_DETAILS",
		"variables":     map[string]any{"productId": productID},
		"query":         detailsQuery,
	}}
	resp, err := c.requester.Execute(ctx, requester.Request{Endpoint: c.opts.DetailsURL, Payload: payload})
	if err != nil {
		return productDetails{}, err
	}

	var batch []detailsResponse
	if err := json.Unmarshal(resp.Body, &batch); err != nil {
		return productDetails{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	if len(batch) == 0 || batch[0].Data.ProductDetails == nil {
		return productDetails{}, fmt.Errorf("%w: productDetails ausente", ErrUnexpectedShape)
	}
	info := batch[0].Data.ProductDetails

	details := productDetails{
		Name:     cleanText(info.Product.Name),
		Brand:    cleanText(info.Product.BrandName),
		Category: cleanText(info.Product.ProductTypeName),
		URL:      c.absoluteURL(info.ProductDetails.CanonicalURL),
	}
	if len(info.Product.Images) > 0 {
		details.ImageURL = info.Product.Images[0].URL
	}
	if cheapest := cheapestOffer(info.Offers); cheapest != nil {
		details.Offer = cheapest
		details.Price = amount(cheapest.Price.AmountInclusive)
	}
	return details, nil
}

// cheapestOffer escolhe a oferta válida de menor preço; em empate vence a primeira
func cheapestOffer(offers []offer) *offer {
	var best *offer
	for i := range offers {
		o := &offers[i]
		if !o.valid() {
			continue
		}
		if best == nil || o.Price.AmountInclusive.LessThan(*best.Price.AmountInclusive) {
			best = o
		}
	}
	return best
}

func (c *GalaxusClient) fetchStock(ctx context.Context, productID int64, o offer) (int, error) {
	if o.OfferID == nil {
		return 0, fmt.Errorf("%w: oferta sem offerId", ErrUnexpectedShape)
	}
	payload := []map[string]any{{
		"operationName": "GET_OFFER_AVAILABILITY_V2",
		"variables": map[string]any{
			"productId":      productID,
			"salesOfferId":   *o.OfferID,
			"salesOfferType": o.Type,
			"refurbishedId":  nil,
			"resaleId":       nil,
		},
		"query": availabilityQuery,
	}}
	resp, err := c.requester.Execute(ctx, requester.Request{Endpoint: c.opts.DetailsURL, Payload: payload})
	if err != nil {
		return 0, err
	}

	var batch []availabilityResponse
	if err := json.Unmarshal(resp.Body, &batch); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	avail := batch[0].Data.OfferAvailabilityV2
	if avail == nil || avail.Mail == nil || avail.Mail.StockDetails == nil {
		return 0, nil
	}
	return avail.Mail.StockDetails.StockCount, nil
}

func (c *GalaxusClient) absoluteURL(u string) string {
	if strings.HasPrefix(u, "/") {
		return strings.TrimRight(c.opts.SiteURL, "/") + u
	}
	return u
}

// amount converte o valor monetário para float arredondado em centavos
func amount(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	f, _ := d.Round(2).Float64()
	return f
}
