// Package cache guarda no Redis os extremos do histórico de preços, evitando
// consultar o histórico a cada produto adicionado novamente.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"galaxo-monitor/internal/models"
)

const keyPrefix = "galaxo:history:"

// New cria o cliente Redis e verifica a conexão
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}

// HistoryCache implementa scraper.HistoryCache sobre o Redis
type HistoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHistoryCache cria o cache. Um TTL zero mantém as entradas sem expiração.
func NewHistoryCache(client *redis.Client, ttl time.Duration) *HistoryCache {
	return &HistoryCache{client: client, ttl: ttl}
}

func key(productID int64) string {
	return keyPrefix + strconv.FormatInt(productID, 10)
}

// Get retorna o intervalo guardado e se ele existia
func (c *HistoryCache) Get(ctx context.Context, productID int64) (models.PriceRange, bool, error) {
	if c == nil || c.client == nil {
		return models.PriceRange{}, false, nil
	}
	payload, err := c.client.Get(ctx, key(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PriceRange{}, false, nil
	}
	if err != nil {
		return models.PriceRange{}, false, err
	}
	var r models.PriceRange
	if err := json.Unmarshal(payload, &r); err != nil {
		return models.PriceRange{}, false, fmt.Errorf("cache: entrada inválida para %d: %w", productID, err)
	}
	return r, true, nil
}

// Set grava o intervalo com o TTL configurado
func (c *HistoryCache) Set(ctx context.Context, productID int64, r models.PriceRange) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(productID), raw, c.ttl).Err()
}

// Invalidate remove a entrada de um produto
func (c *HistoryCache) Invalidate(ctx context.Context, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key(productID)).Err()
}
