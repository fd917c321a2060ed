package scraper

import (
	"context"
	"errors"
	"net/http"

	"galaxo-monitor/internal/models"
)

// ErrUnexpectedShape indica uma resposta que não pôde ser interpretada
var ErrUnexpectedShape = errors.New("formato de resposta inesperado")

// Source define a fonte remota de dados de produtos
type Source interface {
	// Fetch busca detalhes, estoque e, opcionalmente, o histórico de preços
	Fetch(ctx context.Context, productID int64, includeHistory bool) (models.FetchedProduct, error)
}

// HistoryCache guarda os extremos do histórico de preços entre execuções
type HistoryCache interface {
	Get(ctx context.Context, productID int64) (models.PriceRange, bool, error)
	Set(ctx context.Context, productID int64, r models.PriceRange) error
	Invalidate(ctx context.Context, productID int64) error
}

const (
	DefaultDetailsURL = "https://www.galaxus.ch/api/graphql"
	// O hash da consulta persistida pode mudar quando o site é atualizado
	DefaultHistoryURL = "https://www.galaxus.ch/graphql/o/690220b748da1f61bfd7e73d7bf89b53/priceChartQuery"
	DefaultSiteURL    = "https://www.galaxus.ch"
)

// DefaultHeaders retorna os cabeçalhos estáticos enviados em toda requisição
func DefaultHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0")
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "de,en-US;q=0.7,en;q=0.3")
	h.Set("Referer", "https://www.digitec.ch")
	h.Set("Origin", "https://www.digitec.ch")
	h.Set("X-Dg-Language", "de-CH")
	h.Set("X-Dg-Scrumteam", "Isotopes")
	h.Set("X-Dg-Routename", "/productDetail")
	h.Set("X-Dg-Portal", "22")
	h.Set("DNT", "1")
	return h
}
