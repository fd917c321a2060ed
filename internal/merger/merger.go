// Package merger combina o registro armazenado de um produto com o resultado
// de uma nova busca e recalcula os campos derivados (flags de alteração,
// extremos de preço e percentuais).
package merger

import (
	"fmt"
	"math"
	"time"

	"galaxo-monitor/internal/models"
)

// DefaultChangeThreshold é o percentual a partir do qual uma variação de preço
// é considerada alteração. O mesmo valor define a tolerância de "mínimo/máximo atingido".
const DefaultChangeThreshold = 2.0

// Merger é puro: não guarda estado além da configuração
type Merger struct {
	threshold float64
	now       func() time.Time
}

// New cria um Merger com o limiar informado (em %). Valores negativos usam o padrão.
func New(threshold float64) *Merger {
	if threshold < 0 {
		threshold = DefaultChangeThreshold
	}
	return &Merger{threshold: threshold, now: time.Now}
}

// WithClock substitui o relógio usado para InsertedAt
func (m *Merger) WithClock(now func() time.Time) *Merger {
	m.now = now
	return m
}

// CreateInitial constrói o registro de um produto recém-adicionado.
// Não há histórico ainda, então preço e estoque antigos são os atuais.
func (m *Merger) CreateInitial(fetched models.FetchedProduct) models.Product {
	p := models.Product{
		ID:           fetched.ID,
		Name:         fetched.Name,
		Brand:        fetched.Brand,
		Category:     fetched.Category,
		CurrentPrice: fetched.CurrentPrice,
		OldPrice:     fetched.CurrentPrice,
		StockCount:   fetched.StockCount,
		OldStock:     fetched.StockCount,
		MinPrice:     fetched.MinPrice,
		MaxPrice:     fetched.MaxPrice,
		URL:          fetched.URL,
		ImageURL:     fetched.ImageURL,
		InsertedAt:   m.now().Unix(),
	}
	return m.Recalculate(p)
}

// MergeUpdate aplica uma nova observação sobre o registro existente.
// O snapshot anterior vira a base de comparação e os extremos só se alargam.
func (m *Merger) MergeUpdate(existing models.Product, fetched models.FetchedProduct) models.Product {
	p := existing

	p.OldPrice = existing.CurrentPrice
	p.OldStock = existing.StockCount

	p.MinPrice = math.Min(existing.MinPrice, fetched.CurrentPrice)
	p.MaxPrice = math.Max(existing.MaxPrice, fetched.CurrentPrice)

	p.CurrentPrice = fetched.CurrentPrice
	p.StockCount = fetched.StockCount

	// Campos vazios na resposta mantêm o valor anterior
	p.Name = firstNonEmpty(fetched.Name, existing.Name)
	p.Brand = firstNonEmpty(fetched.Brand, existing.Brand)
	p.Category = firstNonEmpty(fetched.Category, existing.Category)
	p.URL = firstNonEmpty(fetched.URL, existing.URL)
	p.ImageURL = firstNonEmpty(fetched.ImageURL, existing.ImageURL)

	return m.Recalculate(p)
}

// Recalculate recomputa todos os campos derivados a partir dos campos brutos
func (m *Merger) Recalculate(p models.Product) models.Product {
	stockDiff := p.StockCount - p.OldStock
	p.StockChanged = stockDiff != 0
	p.StockChangeLabel = fmt.Sprintf("%d (%+d)%s", p.StockCount, stockDiff, directionSymbol(float64(stockDiff)))

	p.PriceChange = p.CurrentPrice - p.OldPrice
	p.PercentageDiff = 0
	if p.OldPrice != 0 {
		p.PercentageDiff = p.PriceChange / p.OldPrice * 100
	}
	p.PriceChanged = p.CurrentPrice != p.OldPrice && math.Abs(p.PercentageDiff) > m.threshold
	p.PriceChangeLabel = fmt.Sprintf("%d%%%s", int(math.Round(p.PercentageDiff)), directionSymbol(p.PercentageDiff))

	p.BothChanged = p.PriceChanged && p.StockChanged

	p.MinReached = m.reached(p.CurrentPrice, p.MinPrice)
	p.MaxReached = m.reached(p.CurrentPrice, p.MaxPrice)
	p.AtMinPrice = p.CurrentPrice <= p.MinPrice
	p.AtMaxPrice = p.CurrentPrice >= p.MaxPrice

	p.LossPercentage = LossPercentage(p.CurrentPrice, p.MaxPrice)
	return p
}

// reached considera o extremo atingido quando o preço é igual a ele ou quando
// a distância relativa fica abaixo do limiar
func (m *Merger) reached(price, bound float64) bool {
	var diff float64
	if bound != 0 {
		diff = (price - bound) / bound * 100
	}
	return price == bound || math.Abs(diff) < m.threshold
}

// LossPercentage calcula quanto o preço atual está abaixo do máximo histórico, em %
func LossPercentage(current, max float64) int {
	if max <= 0 || current <= 0 {
		return 0
	}
	loss := int(math.Round(100 * (1 - current/max)))
	if loss < 0 {
		return 0
	}
	return loss
}

func directionSymbol(v float64) string {
	if v > 0 {
		return "▲"
	}
	return "▼"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
