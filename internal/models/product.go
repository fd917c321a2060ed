package models

// Product representa um produto monitorado, persistido no arquivo de dados
type Product struct {
	ID       int64  `json:"product_id"`
	Name     string `json:"product_name"`
	Brand    string `json:"brand_name"`
	Category string `json:"category_name"`

	CurrentPrice float64 `json:"current_price"`
	OldPrice     float64 `json:"old_price"` // Preço antes da última atualização
	StockCount   int     `json:"stock_count"`
	OldStock     int     `json:"old_stock"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`

	// Campos derivados, recalculados a cada merge
	PriceChange      float64 `json:"price_change"`
	PercentageDiff   float64 `json:"percentage_diff"`
	PriceChangeLabel string  `json:"price_change_label"`
	PriceChanged     bool    `json:"price_changed_flag"`
	StockChanged     bool    `json:"stock_changed_flag"`
	StockChangeLabel string  `json:"stock_change_label"`
	BothChanged      bool    `json:"both_changed_flag"`
	MinReached       bool    `json:"min_reached_flag"`
	MaxReached       bool    `json:"max_reached_flag"`
	AtMinPrice       bool    `json:"at_min_price"`
	AtMaxPrice       bool    `json:"at_max_price"`
	LossPercentage   int     `json:"loss_percentage"`

	URL        string `json:"url"`
	ImageURL   string `json:"image_url"`
	InsertedAt int64  `json:"inserted_at"` // epoch em segundos, nunca alterado
}

// FetchedProduct é o resultado de uma busca remota bem-sucedida
type FetchedProduct struct {
	ID           int64
	Name         string
	Brand        string
	Category     string
	CurrentPrice float64
	StockCount   int
	MinPrice     float64
	MaxPrice     float64
	URL          string
	ImageURL     string
}

// ChangeKind classifica o estado de alteração de um produto para exibição
type ChangeKind string

const (
	ChangeNone        ChangeKind = "none"
	ChangePrice       ChangeKind = "price"
	ChangeStock       ChangeKind = "stock"
	ChangeBoth        ChangeKind = "both"
	ChangeUnavailable ChangeKind = "unavailable"
)

// ChangeKind retorna o tipo de alteração detectado na última atualização.
// Produtos sem preço são considerados indisponíveis.
func (p Product) ChangeKind() ChangeKind {
	switch {
	case p.CurrentPrice == 0:
		return ChangeUnavailable
	case p.BothChanged:
		return ChangeBoth
	case p.PriceChanged:
		return ChangePrice
	case p.StockChanged:
		return ChangeStock
	default:
		return ChangeNone
	}
}

// HasUpdates indica se houve alguma mudança de preço ou estoque
func (p Product) HasUpdates() bool {
	return p.PriceChanged || p.StockChanged || p.BothChanged
}

// PriceRange guarda os extremos do histórico de preços. Zero significa desconhecido.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Known indica se o histórico trouxe algum ponto
func (r PriceRange) Known() bool {
	return r.Min > 0 || r.Max > 0
}
