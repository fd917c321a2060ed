package models

import (
	"sort"
	"strconv"
	"strings"
)

// SortOrder define a ordenação da lista de produtos
type SortOrder string

const (
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortNewest    SortOrder = "newest"
	SortLossDesc  SortOrder = "loss_desc"
)

// Filter reúne os critérios usados pelas interfaces para filtrar a lista
type Filter struct {
	MinReachedOnly bool
	OnlyUpdates    bool
	Category       string
	Search         string
}

// Matches verifica se o produto atende a todos os critérios do filtro.
// Uma busca composta apenas por dígitos compara com o ID do produto.
func (f Filter) Matches(p Product) bool {
	if f.MinReachedOnly && !p.MinReached {
		return false
	}
	if f.OnlyUpdates && !p.HasUpdates() {
		return false
	}
	if f.Category != "" && f.Category != p.Category {
		return false
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	if search == "" {
		return true
	}
	if id, err := strconv.ParseInt(search, 10, 64); err == nil {
		return id == p.ID
	}
	for _, field := range []string{p.Name, p.Brand, p.Category} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// Apply filtra e ordena uma cópia da lista
func Apply(products []Product, f Filter, order SortOrder) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	SortProducts(out, order)
	return out
}

// SortProducts ordena a lista no lugar. Ordens desconhecidas mantêm a ordem atual.
func SortProducts(products []Product, order SortOrder) {
	var less func(a, b Product) bool
	switch order {
	case SortPriceAsc:
		less = func(a, b Product) bool { return a.CurrentPrice < b.CurrentPrice }
	case SortPriceDesc:
		less = func(a, b Product) bool { return a.CurrentPrice > b.CurrentPrice }
	case SortNewest:
		less = func(a, b Product) bool { return a.InsertedAt > b.InsertedAt }
	case SortLossDesc:
		less = func(a, b Product) bool { return a.LossPercentage > b.LossPercentage }
	default:
		return
	}
	sort.SliceStable(products, func(i, j int) bool { return less(products[i], products[j]) })
}
