package monitor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"galaxo-monitor/internal/metrics"
	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/scraper"
)

// DefaultConcurrency limita as buscas simultâneas em um lote
const DefaultConcurrency = 10

// Result é o resultado da busca de um único produto
type Result struct {
	Product models.FetchedProduct
	Err     error
}

// Orchestrator distribui as buscas de um lote entre workers limitados.
// A falha de um ID nunca interrompe os demais.
type Orchestrator struct {
	source      scraper.Source
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewOrchestrator cria o orquestrador. concurrency <= 0 usa o padrão.
func NewOrchestrator(source scraper.Source, concurrency int, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{source: source, concurrency: concurrency, logger: logger, metrics: m}
}

// RefreshAll busca todos os IDs e bloqueia até o fim do lote. IDs que não
// chegaram a iniciar por cancelamento do contexto recebem ctx.Err().
func (o *Orchestrator) RefreshAll(ctx context.Context, ids []int64, includeHistory bool) map[int64]Result {
	results := make(map[int64]Result, len(ids))
	var mu sync.Mutex
	record := func(id int64, r Result) {
		mu.Lock()
		results[id] = r
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		id := id // per-iteration copy; go.mod targets go 1.21 loop semantics
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(id, Result{Err: err})
				return nil
			}
			p, err := o.source.Fetch(ctx, id, includeHistory)
			o.metrics.Fetch(err)
			if err != nil {
				o.logger.Error("erro ao buscar produto", "product_id", id, "error", err)
			}
			record(id, Result{Product: p, Err: err})
			return nil
		})
	}
	_ = g.Wait()
	return results
}
