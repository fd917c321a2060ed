// Package monitor executa o ciclo buscar, mesclar e gravar dos produtos
// monitorados e expõe as operações usadas pelo bot e pela API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"galaxo-monitor/internal/merger"
	"galaxo-monitor/internal/metrics"
	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/scraper"
	"galaxo-monitor/internal/storage"
)

// Notifier recebe os produtos cujo preço mudou ou atingiu o mínimo histórico
type Notifier interface {
	NotifyChanges(ctx context.Context, products []models.Product) error
}

// Mirror recebe uma cópia da lista após cada gravação
type Mirror interface {
	Sync(ctx context.Context, products []models.Product) error
}

// historyForgetter é implementado por fontes que mantêm cache de histórico
type historyForgetter interface {
	ForgetHistory(ctx context.Context, productID int64) error
}

// Outcome resume um ciclo de atualização. Falhas são atribuídas por ID.
type Outcome struct {
	BatchID string          `json:"batch_id"`
	Total   int             `json:"total"`
	Updated int             `json:"updated"`
	Failed  map[int64]error `json:"-"`
}

// FailedIDs retorna as mensagens de erro indexadas por ID
func (o Outcome) FailedIDs() map[int64]string {
	out := make(map[int64]string, len(o.Failed))
	for id, err := range o.Failed {
		out[id] = err.Error()
	}
	return out
}

// Options configura o Monitor
type Options struct {
	Interval    time.Duration
	Concurrency int
}

// Monitor gerencia o monitoramento periódico de produtos
type Monitor struct {
	store        *storage.Store
	source       scraper.Source
	orchestrator *Orchestrator
	merger       *merger.Merger
	interval     time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mirror   Mirror
	notifier Notifier

	// writeMu serializa merges e gravações; buscas acontecem fora dele
	writeMu sync.Mutex
	refresh singleflight.Group

	// cycleCtx é compartilhado pelos ciclos de atualização e só é cancelado
	// quando Start termina, nunca pelo contexto de quem pediu o ciclo
	cycleCtx   context.Context
	stopCycles context.CancelFunc
}

// New cria uma nova instância do monitor
func New(store *storage.Store, source scraper.Source, mg *merger.Merger, opts Options, logger *slog.Logger, m *metrics.Metrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	cycleCtx, stop := context.WithCancel(context.Background())
	return &Monitor{
		cycleCtx:     cycleCtx,
		stopCycles:   stop,
		store:        store,
		source:       source,
		orchestrator: NewOrchestrator(source, opts.Concurrency, logger, m),
		merger:       mg,
		interval:     opts.Interval,
		logger:       logger,
		metrics:      m,
	}
}

// SetMirror configura o espelho SQLite
func (m *Monitor) SetMirror(mirror Mirror) {
	m.mirror = mirror
}

// SetNotifier configura o destino das notificações de mudança
func (m *Monitor) SetNotifier(n Notifier) {
	m.notifier = n
}

// Start atualiza imediatamente e depois a cada intervalo, até o contexto ser cancelado
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("monitor iniciado", "interval", m.interval)

	m.runCycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopCycles()
			m.logger.Info("monitor encerrado")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	if _, err := m.RefreshAllPrices(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("erro no ciclo de atualização", "error", err)
	}
}

// RefreshAllPrices executa o ciclo completo: busca todos os IDs sem histórico,
// mescla os sucessos, grava a lista e notifica as mudanças. Chamadas
// simultâneas compartilham o mesmo ciclo. Cancelar ctx só interrompe a
// espera de quem chamou; o ciclo continua para os demais.
func (m *Monitor) RefreshAllPrices(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	ch := m.refresh.DoChan("refresh", func() (any, error) {
		return m.refreshAll(m.cycleCtx)
	})
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("atualização já em andamento, aguardando o mesmo ciclo")
		}
		outcome, _ := res.Val.(Outcome)
		return outcome, res.Err
	}
}

func (m *Monitor) refreshAll(ctx context.Context) (Outcome, error) {
	start := time.Now()
	outcome := Outcome{BatchID: uuid.NewString(), Failed: map[int64]error{}}
	logger := m.logger.With("batch_id", outcome.BatchID)
	defer m.metrics.ObserveBatch(start)

	ids := m.store.IDs()
	outcome.Total = len(ids)
	if len(ids) == 0 {
		logger.Info("nenhum produto monitorado")
		return outcome, nil
	}
	logger.Info("atualizando preços", "count", len(ids))

	results := m.orchestrator.RefreshAll(ctx, ids, false)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	var changed []models.Product
	current := m.store.List()
	merged := make([]models.Product, 0, len(current))
	for _, p := range current {
		r, ok := results[p.ID]
		switch {
		case !ok:
			// adicionado durante a busca
		case r.Err != nil:
			outcome.Failed[p.ID] = r.Err
		default:
			prev := p
			p = m.merger.MergeUpdate(p, r.Product)
			outcome.Updated++
			// mínimo só é notificado na transição, não a cada ciclo
			if p.PriceChanged || (p.MinReached && !prev.MinReached) {
				changed = append(changed, p)
			}
		}
		merged = append(merged, p)
	}
	m.store.ReplaceAll(merged)

	if err := m.commit(ctx, current); err != nil {
		return outcome, err
	}

	if len(changed) > 0 && m.notifier != nil {
		if err := m.notifier.NotifyChanges(ctx, changed); err != nil {
			logger.Warn("erro ao enviar notificações", "error", err)
		}
	}

	logger.Info("atualização concluída",
		"total", outcome.Total,
		"updated", outcome.Updated,
		"failed", len(outcome.Failed),
		"changed", len(changed),
		"duration", time.Since(start),
	)
	return outcome, nil
}

// commit grava a lista; se a gravação falhar, restaura o snapshot anterior.
// Deve ser chamado com writeMu.
func (m *Monitor) commit(ctx context.Context, snapshot []models.Product) error {
	if err := m.persist(ctx); err != nil {
		m.store.ReplaceAll(snapshot)
		return err
	}
	return nil
}

// persist grava a lista e atualiza o espelho
func (m *Monitor) persist(ctx context.Context) error {
	if err := m.store.Persist(); err != nil {
		return fmt.Errorf("monitor: erro ao gravar produtos: %w", err)
	}
	m.metrics.Tracked(m.store.Len())
	if m.mirror != nil {
		if err := m.mirror.Sync(ctx, m.store.List()); err != nil {
			m.logger.Warn("erro ao sincronizar espelho SQLite", "error", err)
		}
	}
	return nil
}

// AddFavoriteByURL extrai o ID da URL, busca o produto com histórico e passa
// a monitorá-lo. Um produto já monitorado é retornado junto com ErrDuplicate.
func (m *Monitor) AddFavoriteByURL(ctx context.Context, rawURL string) (models.Product, error) {
	id, err := models.ProductIDFromURL(rawURL)
	if err != nil {
		return models.Product{}, err
	}
	if existing, ok := m.store.Get(id); ok {
		return existing, fmt.Errorf("%w: produto %d", models.ErrDuplicate, id)
	}

	fetched, err := m.source.Fetch(ctx, id, true)
	m.metrics.Fetch(err)
	if err != nil {
		return models.Product{}, fmt.Errorf("monitor: erro ao buscar produto %d: %w", id, err)
	}
	product := m.merger.CreateInitial(fetched)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	snapshot := m.store.List()
	if !m.store.Add(product) {
		existing, _ := m.store.Get(id)
		return existing, fmt.Errorf("%w: produto %d", models.ErrDuplicate, id)
	}
	if err := m.commit(ctx, snapshot); err != nil {
		return models.Product{}, err
	}
	m.logger.Info("produto adicionado", "product_id", id, "name", product.Name, "price", product.CurrentPrice)
	return product, nil
}

// CheckProduct atualiza um único produto (usado pelo comando /check)
func (m *Monitor) CheckProduct(ctx context.Context, id int64) (models.Product, error) {
	if _, ok := m.store.Get(id); !ok {
		return models.Product{}, fmt.Errorf("%w: produto %d", models.ErrNotFound, id)
	}

	fetched, err := m.source.Fetch(ctx, id, false)
	m.metrics.Fetch(err)
	if err != nil {
		return models.Product{}, fmt.Errorf("monitor: erro ao buscar produto %d: %w", id, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	existing, ok := m.store.Get(id)
	if !ok {
		return models.Product{}, fmt.Errorf("%w: produto %d", models.ErrNotFound, id)
	}
	snapshot := m.store.List()
	updated := m.merger.MergeUpdate(existing, fetched)
	m.store.Update(updated)
	if err := m.commit(ctx, snapshot); err != nil {
		return models.Product{}, err
	}
	return updated, nil
}

// DeleteTracked deixa de monitorar o produto, grava a lista e descarta o
// histórico em cache do produto
func (m *Monitor) DeleteTracked(ctx context.Context, id int64) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	snapshot := m.store.List()
	if !m.store.Remove(id) {
		return fmt.Errorf("%w: produto %d", models.ErrNotFound, id)
	}
	if err := m.commit(ctx, snapshot); err != nil {
		return err
	}
	if f, ok := m.source.(historyForgetter); ok {
		if err := f.ForgetHistory(ctx, id); err != nil {
			m.logger.Warn("erro ao descartar histórico em cache", "product_id", id, "error", err)
		}
	}
	m.logger.Info("produto removido", "product_id", id)
	return nil
}

// ListTracked retorna os produtos monitorados
func (m *Monitor) ListTracked() []models.Product {
	return m.store.List()
}

// GetTracked retorna um produto monitorado
func (m *Monitor) GetTracked(id int64) (models.Product, bool) {
	return m.store.Get(id)
}
