// Package metrics expõe os coletores Prometheus do pipeline de atualização.
// Todos os métodos aceitam receptor nil, o que desliga a instrumentação.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa os coletores usados pelo requester, pela fonte remota,
// pelo orquestrador e pelo armazenamento
type Metrics struct {
	handler       http.Handler
	attempts      *prometheus.CounterVec
	retries       prometheus.Counter
	fetches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	backups       *prometheus.CounterVec
	tracked       prometheus.Gauge
}

// New cria um registry próprio e registra os coletores
func New() *Metrics {
	registry := prometheus.NewRegistry()
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxo_request_attempts_total",
		Help: "Tentativas de requisição por resultado.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "galaxo_request_retries_total",
		Help: "Novas tentativas agendadas após falha.",
	})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxo_product_fetches_total",
		Help: "Buscas de produto por resultado.",
	}, []string{"result"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "galaxo_refresh_duration_seconds",
		Help:    "Duração de um ciclo completo de atualização.",
		Buckets: prometheus.DefBuckets,
	})
	backups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxo_backups_total",
		Help: "Backups do arquivo de dados por ação.",
	}, []string{"action"})
	tracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "galaxo_tracked_products",
		Help: "Produtos monitorados atualmente.",
	})
	registry.MustRegister(attempts, retries, fetches, batchDuration, backups, tracked)

	return &Metrics{
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		attempts:      attempts,
		retries:       retries,
		fetches:       fetches,
		batchDuration: batchDuration,
		backups:       backups,
		tracked:       tracked,
	}
}

// Handler retorna o http.Handler para o endpoint /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Attempt registra uma tentativa de requisição ("success" ou "failure")
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Retry registra uma nova tentativa agendada
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Fetch registra o resultado de uma busca de produto
func (m *Metrics) Fetch(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.fetches.WithLabelValues(result).Inc()
}

// ObserveBatch registra a duração de um ciclo de atualização
func (m *Metrics) ObserveBatch(start time.Time) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(time.Since(start).Seconds())
}

// Backup registra a ação tomada sobre o backup ("created", "skipped", "pruned")
func (m *Metrics) Backup(action string) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(action).Inc()
}

// Tracked atualiza o número de produtos monitorados
func (m *Metrics) Tracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}

// AttemptsCounter expõe o contador de tentativas para asserções em testes
func (m *Metrics) AttemptsCounter(outcome string) prometheus.Counter {
	return m.attempts.WithLabelValues(outcome)
}

// BackupsCounter expõe o contador de backups para asserções em testes
func (m *Metrics) BackupsCounter(action string) prometheus.Counter {
	return m.backups.WithLabelValues(action)
}

// FetchesCounter expõe o contador de buscas para asserções em testes
func (m *Metrics) FetchesCounter(result string) prometheus.Counter {
	return m.fetches.WithLabelValues(result)
}
