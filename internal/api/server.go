// Package api expõe o monitor por HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"galaxo-monitor/internal/metrics"
	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/monitor"
)

// Service são as operações do monitor expostas pela API
type Service interface {
	ListTracked() []models.Product
	GetTracked(id int64) (models.Product, bool)
	AddFavoriteByURL(ctx context.Context, rawURL string) (models.Product, error)
	DeleteTracked(ctx context.Context, id int64) error
	RefreshAllPrices(ctx context.Context) (monitor.Outcome, error)
}

// Handler agrupa as rotas HTTP
type Handler struct {
	service   Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	rateLimit int
}

// NewHandler cria o handler. rateLimit é o número de requisições por minuto por IP.
func NewHandler(service Service, logger *slog.Logger, m *metrics.Metrics, rateLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if rateLimit <= 0 {
		rateLimit = 60
	}
	return &Handler{service: service, logger: logger, metrics: m, rateLimit: rateLimit}
}

// Router monta o roteador chi com middlewares e rotas
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", h.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.rateLimit, time.Minute))
		r.Get("/products", h.handleList)
		r.Post("/products", h.handleAdd)
		r.Get("/products/{id}", h.handleGet)
		r.Delete("/products/{id}", h.handleDelete)
		r.Post("/refresh", h.handleRefresh)
	})
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.Filter{
		MinReachedOnly: q.Get("min_reached") == "true",
		OnlyUpdates:    q.Get("updates") == "true",
		Category:       q.Get("category"),
		Search:         q.Get("q"),
	}
	order := models.SortOrder(q.Get("sort"))
	switch order {
	case "", models.SortPriceAsc, models.SortPriceDesc, models.SortNewest, models.SortLossDesc:
	default:
		problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("ordenação desconhecida: %s", order))
		return
	}
	writeJSON(w, http.StatusOK, models.Apply(h.service.ListTracked(), filter, order))
}

func parseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: ID inválido", models.ErrInvalidArgument)
	}
	return id, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	p, ok := h.service.GetTracked(id)
	if !ok {
		respondError(w, fmt.Errorf("%w: produto %d", models.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type addRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem(w, http.StatusBadRequest, "Validation Failed", "corpo JSON inválido")
		return
	}
	p, err := h.service.AddFavoriteByURL(r.Context(), req.URL)
	switch {
	case errors.Is(err, models.ErrDuplicate):
		writeJSON(w, http.StatusOK, p)
	case err != nil:
		h.logger.Warn("erro ao adicionar produto", "url", req.URL, "error", err)
		respondError(w, err)
	default:
		writeJSON(w, http.StatusCreated, p)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.service.DeleteTracked(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshResponse struct {
	BatchID string           `json:"batch_id"`
	Total   int              `json:"total"`
	Updated int              `json:"updated"`
	Failed  map[int64]string `json:"failed"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.RefreshAllPrices(r.Context())
	if err != nil {
		h.logger.Error("erro ao atualizar preços", "error", err)
		problem(w, http.StatusInternalServerError, "Internal Error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		BatchID: outcome.BatchID,
		Total:   outcome.Total,
		Updated: outcome.Updated,
		Failed:  outcome.FailedIDs(),
	})
}

// Serve escuta em addr até o contexto ser cancelado e então encerra com prazo
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API HTTP ouvindo", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("encerrando API HTTP")
		return srv.Shutdown(shutdownCtx)
	}
}
