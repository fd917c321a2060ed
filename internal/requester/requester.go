// Package requester implementa o envio de requisições GraphQL com timeout
// por tentativa e novas tentativas com backoff exponencial.
package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"

	"galaxo-monitor/internal/metrics"
)

var (
	// ErrRetriesExhausted indica que todas as tentativas falharam
	ErrRetriesExhausted = errors.New("número máximo de tentativas atingido")
	// ErrHTTPStatus indica uma resposta HTTP fora da faixa 2xx
	ErrHTTPStatus = errors.New("status HTTP inesperado")
	// ErrGraphQL indica uma resposta com o campo "errors" preenchido
	ErrGraphQL = errors.New("erros GraphQL na resposta")
)

// Options configura as tentativas
type Options struct {
	MaxRetries    int           `validate:"min=1"`
	BackoffFactor time.Duration `validate:"gte=0"`
	Timeout       time.Duration `validate:"gt=0"`
	// Jitter é a fração (0..1) de variação aleatória aplicada ao backoff. Zero desliga.
	Jitter float64 `validate:"gte=0,lte=1"`
}

// DefaultOptions retorna 5 tentativas, fator de 1s e timeout de 5s
func DefaultOptions() Options {
	return Options{
		MaxRetries:    5,
		BackoffFactor: time.Second,
		Timeout:       5 * time.Second,
	}
}

// Sleeper aguarda a duração informada ou o cancelamento do contexto
type Sleeper func(ctx context.Context, d time.Duration) error

// Requester é o único ponto de tratamento de falhas de rede
type Requester struct {
	transport Transport
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sleep     Sleeper
	random    func() float64
}

// New valida as opções e cria o Requester
func New(transport Transport, opts Options, logger *slog.Logger, m *metrics.Metrics) (*Requester, error) {
	if transport == nil {
		return nil, errors.New("requester: transporte não configurado")
	}
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("requester: opções inválidas: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Requester{
		transport: transport,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		sleep:     sleepContext,
		random:    rand.Float64,
	}, nil
}

// WithSleeper substitui a função de espera (usado em testes)
func (r *Requester) WithSleeper(s Sleeper) *Requester {
	r.sleep = s
	return r
}

// Execute envia a requisição até obter sucesso ou esgotar as tentativas.
// Sucesso exige transporte sem erro, status 2xx e ausência de "errors" no envelope GraphQL.
func (r *Requester) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("requester: erro ao serializar payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		resp, err := r.attempt(ctx, req, body)
		if err == nil {
			r.metrics.Attempt("success")
			return resp, nil
		}
		lastErr = err
		r.metrics.Attempt("failure")
		r.logger.Warn("tentativa de requisição falhou",
			"endpoint", req.Endpoint,
			"attempt", attempt,
			"payload", truncate(string(body), 256),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("requester: requisição cancelada: %w", ctx.Err())
		}
		if attempt == r.opts.MaxRetries {
			r.logger.Error("número máximo de tentativas atingido, desistindo",
				"endpoint", req.Endpoint,
				"max_retries", r.opts.MaxRetries,
			)
			break
		}

		delay := r.Backoff(attempt)
		r.logger.Info("nova tentativa agendada", "endpoint", req.Endpoint, "attempt", attempt+1, "delay", delay)
		r.metrics.Retry()
		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("requester: espera interrompida: %w", err)
		}
	}
	return nil, fmt.Errorf("%w (%d tentativas): %w", ErrRetriesExhausted, r.opts.MaxRetries, lastErr)
}

// Backoff retorna a espera antes da tentativa attempt+1: fator * 2^(attempt-1),
// com variação de ±Jitter quando configurada
func (r *Requester) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(r.opts.BackoffFactor) * math.Pow(2, float64(attempt-1))
	if r.opts.Jitter > 0 {
		delay *= 1 + (r.random()*2-1)*r.opts.Jitter
	}
	return time.Duration(delay)
}

func (r *Requester) attempt(ctx context.Context, req Request, body []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	resp, err := r.transport.Do(attemptCtx, req.Endpoint, body, req.Header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	if err := checkGraphQLErrors(resp.Body); err != nil {
		return nil, err
	}
	return resp, nil
}

type envelope struct {
	Errors []json.RawMessage `json:"errors"`
}

// checkGraphQLErrors aceita tanto um envelope único quanto um lote (array de envelopes)
func checkGraphQLErrors(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errors.New("resposta vazia")
	}

	switch trimmed[0] {
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return fmt.Errorf("resposta JSON inválida: %w", err)
		}
		if len(env.Errors) > 0 {
			return fmt.Errorf("%w: %s", ErrGraphQL, truncate(string(env.Errors[0]), 256))
		}
	case '[':
		var batch []envelope
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return fmt.Errorf("resposta JSON inválida: %w", err)
		}
		for _, env := range batch {
			if len(env.Errors) > 0 {
				return fmt.Errorf("%w: %s", ErrGraphQL, truncate(string(env.Errors[0]), 256))
			}
		}
	default:
		return fmt.Errorf("resposta não é JSON: %s", truncate(string(trimmed), 64))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
