package requester

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxo-monitor/internal/metrics"
)

type scriptedTransport struct {
	mu        sync.Mutex
	calls     int
	responses []func() (*Response, error)
}

func (s *scriptedTransport) Do(ctx context.Context, endpoint string, body []byte, header http.Header) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx]()
}

func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func failing() (*Response, error) { return nil, errors.New("connection reset") }

func ok(body string) func() (*Response, error) {
	return func() (*Response, error) { return &Response{StatusCode: 200, Body: []byte(body)}, nil }
}

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestRequester(t *testing.T, transport Transport, opts Options, m *metrics.Metrics) (*Requester, *recordingSleeper) {
	t.Helper()
	r, err := New(transport, opts, nil, m)
	require.NoError(t, err)
	sleeper := &recordingSleeper{}
	r.WithSleeper(sleeper.Sleep)
	return r, sleeper
}

func TestExecuteStopsAfterMaxRetries(t *testing.T) {
	transport := &scriptedTransport{responses: []func() (*Response, error){failing}}
	m := metrics.New()
	r, sleeper := newTestRequester(t, transport, Options{MaxRetries: 5, BackoffFactor: time.Second, Timeout: time.Second}, m)

	_, err := r.Execute(context.Background(), Request{Endpoint: "http://example.invalid", Payload: map[string]any{"q": 1}})

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 5, transport.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.delays)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.AttemptsCounter("failure")))
}

func TestExecuteSingleAttemptDoesNotSleep(t *testing.T) {
	transport := &scriptedTransport{responses: []func() (*Response, error){failing}}
	r, sleeper := newTestRequester(t, transport, Options{MaxRetries: 1, BackoffFactor: time.Second, Timeout: time.Second}, nil)

	_, err := r.Execute(context.Background(), Request{Endpoint: "x", Payload: "p"})

	require.Error(t, err)
	assert.Equal(t, 1, transport.Calls())
	assert.Empty(t, sleeper.delays)
}

func TestExecuteRecoversAfterTransientFailures(t *testing.T) {
	transport := &scriptedTransport{responses: []func() (*Response, error){
		failing,
		func() (*Response, error) { return &Response{StatusCode: 503, Body: []byte("{}")}, nil },
		ok(`{"data":{"ok":true}}`),
	}}
	r, sleeper := newTestRequester(t, transport, Options{MaxRetries: 5, BackoffFactor: 500 * time.Millisecond, Timeout: time.Second}, nil)

	resp, err := r.Execute(context.Background(), Request{Endpoint: "x", Payload: "p"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"ok":true}}`, string(resp.Body))
	assert.Equal(t, 3, transport.Calls())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.delays)
}

func TestExecuteTreatsGraphQLErrorsAsFailure(t *testing.T) {
	cases := map[string]string{
		"objeto": `{"errors":[{"message":"boom"}],"data":null}`,
		"lote":   `[{"data":{}},{"errors":[{"message":"boom"}]}]`,
		"html":   `<html>blocked</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			transport := &scriptedTransport{responses: []func() (*Response, error){ok(body)}}
			r, _ := newTestRequester(t, transport, Options{MaxRetries: 3, BackoffFactor: time.Millisecond, Timeout: time.Second}, nil)

			_, err := r.Execute(context.Background(), Request{Endpoint: "x", Payload: "p"})

			require.ErrorIs(t, err, ErrRetriesExhausted)
			assert.Equal(t, 3, transport.Calls())
		})
	}
}

func TestExecuteAcceptsBatchWithoutErrors(t *testing.T) {
	transport := &scriptedTransport{responses: []func() (*Response, error){ok(`[{"data":{"a":1},"errors":null}]`)}}
	r, _ := newTestRequester(t, transport, DefaultOptions(), nil)

	_, err := r.Execute(context.Background(), Request{Endpoint: "x", Payload: "p"})
	require.NoError(t, err)
}

func TestExecuteAppliesTimeoutPerAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	transport := NewHTTPTransport(nil, 4)
	defer transport.Close()
	m := metrics.New()
	r, sleeper := newTestRequester(t, transport, Options{MaxRetries: 2, BackoffFactor: time.Millisecond, Timeout: 50 * time.Millisecond}, m)

	start := time.Now()
	_, err := r.Execute(context.Background(), Request{Endpoint: srv.URL, Payload: "p"})

	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, sleeper.delays, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AttemptsCounter("failure")))
}

func TestExecuteStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	transport := &scriptedTransport{responses: []func() (*Response, error){failing}}
	r, err := New(transport, Options{MaxRetries: 5, BackoffFactor: time.Hour, Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err = r.Execute(ctx, Request{Endpoint: "x", Payload: "p"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.Calls())
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	r, err := New(&scriptedTransport{}, Options{MaxRetries: 3, BackoffFactor: time.Second, Timeout: time.Second, Jitter: 0.5}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		d := r.Backoff(3)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 6*time.Second)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(&scriptedTransport{}, Options{MaxRetries: 0, Timeout: time.Second}, nil, nil)
	require.Error(t, err)

	_, err = New(&scriptedTransport{}, Options{MaxRetries: 1}, nil, nil)
	require.Error(t, err)

	_, err = New(nil, DefaultOptions(), nil, nil)
	require.Error(t, err)
}

func TestHTTPTransportSendsStaticHeaders(t *testing.T) {
	var gotHeader http.Header
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	static := http.Header{}
	static.Set("User-Agent", "galaxo-test")
	static.Set("X-Dg-Language", "de-CH")
	transport := NewHTTPTransport(static, 0)
	defer transport.Close()

	r, err := New(transport, DefaultOptions(), nil, nil)
	require.NoError(t, err)

	extra := http.Header{}
	extra.Set("Referer", "https://www.galaxus.ch")
	resp, err := r.Execute(context.Background(), Request{Endpoint: srv.URL, Payload: map[string]int{"productId": 5}, Header: extra})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "galaxo-test", gotHeader.Get("User-Agent"))
	assert.Equal(t, "de-CH", gotHeader.Get("X-Dg-Language"))
	assert.Equal(t, "https://www.galaxus.ch", gotHeader.Get("Referer"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.JSONEq(t, `{"productId":5}`, gotBody)
}
