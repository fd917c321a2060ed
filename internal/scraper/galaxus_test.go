package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/requester"
)

const detailsBody = `[{"data":{"productDetails":{
  "product":{"name":"AirPods Pro (2. Gen) &amp; <b>USB-C</b>","brandName":"Apple","productTypeName":"Kopfhörer","images":[{"url":"https://img/1.jpg"},{"url":"https://img/2.jpg"}]},
  "offers":[
    {"offerId":1,"shopOfferId":11,"type":"RETAIL","price":{"amountInclusive":10.0},"supplier":null},
    {"offerId":2,"shopOfferId":12,"type":"RETAIL","price":{"amountInclusive":30.0},"supplier":{"name":"A"}},
    {"offerId":3,"shopOfferId":13,"type":"MARKETPLACE","price":{"amountInclusive":25.0},"supplier":{"name":"B"}},
    {"offerId":4,"shopOfferId":14,"type":"RETAIL","price":{"amountInclusive":25.0},"supplier":{"name":"C"}},
    {"offerId":5,"shopOfferId":15,"type":"RETAIL","price":{"amountInclusive":5.0},"supplier":{"name":""}}
  ],
  "productDetails":{"canonicalUrl":"/de/s1/product/apple-airpods-pro-12345"}
}}}]`

type fakeAPI struct {
	mu            sync.Mutex
	calls         map[string]int
	details       string
	detailsStatus int
	stockStatus   int
	historyStatus int
	history       string
	stockVars     map[string]any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:         map[string]int{},
		details:       detailsBody,
		detailsStatus: http.StatusOK,
		stockStatus:   http.StatusOK,
		historyStatus: http.StatusOK,
		history: `{"data":{"productById":{"priceHistory":{"points":[
			{"price":{"amountInclusive":20.0},"validFrom":"2024-01-01T00:00:00Z"},
			{"price":{"amountInclusive":40.0},"validFrom":"2024-02-01T00:00:00Z"},
			{"price":null,"validFrom":"2024-03-01T00:00:00Z"},
			{"price":{"amountInclusive":1.0}}
		]}}}}`,
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) lastStockVars() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stockVars
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/history" {
		f.calls["history"]++
		w.WriteHeader(f.historyStatus)
		_, _ = w.Write([]byte(f.history))
		return
	}

	var batch []struct {
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch batch[0].OperationName {
	case "PDP_GET_PRODUCT_DETAILS":
		f.calls["details"]++
		w.WriteHeader(f.detailsStatus)
		_, _ = w.Write([]byte(f.details))
	case "GET_OFFER_AVAILABILITY_V2":
		f.calls["stock"]++
		f.stockVars = batch[0].Variables
		w.WriteHeader(f.stockStatus)
		_, _ = w.Write([]byte(`[{"data":{"offerAvailabilityV2":{"id":"x","mail":{"stockDetails":{"stockCount":7}}}}}]`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[int64]models.PriceRange
}

func (c *mapCache) Get(ctx context.Context, id int64) (models.PriceRange, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[id]
	return r, ok, nil
}

func (c *mapCache) Set(ctx context.Context, id int64, r models.PriceRange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = r
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	return nil
}

func newTestClient(t *testing.T, api *fakeAPI, cache HistoryCache) *GalaxusClient {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	transport := requester.NewHTTPTransport(DefaultHeaders(), 8)
	t.Cleanup(func() { _ = transport.Close() })
	r, err := requester.New(transport, requester.Options{MaxRetries: 2, BackoffFactor: time.Millisecond, Timeout: 2 * time.Second}, nil, nil)
	require.NoError(t, err)
	r.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	client := NewGalaxusClient(r, Options{
		DetailsURL: srv.URL + "/api/graphql",
		HistoryURL: srv.URL + "/history",
		SiteURL:    "https://www.galaxus.ch",
	}, cache, nil)
	client.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return client
}

func TestFetchCombinesDetailsStockAndHistory(t *testing.T) {
	api := newFakeAPI()
	client := newTestClient(t, api, nil)

	p, err := client.Fetch(context.Background(), 12345, true)

	require.NoError(t, err)
	assert.Equal(t, int64(12345), p.ID)
	assert.Equal(t, "AirPods Pro (2. Gen) & USB-C", p.Name)
	assert.Equal(t, "Apple", p.Brand)
	assert.Equal(t, "Kopfhörer", p.Category)
	assert.Equal(t, 25.0, p.CurrentPrice)
	assert.Equal(t, 7, p.StockCount)
	assert.Equal(t, 20.0, p.MinPrice, "pontos sem preço ou validFrom são ignorados")
	assert.Equal(t, 40.0, p.MaxPrice)
	assert.Equal(t, "https://www.galaxus.ch/de/s1/product/apple-airpods-pro-12345", p.URL)
	assert.Equal(t, "https://img/1.jpg", p.ImageURL)

	vars := api.lastStockVars()
	require.NotNil(t, vars)
	assert.EqualValues(t, 3, vars["salesOfferId"], "empate de preço mantém a primeira oferta válida")
	assert.Equal(t, "MARKETPLACE", vars["salesOfferType"])
}

func TestFetchRejectsInvalidIDWithoutNetwork(t *testing.T) {
	api := newFakeAPI()
	client := newTestClient(t, api, nil)

	_, err := client.Fetch(context.Background(), 0, true)

	require.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Zero(t, api.count("details"))
}

func TestFetchFailsWhenDetailsFail(t *testing.T) {
	api := newFakeAPI()
	api.detailsStatus = http.StatusInternalServerError
	client := newTestClient(t, api, nil)

	_, err := client.Fetch(context.Background(), 12345, true)

	require.ErrorIs(t, err, requester.ErrRetriesExhausted)
	assert.Equal(t, 2, api.count("details"))
	assert.Zero(t, api.count("stock"))
	assert.Zero(t, api.count("history"))
}

func TestFetchFailsOnUnexpectedDetailsShape(t *testing.T) {
	api := newFakeAPI()
	api.details = `[{"data":{"productDetails":null}}]`
	client := newTestClient(t, api, nil)

	_, err := client.Fetch(context.Background(), 12345, false)

	require.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestFetchDefaultsStockWhenAvailabilityFails(t *testing.T) {
	api := newFakeAPI()
	api.stockStatus = http.StatusBadGateway
	client := newTestClient(t, api, nil)

	p, err := client.Fetch(context.Background(), 12345, false)

	require.NoError(t, err)
	assert.Equal(t, 0, p.StockCount)
	assert.Equal(t, 25.0, p.CurrentPrice)
}

func TestFetchFallsBackToCurrentPriceWhenHistoryFails(t *testing.T) {
	api := newFakeAPI()
	api.historyStatus = http.StatusInternalServerError
	client := newTestClient(t, api, nil)

	p, err := client.Fetch(context.Background(), 12345, true)

	require.NoError(t, err)
	assert.Equal(t, 25.0, p.MinPrice)
	assert.Equal(t, 25.0, p.MaxPrice)
	assert.Equal(t, 2, api.count("history"))
}

func TestFetchSkipsHistoryWhenNotRequested(t *testing.T) {
	api := newFakeAPI()
	client := newTestClient(t, api, nil)

	p, err := client.Fetch(context.Background(), 12345, false)

	require.NoError(t, err)
	assert.Zero(t, api.count("history"))
	assert.Equal(t, 25.0, p.MinPrice)
	assert.Equal(t, 25.0, p.MaxPrice)
}

func TestFetchWithoutValidOffers(t *testing.T) {
	api := newFakeAPI()
	api.details = `[{"data":{"productDetails":{"product":{"name":"X","images":[]},"offers":[{"offerId":1,"price":{"amountInclusive":9.5},"supplier":{"name":" "}}],"productDetails":{"canonicalUrl":"https://www.galaxus.ch/x-1"}}}}]`
	client := newTestClient(t, api, nil)

	p, err := client.Fetch(context.Background(), 1, false)

	require.NoError(t, err)
	assert.Equal(t, 0.0, p.CurrentPrice)
	assert.Equal(t, 0, p.StockCount)
	assert.Equal(t, "", p.ImageURL)
	assert.Equal(t, "https://www.galaxus.ch/x-1", p.URL)
	assert.Zero(t, api.count("stock"))
}

func TestFetchKeepsCurrentPriceInsideStaleHistory(t *testing.T) {
	api := newFakeAPI()
	api.history = `{"data":{"productById":{"priceHistory":{"points":[{"price":{"amountInclusive":30.0},"validFrom":"2024-01-01"},{"price":{"amountInclusive":28.0},"validFrom":"2024-01-02"}]}}}}`
	client := newTestClient(t, api, nil)

	p, err := client.Fetch(context.Background(), 12345, true)

	require.NoError(t, err)
	assert.Equal(t, 25.0, p.MinPrice)
	assert.Equal(t, 30.0, p.MaxPrice)
}

func TestFetchUsesHistoryCache(t *testing.T) {
	api := newFakeAPI()
	cache := &mapCache{data: map[int64]models.PriceRange{}}
	client := newTestClient(t, api, cache)

	_, err := client.Fetch(context.Background(), 12345, true)
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), 12345, true)
	require.NoError(t, err)

	assert.Equal(t, 1, api.count("history"))
	assert.Equal(t, models.PriceRange{Min: 20, Max: 40}, cache.data[12345])
}

func TestForgetHistoryRefetchesOnNextFetch(t *testing.T) {
	api := newFakeAPI()
	cache := &mapCache{data: map[int64]models.PriceRange{}}
	client := newTestClient(t, api, cache)

	_, err := client.Fetch(context.Background(), 12345, true)
	require.NoError(t, err)
	require.NoError(t, client.ForgetHistory(context.Background(), 12345))
	assert.NotContains(t, cache.data, int64(12345))

	_, err = client.Fetch(context.Background(), 12345, true)
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("history"))

	assert.NoError(t, newTestClient(t, api, nil).ForgetHistory(context.Background(), 12345))
}

func TestReconcileBounds(t *testing.T) {
	min, max := reconcileBounds(50, models.PriceRange{})
	assert.Equal(t, 50.0, min)
	assert.Equal(t, 50.0, max)

	min, max = reconcileBounds(50, models.PriceRange{Min: 40, Max: 60})
	assert.Equal(t, 40.0, min)
	assert.Equal(t, 60.0, max)

	min, max = reconcileBounds(50, models.PriceRange{Min: 55, Max: 0})
	assert.Equal(t, 50.0, min)
	assert.Equal(t, 50.0, max)
}

func TestEncodeProductID(t *testing.T) {
	decoded, err := base64.StdEncoding.DecodeString(encodeProductID(123))
	require.NoError(t, err)
	assert.Equal(t, "Product\nd123:1:406802", string(decoded))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Apple & Co Pro", cleanText("  Apple &amp; Co <b>Pro</b> "))
	assert.Equal(t, "Samsung Galaxy S24", cleanText("Samsung   Galaxy\nS24"))
	assert.Equal(t, "", cleanText(""))
}
