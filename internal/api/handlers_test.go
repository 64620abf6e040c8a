package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"metalprice/internal/batch"
	"metalprice/internal/metrics"
	"metalprice/internal/pricing"
	"metalprice/internal/provider"
	"metalprice/internal/provider/cache"
	"metalprice/internal/provider/spot"
	"metalprice/internal/store"
)

type fakeRefresher struct {
	store *store.PersistentPriceStore
	err   error
	calls []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, currency string, source store.Source) (*store.StoredPriceSet, error) {
	f.calls = append(f.calls, currency+"/"+string(source))
	if f.err != nil {
		return nil, f.err
	}
	return f.store.Save(ctx, decimal.NewFromInt(60), decimal.NewFromInt(30), currency, source)
}

type fakeCatalog struct {
	products []pricing.Product
	err      error
}

func (f fakeCatalog) ListProducts(context.Context) ([]pricing.Product, error) {
	return f.products, f.err
}

type testAPI struct {
	router    http.Handler
	store     *store.PersistentPriceStore
	refresher *fakeRefresher
}

func setupTestAPI(t *testing.T, cat Catalog) testAPI {
	t.Helper()

	logger := zerolog.Nop()
	s := store.New(store.NewFileBackend(filepath.Join(t.TempDir(), "prices.json")), time.Hour, logger, nil)
	src := spot.New(spot.Config{Currency: "GBP"}, nil, cache.New(time.Hour, 0), logger, nil)
	u := batch.New(s, src, pricing.Default, "GBP", logger, nil)
	ref := &fakeRefresher{store: s}

	reg := prometheus.NewRegistry()
	h := NewHandler(s, u, ref, cat, logger)
	router := NewRouter(h, logger, RouterConfig{
		MaxBodyBytes: 4096,
		Gatherer:     reg,
		Metrics:      metrics.NewWithRegistry(reg),
	})
	return testAPI{router: router, store: s, refresher: ref}
}

func (a testAPI) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestHandler_Health(t *testing.T) {
	a := setupTestAPI(t, nil)
	w := a.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHandler_StoredPrices(t *testing.T) {
	a := setupTestAPI(t, nil)

	w := a.do(t, http.MethodGet, "/api/prices", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	_, err := a.store.Save(context.Background(), decimal.NewFromInt(61), decimal.NewFromInt(26), "GBP", store.SourceScheduled)
	require.NoError(t, err)

	w = a.do(t, http.MethodGet, "/api/prices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp storedPricesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Valid)
	require.Equal(t, "1h0m0s", resp.Validity)
	require.True(t, resp.Prices.Gold.Price.Equal(decimal.NewFromInt(61)))
}

func TestHandler_MaterialPrice(t *testing.T) {
	a := setupTestAPI(t, nil)

	// Assert: with nothing stored and no API key, the default is purity adjusted.
	w := a.do(t, http.MethodGet, "/api/prices/"+url.PathEscape("22k Gold"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Material     string          `json:"material"`
		Metal        provider.Metal  `json:"metal"`
		PricePerGram decimal.Decimal `json:"price_per_gram"`
		Tier         provider.Tier   `json:"tier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "22k Gold", resp.Material)
	require.Equal(t, provider.Gold, resp.Metal)
	require.Equal(t, provider.TierDefault, resp.Tier)
	require.True(t, resp.PricePerGram.Equal(decimal.RequireFromString("50.4185")), "got %s", resp.PricePerGram)

	// Assert: stored prices win once present.
	_, err := a.store.Save(context.Background(), decimal.NewFromInt(60), decimal.NewFromInt(30), "GBP", store.SourceScheduled)
	require.NoError(t, err)
	w = a.do(t, http.MethodGet, "/api/prices/Platinum", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, provider.TierStore, resp.Tier)
	require.True(t, resp.PricePerGram.Equal(decimal.NewFromInt(30)))

	w = a.do(t, http.MethodGet, "/api/prices/Titanium", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Refresh(t *testing.T) {
	a := setupTestAPI(t, nil)

	w := a.do(t, http.MethodPost, "/api/prices/refresh?currency=usd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"usd/manual"}, a.refresher.calls)

	w = a.do(t, http.MethodPost, "/api/prices/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "GBP/manual", a.refresher.calls[1])

	a.refresher.err = &provider.StatusError{StatusCode: 500}
	w = a.do(t, http.MethodPost, "/api/prices/refresh", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	a.refresher.err = provider.ErrConfiguration
	w = a.do(t, http.MethodPost, "/api/prices/refresh", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_PriceProducts(t *testing.T) {
	a := setupTestAPI(t, nil)
	_, err := a.store.Save(context.Background(), decimal.NewFromInt(55), decimal.NewFromInt(25), "GBP", store.SourceScheduled)
	require.NoError(t, err)

	body := []byte(`{"products": [
		{"id": "ring-1", "materialType": "22k Gold", "weightGrams": 10, "pricingModel": "dynamic", "laborCost": 0},
		{"id": "bangle-1", "materialType": "22k Gold", "weightGrams": 20, "pricingModel": "fixed", "basePrice": 850}
	]}`)
	w := a.do(t, http.MethodPost, "/api/products/price", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp priceProductsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "GBP", resp.Currency)
	require.Len(t, resp.Products, 2)
	require.Equal(t, "504.19", resp.Products[0].ComputedPrice.StringFixed(2))
	require.Equal(t, provider.TierStore, resp.Products[0].Tier)
	require.Equal(t, "850", resp.Products[1].ComputedPrice.String())
	require.Equal(t, provider.TierFixed, resp.Products[1].Tier)
}

func TestHandler_PriceProducts_BadRequests(t *testing.T) {
	a := setupTestAPI(t, nil)

	cases := map[string][]byte{
		"invalid json":  []byte(`{`),
		"empty":         []byte(`{"products": []}`),
		"unknown field": []byte(`{"items": []}`),
		"too large":     bytes.Repeat([]byte(" "), 8192),
	}
	for name, body := range cases {
		w := a.do(t, http.MethodPost, "/api/products/price", body)
		require.Equalf(t, http.StatusBadRequest, w.Code, "%s: %s", name, w.Body.String())
	}
}

func TestHandler_PriceCatalog(t *testing.T) {
	a := setupTestAPI(t, nil)
	w := a.do(t, http.MethodGet, "/api/catalog/prices", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	a = setupTestAPI(t, fakeCatalog{products: []pricing.Product{
		{ID: "band-1", MaterialType: "Platinum", WeightGrams: decimal.NewNullDecimal(decimal.NewFromInt(2)), PricingModel: pricing.Dynamic},
	}})
	w = a.do(t, http.MethodGet, "/api/catalog/prices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp priceProductsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)
	require.Equal(t, "50.00", resp.Products[0].ComputedPrice.StringFixed(2))

	a = setupTestAPI(t, fakeCatalog{err: errors.New("db down")})
	w = a.do(t, http.MethodGet, "/api/catalog/prices", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	a := setupTestAPI(t, nil)
	a.do(t, http.MethodGet, "/healthz", nil)

	w := a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `metalprice_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
