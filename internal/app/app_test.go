package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"metalprice/internal/config"
	"metalprice/internal/provider"
	"metalprice/internal/provider/ratelimit"
	"metalprice/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "prices.json")
	return cfg
}

func TestNew_WithoutAPIKeyFallsBackToDefaults(t *testing.T) {
	a, err := New(testConfig(t), zerolog.Nop(), nil)
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.Client)
	require.Nil(t, a.Fetcher)
	require.Nil(t, a.Catalog)

	res := a.Spot.FetchSpotPrice(context.Background(), provider.Gold, "")
	require.Equal(t, provider.TierDefault, res.Tier)
	require.Equal(t, "55", res.Price.String())

	_, err = a.Refresher.Refresh(context.Background(), "GBP", store.SourceScheduled)
	require.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestNew_EndToEndRefreshAgainstFakeAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","currency":"GBP","unit":"g","metals":{"gold":61.1,"platinum":24.2,"silver":0.71}}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MetalsAPI.APIKey = "k"
	cfg.MetalsAPI.BaseURL = srv.URL
	cfg.MetalsAPI.MaxRequestsPerMinute = 0
	cfg.Catalog.DSN = filepath.Join(t.TempDir(), "catalog.db")

	a, err := New(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Catalog)

	set, err := a.Refresher.Refresh(context.Background(), "GBP", store.SourceScheduled)
	require.NoError(t, err)
	require.Equal(t, "61.1", set.Gold.Price.String())

	// Assert: the refresh warmed the cache, including metals not persisted.
	res := a.Spot.FetchSpotPrice(context.Background(), provider.Silver, "GBP")
	require.Equal(t, provider.TierCache, res.Tier)
	require.Equal(t, "0.71", res.Price.String())
}

func TestLimit(t *testing.T) {
	var f provider.Fetcher = &ratelimit.MinInterval{}

	cfg := config.MetalsAPI{MaxRequestsPerMinute: 2}
	require.IsType(t, &ratelimit.TokenBucketFetcher{}, limit(f, cfg))

	cfg = config.MetalsAPI{MinRequestIntervalSec: 30}
	require.IsType(t, &ratelimit.MinInterval{}, limit(f, cfg))

	require.Same(t, f, limit(f, config.MetalsAPI{}))
}
