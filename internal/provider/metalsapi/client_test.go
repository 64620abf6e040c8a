package metalsapi_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"metalprice/internal/provider"
	"metalprice/internal/provider/metalsapi"
)

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	buffer := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buffer).Encode(body))
	return &http.Response{StatusCode: status, Body: io.NopCloser(buffer)}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	// Assert: a key makes the client configured.
	require.True(t, metalsapi.NewClient("test").Configured())
	require.False(t, metalsapi.NewClient("  ").Configured())
}

func TestLatest_HeaderAuth(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "https://example.test/v1/latest", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
			require.Equal(t, "test-key", req.Header.Get("X-API-Key"))
			require.Equal(t, "yes", req.Header.Get("X-Extra"))
			require.Empty(t, req.URL.Query().Get("api_key"))
			require.Equal(t, "GBP", req.URL.Query().Get("currency"))
			require.Equal(t, "g", req.URL.Query().Get("unit"))

			return jsonResponse(t, http.StatusOK, map[string]any{
				"status": "success",
				"metals": map[string]any{"gold": 61.25, "platinum": 24.1, "silver": 0.72},
			}), nil
		}).
		Times(1)

	// Arrange: setup a new client
	client := metalsapi.NewClient("test-key",
		metalsapi.WithHTTPClient(httpClient),
		metalsapi.WithBaseURL("https://example.test/v1/"),
		metalsapi.WithHeader(http.Header{"X-Extra": []string{"yes"}}),
	)

	// Act: call Latest
	rates, err := client.Latest(t.Context(), "gbp")
	require.NoError(t, err)

	// Assert: every metal is normalized into the rates
	require.Equal(t, "GBP", rates.Currency)
	require.Equal(t, "61.25", rates.Prices[provider.Gold].String())
	require.Equal(t, "24.1", rates.Prices[provider.Platinum].String())
	require.Equal(t, "0.72", rates.Prices[provider.Silver].String())
	require.False(t, rates.FetchedAt.IsZero())
}

func TestLatest_RetriesWithQueryKeyOn401(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	gomock.InOrder(
		httpClient.EXPECT().
			Do(gomock.Any()).
			DoAndReturn(func(req *http.Request) (*http.Response, error) {
				require.Equal(t, "k", req.Header.Get("X-API-Key"))
				require.Empty(t, req.URL.Query().Get("api_key"))
				return jsonResponse(t, http.StatusUnauthorized, map[string]any{"error": "no"}), nil
			}),
		httpClient.EXPECT().
			Do(gomock.Any()).
			DoAndReturn(func(req *http.Request) (*http.Response, error) {
				require.Empty(t, req.Header.Get("X-API-Key"))
				require.Equal(t, "k", req.URL.Query().Get("api_key"))
				require.Equal(t, "USD", req.URL.Query().Get("currency"))
				require.Equal(t, "g", req.URL.Query().Get("unit"))
				return jsonResponse(t, http.StatusOK, map[string]any{"gold": "70.10", "platinum": "30"}), nil
			}),
	)

	client := metalsapi.NewClient("k", metalsapi.WithHTTPClient(httpClient))
	rates, err := client.Latest(t.Context(), "USD")
	require.NoError(t, err)
	require.Equal(t, "70.1", rates.Prices[provider.Gold].String())
	require.Equal(t, "30", rates.Prices[provider.Platinum].String())
}

func TestLatest_SecondUnauthorizedIsAuthError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader(""))}, nil
		}).
		Times(2)

	client := metalsapi.NewClient("k", metalsapi.WithHTTPClient(httpClient))
	_, err := client.Latest(t.Context(), "USD")

	var authErr *provider.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestLatest_MissingKeyMakesNoRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := metalsapi.NewClient("", metalsapi.WithHTTPClient(httpClient))
	_, err := client.Latest(t.Context(), "USD")
	require.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestLatest_ResponseShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]any{
		"nested metals": map[string]any{"metals": map[string]any{"gold": 55.5, "platinum": 25.25}},
		"rates by currency": map[string]any{"base": "EUR", "rates": map[string]any{
			"EUR": map[string]any{"gold": "55.5", "platinum": 25.25},
		}},
		"flat": map[string]any{"gold": 55.5, "platinum": "25.25", "timestamp": 1700000000},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(req *http.Request) (*http.Response, error) {
					return jsonResponse(t, http.StatusOK, body), nil
				})

			client := metalsapi.NewClient("k", metalsapi.WithHTTPClient(httpClient))
			rates, err := client.Latest(t.Context(), "EUR")
			require.NoError(t, err)
			require.Equal(t, "55.5", rates.Prices[provider.Gold].String())
			require.Equal(t, "25.25", rates.Prices[provider.Platinum].String())
			_, hasSilver := rates.Price(provider.Silver)
			require.False(t, hasSilver)
		})
	}
}

func TestLatest_ParseErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":       "<html>maintenance</html>",
		"unknown layout": `{"data": {"XAU": 1900}}`,
		"non numeric":    `{"metals": {"gold": "n/a"}}`,
		"negative":       `{"gold": -1}`,
		"all unusable":   `{"gold": 0, "platinum": "n/a"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				Return(&http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil)

			client := metalsapi.NewClient("k", metalsapi.WithHTTPClient(httpClient))
			_, err := client.Latest(t.Context(), "USD")

			var parseErr *provider.ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestLatest_BadValueSkipsOnlyThatMetal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(
			`{"metals": {"gold": 61.2, "platinum": "24.9", "silver": 0}}`,
		))}, nil)

	client := metalsapi.NewClient("k", metalsapi.WithHTTPClient(httpClient))
	rates, err := client.Latest(t.Context(), "GBP")
	require.NoError(t, err)
	require.Equal(t, "61.2", rates.Prices[provider.Gold].String())
	require.Equal(t, "24.9", rates.Prices[provider.Platinum].String())

	_, hasSilver := rates.Price(provider.Silver)
	require.False(t, hasSilver)
	require.Contains(t, rates.Missing(provider.Silver), "not positive")
	require.Equal(t, "platinum missing", (provider.Rates{}).Missing(provider.Platinum))
}

func TestLatest_StatusAndTransportErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().
			Do(gomock.Any()).
			Return(&http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader("slow down"))}, nil),
		httpClient.EXPECT().
			Do(gomock.Any()).
			Return(nil, errors.New("dial tcp: i/o timeout")),
	)

	client := metalsapi.NewClient("k", metalsapi.WithHTTPClient(httpClient))

	// Assert: a non-auth failure status is not retried
	_, err := client.Latest(t.Context(), "USD")
	var statusErr *provider.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.Equal(t, "slow down", statusErr.Body)

	// Assert: network failures are transport errors
	_, err = client.Latest(t.Context(), "USD")
	var transportErr *provider.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestLatest_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := metalsapi.NewClient("k",
		metalsapi.WithHTTPClient(httpClient),
		metalsapi.WithBaseURL(string([]rune{0x7f})),
	)
	_, err := client.Latest(t.Context(), "USD")
	require.Error(t, err)
}

func TestRaw_ReturnsBody(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "1", req.URL.Query().Get("debug"))
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"gold":1}`))}, nil
		})

	client := metalsapi.NewClient("k",
		metalsapi.WithHTTPClient(httpClient),
		metalsapi.WithQuery(map[string][]string{"debug": {"1"}}),
	)
	body, err := client.Raw(t.Context(), "USD")
	require.NoError(t, err)
	require.JSONEq(t, `{"gold":1}`, string(body))
}
