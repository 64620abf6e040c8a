// Package metalsapi is a client for the spot-price HTTP API. It returns
// per-gram prices for every metal in one call.
package metalsapi

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.metals.dev/v1"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=metalsapi_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the spot-price API.
type Client struct {
	// key is the API credential. Empty means unconfigured.
	key string
	// baseURL is the base URL for the API, without a trailing slash.
	baseURL string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// Option is a configuration option for the Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API. An empty value keeps the default.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithQuery sets additional query parameters to be sent with each request.
func WithQuery(query url.Values) Option {
	return func(c *Client) {
		for key, values := range query {
			for _, value := range values {
				c.query.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Client. A missing key is not an error here; calls
// report provider.ErrConfiguration instead so callers can fall back.
func NewClient(key string, options ...Option) *Client {
	c := &Client{
		key:        strings.TrimSpace(key),
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.key != "" }
