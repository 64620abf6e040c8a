package metalsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"metalprice/internal/provider"
)

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Latest fetches per-gram prices for every metal the API returns in currency.
// It sends the key as an X-API-Key header and, on 401, retries once with the
// key as an api_key query parameter.
func (c *Client) Latest(ctx context.Context, currency string) (provider.Rates, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	body, err := c.Raw(ctx, currency)
	if err != nil {
		return provider.Rates{}, err
	}

	prices, skipped, err := parseLatest(body, currency)
	if err != nil {
		return provider.Rates{}, err
	}
	return provider.Rates{Currency: currency, Prices: prices, Skipped: skipped, FetchedAt: time.Now().UTC()}, nil
}

// Raw performs the authenticated latest call and returns the response body.
func (c *Client) Raw(ctx context.Context, currency string) ([]byte, error) {
	if c.key == "" {
		return nil, fmt.Errorf("metals api: %w: missing API key", provider.ErrConfiguration)
	}

	status, body, err := c.get(ctx, currency, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		status, body, err = c.get(ctx, currency, true)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &provider.AuthError{StatusCode: status}
		}
	}
	if status < 200 || status > 299 {
		return nil, &provider.StatusError{StatusCode: status, Body: snippet(body)}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, currency string, keyInQuery bool) (int, []byte, error) {
	query := maps.Clone(c.query)
	if keyInQuery {
		query.Set("api_key", c.key)
	}
	query.Set("currency", currency)
	query.Set("unit", "g")

	url := fmt.Sprintf("%s/latest?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")
	if !keyInQuery {
		req.Header.Set("X-API-Key", c.key)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &provider.TransportError{Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return 0, nil, &provider.TransportError{Err: fmt.Errorf("reading body: %w", err)}
	}
	return res.StatusCode, body, nil
}

// parseLatest normalizes the layouts the API has used over time:
//
//	{"metals": {"gold": 61.2, ...}}
//	{"rates": {"GBP": {"gold": 61.2, ...}}}
//	{"gold": 61.2, ...}
//
// Values may be JSON numbers or numeric strings.
func parseLatest(body []byte, currency string) (map[provider.Metal]decimal.Decimal, map[provider.Metal]string, error) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, &provider.ParseError{Reason: "invalid JSON", Err: err}
	}

	var scopes []map[string]any
	if m, ok := doc["metals"].(map[string]any); ok {
		scopes = append(scopes, m)
	}
	if rates, ok := doc["rates"].(map[string]any); ok {
		if m, ok := lookupFold(rates, currency).(map[string]any); ok {
			scopes = append(scopes, m)
		}
	}
	scopes = append(scopes, doc)

	// a bad value skips that metal only; the others are still usable
	out := make(map[provider.Metal]decimal.Decimal, len(provider.Metals))
	skipped := make(map[provider.Metal]string)
	for _, metal := range provider.Metals {
		for _, scope := range scopes {
			v, ok := scope[string(metal)]
			if !ok || v == nil {
				continue
			}
			price, err := parseNumber(v)
			if err != nil {
				skipped[metal] = fmt.Sprintf("price unparseable: %v", err)
				continue
			}
			if !price.IsPositive() {
				skipped[metal] = fmt.Sprintf("price %s is not positive", price)
				continue
			}
			out[metal] = price
			delete(skipped, metal)
			break
		}
	}
	if len(out) == 0 {
		reason := "no recognized metal prices in response"
		if len(skipped) > 0 {
			var parts []string
			for _, metal := range provider.Metals {
				if r, ok := skipped[metal]; ok {
					parts = append(parts, string(metal)+" "+r)
				}
			}
			reason += " (" + strings.Join(parts, "; ") + ")"
		}
		return nil, nil, &provider.ParseError{Reason: reason}
	}
	if len(skipped) == 0 {
		skipped = nil
	}
	return out, skipped, nil
}

func lookupFold(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func parseNumber(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	}
	return decimal.Decimal{}, fmt.Errorf("unexpected type: %T", v)
}

func snippet(b []byte) string {
	const n = 256
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
