// Package finnhub is a minimal client for the Finnhub REST API, covering the
// bulk earnings calendar and per-exchange symbol listings.
package finnhub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/eugenferber616-design/earnings-cache/internal/resilience"
)

const defaultBaseURL = "https://finnhub.io/api/v1"

// CalendarEntry is one raw row of the bulk earnings calendar. Symbol and Date
// are required; every other provider field is carried opaquely in Extra.
type CalendarEntry struct {
	Symbol string
	Date   string // YYYY-MM-DD
	Hour   string // bmo / amc, often empty
	Extra  map[string]json.RawMessage
}

// UnmarshalJSON pulls out the fields the indexer interprets and keeps the
// rest of the payload untouched.
func (e *CalendarEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "finnhub: decode calendar entry")
	}

	popString := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		delete(raw, key)
		return s
	}

	e.Symbol = popString("symbol")
	e.Date = popString("date")
	e.Hour = popString("hour")
	if e.Hour == "" {
		// Older calendar payloads used "time" for the session hint.
		e.Hour = popString("time")
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

// SymbolInfo is one row of a per-exchange symbol listing.
type SymbolInfo struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Currency    string `json:"currency"`
}

// Client talks to the Finnhub API.
type Client interface {
	// EarningsCalendar fetches all calendar rows in [from, to], inclusive,
	// both in YYYY-MM-DD form.
	EarningsCalendar(ctx context.Context, from, to string) ([]CalendarEntry, error)

	// StockSymbols lists the symbols traded on an exchange.
	StockSymbols(ctx context.Context, exchange string) ([]SymbolInfo, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithRetry overrides the default retry configuration.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Finnhub API client. The default rate limit of one
// request per second stays inside the free-tier quota of 60 calls/minute.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 2),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type calendarResponse struct {
	EarningsCalendar []CalendarEntry `json:"earningsCalendar"`
}

func (c *httpClient) EarningsCalendar(ctx context.Context, from, to string) ([]CalendarEntry, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var resp calendarResponse
	if err := c.get(ctx, "/calendar/earnings", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "finnhub: earnings calendar %s..%s", from, to)
	}
	return resp.EarningsCalendar, nil
}

func (c *httpClient) StockSymbols(ctx context.Context, exchange string) ([]SymbolInfo, error) {
	q := url.Values{}
	q.Set("exchange", exchange)

	var symbols []SymbolInfo
	if err := c.get(ctx, "/stock/symbol", q, &symbols); err != nil {
		return nil, eris.Wrapf(err, "finnhub: stock symbols for %s", exchange)
	}
	return symbols, nil
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	query.Set("token", c.token)
	reqURL := c.baseURL + path + "?" + query.Encode()

	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "read response")
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return resilience.NewTransientError(
				eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
				resp.StatusCode,
			)
		case resp.StatusCode != http.StatusOK:
			return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
		return nil
	})
}
