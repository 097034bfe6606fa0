// Package raceapi is a client for the backend race-data API: daily entries,
// winners, and race ingestion.
package raceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/resilience"
)

// ErrMissingAPIKey is returned by NewClient for an empty key.
var ErrMissingAPIKey = errors.New("raceapi: api key is required")

// maxBody bounds how much of a response is read.
const maxBody = 16 << 20

// Client defines the backend race-data operations.
type Client interface {
	// Entries returns the day's entries for a track. A non-200 status or
	// success=false is an error.
	Entries(ctx context.Context, date time.Time, trackCode string) ([]Entry, error)
	// Winners returns known winners for a track and day. A non-200 status or
	// success=false yields an empty list and no error.
	Winners(ctx context.Context, date time.Time, trackCode string) ([]Winner, error)
	// Ingest submits races and winners. Rejections are *SubmitError.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error)
}

// Entry is one horse-in-race record from the entries endpoint. Values are
// kept loosely typed; the backend sends numbers as numbers or strings.
type Entry struct {
	RaceID      string `json:"raceId"`
	HorseNumber any    `json:"horseNumber"`
	ML          any    `json:"ml,omitempty"`
	LiveOdds    any    `json:"liveOdds,omitempty"`
	CorrectP3   any    `json:"correctP3,omitempty"`
	Double      any    `json:"double,omitempty"`
	Age         any    `json:"age,omitempty"`
	Type        any    `json:"type,omitempty"`
	Purse       any    `json:"purse,omitempty"`
}

// Winner is one record from the winners endpoint.
type Winner struct {
	RaceID             string `json:"raceId"`
	WinningHorseNumber any    `json:"winningHorseNumber"`
	Payout2            any    `json:"payout2,omitempty"`
	PayoutP3           any    `json:"payoutP3,omitempty"`
}

type entriesResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Entries []Entry `json:"entries"`
}

type winnersResponse struct {
	Success bool     `json:"success"`
	Winners []Winner `json:"winners"`
}

// IngestRequest is the body of POST /races/ingest. RaceWinners is keyed by
// race id.
type IngestRequest struct {
	Source      string                  `json:"source"`
	Races       []model.Race            `json:"races"`
	RaceWinners map[string]model.Winner `json:"race_winners"`
}

// IngestResponse is the backend's acknowledgement.
type IngestResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	Statistics map[string]int `json:"statistics,omitempty"`
}

// SubmitError is a rejected ingestion.
type SubmitError struct {
	StatusCode int
	Message    string
	Errors     []string
	Statistics map[string]int
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("raceapi: ingest rejected (status %d)", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Errors) > 0 {
		msg += " [" + strings.Join(e.Errors, "; ") + "]"
	}
	return msg
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Non-positive means unlimited.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker routes every request through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

// WithObserver is called once per logical request with its final error.
func WithObserver(fn func(op string, err error)) Option {
	return func(c *httpClient) {
		c.observe = fn
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	observe func(op string, err error)
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, eris.New("raceapi: base url is required")
	}
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type response struct {
	status int
	body   []byte
}

// do sends one logical request. Transient statuses are retried; other
// statuses are returned to the caller to interpret.
func (c *httpClient) do(ctx context.Context, op, method, path string, query url.Values, payload any) (response, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return response{}, eris.Wrapf(err, "raceapi: marshal %s request", op)
		}
		body = b
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(op)
	}

	resp, err := c.send(ctx, op, method, u, body, retry)
	if c.observe != nil {
		if err == nil && resp.status != http.StatusOK {
			c.observe(op, eris.Errorf("raceapi: %s status %d", op, resp.status))
		} else {
			c.observe(op, err)
		}
	}
	return resp, err
}

func (c *httpClient) send(ctx context.Context, op, method, u string, body []byte, retry resilience.RetryConfig) (response, error) {
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (response, error) {
		return resilience.Call(ctx, c.breaker, func(ctx context.Context) (response, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return response{}, eris.Wrapf(err, "raceapi: %s rate limit wait", op)
			}
			var rd io.Reader
			if body != nil {
				rd = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, u, rd)
			if err != nil {
				return response{}, eris.Wrapf(err, "raceapi: build %s request", op)
			}
			req.Header.Set("X-API-Key", c.apiKey)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return response{}, eris.Wrapf(err, "raceapi: %s request", op)
			}
			defer resp.Body.Close() //nolint:errcheck

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			if err != nil {
				return response{}, eris.Wrapf(err, "raceapi: read %s response", op)
			}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return response{}, resilience.NewTransientError(
					eris.Errorf("raceapi: %s status %d: %s", op, resp.StatusCode, truncate(data)),
					resp.StatusCode,
				)
			}
			return response{status: resp.StatusCode, body: data}, nil
		})
	})
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func truncate(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func dayQuery(date time.Time, trackCode string) url.Values {
	q := url.Values{}
	q.Set("date", date.Format(model.ISODateLayout))
	q.Set("trackCode", strings.ToUpper(trackCode))
	return q
}

func (c *httpClient) Entries(ctx context.Context, date time.Time, trackCode string) ([]Entry, error) {
	resp, err := c.do(ctx, "entries", http.MethodGet, "/entries", dayQuery(date, trackCode), nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, eris.Errorf("raceapi: entries status %d: %s", resp.status, truncate(resp.body))
	}
	var out entriesResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, eris.Wrap(err, "raceapi: decode entries")
	}
	if !out.Success {
		return nil, eris.Errorf("raceapi: entries unsuccessful: %s", out.Message)
	}
	return out.Entries, nil
}

func (c *httpClient) Winners(ctx context.Context, date time.Time, trackCode string) ([]Winner, error) {
	log := zap.L().With(zap.String("component", "raceapi"), zap.String("track", trackCode))
	resp, err := c.do(ctx, "winners", http.MethodGet, "/winners", dayQuery(date, trackCode), nil)
	if err != nil {
		if resilience.StatusCode(err) > 0 {
			log.Warn("winners unavailable", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	if resp.status != http.StatusOK {
		log.Warn("winners unavailable", zap.Int("status", resp.status))
		return nil, nil
	}
	var out winnersResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, eris.Wrap(err, "raceapi: decode winners")
	}
	if !out.Success {
		log.Debug("winners unsuccessful")
		return nil, nil
	}
	return out.Winners, nil
}

func (c *httpClient) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	if req.Races == nil {
		req.Races = []model.Race{}
	}
	if req.RaceWinners == nil {
		req.RaceWinners = map[string]model.Winner{}
	}
	resp, err := c.do(ctx, "ingest", http.MethodPost, "/races/ingest", nil, req)
	if err != nil {
		if code := resilience.StatusCode(err); code > 0 {
			return nil, &SubmitError{StatusCode: code, Message: err.Error()}
		}
		return nil, err
	}

	var out IngestResponse
	decErr := decode(resp.body, &out)
	if resp.status != http.StatusOK {
		se := &SubmitError{StatusCode: resp.status}
		if decErr == nil {
			se.Message, se.Errors, se.Statistics = out.Message, out.Errors, out.Statistics
		} else {
			se.Message = truncate(resp.body)
		}
		return nil, se
	}
	if decErr != nil {
		return nil, eris.Wrap(decErr, "raceapi: decode ingest response")
	}
	if !out.Success {
		return nil, &SubmitError{StatusCode: resp.status, Message: out.Message, Errors: out.Errors, Statistics: out.Statistics}
	}
	return &out, nil
}
