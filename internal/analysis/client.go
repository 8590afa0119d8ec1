// Package analysis talks to the token analysis backend: it submits jobs,
// polls their progress and downloads the raw holder and transfer tables.
package analysis

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/ledgerid"
	"token-graph-lab/internal/observability"
	"token-graph-lab/internal/records"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRateLimit   = rate.Limit(10) // requests per second
	DefaultBurst       = 5
)

// ErrInvalidTokenID is returned before any request for a malformed token id.
var ErrInvalidTokenID = errors.New("invalid token id")

// APIError is a non-retryable error response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analysis backend error %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the analysis backend.
type Client struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit limits outgoing requests. A zero limit disables limiting.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		if limit == 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// progressWire is the nested progress block as the backend sends it.
// Counters may arrive as numbers or numeric strings.
type progressWire struct {
	Holders struct {
		Processed        records.Number `json:"processed"`
		Total            records.Number `json:"total"`
		Progress         records.Number `json:"progress"`
		WithTransactions records.Number `json:"withTransactions"`
	} `json:"holders"`
	Batches struct {
		Current  records.Number `json:"current"`
		Total    records.Number `json:"total"`
		Progress records.Number `json:"progress"`
	} `json:"batches"`
	Transactions struct {
		Unique records.Number `json:"unique"`
		Total  records.Number `json:"total"`
	} `json:"transactions"`
	ElapsedTime records.Number `json:"elapsedTime"`
}

type jobWire struct {
	TokenID  string        `json:"tokenId"`
	Status   string        `json:"status"`
	Progress *progressWire `json:"progress"`
}

func (w jobWire) job(tokenID string) domain.AnalysisJob {
	job := domain.AnalysisJob{TokenID: w.TokenID, Status: domain.JobStatus(w.Status)}
	if job.TokenID == "" {
		job.TokenID = tokenID
	}
	if p := w.Progress; p != nil {
		job.Progress = domain.AnalysisProgress{
			HoldersProcessed:        int(p.Holders.Processed),
			HoldersTotal:            int(p.Holders.Total),
			HoldersPercent:          float64(p.Holders.Progress),
			HoldersWithTransactions: int(p.Holders.WithTransactions),
			BatchCurrent:            int(p.Batches.Current),
			BatchTotal:              int(p.Batches.Total),
			BatchPercent:            float64(p.Batches.Progress),
			TransactionsUnique:      int(p.Transactions.Unique),
			TransactionsTotal:       int(p.Transactions.Total),
			ElapsedSeconds:          float64(p.ElapsedTime),
		}
	}
	return job
}

// Analyze submits an analysis job for tokenID.
func (c *Client) Analyze(ctx context.Context, tokenID string) (*domain.AnalysisJob, error) {
	if !ledgerid.ValidTokenID(tokenID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}
	var w jobWire
	if err := c.call(ctx, "analyze", http.MethodPost, "/api/analyze", map[string]string{"tokenId": tokenID}, &w); err != nil {
		return nil, err
	}
	job := w.job(tokenID)
	if job.Status == "" {
		job.Status = domain.JobStatusStarted
	}
	return &job, nil
}

// Status returns the progress of the job for tokenID.
func (c *Client) Status(ctx context.Context, tokenID string) (*domain.AnalysisJob, error) {
	if !ledgerid.ValidTokenID(tokenID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}
	var w jobWire
	path := "/api/analyze/" + url.PathEscape(tokenID) + "/status"
	if err := c.call(ctx, "status", http.MethodGet, path, nil, &w); err != nil {
		return nil, err
	}
	job := w.job(tokenID)
	return &job, nil
}

// Ongoing lists the jobs still running on the backend.
func (c *Client) Ongoing(ctx context.Context) ([]domain.AnalysisJob, error) {
	var ws []jobWire
	if err := c.call(ctx, "ongoing", http.MethodGet, "/api/analyze/ongoing", nil, &ws); err != nil {
		return nil, err
	}
	jobs := make([]domain.AnalysisJob, 0, len(ws))
	for _, w := range ws {
		job := w.job("")
		if job.Status == "" {
			job.Status = domain.JobStatusInProgress
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Visualize downloads the raw tables of a completed analysis.
func (c *Client) Visualize(ctx context.Context, tokenID string) (records.Payload, error) {
	if !ledgerid.ValidTokenID(tokenID) {
		return records.Payload{}, fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}
	var raw json.RawMessage
	path := "/api/visualize/" + url.PathEscape(tokenID)
	if err := c.call(ctx, "visualize", http.MethodGet, path, nil, &raw); err != nil {
		return records.Payload{}, err
	}
	return records.DecodePayload(raw)
}

// Dataset downloads and parses the tables of tokenID.
func (c *Client) Dataset(ctx context.Context, tokenID string) (*domain.Dataset, error) {
	payload, err := c.Visualize(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	accounts, transfers, err := records.Parse(payload.Holders, payload.Transfers)
	if err != nil {
		return nil, fmt.Errorf("parse %s tables: %w", tokenID, err)
	}
	return &domain.Dataset{
		TokenID:   tokenID,
		Accounts:  accounts,
		Transfers: transfers,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// call performs a request with retries and exponential backoff. Transport
// errors, 429 and 5xx are retried; other 4xx fail at once.
func (c *Client) call(ctx context.Context, method, httpMethod, path string, reqBody, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordAnalysisCall(method, time.Since(start).Seconds(), err)
	}()

	var body []byte
	if reqBody != nil {
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying analysis call",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Client errors are not retried
			return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		}

		if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal %s response: %w", method, err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// errorMessage extracts {"error": "..."} or falls back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
