// Package httpexec implements domain.TransitionExecutor as a thin client
// over an opaque HTTP RPC boundary (spec §1 Non-goals: the executor's
// internals — browser automation, CAPTCHA handling — are out of scope; the
// core only ever sees the TransitionResult value object this client
// decodes the response into).
package httpexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
	"github.com/fairyhunter13/subscription-fleet/internal/observability"
)

// Client calls a single executor endpoint that accepts a transition request
// and returns a TransitionResult.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxElapsed     time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *observability.ConnectionMetrics
}

// New constructs a Client. httpClient may be nil to use http.DefaultClient.
func New(baseURL string, httpClient *http.Client, maxElapsed, initial, max time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		maxElapsed:     maxElapsed,
		initialBackoff: initial,
		maxBackoff:     max,
		metrics:        observability.NewConnectionMetrics(observability.ConnectionTypeExecutor, observability.OperationTypeExecute, baseURL),
	}
}

// Metrics exposes this client's connection health.
func (c *Client) Metrics() *observability.ConnectionMetrics {
	return c.metrics
}

type executeRequest struct {
	ProfileID  *string              `json:"profileId,omitempty"`
	Account    domain.AccountData   `json:"account"`
	Kind       domain.TransitionKind `json:"kind"`
	RetryCount int                  `json:"retryCount"`
	DebugMode  bool                 `json:"debugMode"`
	WindowMode string               `json:"windowMode"`
}

// Execute implements domain.TransitionExecutor.
func (c *Client) Execute(ctx domain.Context, profileID *string, account domain.AccountData, kind domain.TransitionKind, opts domain.ExecuteOptions) (domain.TransitionResult, error) {
	body, err := json.Marshal(executeRequest{
		ProfileID:  profileID,
		Account:    account,
		Kind:       kind,
		RetryCount: opts.RetryCount,
		DebugMode:  opts.DebugMode,
		WindowMode: opts.WindowMode,
	})
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("op=httpexec.Execute: encode request: %w", err)
	}

	var result domain.TransitionResult
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = c.maxElapsed

	c.metrics.RecordRequest()
	start := time.Now()
	err = backoff.Retry(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
		if reqErr != nil {
			return backoff.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("op=httpexec.Execute: %w: status %d", domain.ErrInvalidArgument, resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("op=httpexec.Execute: %w: status %d", domain.ErrUpstreamTimeout, resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	}, backoff.WithContext(b, ctx))

	if err != nil {
		c.metrics.RecordFailure(err, time.Since(start))
		return domain.TransitionResult{}, err
	}
	c.metrics.RecordSuccess(time.Since(start))
	return result, nil
}
