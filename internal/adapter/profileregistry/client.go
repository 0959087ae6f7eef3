// Package profileregistry implements domain.ProfileRegistryClient, the
// fallback HTTP lookup ProfileResolver uses when the mapping-sheet cache
// misses (spec §4.4).
package profileregistry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
	"github.com/fairyhunter13/subscription-fleet/internal/observability"
)

// Client calls a live browser-profile registry's search endpoint.
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
		metrics:        observability.NewConnectionMetrics(observability.ConnectionTypeProfileRegistry, observability.OperationTypeSearch, baseURL),
	}
}

// Metrics exposes this client's connection health.
func (c *Client) Metrics() *observability.ConnectionMetrics {
	return c.metrics
}

type searchResponse struct {
	ProfileIDs []string `json:"profileIds"`
}

// FindByNameOrRemark implements domain.ProfileRegistryClient.
func (c *Client) FindByNameOrRemark(ctx domain.Context, needle string) ([]string, error) {
	u := fmt.Sprintf("%s/profiles/search?q=%s", c.baseURL, url.QueryEscape(needle))

	var ids []string
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = c.maxElapsed

	c.metrics.RecordRequest()
	start := time.Now()
	err := backoff.Retry(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if reqErr != nil {
			return backoff.Permanent(reqErr)
		}
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("op=profileregistry.FindByNameOrRemark: %w: status %d", domain.ErrInvalidArgument, resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("op=profileregistry.FindByNameOrRemark: %w: status %d", domain.ErrUpstreamTimeout, resp.StatusCode)
		}
		var out searchResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
			return backoff.Permanent(decErr)
		}
		ids = out.ProfileIDs
		return nil
	}, backoff.WithContext(b, ctx))

	if err != nil {
		c.metrics.RecordFailure(err, time.Since(start))
		return nil, err
	}
	c.metrics.RecordSuccess(time.Since(start))
	return ids, nil
}
