// Package sheets implements SheetGateway (component A) against the Google
// Sheets API, and ConfigSheetReader (component G's backing store) against
// a dedicated config tab on the same spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// NewAPIClient builds a *sheets.Service authenticated from a service
// account JSON key file, mirroring the construction shape of a typical
// cloud-storage client wrapper: read credentials, build an
// oauth2-scoped HTTP client, construct the typed API service.
func NewAPIClient(ctx context.Context, serviceAccountPath string) (*sheetsapi.Service, error) {
	raw, err := os.ReadFile(serviceAccountPath)
	if err != nil {
		return nil, fmt.Errorf("op=sheets.NewAPIClient: read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("op=sheets.NewAPIClient: parse credentials: %w", err)
	}
	svc, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("op=sheets.NewAPIClient: build service: %w", err)
	}
	return svc, nil
}

// retryPolicy builds the adapter-boundary backoff policy (SPEC_FULL §4.1):
// transient HTTP/network errors on a Sheets call are retried with
// exponential, jittered backoff; a 4xx (auth/invalid range) must be
// wrapped in backoff.Permanent by the caller so it is never retried.
func retryPolicy(ctx context.Context, maxElapsed, initial, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = maxElapsed
	return backoff.WithContext(b, ctx)
}

// withRetry runs op under the adapter-boundary retry policy.
func withRetry(ctx context.Context, maxElapsed, initial, maxInterval time.Duration, op func() error) error {
	return backoff.Retry(op, retryPolicy(ctx, maxElapsed, initial, maxInterval))
}
