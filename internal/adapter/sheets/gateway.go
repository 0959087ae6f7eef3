package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
	"github.com/fairyhunter13/subscription-fleet/internal/observability"
)

// Gateway implements domain.SheetGateway against a single spreadsheet tab,
// plus the profile-mapping tab used by ResolveProfileID. Every Record*
// method writes its row in one batched call so a reader never observes a
// half-updated row (invariant 1).
type Gateway struct {
	svc            *sheetsapi.Service
	spreadsheetID  string
	tab            string
	profileTab     string
	maxElapsed     time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu             sync.RWMutex
	profileByEmail map[string]string
	profileFetched time.Time
	profileTTL     time.Duration

	metrics *observability.ConnectionMetrics
}

// Config bundles the construction parameters for a Gateway.
type Config struct {
	SpreadsheetID  string
	WorkerTab      string
	ProfileTab     string
	MaxElapsed     time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ProfileTTL     time.Duration
}

// NewGateway wraps an already-authenticated sheets.Service.
func NewGateway(svc *sheetsapi.Service, cfg Config) *Gateway {
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = 5 * time.Minute
	}
	return &Gateway{
		svc:            svc,
		spreadsheetID:  cfg.SpreadsheetID,
		tab:            cfg.WorkerTab,
		profileTab:     cfg.ProfileTab,
		maxElapsed:     cfg.MaxElapsed,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		profileByEmail: make(map[string]string),
		profileTTL:     cfg.ProfileTTL,
		metrics:        observability.NewConnectionMetrics(observability.ConnectionTypeSheets, observability.OperationTypeWrite, cfg.SpreadsheetID),
	}
}

// Metrics exposes this Gateway's connection health, used by the admin HTTP
// surface's sheets health check.
func (g *Gateway) Metrics() *observability.ConnectionMetrics {
	return g.metrics
}

func (g *Gateway) retry(ctx context.Context, op func() error) error {
	g.metrics.RecordRequest()
	start := time.Now()
	err := withRetry(ctx, g.maxElapsed, g.initialBackoff, g.maxBackoff, func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isPermanentSheetsErr(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		g.metrics.RecordFailure(err, time.Since(start))
	} else {
		g.metrics.RecordSuccess(time.Since(start))
	}
	return err
}

// ListAllRows reads the full data range of the worker tab and parses every
// non-blank row into a domain.Row.
func (g *Gateway) ListAllRows(ctx context.Context) ([]domain.Row, error) {
	var resp *sheetsapi.ValueRange
	rng := g.tab + "!A2:N"
	err := g.retry(ctx, func() error {
		var apiErr error
		resp, apiErr = g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("op=sheets.ListAllRows: %w: %v", domain.ErrUpstreamTimeout, err)
	}

	rows := make([]domain.Row, 0, len(resp.Values))
	for i, values := range resp.Values {
		if isBlankRow(values) {
			continue
		}
		sheetRow := i + 1 + headerRows
		row, ok := parseRow(values, sheetRow)
		if !ok {
			// A malformed row is skipped rather than blocking the rest of
			// the cycle.
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RefetchByEmail re-reads the whole worker tab (ListAllRows) and returns
// the row whose email matches case-insensitively, guarding against acting on a stale in-memory snapshot (spec §4.8
// "RefetchByEmail guard").
func (g *Gateway) RefetchByEmail(ctx context.Context, email string) (domain.Row, bool, error) {
	rows, err := g.ListAllRows(ctx)
	if err != nil {
		return domain.Row{}, false, err
	}
	for _, r := range rows {
		if strings.EqualFold(r.Email, email) {
			return r, true, nil
		}
	}
	return domain.Row{}, false, nil
}

// ReadLock reads only the lock-token cell for a row.
func (g *Gateway) ReadLock(ctx context.Context, row domain.Row) (string, error) {
	var resp *sheetsapi.ValueRange
	rng := cellRange(g.tab, row.RowIndex, ColLockToken)
	err := g.retry(ctx, func() error {
		var apiErr error
		resp, apiErr = g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("op=sheets.ReadLock row=%d: %w: %v", row.RowIndex, domain.ErrUpstreamTimeout, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", nil
	}
	return cellString(resp.Values[0][0]), nil
}

// WriteLock unconditionally writes the lock-token cell. The
// read-write-verify compare-and-set sequence (spec invariant 1) is
// implemented by LockService.Acquire, which composes ReadLock and
// WriteLock around a verifying re-read.
func (g *Gateway) WriteLock(ctx context.Context, row domain.Row, token string) error {
	return g.writeCell(ctx, row.RowIndex, ColLockToken, token)
}

func (g *Gateway) writeCell(ctx context.Context, rowIndex, col int, value string) error {
	rng := cellRange(g.tab, rowIndex, col)
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{{value}}}
	return g.retry(ctx, func() error {
		_, apiErr := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do()
		return apiErr
	})
}

// batchWrite writes a set of cells for a single row in one request.
func (g *Gateway) batchWrite(ctx context.Context, rowIndex int, cells map[int]string) error {
	data := make([]*sheetsapi.ValueRange, 0, len(cells))
	for col, val := range cells {
		data = append(data, &sheetsapi.ValueRange{
			Range:  cellRange(g.tab, rowIndex, col),
			Values: [][]interface{}{{val}},
		})
	}
	req := &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	return g.retry(ctx, func() error {
		_, apiErr := g.svc.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
		return apiErr
	})
}

// RecordSuccess writes the post-transition status, history line, and
// (optionally) the next billing date / observed IP / pending-column reset
// in one batched call.
func (g *Gateway) RecordSuccess(ctx context.Context, row domain.Row, out domain.SuccessOutcome) error {
	cells := map[int]string{
		ColStatus:        string(out.NewStatus),
		ColResultHistory: out.ResultLine,
		ColRetryCount:    "0",
	}
	if out.NewBillingDate != nil {
		cells[ColNextBillingDate] = domain.FormatLocalDate(*out.NewBillingDate)
	}
	if out.IP != "" {
		cells[ColLastIP] = out.IP
	}
	if out.ResetPending {
		cells[ColPendingCheckAt] = ""
		cells[ColPendingRetryAt] = ""
	}
	return g.batchWrite(ctx, row.RowIndex, cells)
}

// RecordRetryableFailure bumps the retry counter and appends the history
// line, leaving status untouched so the row stays eligible for the next
// scheduled attempt. Returns the counter's new value for the caller's loop
// statistics.
func (g *Gateway) RecordRetryableFailure(ctx context.Context, row domain.Row, out domain.FailureOutcome) (int, error) {
	newCount := row.RetryCount + 1
	cells := map[int]string{
		ColResultHistory: out.ResultLine,
		ColRetryCount:    strconv.Itoa(newCount),
	}
	if out.IP != "" {
		cells[ColLastIP] = out.IP
	}
	if err := g.batchWrite(ctx, row.RowIndex, cells); err != nil {
		return row.RetryCount, err
	}
	return newCount, nil
}

// AppendHistory writes only the history cell, leaving retryCount and status
// untouched (spec §4.7: a payment-pending observation is not itself a
// retryable failure).
func (g *Gateway) AppendHistory(ctx context.Context, row domain.Row, resultLine string) error {
	return g.writeCell(ctx, row.RowIndex, ColResultHistory, resultLine)
}

// RecordPermanentFailure writes a terminal status and quarantines the row:
// domain.RowStatus.IsTerminal means the schedule will never select it again.
func (g *Gateway) RecordPermanentFailure(ctx context.Context, row domain.Row, out domain.PermanentFailureOutcome) error {
	cells := map[int]string{
		ColStatus:        string(out.NewStatus),
		ColResultHistory: out.ResultLine,
	}
	if out.IP != "" {
		cells[ColLastIP] = out.IP
	}
	return g.batchWrite(ctx, row.RowIndex, cells)
}

// SetPendingCheckAt sets the first-observation payment-pending timestamp.
func (g *Gateway) SetPendingCheckAt(ctx context.Context, row domain.Row, at time.Time) error {
	return g.writeCell(ctx, row.RowIndex, ColPendingCheckAt, domain.FormatLocalTimestamp(at))
}

// SetPendingRetryAt rewrites only the retry timestamp on a repeat
// payment-pending observation.
func (g *Gateway) SetPendingRetryAt(ctx context.Context, row domain.Row, at time.Time) error {
	return g.writeCell(ctx, row.RowIndex, ColPendingRetryAt, domain.FormatLocalTimestamp(at))
}

// ClearPendingColumns clears both pending timestamps once the sub-state
// machine resolves (success, or a horizon breach into a terminal status).
func (g *Gateway) ClearPendingColumns(ctx context.Context, row domain.Row) error {
	return g.batchWrite(ctx, row.RowIndex, map[int]string{
		ColPendingCheckAt: "",
		ColPendingRetryAt: "",
	})
}

// ResolveProfileID looks up a cached browser-profile id by account email in
// the profile-mapping tab, refreshing the cache when stale.
func (g *Gateway) ResolveProfileID(ctx context.Context, email string) (string, bool, error) {
	g.mu.RLock()
	fresh := time.Since(g.profileFetched) < g.profileTTL
	if fresh {
		id, ok := g.profileByEmail[strings.ToLower(email)]
		g.mu.RUnlock()
		return id, ok, nil
	}
	g.mu.RUnlock()

	if err := g.refreshProfileCache(ctx); err != nil {
		return "", false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.profileByEmail[strings.ToLower(email)]
	return id, ok, nil
}

func (g *Gateway) refreshProfileCache(ctx context.Context) error {
	var resp *sheetsapi.ValueRange
	rng := g.profileTab + "!A2:B"
	err := g.retry(ctx, func() error {
		var apiErr error
		resp, apiErr = g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("op=sheets.refreshProfileCache: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	next := make(map[string]string, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) < 2 {
			continue
		}
		email := strings.ToLower(cellString(row[0]))
		id := cellString(row[1])
		if email == "" || id == "" {
			continue
		}
		next[email] = id
	}
	g.mu.Lock()
	g.profileByEmail = next
	g.profileFetched = time.Now()
	g.mu.Unlock()
	return nil
}

func isBlankRow(values []interface{}) bool {
	for _, v := range values {
		if strings.TrimSpace(cellString(v)) != "" {
			return false
		}
	}
	return true
}

func isPermanentSheetsErr(err error) bool {
	return strings.Contains(err.Error(), "PERMISSION_DENIED") ||
		strings.Contains(err.Error(), "invalid range")
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func cellAt(values []interface{}, idx int) string {
	if idx < 0 || idx >= len(values) {
		return ""
	}
	return cellString(values[idx])
}

// parseRow converts a raw values row into a domain.Row. ok is false when
// the row is missing its identity column.
func parseRow(values []interface{}, sheetRow int) (domain.Row, bool) {
	email := cellAt(values, ColEmail)
	if email == "" {
		return domain.Row{}, false
	}
	row := domain.Row{
		Email:         email,
		Password:      cellAt(values, ColPassword),
		RecoveryEmail: cellAt(values, ColRecoveryEmail),
		TOTPSecret:    cellAt(values, ColTOTPSecret),
		Status:        domain.RowStatus(cellAt(values, ColStatus)),
		LastIP:        cellAt(values, ColLastIP),
		ResultHistory: cellAt(values, ColResultHistory),
		ScheduledTime: cellAt(values, ColScheduledTime),
		LockToken:     cellAt(values, ColLockToken),
		PaymentCard:   cellAt(values, ColPaymentCard),
		RowIndex:      sheetRow,
	}
	if d, ok := domain.ParseLocalDate(cellAt(values, ColNextBillingDate)); ok {
		row.NextBillingDate = d
	}
	if retryStr := cellAt(values, ColRetryCount); retryStr != "" {
		if n, err := strconv.Atoi(retryStr); err == nil {
			row.RetryCount = n
		}
	}
	if s := cellAt(values, ColPendingCheckAt); s != "" {
		if t, ok := domain.ParseLocalTimestamp(s); ok {
			row.PendingCheckAt = &t
		}
	}
	if s := cellAt(values, ColPendingRetryAt); s != "" {
		if t, ok := domain.ParseLocalTimestamp(s); ok {
			row.PendingRetryAt = &t
		}
	}
	return row, true
}
