package sheets

import (
	"fmt"
	"strconv"
	"strings"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// configKeys are the expected column-A labels on the config tab; column B
// holds the integer value. Unknown rows are ignored; a missing row, or one
// whose value is not an integer, reads as zero.
const (
	keyResumeLeadMinutes    = "resumeLeadMinutes"
	keyPauseLagMinutes      = "pauseLagMinutes"
	keyCheckIntervalSeconds = "checkIntervalSeconds"
	keyRetryCap             = "retryCap"
	keyPendingRetryMinutes  = "pendingRetryMinutes"
	keyPendingHorizonHours  = "pendingHorizonHours"
	keyTransitionRateLimit  = "transitionRateLimitPerMinute"
)

// ConfigTabReader implements config.ConfigSheetReader against a two-column
// (key, value) tab on the same spreadsheet as the worker rows.
type ConfigTabReader struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	tab           string
}

// NewConfigTabReader constructs a ConfigTabReader against the given tab.
func NewConfigTabReader(svc *sheetsapi.Service, spreadsheetID, tab string) *ConfigTabReader {
	return &ConfigTabReader{svc: svc, spreadsheetID: spreadsheetID, tab: tab}
}

// ReadSharedConfig reads every (key, value) pair on the tab into a fresh
// SchedulingConfig. Keys the tab does not name are left at zero; they are
// not filled from any cached or default value, and SharedConfig.Sync stores
// the result as its whole snapshot.
func (r *ConfigTabReader) ReadSharedConfig(ctx domain.Context) (domain.SchedulingConfig, error) {
	var cfg domain.SchedulingConfig
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, r.tab+"!A2:B").Context(ctx).Do()
	if err != nil {
		return cfg, fmt.Errorf("op=sheets.ReadSharedConfig: %w: %v", domain.ErrUpstreamTimeout, err)
	}

	values := map[string]int{}
	for _, row := range resp.Values {
		if len(row) < 2 {
			continue
		}
		key := strings.TrimSpace(cellString(row[0]))
		n, convErr := strconv.Atoi(strings.TrimSpace(cellString(row[1])))
		if key == "" || convErr != nil {
			continue
		}
		values[key] = n
	}

	cfg.ResumeLeadMinutes = values[keyResumeLeadMinutes]
	cfg.PauseLagMinutes = values[keyPauseLagMinutes]
	cfg.CheckIntervalSeconds = values[keyCheckIntervalSeconds]
	cfg.RetryCap = values[keyRetryCap]
	cfg.PendingRetryMinutes = values[keyPendingRetryMinutes]
	cfg.PendingHorizonHours = values[keyPendingHorizonHours]
	cfg.TransitionRateLimitPerMinute = values[keyTransitionRateLimit]
	return cfg, nil
}
