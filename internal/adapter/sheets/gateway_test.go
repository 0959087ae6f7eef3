package sheets

import (
	"testing"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

func TestParseRowSkipsBlankEmail(t *testing.T) {
	_, ok := parseRow([]interface{}{"", "pw"}, 2)
	if ok {
		t.Fatal("expected ok=false for a row with no email")
	}
}

func TestParseRowParsesFields(t *testing.T) {
	values := []interface{}{
		"user@example.com", "pw", "recovery@example.com", "TOTPSECRET",
		string(domain.StatusPaused), "2026. 8. 1", "1.2.3.4", "history",
		"09:30", "tok-123", "4242", "2", "2026. 7. 29 10:00", "2026. 7. 29 10:30",
	}
	row, ok := parseRow(values, 7)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if row.Email != "user@example.com" {
		t.Errorf("Email = %q", row.Email)
	}
	if row.Status != domain.StatusPaused {
		t.Errorf("Status = %q", row.Status)
	}
	if row.RetryCount != 2 {
		t.Errorf("RetryCount = %d", row.RetryCount)
	}
	if row.RowIndex != 7 {
		t.Errorf("RowIndex = %d", row.RowIndex)
	}
	if row.PendingCheckAt == nil || row.PendingRetryAt == nil {
		t.Fatal("expected pending timestamps to parse")
	}
	if !row.HasScheduledTime() {
		t.Error("expected ScheduledTime to parse")
	}
}

func TestIsBlankRow(t *testing.T) {
	if !isBlankRow([]interface{}{"", "", nil}) {
		t.Error("expected all-blank row to be blank")
	}
	if isBlankRow([]interface{}{"", "x"}) {
		t.Error("expected row with a value to be non-blank")
	}
}
