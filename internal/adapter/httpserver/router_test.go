package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	obsconn "github.com/fairyhunter13/subscription-fleet/internal/observability"
	"github.com/fairyhunter13/subscription-fleet/internal/usecase"
)

func Test_NewRouter_Healthz(t *testing.T) {
	r := NewRouter(usecase.NewScheduleRegistry(), time.Second, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Result().StatusCode)
	}
}

func Test_NewRouter_Metrics(t *testing.T) {
	r := NewRouter(usecase.NewScheduleRegistry(), time.Second, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Result().StatusCode)
	}
}

func Test_NewRouter_ConnectionHealth(t *testing.T) {
	healthy := obsconn.NewConnectionMetrics(obsconn.ConnectionTypeSheets, obsconn.OperationTypeWrite, "sheet-1")
	healthy.RecordRequest()
	healthy.RecordSuccess(time.Millisecond)

	r := NewRouter(usecase.NewScheduleRegistry(), time.Second, map[string]*obsconn.ConnectionMetrics{"sheets": healthy})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/connections", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Result().StatusCode)
	}
	var out map[string]map[string]interface{}
	if err := json.NewDecoder(rec.Result().Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["sheets"]; !ok {
		t.Fatalf("expected sheets entry, got %+v", out)
	}
}

func Test_NewRouter_ScheduleListCancelCancelAll(t *testing.T) {
	registry := usecase.NewScheduleRegistry()
	cancelled := false
	registry.Register(&usecase.ScheduledTask{ID: "t1", Label: "worker run", StartedAt: time.Now(), Cancel: func() { cancelled = true }})

	r := NewRouter(registry, time.Second, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/schedule/", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("list: want 200, got %d", rec.Result().StatusCode)
	}
	var views []ScheduleView
	if err := json.NewDecoder(rec.Result().Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].ID != "t1" {
		t.Fatalf("views = %+v", views)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/schedule/cancel?id=t1", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("cancel: want 200, got %d", rec.Result().StatusCode)
	}
	if !cancelled {
		t.Fatal("expected cancel func to run")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/schedule/cancel", nil))
	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("cancel without id: want 400, got %d", rec.Result().StatusCode)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/schedule/cancel-all", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("cancel-all: want 200, got %d", rec.Result().StatusCode)
	}
}
