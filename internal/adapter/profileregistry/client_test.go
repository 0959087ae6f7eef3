package profileregistry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFindByNameOrRemark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "acme" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(searchResponse{ProfileIDs: []string{"p1", "p2"}})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), 2*time.Second, 10*time.Millisecond, 100*time.Millisecond)
	ids, err := c.FindByNameOrRemark(t.Context(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "p1" {
		t.Errorf("ids = %v", ids)
	}
}
