package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warden/internal/forensics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMaintenance struct {
	ended, compacted, pruned int
}

func (f *fakeMaintenance) EndIdleSessions(context.Context) int { return f.ended }
func (f *fakeMaintenance) CompactArchives() int                { return f.compacted }
func (f *fakeMaintenance) PruneBlocklist() int                 { return f.pruned }

type fakeUnblocker struct {
	blocked map[string]bool
}

func (f *fakeUnblocker) Unblock(userID string) bool {
	if !f.blocked[userID] {
		return false
	}
	delete(f.blocked, userID)
	return true
}

type fakeExporter struct {
	records  []*forensics.Record
	gotSince time.Time
	gotLimit int
}

func (f *fakeExporter) ListSince(_ context.Context, since time.Time, limit int) ([]*forensics.Record, error) {
	f.gotSince = since
	f.gotLimit = limit
	return f.records, nil
}

func setupAdminRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doRequest(t *testing.T, router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestUnblockUser_NotConfigured(t *testing.T) {
	router := setupAdminRouter(NewHandler())

	w := doRequest(t, router, "POST", "/api/v1/admin/users/mallory/unblock")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
}

func TestUnblockUser_NotBlocked(t *testing.T) {
	router := setupAdminRouter(NewHandler().WithUnblocker(&fakeUnblocker{blocked: map[string]bool{}}))

	w := doRequest(t, router, "POST", "/api/v1/admin/users/mallory/unblock")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] != "not_blocked" {
		t.Errorf("Expected not_blocked error, got %v", resp["error"])
	}
}

func TestUnblockUser_Blocked(t *testing.T) {
	ub := &fakeUnblocker{blocked: map[string]bool{"mallory": true}}
	router := setupAdminRouter(NewHandler().WithUnblocker(ub))

	w := doRequest(t, router, "POST", "/api/v1/admin/users/mallory/unblock")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Unblocked bool   `json:"unblocked"`
		UserID    string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Unblocked || resp.UserID != "mallory" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	// Second unblock finds nothing.
	w = doRequest(t, router, "POST", "/api/v1/admin/users/mallory/unblock")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 on repeat unblock, got %d", w.Code)
	}
}

func TestTriggerSweep(t *testing.T) {
	m := &fakeMaintenance{ended: 3, compacted: 2, pruned: 1}
	router := setupAdminRouter(NewHandler().WithMaintenance(m))

	w := doRequest(t, router, "POST", "/api/v1/admin/sweep")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Report SweepReport `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Report.IdleSessionsEnded != 3 {
		t.Errorf("Expected 3 idle sessions ended, got %d", resp.Report.IdleSessionsEnded)
	}
	if resp.Report.ArchivesCompacted != 2 {
		t.Errorf("Expected 2 archives compacted, got %d", resp.Report.ArchivesCompacted)
	}
	if resp.Report.BlocksPruned != 1 {
		t.Errorf("Expected 1 block pruned, got %d", resp.Report.BlocksPruned)
	}
	if resp.Report.Timestamp.IsZero() {
		t.Error("Expected report timestamp to be set")
	}
}

func TestTriggerSweep_NotConfigured(t *testing.T) {
	router := setupAdminRouter(NewHandler())

	w := doRequest(t, router, "POST", "/api/v1/admin/sweep")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
}

func TestExportForensics(t *testing.T) {
	exp := &fakeExporter{records: []*forensics.Record{
		{ID: "fr_001", UserID: "alice", Reason: forensics.ReasonManual},
		{ID: "fr_002", UserID: "bob", Reason: forensics.ReasonCriticalRisk},
	}}
	router := setupAdminRouter(NewHandler().WithForensicExporter(exp))

	w := doRequest(t, router, "GET", "/api/v1/admin/forensics/export")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Records []forensics.Record `json:"records"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Records) != 2 {
		t.Fatalf("Expected 2 records, got count=%d len=%d", resp.Count, len(resp.Records))
	}

	// Defaults: 30-day window, limit 1000.
	if exp.gotLimit != 1000 {
		t.Errorf("Expected default limit 1000, got %d", exp.gotLimit)
	}
	wantSince := time.Now().AddDate(0, 0, -30)
	if d := exp.gotSince.Sub(wantSince); d < -time.Minute || d > time.Minute {
		t.Errorf("Expected since near 30 days ago, got %v", exp.gotSince)
	}
}

func TestExportForensics_QueryParams(t *testing.T) {
	exp := &fakeExporter{}
	router := setupAdminRouter(NewHandler().WithForensicExporter(exp))

	w := doRequest(t, router, "GET", "/api/v1/admin/forensics/export?since=2026-01-15T00:00:00Z&limit=50")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if exp.gotLimit != 50 {
		t.Errorf("Expected limit 50, got %d", exp.gotLimit)
	}
	want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if !exp.gotSince.Equal(want) {
		t.Errorf("Expected since %v, got %v", want, exp.gotSince)
	}

	// Out-of-range limit falls back to the default.
	doRequest(t, router, "GET", "/api/v1/admin/forensics/export?limit=50000")
	if exp.gotLimit != 1000 {
		t.Errorf("Expected limit capped at default 1000, got %d", exp.gotLimit)
	}
}
