package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkpulse/collector/internal/runner"
	"github.com/linkpulse/collector/internal/store"
	"github.com/linkpulse/collector/internal/uploader"
)

type fakeTrigger struct {
	mu    sync.Mutex
	runs  []string
	next  time.Time
	errCh chan struct{}
}

func (f *fakeTrigger) TriggerRun(ctx context.Context, flow runner.Flow, reason string) error {
	f.mu.Lock()
	f.runs = append(f.runs, string(flow)+":"+reason)
	f.mu.Unlock()
	if f.errCh != nil {
		close(f.errCh)
	}
	return nil
}

func (f *fakeTrigger) NextExecution(ctx context.Context, flow runner.Flow) (time.Time, error) {
	return f.next, nil
}

func (f *fakeTrigger) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.runs))
	copy(out, f.runs)
	return out
}

type fakeExporter struct {
	exportName string
	exportData []byte
	composed   []string
}

func (f *fakeExporter) DownloadExport(ctx context.Context, flow runner.Flow, companyID string) (string, []byte, error) {
	return f.exportName, f.exportData, nil
}

func (f *fakeExporter) Compose(ctx context.Context, url, selector, text, clickFor string) error {
	f.composed = append(f.composed, url+"|"+selector+"|"+text+"|"+clickFor)
	return nil
}

type fakeHistory struct {
	entries []runner.HistoryEntry
}

func (f *fakeHistory) ListRecent(ctx context.Context, limit int) ([]runner.HistoryEntry, error) {
	return f.entries, nil
}

type fakeSummary struct {
	summary  *uploader.Summary
	uploaded []string
}

func (f *fakeSummary) FetchSummary(ctx context.Context, email string) (*uploader.Summary, error) {
	return f.summary, nil
}

func (f *fakeSummary) UploadProfileExport(ctx context.Context, email, filename string, data []byte) error {
	f.uploaded = append(f.uploaded, email+"|"+filename)
	return nil
}

func newTestHandlers(mem *store.MemoryStore, trigger *fakeTrigger) (*Handlers, *fakeExporter, *fakeSummary) {
	exporter := &fakeExporter{exportName: "export.xlsx", exportData: []byte("workbook")}
	summary := &fakeSummary{summary: &uploader.Summary{AdvancedReport: "report"}}
	h := NewHandlers(mem, trigger, exporter, &fakeHistory{}, summary)
	return h, exporter, summary
}

func TestTriggerPersonal_Accepted(t *testing.T) {
	trigger := &fakeTrigger{errCh: make(chan struct{})}
	h, _, _ := newTestHandlers(store.NewMemory(), trigger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/personal", nil)
	rec := httptest.NewRecorder()

	h.TriggerPersonal(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case <-trigger.errCh:
	case <-time.After(time.Second):
		t.Fatal("run was not triggered")
	}
	if got := trigger.triggered(); len(got) != 1 || got[0] != "personal:manual" {
		t.Errorf("triggered = %v, want [personal:manual]", got)
	}
}

func TestUpdateSchedule_PersistsFields(t *testing.T) {
	mem := store.NewMemory()
	h, _, _ := newTestHandlers(mem, &fakeTrigger{})

	email := "jane@example.com"
	days := 7
	enabled := false
	body, _ := json.Marshal(ScheduleRequest{
		Email:         &email,
		PeriodDays:    &days,
		AlarmsEnabled: &enabled,
	})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedule", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.UpdateSchedule(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	if got, _ := store.GetString(ctx, mem, store.KeyEmail); got != email {
		t.Errorf("email = %q, want %q", got, email)
	}
	if got, _ := store.GetInt(ctx, mem, store.KeyUploadFrequency); got != 7 {
		t.Errorf("period = %d, want 7", got)
	}
	if got, _ := store.GetBool(ctx, mem, store.KeyAlarmsEnabled); got {
		t.Error("alarms should be disabled")
	}
}

func TestUpdateSchedule_RejectsInvalidPeriod(t *testing.T) {
	h, _, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{})

	days := 0
	body, _ := json.Marshal(ScheduleRequest{PeriodDays: &days})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedule", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.UpdateSchedule(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatus_Defaults(t *testing.T) {
	next := time.Now().Add(24 * time.Hour)
	h, _, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{next: next})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.PeriodDays != runner.DefaultPeriodDays {
		t.Errorf("PeriodDays = %d, want %d", resp.PeriodDays, runner.DefaultPeriodDays)
	}
	if !resp.AlarmsEnabled {
		t.Error("alarms should default to enabled")
	}
	if resp.PostsLimit != runner.DefaultPostsLimit {
		t.Errorf("PostsLimit = %d, want %d", resp.PostsLimit, runner.DefaultPostsLimit)
	}
	if resp.Flows["personal"].Record.Status != runner.StatusIdle {
		t.Errorf("personal status = %s, want idle", resp.Flows["personal"].Record.Status)
	}
	if resp.Flows["personal"].NextExecution == nil {
		t.Error("expected next execution to be reported")
	}
}

func TestSummary_RequiresEmail(t *testing.T) {
	h, _, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	rec := httptest.NewRecorder()

	h.Summary(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestSummary_ProxiesResponse(t *testing.T) {
	mem := store.NewMemory()
	mem.Set(context.Background(), store.KeyEmail, "jane@example.com")
	h, _, _ := newTestHandlers(mem, &fakeTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	rec := httptest.NewRecorder()

	h.Summary(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summary uploader.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.AdvancedReport != "report" {
		t.Errorf("AdvancedReport = %q", summary.AdvancedReport)
	}
}

type fakeCache struct {
	entries map[string]string
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool) {
	v, ok := f.entries[key]
	return v, ok
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	f.entries[key] = value
}

func (f *fakeCache) Invalidate(ctx context.Context, key string) {
	delete(f.entries, key)
}

func TestSummary_CachesResponse(t *testing.T) {
	mem := store.NewMemory()
	mem.Set(context.Background(), store.KeyEmail, "jane@example.com")

	cache := &fakeCache{entries: map[string]string{}}
	summary := &fakeSummary{summary: &uploader.Summary{AdvancedReport: "fresh"}}
	h := NewHandlers(mem, &fakeTrigger{}, &fakeExporter{}, &fakeHistory{}, summary, WithSummaryCache(cache))

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := cache.entries["summary:jane@example.com"]; !ok {
		t.Fatal("expected summary to be cached")
	}

	// Second request must be served from the cache, not the origin.
	cache.entries["summary:jane@example.com"] = `{"advancedreport":"cached"}`
	rec = httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))

	var got uploader.Summary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.AdvancedReport != "cached" {
		t.Errorf("AdvancedReport = %q, want cached", got.AdvancedReport)
	}
}

func TestExportDownload_ReturnsAttachment(t *testing.T) {
	h, _, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/export/download", strings.NewReader(`{"flow":"personal"}`))
	rec := httptest.NewRecorder()

	h.ExportDownload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "export.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != "workbook" {
		t.Errorf("body = %q, want workbook bytes", rec.Body.String())
	}
}

func TestExportDownload_CompanyNeedsConfig(t *testing.T) {
	h, _, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/export/download", strings.NewReader(`{"flow":"company"}`))
	rec := httptest.NewRecorder()

	h.ExportDownload(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestExportUpload_Forwards(t *testing.T) {
	mem := store.NewMemory()
	mem.Set(context.Background(), store.KeyEmail, "jane@example.com")
	h, _, summary := newTestHandlers(mem, &fakeTrigger{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "manual.xlsx")
	part.Write([]byte("bytes"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/export/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.ExportUpload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(summary.uploaded) != 1 || summary.uploaded[0] != "jane@example.com|manual.xlsx" {
		t.Errorf("uploaded = %v", summary.uploaded)
	}
}

func TestCompose(t *testing.T) {
	h, exporter, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{})

	body := `{"url":"https://www.linkedin.com/feed/","selector":"div[role=textbox]","text":"hello","click_for":"share-box"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compose", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Compose(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(exporter.composed) != 1 {
		t.Fatalf("composed = %v", exporter.composed)
	}
	if !strings.HasSuffix(exporter.composed[0], "|hello|share-box") {
		t.Errorf("composed = %q, want activation control forwarded", exporter.composed[0])
	}
}

func TestCompose_RequiresFields(t *testing.T) {
	h, _, _ := newTestHandlers(store.NewMemory(), &fakeTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compose", strings.NewReader(`{"url":""}`))
	rec := httptest.NewRecorder()

	h.Compose(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
