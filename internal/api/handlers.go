package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/linkpulse/collector/internal/errors"
	"github.com/linkpulse/collector/internal/logger"
	"github.com/linkpulse/collector/internal/runner"
	"github.com/linkpulse/collector/internal/sheet"
	"github.com/linkpulse/collector/internal/store"
	"github.com/linkpulse/collector/internal/uploader"
)

const maxUploadSize = 32 << 20

// Trigger starts runs and reports schedule state. Implemented by
// runner.Runner.
type Trigger interface {
	TriggerRun(ctx context.Context, flow runner.Flow, reason string) error
	NextExecution(ctx context.Context, flow runner.Flow) (time.Time, error)
}

// Exporter performs one-off browser operations outside the scheduled state
// machine. Implemented by collect.Pipeline.
type Exporter interface {
	DownloadExport(ctx context.Context, flow runner.Flow, companyID string) (string, []byte, error)
	Compose(ctx context.Context, url, selector, text, clickFor string) error
}

// HistoryLister reads the run history. Implemented by db.RunRepository.
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]runner.HistoryEntry, error)
}

// SummaryClient proxies the analytics summary endpoint. Implemented by
// uploader.Client.
type SummaryClient interface {
	FetchSummary(ctx context.Context, email string) (*uploader.Summary, error)
	UploadProfileExport(ctx context.Context, email, filename string, data []byte) error
}

// SummaryCache caches summary responses between fetches. Implemented by
// cache.Cache.
type SummaryCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

// Handlers carries the control-API endpoints.
type Handlers struct {
	store    store.Store
	trigger  Trigger
	exporter Exporter
	history  HistoryLister
	summary  SummaryClient
	cache    SummaryCache
	log      *logger.Logger
}

// HandlerOption configures optional Handlers collaborators.
type HandlerOption func(*Handlers)

func WithSummaryCache(c SummaryCache) HandlerOption {
	return func(h *Handlers) { h.cache = c }
}

func NewHandlers(s store.Store, trigger Trigger, exporter Exporter, history HistoryLister, summary SummaryClient, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		store:    s,
		trigger:  trigger,
		exporter: exporter,
		history:  history,
		summary:  summary,
		log:      logger.Default().WithComponent("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TriggerPersonal handles POST /api/v1/runs/personal. The run proceeds
// asynchronously; the outcome lands in the run record and history.
func (h *Handlers) TriggerPersonal(w http.ResponseWriter, r *http.Request) {
	h.triggerRun(w, r, runner.FlowPersonal)
}

// TriggerCompany handles POST /api/v1/runs/company.
func (h *Handlers) TriggerCompany(w http.ResponseWriter, r *http.Request) {
	h.triggerRun(w, r, runner.FlowCompany)
}

func (h *Handlers) triggerRun(w http.ResponseWriter, r *http.Request, flow runner.Flow) {
	requestID := apperrors.GetRequestID(r.Context())

	go func() {
		ctx := apperrors.WithRequestID(context.Background(), requestID)
		if err := h.trigger.TriggerRun(ctx, flow, runner.ReasonManual); err != nil {
			h.log.Error(ctx, "manual run failed", err, map[string]interface{}{"flow": string(flow)})
		}
	}()

	apperrors.WriteJSON(w, requestID, http.StatusAccepted, map[string]string{
		"flow":   string(flow),
		"status": "accepted",
	})
}

// ScheduleRequest updates the collection schedule and account configuration.
// Absent fields are left unchanged.
type ScheduleRequest struct {
	Email             *string `json:"email,omitempty"`
	CompanyID         *string `json:"company_id,omitempty"`
	PeriodDays        *int    `json:"period_days,omitempty"`
	AlarmsEnabled     *bool   `json:"alarms_enabled,omitempty"`
	AdvancedPostStats *bool   `json:"advanced_post_stats,omitempty"`
	PostsLimit        *int    `json:"posts_limit,omitempty"`
}

// UpdateSchedule handles PUT /api/v1/schedule.
func (h *Handlers) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	ctx := r.Context()

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.PeriodDays != nil && *req.PeriodDays <= 0 {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("period_days must be positive"))
		return
	}
	if req.PostsLimit != nil && *req.PostsLimit <= 0 {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("posts_limit must be positive"))
		return
	}

	if err := h.applySchedule(ctx, &req); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	h.Status(w, r)
}

func (h *Handlers) applySchedule(ctx context.Context, req *ScheduleRequest) error {
	if req.Email != nil {
		if err := h.store.Set(ctx, store.KeyEmail, *req.Email); err != nil {
			return err
		}
	}
	if req.CompanyID != nil {
		if err := h.store.Set(ctx, store.KeyCompanyID, *req.CompanyID); err != nil {
			return err
		}
	}
	if req.PeriodDays != nil {
		if err := store.SetInt(ctx, h.store, store.KeyUploadFrequency, *req.PeriodDays); err != nil {
			return err
		}
	}
	if req.AlarmsEnabled != nil {
		if err := store.SetBool(ctx, h.store, store.KeyAlarmsEnabled, *req.AlarmsEnabled); err != nil {
			return err
		}
	}
	if req.AdvancedPostStats != nil {
		if err := store.SetBool(ctx, h.store, store.KeyAdvancedPostStats, *req.AdvancedPostStats); err != nil {
			return err
		}
	}
	if req.PostsLimit != nil {
		if err := store.SetInt(ctx, h.store, store.KeyPostsLimit, *req.PostsLimit); err != nil {
			return err
		}
	}
	return nil
}

// FlowStatus is the per-flow slice of the status response.
type FlowStatus struct {
	Record        *runner.RunRecord `json:"record"`
	NextExecution *time.Time        `json:"next_execution,omitempty"`
}

// StatusResponse is the full collector status.
type StatusResponse struct {
	Email             string                `json:"email,omitempty"`
	CompanyID         string                `json:"company_id,omitempty"`
	PeriodDays        int                   `json:"period_days"`
	AlarmsEnabled     bool                  `json:"alarms_enabled"`
	AdvancedPostStats bool                  `json:"advanced_post_stats"`
	PostsLimit        int                   `json:"posts_limit"`
	Flows             map[string]FlowStatus `json:"flows"`
	Retry             runner.RetryState     `json:"retry"`
}

// Status handles GET /api/v1/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	ctx := r.Context()

	resp := StatusResponse{Flows: make(map[string]FlowStatus)}

	var err error
	if resp.Email, err = store.GetString(ctx, h.store, store.KeyEmail); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}
	resp.CompanyID, _ = store.GetString(ctx, h.store, store.KeyCompanyID)

	if resp.PeriodDays, err = store.GetInt(ctx, h.store, store.KeyUploadFrequency); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}
	if resp.PeriodDays <= 0 {
		resp.PeriodDays = runner.DefaultPeriodDays
	}

	raw, ok, _ := h.store.Get(ctx, store.KeyAlarmsEnabled)
	resp.AlarmsEnabled = !ok || raw == "true"

	resp.AdvancedPostStats, _ = store.GetBool(ctx, h.store, store.KeyAdvancedPostStats)
	resp.PostsLimit, _ = store.GetInt(ctx, h.store, store.KeyPostsLimit)
	if resp.PostsLimit <= 0 {
		resp.PostsLimit = runner.DefaultPostsLimit
	}

	for _, flow := range []runner.Flow{runner.FlowPersonal, runner.FlowCompany} {
		rec, err := runner.LoadRunRecord(ctx, h.store, flow)
		if err != nil {
			apperrors.WriteError(w, requestID, err)
			return
		}
		fs := FlowStatus{Record: rec}
		if next, err := h.trigger.NextExecution(ctx, flow); err == nil && !next.IsZero() {
			fs.NextExecution = &next
		}
		resp.Flows[string(flow)] = fs
	}

	if resp.Retry, err = runner.LoadRetryState(ctx, h.store); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, resp)
}

// Runs handles GET /api/v1/runs.
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	if h.history == nil {
		apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]any{"runs": []runner.HistoryEntry{}})
		return
	}

	entries, err := h.history.ListRecent(r.Context(), 50)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.Storage("failed to list runs").WithCause(err))
		return
	}
	if entries == nil {
		entries = []runner.HistoryEntry{}
	}
	apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]any{"runs": entries})
}

// Summary handles GET /api/v1/summary, proxying the analytics summary for
// the configured account.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	ctx := r.Context()

	email, err := store.GetString(ctx, h.store, store.KeyEmail)
	if err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}
	if email == "" {
		apperrors.WriteError(w, requestID, apperrors.Configuration("email is not configured"))
		return
	}

	cacheKey := "summary:" + email
	if h.cache != nil {
		if raw, ok := h.cache.Get(ctx, cacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, raw)
			return
		}
	}

	summary, err := h.summary.FetchSummary(ctx, email)
	if err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}
	if h.cache != nil {
		if raw, err := json.Marshal(summary); err == nil {
			h.cache.Set(ctx, cacheKey, string(raw), 0)
		}
	}
	apperrors.WriteJSON(w, requestID, http.StatusOK, summary)
}

// ExportDownloadRequest selects the flow for a one-off export capture.
type ExportDownloadRequest struct {
	Flow string `json:"flow"`
}

// ExportDownload handles POST /api/v1/export/download: capture a fresh
// export and return the workbook as an attachment.
func (h *Handlers) ExportDownload(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	ctx := r.Context()

	var req ExportDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	flow := runner.FlowPersonal
	companyID := ""
	if req.Flow == string(runner.FlowCompany) {
		flow = runner.FlowCompany
		var err error
		if companyID, err = store.GetString(ctx, h.store, store.KeyCompanyID); err != nil || companyID == "" {
			apperrors.WriteError(w, requestID, apperrors.Configuration("company id is not configured"))
			return
		}
	} else if req.Flow != "" && req.Flow != string(runner.FlowPersonal) {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("flow must be personal or company"))
		return
	}

	name, data, err := h.exporter.DownloadExport(ctx, flow, companyID)
	if err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ExportUpload handles POST /api/v1/export/upload: accept a workbook from
// the operator and forward it to the ingestion endpoint.
func (h *Handlers) ExportUpload(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid multipart body"))
		return
	}

	email := r.FormValue("email")
	if email == "" {
		if email, _ = store.GetString(ctx, h.store, store.KeyEmail); email == "" {
			apperrors.WriteError(w, requestID, apperrors.Configuration("email is not configured"))
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("failed to read file"))
		return
	}

	if err := h.summary.UploadProfileExport(ctx, email, header.Filename, data); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(ctx, "summary:"+email)
	}
	apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]string{"status": "uploaded"})
}

// SheetExtractResponse lists the post permalinks found in a workbook and
// their analytics-page URLs.
type SheetExtractResponse struct {
	Posts []SheetPost `json:"posts"`
}

type SheetPost struct {
	URL          string `json:"url"`
	AnalyticsURL string `json:"analytics_url,omitempty"`
}

// SheetExtract handles POST /api/v1/sheet/extract: parse an uploaded
// workbook without running a collection.
func (h *Handlers) SheetExtract(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid multipart body"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("failed to read file"))
		return
	}

	urls, err := sheet.ExtractPostURLs(data)
	if err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	resp := SheetExtractResponse{Posts: make([]SheetPost, 0, len(urls))}
	for _, u := range urls {
		post := SheetPost{URL: u}
		if analyticsURL, err := sheet.TransformToAnalyticsURL(u); err == nil {
			post.AnalyticsURL = analyticsURL
		}
		resp.Posts = append(resp.Posts, post)
	}
	apperrors.WriteJSON(w, requestID, http.StatusOK, resp)
}

// ComposeRequest opens a page and types into it. ClickFor optionally names a
// label `for` attribute to click before typing, for inputs activated through
// a linked label.
type ComposeRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
	ClickFor string `json:"click_for,omitempty"`
}

// Compose handles POST /api/v1/compose.
func (h *Handlers) Compose(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req ComposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.URL == "" || req.Selector == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("url and selector are required"))
		return
	}

	if err := h.exporter.Compose(r.Context(), req.URL, req.Selector, req.Text, req.ClickFor); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}
	apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]string{"status": "ok"})
}
