package collect

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/linkpulse/collector/internal/browser"
	"github.com/linkpulse/collector/internal/capture"
	"github.com/linkpulse/collector/internal/logger"
	"github.com/linkpulse/collector/internal/runner"
	"github.com/linkpulse/collector/internal/sheet"
	"github.com/linkpulse/collector/internal/store"
	"github.com/linkpulse/collector/internal/uploader"
)

// Analytics surfaces. The company URL takes the numeric organization id.
const (
	personalExportURL    = "https://www.linkedin.com/analytics/creator/content/"
	companyExportURLBase = "https://www.linkedin.com/company/%s/admin/analytics/updates/"
)

// The export control labels across the UI languages the site serves.
var (
	exportLabels  = []string{"Export", "Exportieren", "Exporter", "Exportar"}
	confirmLabels = []string{"Export", "Exportieren", "Exporter", "Exportar", "Download"}
)

const (
	// Exports arrive as xlsx; the capture matches on the URL, not the
	// mime type, since the CDN serves them as octet-stream.
	downloadPattern = ".xlsx"
	downloadTimeout = 60 * time.Second

	// Randomized pause between per-post page visits.
	minPostDelay = 2 * time.Second
	maxPostDelay = 5 * time.Second
)

// Archiver stores a raw export for later inspection. Implementations must
// treat failures as non-fatal; the pipeline only logs them.
type Archiver interface {
	Archive(ctx context.Context, flow, name string, data []byte) error
}

// exportPage is the slice of one open tab the pipeline drives.
// *browser.Page implements it.
type exportPage interface {
	capture.Source
	WaitForLoad(ctx context.Context) error
	ClickByText(ctx context.Context, candidates ...string) error
	ClickByAttribute(ctx context.Context, attr, value string) error
	TypeHumanlike(ctx context.Context, selector, text string) error
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)
	Close()
}

type pageOpener interface {
	openPage(ctx context.Context, url string) (exportPage, error)
}

type chromeOpener struct {
	b *browser.Browser
}

func (o chromeOpener) openPage(ctx context.Context, url string) (exportPage, error) {
	page, err := o.b.OpenPage(ctx, url)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Pipeline is the end-to-end collection flow: open the analytics surface,
// trigger the export through the UI, correlate the download, and ship the
// results. It implements runner.Pipeline.
type Pipeline struct {
	browser  pageOpener
	uploader *uploader.Client
	archiver Archiver
	progress store.ProgressPublisher
	log      *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

func WithProgress(pub store.ProgressPublisher) Option {
	return func(p *Pipeline) { p.progress = pub }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

func New(b *browser.Browser, u *uploader.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		browser:  chromeOpener{b: b},
		uploader: u,
		progress: store.NopPublisher{},
		log:      logger.Default().WithComponent("collect"),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one collection run. The export workbook is always captured
// and uploaded; the per-post expansion runs only when advanced stats are
// enabled, and individual post failures are counted, not propagated.
func (p *Pipeline) Run(ctx context.Context, params runner.RunParams) (*runner.RunResult, error) {
	url := personalExportURL
	if params.Flow == runner.FlowCompany {
		url = fmt.Sprintf(companyExportURLBase, params.CompanyID)
	}

	name, data, err := p.captureExport(ctx, params, url)
	if err != nil {
		return nil, err
	}

	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, string(params.Flow), name, data); err != nil {
			p.log.Warn(ctx, "export archive failed", map[string]any{"error": err.Error()})
		}
	}

	p.publish(params, store.StageUpload, "uploading export", 0, 0)
	if err := p.uploader.UploadProfileExport(ctx, params.Email, name, data); err != nil {
		return nil, err
	}

	result := &runner.RunResult{ExportName: name}
	if !params.AdvancedStats {
		return result, nil
	}

	done, failed := p.collectPosts(ctx, params, data)
	result.PostsProcessed = done
	result.PostsFailed = failed
	return result, nil
}

// DownloadExport performs a one-off export capture outside the scheduled
// state machine and returns the workbook. Used by the control API to hand
// the raw export to the operator.
func (p *Pipeline) DownloadExport(ctx context.Context, flow runner.Flow, companyID string) (string, []byte, error) {
	url := personalExportURL
	if flow == runner.FlowCompany {
		url = fmt.Sprintf(companyExportURLBase, companyID)
	}
	return p.captureExport(ctx, runner.RunParams{Flow: flow, Reason: runner.ReasonManual}, url)
}

// Compose opens a page and types text into the element matching selector,
// emulating a person at the keyboard. When clickFor is set, the label
// carrying that `for` attribute is clicked first; composer surfaces often
// hide the real input behind a label-linked control.
func (p *Pipeline) Compose(ctx context.Context, url, selector, text, clickFor string) error {
	page, err := p.browser.openPage(ctx, url)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.WaitForLoad(ctx); err != nil {
		return err
	}
	if clickFor != "" {
		if err := page.ClickByAttribute(ctx, "for", clickFor); err != nil {
			return err
		}
	}
	return page.TypeHumanlike(ctx, selector, text)
}

// captureExport opens the analytics surface, arms the download capture, and
// triggers the export through the UI. The capture is armed before the export
// click: accounts without a confirm dialog start the download on that first
// click, and a listener registered any later can miss it. The page is closed
// on every path.
func (p *Pipeline) captureExport(ctx context.Context, params runner.RunParams, url string) (string, []byte, error) {
	p.publish(params, store.StagePage, url, 0, 0)

	page, err := p.browser.openPage(ctx, url)
	if err != nil {
		return "", nil, err
	}
	defer page.Close()

	if err := page.WaitForLoad(ctx); err != nil {
		return "", nil, err
	}

	pending := capture.New(page).Capture(downloadPattern, downloadTimeout)

	if err := page.ClickByText(ctx, exportLabels...); err != nil {
		pending.Cancel()
		return "", nil, err
	}
	p.publish(params, store.StageExport, "export triggered", 0, 0)

	// The confirm dialog may not appear on every account; a missing
	// confirm control is fine as long as the download shows up.
	if err := page.ClickByText(ctx, confirmLabels...); err != nil {
		p.log.Debug(ctx, "no confirm control found", map[string]any{"error": err.Error()})
	}

	ev, err := pending.Wait(ctx)
	if err != nil {
		return "", nil, err
	}

	data, err := page.ResponseBody(ctx, ev.RequestID)
	if err != nil {
		return "", nil, err
	}

	return exportName(ev.URL), data, nil
}

// collectPosts expands the export workbook into per-post analytics pages and
// captures each one. Transformation and capture failures on individual posts
// are logged and counted; the batch never aborts.
func (p *Pipeline) collectPosts(ctx context.Context, params runner.RunParams, workbook []byte) (done, failed int) {
	urls, err := sheet.ExtractPostURLs(workbook)
	if err != nil {
		p.log.Warn(ctx, "post extraction failed", map[string]any{"error": err.Error()})
		return 0, 0
	}

	limit := params.PostsLimit
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	p.publish(params, store.StageExtract, fmt.Sprintf("%d posts found", len(urls)), 0, len(urls))

	for i, postURL := range urls {
		if i > 0 {
			if err := p.sleep(ctx, postDelay()); err != nil {
				p.log.Warn(ctx, "post batch interrupted", map[string]any{"done": done})
				return done, failed
			}
		}

		if err := p.collectOnePost(ctx, params, postURL); err != nil {
			failed++
			p.log.Warn(ctx, "post collection failed", map[string]any{
				"url": postURL, "error": err.Error(),
			})
		} else {
			done++
		}
		p.publish(params, store.StagePost, postURL, done, len(urls))
	}
	return done, failed
}

func (p *Pipeline) collectOnePost(ctx context.Context, params runner.RunParams, postURL string) error {
	analyticsURL, err := sheet.TransformToAnalyticsURL(postURL)
	if err != nil {
		return err
	}

	page, err := p.browser.openPage(ctx, analyticsURL)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.WaitForLoad(ctx); err != nil {
		return err
	}

	pending := capture.New(page).Capture(downloadPattern, downloadTimeout)

	if err := page.ClickByText(ctx, exportLabels...); err != nil {
		pending.Cancel()
		return err
	}

	ev, err := pending.Wait(ctx)
	if err != nil {
		return err
	}

	data, err := page.ResponseBody(ctx, ev.RequestID)
	if err != nil {
		return err
	}

	return p.uploader.UploadPostAnalytics(ctx, params.Email, data)
}

func (p *Pipeline) publish(params runner.RunParams, stage, detail string, postsDone, postsAll int) {
	p.progress.PublishProgress(&store.ProgressEvent{
		RunID:     params.RunID,
		Flow:      string(params.Flow),
		Stage:     stage,
		Status:    runner.StatusRunning,
		Detail:    detail,
		PostsDone: postsDone,
		PostsAll:  postsAll,
		Timestamp: time.Now(),
	})
}

// exportName derives a filename from the download URL, falling back to a
// dated default when the path carries none.
func exportName(url string) string {
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	name := path.Base(trimmed)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return fmt.Sprintf("export_%s.xlsx", time.Now().Format("2006-01-02"))
	}
	return name
}

func postDelay() time.Duration {
	return minPostDelay + time.Duration(rand.Int63n(int64(maxPostDelay-minPostDelay)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
