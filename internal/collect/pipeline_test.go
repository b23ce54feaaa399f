package collect

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/linkpulse/collector/internal/capture"
	apperrors "github.com/linkpulse/collector/internal/errors"
	"github.com/linkpulse/collector/internal/logger"
	"github.com/linkpulse/collector/internal/runner"
	"github.com/linkpulse/collector/internal/store"
)

// fakePage emits its download event synchronously from the export click,
// the way a dialogless account starts the download on the first click.
type fakePage struct {
	listeners []func(capture.Event)
	ops       []string
	clicks    int

	downloadURL string
	body        []byte
	confirmErr  error
}

func (f *fakePage) AddListener(fn func(capture.Event)) (remove func()) {
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakePage) dispatch(ev capture.Event) {
	for _, fn := range f.listeners {
		fn(ev)
	}
}

func (f *fakePage) WaitForLoad(ctx context.Context) error {
	f.ops = append(f.ops, "load")
	return nil
}

func (f *fakePage) ClickByText(ctx context.Context, candidates ...string) error {
	f.clicks++
	f.ops = append(f.ops, "click:"+candidates[0])

	// First text click is the export control; it triggers the download
	// immediately when no confirm dialog exists. Later clicks are confirm
	// attempts.
	if f.clicks == 1 {
		if f.downloadURL != "" {
			f.dispatch(capture.Event{URL: f.downloadURL, RequestID: "req-1"})
		}
		return nil
	}
	return f.confirmErr
}

func (f *fakePage) ClickByAttribute(ctx context.Context, attr, value string) error {
	f.ops = append(f.ops, "clickattr:"+attr+"="+value)
	return nil
}

func (f *fakePage) TypeHumanlike(ctx context.Context, selector, text string) error {
	f.ops = append(f.ops, "type:"+selector)
	return nil
}

func (f *fakePage) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	return f.body, nil
}

func (f *fakePage) Close() {
	f.ops = append(f.ops, "close")
}

type fakeOpener struct {
	page *fakePage
}

func (f fakeOpener) openPage(ctx context.Context, url string) (exportPage, error) {
	return f.page, nil
}

func testPipeline(page *fakePage) *Pipeline {
	return &Pipeline{
		browser:  fakeOpener{page: page},
		progress: store.NopPublisher{},
		log:      logger.Default().WithComponent("collect"),
		sleep:    sleepCtx,
	}
}

func TestDownloadExport_CapturesDialoglessDownload(t *testing.T) {
	page := &fakePage{
		downloadURL: "https://cdn.example.com/exports/Content.xlsx",
		body:        []byte("workbook"),
		confirmErr:  apperrors.ElementNotFound("Export|Download"),
	}
	p := testPipeline(page)

	// A bounded context keeps a missed capture from waiting out the full
	// download timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	name, data, err := p.DownloadExport(ctx, runner.FlowPersonal, "")
	if err != nil {
		t.Fatalf("DownloadExport() error = %v", err)
	}
	if name != "Content.xlsx" {
		t.Errorf("name = %q, want Content.xlsx", name)
	}
	if string(data) != "workbook" {
		t.Errorf("data = %q", data)
	}
	if page.ops[len(page.ops)-1] != "close" {
		t.Errorf("ops = %v, want page closed last", page.ops)
	}
}

func TestCompose_ClicksActivationControlBeforeTyping(t *testing.T) {
	page := &fakePage{}
	p := testPipeline(page)

	err := p.Compose(context.Background(), "https://www.linkedin.com/feed/", "div[role=textbox]", "hello", "share-box")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	want := []string{"load", "clickattr:for=share-box", "type:div[role=textbox]", "close"}
	if len(page.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", page.ops, want)
	}
	for i := range want {
		if page.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", page.ops, want)
		}
	}
}

func TestCompose_SkipsActivationWhenUnset(t *testing.T) {
	page := &fakePage{}
	p := testPipeline(page)

	if err := p.Compose(context.Background(), "https://www.linkedin.com/feed/", "div[role=textbox]", "hello", ""); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	for _, op := range page.ops {
		if strings.HasPrefix(op, "clickattr:") {
			t.Fatalf("ops = %v, want no attribute click", page.ops)
		}
	}
}

func TestExportName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			"plain filename",
			"https://cdn.example.com/exports/Content_2026-08-30.xlsx",
			"Content_2026-08-30.xlsx",
		},
		{
			"query string stripped",
			"https://cdn.example.com/exports/Content.xlsx?X-Amz-Signature=abc",
			"Content.xlsx",
		},
		{
			"fragment stripped",
			"https://cdn.example.com/exports/Content.xlsx#section",
			"Content.xlsx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exportName(tt.url); got != tt.want {
				t.Errorf("exportName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestExportName_Fallback(t *testing.T) {
	for _, url := range []string{
		"https://cdn.example.com/",
		"https://cdn.example.com/exports/download",
		"",
	} {
		got := exportName(url)
		if !strings.HasPrefix(got, "export_") || !strings.HasSuffix(got, ".xlsx") {
			t.Errorf("exportName(%q) = %q, want dated fallback", url, got)
		}
	}
}

func TestPostDelay_Bounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := postDelay()
		if d < minPostDelay || d >= maxPostDelay {
			t.Fatalf("postDelay() = %v, want in [%v, %v)", d, minPostDelay, maxPostDelay)
		}
	}
}

func TestSleepCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); err == nil {
		t.Fatal("expected context error from cancelled sleep")
	}
}
