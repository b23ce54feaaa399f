package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/linkpulse/collector/internal/capture"
	apperrors "github.com/linkpulse/collector/internal/errors"
)

const readyStatePollInterval = 500 * time.Millisecond

// Page is one open tab. It forwards CDP network completions to registered
// listeners, so a capture.Correlator built over it can match triggered
// exports to their downloads.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[int]func(capture.Event)
	nextID    int

	pageLoadCap time.Duration
	settleDelay time.Duration
}

// OpenPage opens url in a new tab with network event capture enabled.
func (b *Browser) OpenPage(ctx context.Context, url string) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)

	p := &Page{
		ctx:         tabCtx,
		cancel:      cancel,
		listeners:   make(map[int]func(capture.Event)),
		pageLoadCap: b.pageLoadCap,
		settleDelay: b.settleDelay,
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		p.dispatch(capture.Event{
			URL:       resp.Response.URL,
			MimeType:  resp.Response.MimeType,
			RequestID: string(resp.RequestID),
		})
	})

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(url),
	); err != nil {
		cancel()
		return nil, apperrors.TabCreation(url).WithCause(err)
	}

	b.log.Debug(ctx, "page opened", map[string]any{"url": url})
	return p, nil
}

// AddListener implements capture.Source.
func (p *Page) AddListener(fn func(capture.Event)) (remove func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Page) dispatch(ev capture.Event) {
	p.mu.Lock()
	fns := make([]func(capture.Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// pollUntil runs check every interval until it succeeds or timeout elapses.
// The returned bool reports whether check ever succeeded; the error is only
// ever the context's.
func pollUntil(ctx context.Context, interval, timeout time.Duration, check func() bool) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		if check() {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// settle waits the fixed post-interaction delay, giving the page time to
// react before the caller inspects or drives it further.
func (p *Page) settle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.settleDelay):
		return nil
	}
}

// WaitForLoad polls document.readyState until the page reports complete,
// then waits the settle delay so late scripts can finish wiring the UI.
// The hard cap bounds pages that never finish loading.
func (p *Page) WaitForLoad(ctx context.Context) error {
	var lastErr error
	ok, err := pollUntil(ctx, readyStatePollInterval, p.pageLoadCap, func() bool {
		var state string
		lastErr = chromedp.Run(p.ctx, chromedp.Evaluate(`document.readyState`, &state))
		return lastErr == nil && state == "complete"
	})
	if err != nil {
		return err
	}
	if !ok {
		var url string
		_ = chromedp.Run(p.ctx, chromedp.Evaluate(`location.href`, &url))
		return apperrors.LoadTimeout(url).WithCause(lastErr)
	}

	return p.settle(ctx)
}

// Close tears the tab down. Failures are not actionable for callers, so the
// page just goes away; every run path closes its pages on exit.
func (p *Page) Close() {
	p.cancel()
}

// ResponseBody fetches the body of a completed network response by its CDP
// request id.
func (p *Page) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	var body []byte
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		body, err = network.GetResponseBody(network.RequestID(requestID)).Do(c)
		return err
	}))
	if err != nil {
		return nil, apperrors.DownloadTimeout(requestID).WithCause(fmt.Errorf("fetching response body: %w", err))
	}
	return body, nil
}

// Run executes chromedp actions against this tab.
func (p *Page) Run(actions ...chromedp.Action) error {
	return chromedp.Run(p.ctx, actions...)
}
