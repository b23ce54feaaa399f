package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/linkpulse/collector/internal/config"
	apperrors "github.com/linkpulse/collector/internal/errors"
	"github.com/linkpulse/collector/internal/logger"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// Browser owns one Chrome process shared by all collection runs. Pages are
// opened as tabs in this process so the logged-in session cookies carry over.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	pageLoadCap time.Duration
	settleDelay time.Duration
	log         *logger.Logger
}

// New launches Chrome and verifies it responds. The returned Browser must be
// closed with Close.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.ChromeHeadless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.UserAgent(userAgent),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		allocCancel()
		return nil, apperrors.Configuration("failed to start chrome").WithCause(err)
	}

	log.Info(ctx, "browser started", map[string]any{
		"headless": cfg.ChromeHeadless,
	})

	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		pageLoadCap: cfg.PageLoadCap,
		settleDelay: cfg.SettleDelay,
		log:         log,
	}, nil
}

// Close shuts the Chrome process down.
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}
