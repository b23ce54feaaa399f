package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

// DefaultTimeout is how long a capture waits for a matching network event
// before giving up.
const DefaultTimeout = 60 * time.Second

// Event is one network completion observed on a page session.
type Event struct {
	URL       string
	MimeType  string
	RequestID string
}

// Source is a stream of network completion events. AddListener registers fn
// for every subsequent event and returns its removal func. Each capture owns
// an independent listener, so concurrent captures never consume each other's
// events.
type Source interface {
	AddListener(fn func(Event)) (remove func())
}

// Correlator matches triggered UI export actions to the network downloads
// they cause.
type Correlator struct {
	source Source
}

func New(source Source) *Correlator {
	return &Correlator{source: source}
}

// Capture arms a listener for the next event whose URL contains pattern
// (case-insensitive) and returns the pending capture. The required caller
// ordering is: arm the capture, then perform the triggering click, then Wait.
// Arming after the click races the response and may miss it.
func (c *Correlator) Capture(pattern string, timeout time.Duration) *Capture {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	pending := &Capture{
		pattern: pattern,
		done:    make(chan struct{}),
	}

	pending.remove = c.source.AddListener(func(ev Event) {
		if !matches(ev.URL, pattern) {
			return
		}
		pending.resolve(ev, nil)
	})

	pending.timer = time.AfterFunc(timeout, func() {
		pending.resolve(Event{}, apperrors.DownloadTimeout(pattern))
	})

	return pending
}

// Capture is one pending download correlation. It resolves at most once; the
// listener and timeout are torn down on the first resolution, so a second
// matching event is ignored.
type Capture struct {
	pattern string
	done    chan struct{}
	once    sync.Once
	remove  func()
	timer   *time.Timer

	ev  Event
	err error
}

func (c *Capture) resolve(ev Event, err error) {
	c.once.Do(func() {
		c.ev = ev
		c.err = err
		c.teardown()
		close(c.done)
	})
}

func (c *Capture) teardown() {
	if c.remove != nil {
		c.remove()
	}
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Wait blocks until the capture resolves, times out, or ctx is cancelled.
func (c *Capture) Wait(ctx context.Context) (Event, error) {
	select {
	case <-c.done:
		return c.ev, c.err
	case <-ctx.Done():
		c.resolve(Event{}, ctx.Err())
		<-c.done
		return c.ev, c.err
	}
}

// Cancel resolves the capture with a timeout error if it is still pending.
// Safe to call after resolution.
func (c *Capture) Cancel() {
	c.resolve(Event{}, apperrors.DownloadTimeout(c.pattern))
}

func matches(url, pattern string) bool {
	return strings.Contains(strings.ToLower(url), strings.ToLower(pattern))
}
