package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/text/cases"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

// clickableSelector covers the controls the export UI uses: real buttons,
// links, and elements promoted to buttons via ARIA.
const clickableSelector = `button, a, [role="button"], label`

const (
	minKeyDelay = 50 * time.Millisecond
	maxKeyDelay = 150 * time.Millisecond
)

var foldCaser = cases.Fold()

// MatchesLabel reports whether an on-page text matches one of the candidate
// labels. Matching is case-folded so it holds across the UI languages the
// site serves; an exact match or a candidate contained in the text both
// count, which tolerates icon glyphs and counters embedded in the label.
func MatchesLabel(text string, candidates []string) bool {
	folded := foldCaser.String(strings.TrimSpace(text))
	if folded == "" {
		return false
	}
	for _, c := range candidates {
		fc := foldCaser.String(strings.TrimSpace(c))
		if fc == "" {
			continue
		}
		if folded == fc || strings.Contains(folded, fc) {
			return true
		}
	}
	return false
}

// ClickByText finds the first visible clickable element whose text matches
// one of the candidate labels and clicks it, then waits the settle delay so
// whatever the click opens has rendered before the caller proceeds. The
// element list is collected and clicked in two round trips against the same
// DOM query, so the index stays stable unless the page mutates in between.
func (p *Page) ClickByText(ctx context.Context, candidates ...string) error {
	collectJS := fmt.Sprintf(`(() => {
		const els = Array.from(document.querySelectorAll(%q));
		return els.map(el => {
			const r = el.getBoundingClientRect();
			const visible = r.width > 0 && r.height > 0;
			return visible ? (el.innerText || el.textContent || '') : '';
		});
	})()`, clickableSelector)

	var texts []string
	if err := p.Run(chromedp.Evaluate(collectJS, &texts)); err != nil {
		return apperrors.ElementNotFound(strings.Join(candidates, "|")).WithCause(err)
	}

	index := -1
	for i, text := range texts {
		if MatchesLabel(text, candidates) {
			index = i
			break
		}
	}
	if index == -1 {
		return apperrors.ElementNotFound(strings.Join(candidates, "|"))
	}

	clickJS := fmt.Sprintf(`(() => {
		const els = Array.from(document.querySelectorAll(%q));
		const el = els[%d];
		if (!el) return false;
		el.scrollIntoView({behavior: 'instant', block: 'center'});
		el.click();
		return true;
	})()`, clickableSelector, index)

	var clicked bool
	if err := p.Run(chromedp.Evaluate(clickJS, &clicked)); err != nil {
		return apperrors.ElementNotFound(strings.Join(candidates, "|")).WithCause(err)
	}
	if !clicked {
		return apperrors.ElementNotFound(strings.Join(candidates, "|"))
	}
	return p.settle(ctx)
}

// ClickByAttribute clicks the first element carrying attr=value and waits
// the settle delay.
func (p *Page) ClickByAttribute(ctx context.Context, attr, value string) error {
	selector := fmt.Sprintf(`[%s=%q]`, attr, value)
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.scrollIntoView({behavior: 'instant', block: 'center'});
		el.click();
		return true;
	})()`, selector)

	var clicked bool
	if err := p.Run(chromedp.Evaluate(js, &clicked)); err != nil {
		return apperrors.ElementNotFound(selector).WithCause(err)
	}
	if !clicked {
		return apperrors.ElementNotFound(selector)
	}
	return p.settle(ctx)
}

// TypeHumanlike focuses the element matching selector and types text one
// rune at a time with randomized inter-key delays, so the input events look
// like a person typing rather than a paste.
func (p *Page) TypeHumanlike(ctx context.Context, selector, text string) error {
	if err := p.Run(chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return apperrors.ElementNotFound(selector).WithCause(err)
	}

	for _, r := range text {
		if err := p.Run(chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return apperrors.ElementNotFound(selector).WithCause(err)
		}

		delay := minKeyDelay + time.Duration(rand.Int63n(int64(maxKeyDelay-minKeyDelay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}
