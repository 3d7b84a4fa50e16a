// File: internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ghostlogin/internal/behavior"
)

// chromePage implements Page over a dedicated chromedp tab context.
type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *idleTracker
	logger  *zap.Logger

	closeOnce sync.Once
	done      func()
}

var _ Page = (*chromePage)(nil)

// run executes chromedp actions against the tab, honoring the caller's
// deadline and mapping expiry onto the given sentinel so the session layer
// can classify the failure.
func (p *chromePage) run(ctx context.Context, sentinel error, actions ...chromedp.Action) error {
	runCtx := p.ctx
	cancel := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
	}
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	return p.run(ctx, ErrNavigationTimeout, chromedp.Navigate(url))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, ErrElementNotFound, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, ErrElementNotFound, chromedp.Click(selector, chromedp.ByQuery))
}

// SendKeys focuses the element once, then dispatches one key at a time with
// the sampled pause between keystrokes. Per-key dispatch produces the
// keydown/keyup cadence of real typing.
func (p *chromePage) SendKeys(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	if err := p.run(ctx, ErrElementNotFound,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
	); err != nil {
		return err
	}

	for _, r := range text {
		if err := p.run(ctx, ErrElementNotFound, chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return err
		}
		if keyDelay == nil {
			continue
		}
		select {
		case <-time.After(keyDelay()):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrElementNotFound, ctx.Err())
		}
	}
	return nil
}

// MovePointer replays the path as raw mouse-move events. Each point becomes
// one CDP input event, so the page sees the same event stream a physical
// mouse would generate.
func (p *chromePage) MovePointer(ctx context.Context, path []behavior.Point) error {
	if len(path) == 0 {
		return nil
	}
	actions := make([]chromedp.Action, 0, len(path))
	for _, pt := range path {
		x, y := pt.X, pt.Y
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}))
	}
	return p.run(ctx, ErrNavigationTimeout, actions...)
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, out any) error {
	return p.run(ctx, ErrNavigationTimeout, chromedp.Evaluate(expr, out))
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, ErrNavigationTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, ErrNavigationTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var content string
	if err := p.run(ctx, ErrNavigationTimeout, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return content, nil
}

func (p *chromePage) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	return p.tracker.wait(ctx, quiet)
}

// Close tears down the tab context. Idempotent.
func (p *chromePage) Close(_ context.Context) error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.done != nil {
			p.done()
		}
	})
	return nil
}
