// File: internal/browser/netidle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleTracker watches CDP network events and reports when the page has had
// no request in flight for a quiet window. Separated from the page so the
// bookkeeping can be tested without a browser.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastIdle time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		lastIdle: time.Now(),
	}
}

// handle consumes one CDP event. Unknown event types are ignored, so it can
// be attached directly to chromedp.ListenTarget.
func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.add(e.RequestID)
	case *network.EventLoadingFinished:
		t.remove(e.RequestID)
	case *network.EventLoadingFailed:
		t.remove(e.RequestID)
	}
}

func (t *idleTracker) add(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
}

func (t *idleTracker) remove(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	if len(t.inflight) == 0 {
		t.lastIdle = time.Now()
	}
}

// idleSince reports whether the network has been quiet for the window
// ending at now. A removal that empties the in-flight set restarts the
// window; requests still in flight mean not idle regardless of elapsed time.
func (t *idleTracker) idleSince(quiet time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflight) > 0 {
		return false
	}
	return now.Sub(t.lastIdle) >= quiet
}

// wait polls until the quiet window has elapsed or ctx expires.
func (t *idleTracker) wait(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if t.idleSince(quiet, time.Now()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrNavigationTimeout
		case <-ticker.C:
		}
	}
}
