// File: internal/browser/types.go
//
// Package browser owns the Chrome process lifecycle and exposes a small
// page-interaction surface to the session layer. All chromedp and CDP
// plumbing stays behind the Page interface so the state machine can be
// tested against a fake.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/ghostlogin/internal/behavior"
)

// Sentinel errors returned by Page operations. The session layer treats
// these two as transient and retries; everything else is fatal.
var (
	// ErrNavigationTimeout indicates a page load or network-settle wait
	// exceeded its deadline.
	ErrNavigationTimeout = errors.New("browser: navigation timed out")

	// ErrElementNotFound indicates a selector never became visible or
	// interactable within its deadline.
	ErrElementNotFound = errors.New("browser: element not found")
)

// Page is the interaction surface a login session drives. Implementations
// map their transport-level failures onto the sentinel errors above; the
// caller supplies deadlines through ctx.
type Page interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error

	// Click dispatches a trusted click on the selector's element.
	Click(ctx context.Context, selector string) error

	// SendKeys types text into the selector's element one key at a time,
	// pausing keyDelay() between keystrokes. A nil keyDelay types without
	// pauses.
	SendKeys(ctx context.Context, selector, text string, keyDelay func() time.Duration) error

	// MovePointer replays a pointer path as individual mouse-move events.
	MovePointer(ctx context.Context, path []behavior.Point) error

	// Evaluate runs a JS expression in the page and unmarshals the result
	// into out. Pass nil to discard the result.
	Evaluate(ctx context.Context, expr string, out any) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// CurrentURL returns the top frame's current location.
	CurrentURL(ctx context.Context) (string, error)

	// HTML returns the serialized DOM of the top document.
	HTML(ctx context.Context) (string, error)

	// WaitNetworkIdle blocks until no network request has been in flight
	// for the quiet window, or ctx expires.
	WaitNetworkIdle(ctx context.Context, quiet time.Duration) error

	// Close tears down the tab. Safe to call more than once.
	Close(ctx context.Context) error
}
