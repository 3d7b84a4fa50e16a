// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ghostlogin/internal/browser/stealth"
	"github.com/xkilldash9x/ghostlogin/internal/config"
)

// Manager handles the lifecycle of the browser process. All page contexts
// derive from its allocator context, so shutting the manager down tears
// down every open tab.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// The persona applied to every new page.
	persona stealth.Persona

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser process and verifies it responds before
// returning. The persona is applied to every page the manager opens.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, persona stealth.Persona) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: persona,
	}

	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

// launchBrowser prepares allocator options and starts the browser process.
func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	opts := m.buildAllocatorOptions()

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	// Verify the browser starts and is responsive before handing it out.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions assembles the flags for a stealthy browser instance.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// The defaults ship with enable-automation; a later flag with the
		// same name overrides it.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
		// Disable the Blink feature that sets navigator.webdriver.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
		chromedp.WindowSize(m.cfg.ViewportWidth, m.cfg.ViewportHeight),
		chromedp.UserAgent(m.persona.UserAgent),
	)

	// Custom arguments from the config file.
	for _, arg := range m.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewPage opens a fresh, isolated tab with the stealth profile applied and
// the network-idle tracker attached. The returned Page must be closed by
// the caller; Shutdown waits for all open pages.
func (m *Manager) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx)

	tracker := newIdleTracker()
	chromedp.ListenTarget(tabCtx, tracker.handle)

	// The stealth bundle must land before any navigation: it enables the
	// network domain (which also feeds the idle tracker) and registers the
	// evasion script for every new document.
	applyCtx, cancelApply := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelApply()
	if err := chromedp.Run(applyCtx, stealth.Apply(m.persona, m.logger)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to apply stealth profile: %w", err)
	}

	m.wg.Add(1)
	p := &chromePage{
		ctx:     tabCtx,
		cancel:  cancel,
		tracker: tracker,
		logger:  m.logger.Named("page"),
		done:    m.wg.Done,
	}

	select {
	case <-ctx.Done():
		_ = p.Close(context.Background())
		return nil, ctx.Err()
	default:
	}
	return p, nil
}

// Shutdown waits for open pages to close and terminates the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
