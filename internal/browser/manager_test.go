// File: internal/browser/manager_test.go
package browser

import (
	"runtime"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ghostlogin/internal/browser/stealth"
	"github.com/xkilldash9x/ghostlogin/internal/config"
)

func TestBuildAllocatorOptionsAppendsOverrides(t *testing.T) {
	m := &Manager{
		logger: zap.NewNop(),
		cfg: config.BrowserConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 800,
			Args:           []string{"--proxy-server=localhost:8080", "--mute-audio"},
		},
		persona: stealth.DefaultPersona(),
	}

	opts := m.buildAllocatorOptions()

	// The chromedp defaults stay in place; overrides (including the
	// enable-automation=false re-flag) and custom args land after them so
	// the later value wins per flag name.
	want := len(chromedp.DefaultExecAllocatorOptions) + 8 + len(m.cfg.Args)
	if runtime.GOOS == "linux" {
		want += 3
	}
	assert.Len(t, opts, want)
}

func TestBuildAllocatorOptionsWithoutCustomArgs(t *testing.T) {
	m := &Manager{
		logger:  zap.NewNop(),
		cfg:     config.BrowserConfig{ViewportWidth: 1920, ViewportHeight: 1080},
		persona: stealth.DefaultPersona(),
	}

	opts := m.buildAllocatorOptions()

	assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))
}
