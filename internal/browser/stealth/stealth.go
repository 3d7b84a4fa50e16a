// File: internal/browser/stealth/stealth.go
//
// Package stealth builds the one-shot fingerprint-override bundle applied at
// browser context creation: CDP emulation overrides for the persona (user
// agent, device metrics, timezone, locale, geolocation) plus an injected
// script that patches the JS surfaces automation heuristics inspect.
// Applying the bundle twice is a no-op: the CDP overrides are absolute
// setters and the evasion script guards itself with a window marker.
package stealth

import (
	"context"
	_ "embed" // Required for the go:embed directive
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// personaGlobal is the JS identifier the evasion script reads its
// configuration from.
const personaGlobal = "GHOSTLOGIN_PERSONA"

// ScreenProperties defines the emulated display.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// GeolocationProperties defines the spoofed physical location.
type GeolocationProperties struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Persona defines a consistent profile to present to the target site. All
// exposed surfaces (headers, JS properties, emulation state) must agree, so
// the persona is applied as one bundle rather than piecemeal.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"` // navigator.platform, e.g. Win32
	Languages []string `json:"languages"`

	TimezoneID  string                 `json:"timezoneId,omitempty"`
	Locale      string                 `json:"locale,omitempty"`
	Geolocation *GeolocationProperties `json:"geolocation,omitempty"`

	Screen ScreenProperties `json:"screen"`
}

// DefaultPersona returns the stock profile: a US-east Windows desktop
// running current Chrome.
func DefaultPersona() Persona {
	return Persona{
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Platform:   "Win32",
		Languages:  []string{"en-US", "en"},
		TimezoneID: "America/New_York",
		Locale:     "en-US",
		Geolocation: &GeolocationProperties{
			Latitude:  40.7128,
			Longitude: -74.0060,
			Accuracy:  100,
		},
		Screen: ScreenProperties{Width: 1920, Height: 1080},
	}
}

// Apply orchestrates the stealth actions as a sequential chromedp task list.
func Apply(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		setExtraHTTPHeaders(persona, l),
		setUserAgent(persona, l),
		setDeviceMetrics(persona, l),
		setEnvironmentOverrides(persona, l),
		injectEvasionScript(persona, l),
		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("user_agent", persona.UserAgent))
			return nil
		}),
	}
}

// BuildScript composes the evasion script with the persona configuration
// prepended. Exposed for tests; Apply uses it internally.
func BuildScript(persona Persona) (string, error) {
	personaJSON, err := json.Marshal(persona)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const %s = %s;\n%s", personaGlobal, string(personaJSON), evasionsScript), nil
}

// injectEvasionScript registers the JS evasion script to run on every new
// document before any page script executes.
func injectEvasionScript(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := BuildScript(persona)
		if err != nil {
			logger.Error("Failed to compose evasion script", zap.Error(err))
			return err
		}
		if _, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			logger.Error("Failed to register evasion script with CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

// setUserAgent overrides the user agent string and accept language.
func setUserAgent(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set user agent override via CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

// setExtraHTTPHeaders pins an Accept-Language header consistent with the
// persona's language list, with descending quality values.
func setExtraHTTPHeaders(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(persona.Languages) == 0 {
			return nil
		}
		formatted := persona.Languages[0]
		for i := 1; i < len(persona.Languages); i++ {
			q := 1.0 - float64(i)*0.1
			if q < 0.7 {
				q = 0.7
			}
			formatted += fmt.Sprintf(",%s;q=%.1f", persona.Languages[i], q)
		}
		headers := map[string]interface{}{"Accept-Language": formatted}
		if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
			logger.Error("Failed to set extra HTTP headers via CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
		}
		return nil
	})
}

// setDeviceMetrics configures the viewport and resolution.
func setDeviceMetrics(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Screen.Width <= 0 || persona.Screen.Height <= 0 {
			return nil
		}
		orientation := emulation.OrientationTypeLandscapePrimary
		if persona.Screen.Height > persona.Screen.Width {
			orientation = emulation.OrientationTypePortraitPrimary
		}
		err := emulation.SetDeviceMetricsOverride(persona.Screen.Width, persona.Screen.Height, 1.0, false).
			WithScreenOrientation(&emulation.ScreenOrientation{Type: orientation, Angle: 0}).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set device metrics override via CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}

// setEnvironmentOverrides keeps timezone, locale, and geolocation consistent
// with each other and with the persona's language list.
func setEnvironmentOverrides(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.TimezoneID != "" {
			if err := emulation.SetTimezoneOverride(persona.TimezoneID).Do(ctx); err != nil {
				logger.Error("Failed to set timezone override via CDP", zap.Error(err))
				return fmt.Errorf("stealth: failed to set timezone: %w", err)
			}
		}

		locale := persona.Locale
		if locale == "" && len(persona.Languages) > 0 {
			locale = persona.Languages[0]
		}
		if locale != "" {
			// SetLocaleOverride takes no arguments; the locale goes through
			// the chained builder.
			normalized := strings.ReplaceAll(locale, "_", "-")
			if err := emulation.SetLocaleOverride().WithLocale(normalized).Do(ctx); err != nil {
				logger.Error("Failed to set locale override via CDP", zap.Error(err))
				return fmt.Errorf("stealth: failed to set locale: %w", err)
			}
		}

		if geo := persona.Geolocation; geo != nil {
			err := emulation.SetGeolocationOverride().
				WithLatitude(geo.Latitude).
				WithLongitude(geo.Longitude).
				WithAccuracy(geo.Accuracy).
				Do(ctx)
			if err != nil {
				logger.Error("Failed to set geolocation override via CDP", zap.Error(err))
				return fmt.Errorf("stealth: failed to set geolocation: %w", err)
			}
		}
		return nil
	})
}
