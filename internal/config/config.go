// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration for one login session.
// It is created once at startup, validated, and never mutated afterwards;
// the session state machine owns it for the lifetime of the run.
type Config struct {
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Target      TargetConfig      `mapstructure:"target" yaml:"target"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Behavior    BehaviorConfig    `mapstructure:"behavior" yaml:"behavior"`
	Selectors   SelectorsConfig   `mapstructure:"selectors" yaml:"selectors"`
	Evidence    EvidenceConfig    `mapstructure:"evidence" yaml:"evidence"`
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
}

// CredentialsConfig carries the account credentials. Both fields are required
// for the login command and are normally supplied via environment variables.
type CredentialsConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"-"`
}

// TargetConfig describes the site being driven.
type TargetConfig struct {
	// LoginURL is the entry point of the login flow.
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
	// AuthenticatedURLs are URL substrings that identify a logged-in
	// destination. Reaching a page whose URL matches one of these, with no
	// challenge present, is the only definition of success.
	AuthenticatedURLs []string `mapstructure:"authenticated_urls" yaml:"authenticated_urls"`
	// ChallengeURLMarker flags pages that are part of the site's challenge
	// flow even when no known signature matches (classified as Unknown).
	ChallengeURLMarker string `mapstructure:"challenge_url_marker" yaml:"challenge_url_marker"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// SessionConfig bounds the state machine: timeouts, retries, and the grace
// period granted for manual challenge resolution in interactive mode.
type SessionConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	ChallengeGrace time.Duration `mapstructure:"challenge_grace" yaml:"challenge_grace"`
}

// DelayRange is a bounded interval for one class of simulated human delay.
// Every sampled delay satisfies Min <= d <= Max.
type DelayRange struct {
	Min time.Duration `mapstructure:"min" yaml:"min"`
	Max time.Duration `mapstructure:"max" yaml:"max"`
}

// Valid reports whether the range is usable for sampling.
func (r DelayRange) Valid() bool {
	return r.Min >= 0 && r.Max >= r.Min
}

// BehaviorConfig contains the tunable parameters for the human behavior
// simulator: per-action delay ranges, typing cadence, and pointer paths.
// Fixed timings are a detectable fingerprint, so every interaction draws
// from these ranges instead.
type BehaviorConfig struct {
	NavigationSettle DelayRange `mapstructure:"navigation_settle" yaml:"navigation_settle"`
	PreClick         DelayRange `mapstructure:"pre_click" yaml:"pre_click"`
	PostEntry        DelayRange `mapstructure:"post_entry" yaml:"post_entry"`
	PostSubmit       DelayRange `mapstructure:"post_submit" yaml:"post_submit"`
	Typing           DelayRange `mapstructure:"typing" yaml:"typing"`

	// Pointer movement shape.
	PointerStepsMin int     `mapstructure:"pointer_steps_min" yaml:"pointer_steps_min"`
	PointerStepsMax int     `mapstructure:"pointer_steps_max" yaml:"pointer_steps_max"`
	PointerJitterPx float64 `mapstructure:"pointer_jitter_px" yaml:"pointer_jitter_px"`
}

// SelectorsConfig maps the login form targets. The defaults match the target
// site but remain overridable so a site redesign is a config change.
type SelectorsConfig struct {
	EmailInput    string `mapstructure:"email_input" yaml:"email_input"`
	PasswordInput string `mapstructure:"password_input" yaml:"password_input"`
	SubmitButton  string `mapstructure:"submit_button" yaml:"submit_button"`
}

// EvidenceConfig locates the forensic output.
type EvidenceConfig struct {
	OutputRoot string `mapstructure:"output_root" yaml:"output_root"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ghostlogin")
	v.SetDefault("logger.log_file", "ghostlogin.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Target --
	v.SetDefault("target.login_url", "https://www.linkedin.com/login")
	v.SetDefault("target.authenticated_urls", []string{"/feed", "/mynetwork"})
	v.SetDefault("target.challenge_url_marker", "/checkpoint/")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)

	// -- Session --
	v.SetDefault("session.timeout", "30s")
	v.SetDefault("session.max_attempts", 3)
	v.SetDefault("session.backoff_base", "2s")
	v.SetDefault("session.challenge_grace", "60s")

	// -- Behavior --
	// Ranges mirror observed human variance on a login form.
	v.SetDefault("behavior.navigation_settle.min", "2s")
	v.SetDefault("behavior.navigation_settle.max", "4s")
	v.SetDefault("behavior.pre_click.min", "500ms")
	v.SetDefault("behavior.pre_click.max", "1500ms")
	v.SetDefault("behavior.post_entry.min", "1s")
	v.SetDefault("behavior.post_entry.max", "3s")
	v.SetDefault("behavior.post_submit.min", "3s")
	v.SetDefault("behavior.post_submit.max", "5s")
	v.SetDefault("behavior.typing.min", "50ms")
	v.SetDefault("behavior.typing.max", "150ms")
	v.SetDefault("behavior.pointer_steps_min", 5)
	v.SetDefault("behavior.pointer_steps_max", 15)
	v.SetDefault("behavior.pointer_jitter_px", 3.0)

	// -- Selectors --
	v.SetDefault("selectors.email_input", "#username")
	v.SetDefault("selectors.password_input", "#password")
	v.SetDefault("selectors.submit_button", `button[type="submit"]`)

	// -- Evidence --
	v.SetDefault("evidence.output_root", "./evidence")
}

// NewConfigFromViper creates a validated configuration instance from a viper
// object that has already had defaults, file, env, and flag sources merged.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Credentials are sensitive; bind the short env aliases in addition to
	// the standard GHOSTLOGIN_CREDENTIALS_* forms.
	v.BindEnv("credentials.email", "GHOSTLOGIN_EMAIL")
	v.BindEnv("credentials.password", "GHOSTLOGIN_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
// Credentials are empty, so the result does not pass Validate.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// validLogLevels maps accepted log_level values. The enum is case
// insensitive; WARNING is accepted as an alias for warn.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the configuration for required fields and sane values.
// Structural checks apply always; credential presence is part of the
// contract because a session cannot start without them.
func (c *Config) Validate() error {
	if err := c.ValidateEnvironment(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Credentials.Email) == "" {
		return fmt.Errorf("credentials.email is required (set GHOSTLOGIN_EMAIL)")
	}
	if c.Credentials.Password == "" {
		return fmt.Errorf("credentials.password is required (set GHOSTLOGIN_PASSWORD)")
	}
	return nil
}

// ValidateEnvironment checks everything except credential presence. The
// doctor command uses this so a setup check works before credentials exist.
func (c *Config) ValidateEnvironment() error {
	if c.Target.LoginURL == "" {
		return fmt.Errorf("target.login_url is required")
	}
	if !strings.HasPrefix(c.Target.LoginURL, "http://") && !strings.HasPrefix(c.Target.LoginURL, "https://") {
		return fmt.Errorf("target.login_url must include a scheme: %q", c.Target.LoginURL)
	}
	if len(c.Target.AuthenticatedURLs) == 0 {
		return fmt.Errorf("target.authenticated_urls must not be empty")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be a positive duration")
	}
	if c.Session.MaxAttempts <= 0 {
		return fmt.Errorf("session.max_attempts must be a positive integer")
	}
	if c.Session.BackoffBase <= 0 {
		return fmt.Errorf("session.backoff_base must be a positive duration")
	}
	if !validLogLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("logger.level must be one of DEBUG/INFO/WARNING/ERROR, got %q", c.Logger.Level)
	}
	for name, r := range map[string]DelayRange{
		"navigation_settle": c.Behavior.NavigationSettle,
		"pre_click":         c.Behavior.PreClick,
		"post_entry":        c.Behavior.PostEntry,
		"post_submit":       c.Behavior.PostSubmit,
		"typing":            c.Behavior.Typing,
	} {
		if !r.Valid() {
			return fmt.Errorf("behavior.%s: min must be >= 0 and <= max", name)
		}
	}
	if c.Behavior.PointerStepsMin < 2 || c.Behavior.PointerStepsMax < c.Behavior.PointerStepsMin {
		return fmt.Errorf("behavior.pointer_steps_min must be >= 2 and <= pointer_steps_max")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport_width and viewport_height must be positive")
	}
	if c.Evidence.OutputRoot == "" {
		return fmt.Errorf("evidence.output_root must not be empty")
	}
	return nil
}
