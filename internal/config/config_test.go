// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Credentials.Email = "user@example.com"
	cfg.Credentials.Password = "hunter2"
	return cfg
}

func TestDefaultsUnmarshal(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "https://www.linkedin.com/login", cfg.Target.LoginURL)
	assert.Equal(t, []string{"/feed", "/mynetwork"}, cfg.Target.AuthenticatedURLs)
	assert.Equal(t, "/checkpoint/", cfg.Target.ChallengeURLMarker)

	assert.Equal(t, 30*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 3, cfg.Session.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Session.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Session.ChallengeGrace)

	assert.Equal(t, 2*time.Second, cfg.Behavior.NavigationSettle.Min)
	assert.Equal(t, 4*time.Second, cfg.Behavior.NavigationSettle.Max)
	assert.Equal(t, 50*time.Millisecond, cfg.Behavior.Typing.Min)
	assert.Equal(t, 150*time.Millisecond, cfg.Behavior.Typing.Max)
	assert.Equal(t, 5, cfg.Behavior.PointerStepsMin)
	assert.Equal(t, 15, cfg.Behavior.PointerStepsMax)

	assert.Equal(t, "#username", cfg.Selectors.EmailInput)
	assert.Equal(t, "#password", cfg.Selectors.PasswordInput)
	assert.Equal(t, `button[type="submit"]`, cfg.Selectors.SubmitButton)

	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.Equal(t, "./evidence", cfg.Evidence.OutputRoot)
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := NewDefaultConfig()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.email")

	cfg.Credentials.Email = "user@example.com"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.password")

	cfg.Credentials.Password = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestValidateEnvironmentSkipsCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.NoError(t, cfg.ValidateEnvironment())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "login url without scheme",
			mutate:  func(c *Config) { c.Target.LoginURL = "www.linkedin.com/login" },
			wantErr: "scheme",
		},
		{
			name:    "empty authenticated urls",
			mutate:  func(c *Config) { c.Target.AuthenticatedURLs = nil },
			wantErr: "authenticated_urls",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Session.Timeout = 0 },
			wantErr: "session.timeout",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Session.MaxAttempts = 0 },
			wantErr: "session.max_attempts",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Session.BackoffBase = -time.Second },
			wantErr: "session.backoff_base",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logger.Level = "verbose" },
			wantErr: "logger.level",
		},
		{
			name:    "inverted delay range",
			mutate:  func(c *Config) { c.Behavior.Typing = DelayRange{Min: time.Second, Max: time.Millisecond} },
			wantErr: "behavior.typing",
		},
		{
			name:    "pointer steps too small",
			mutate:  func(c *Config) { c.Behavior.PointerStepsMin = 1 },
			wantErr: "pointer_steps_min",
		},
		{
			name:    "zero viewport",
			mutate:  func(c *Config) { c.Browser.ViewportWidth = 0 },
			wantErr: "viewport",
		},
		{
			name:    "empty evidence root",
			mutate:  func(c *Config) { c.Evidence.OutputRoot = "" },
			wantErr: "output_root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLogLevelAliases(t *testing.T) {
	for _, lvl := range []string{"DEBUG", "info", "WARNING", "warn", "Error"} {
		cfg := validConfig()
		cfg.Logger.Level = lvl
		assert.NoError(t, cfg.Validate(), "level %q should be accepted", lvl)
	}
}

func TestNewConfigFromViperAppliesEnvCredentials(t *testing.T) {
	t.Setenv("GHOSTLOGIN_EMAIL", "env@example.com")
	t.Setenv("GHOSTLOGIN_PASSWORD", "env-secret")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "env@example.com", cfg.Credentials.Email)
	assert.Equal(t, "env-secret", cfg.Credentials.Password)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	t.Setenv("GHOSTLOGIN_EMAIL", "env@example.com")
	t.Setenv("GHOSTLOGIN_PASSWORD", "env-secret")

	v := viper.New()
	SetDefaults(v)
	v.Set("session.max_attempts", 0)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestDelayRangeValid(t *testing.T) {
	assert.True(t, DelayRange{Min: 0, Max: 0}.Valid())
	assert.True(t, DelayRange{Min: time.Second, Max: 2 * time.Second}.Valid())
	assert.False(t, DelayRange{Min: -time.Second, Max: time.Second}.Valid())
	assert.False(t, DelayRange{Min: 2 * time.Second, Max: time.Second}.Valid())
}
