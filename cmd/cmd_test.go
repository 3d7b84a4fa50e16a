// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/ghostlogin/internal/config"
	"github.com/xkilldash9x/ghostlogin/internal/session"
)

// resetViper restores a pristine viper state with defaults applied, so
// binding tests never leak into each other.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	config.SetDefaults(viper.GetViper())
	t.Cleanup(viper.Reset)
}

func TestRootCmdVersionFlag(t *testing.T) {
	resetViper(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestLoginCmdFlagsOverrideConfig(t *testing.T) {
	resetViper(t)

	cmd := newLoginCmd()
	require.NoError(t, cmd.Flags().Set("email", "flag@example.com"))
	require.NoError(t, cmd.Flags().Set("target-url", "https://example.com/login"))
	require.NoError(t, cmd.Flags().Set("max-attempts", "5"))
	require.NoError(t, cmd.Flags().Set("headless", "true"))
	require.NoError(t, cmd.Flags().Set("timeout", "45s"))

	require.NoError(t, cmd.PreRunE(cmd, nil))

	assert.Equal(t, "flag@example.com", viper.GetString("credentials.email"))
	assert.Equal(t, "https://example.com/login", viper.GetString("target.login_url"))
	assert.Equal(t, 5, viper.GetInt("session.max_attempts"))
	assert.True(t, viper.GetBool("browser.headless"))
	assert.Equal(t, 45*time.Second, viper.GetDuration("session.timeout"))
}

func TestLoginCmdUnsetFlagsKeepDefaults(t *testing.T) {
	resetViper(t)

	cmd := newLoginCmd()
	require.NoError(t, cmd.PreRunE(cmd, nil))

	assert.Equal(t, "https://www.linkedin.com/login", viper.GetString("target.login_url"))
	assert.Equal(t, 3, viper.GetInt("session.max_attempts"))
}

func TestInitializeConfigBindsRootLogLevelFlag(t *testing.T) {
	resetViper(t)

	loginCmd, _, err := rootCmd.Find([]string{"login"})
	require.NoError(t, err)

	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	require.NoError(t, flag.Value.Set("debug"))
	flag.Changed = true
	t.Cleanup(func() {
		_ = flag.Value.Set("")
		flag.Changed = false
	})

	// A subcommand reaches the root's persistent flags through Root().
	require.NoError(t, initializeConfig(loginCmd))
	assert.Equal(t, "debug", viper.GetString("logger.level"))
}

func TestRunLoginPropagatesSessionError(t *testing.T) {
	resetViper(t)

	orig := runSession
	runSession = func(context.Context) (session.Outcome, error) {
		return session.Outcome{}, errors.New("browser initialization failed")
	}
	t.Cleanup(func() { runSession = orig })

	cmd := newLoginCmd()
	cmd.SetContext(context.Background())
	err := runLogin(cmd, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser initialization failed")
}

func TestRunLoginSuccessOutcomeReturnsNil(t *testing.T) {
	resetViper(t)

	orig := runSession
	runSession = func(context.Context) (session.Outcome, error) {
		// By the time the session function returns, its deferred browser
		// shutdown and page close have already run; only then may the
		// command decide whether to exit.
		return session.Outcome{Status: session.StatusSuccess}, nil
	}
	t.Cleanup(func() { runSession = orig })

	cmd := newLoginCmd()
	cmd.SetContext(context.Background())
	require.NoError(t, runLogin(cmd, nil))
}

func TestSessionConfigFlattening(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Credentials.Email = "user@example.com"
	cfg.Credentials.Password = "hunter2"

	sc := sessionConfig(cfg, true)

	assert.Equal(t, cfg.Target.LoginURL, sc.LoginURL)
	assert.Equal(t, cfg.Target.AuthenticatedURLs, sc.AuthenticatedURLs)
	assert.Equal(t, "#username", sc.EmailSelector)
	assert.Equal(t, "#password", sc.PasswordSelector)
	assert.Equal(t, `button[type="submit"]`, sc.SubmitSelector)
	assert.Equal(t, "user@example.com", sc.Email)
	assert.Equal(t, "hunter2", sc.Password)
	assert.Equal(t, 3, sc.MaxAttempts)
	assert.Equal(t, 2*time.Second, sc.BackoffBase)
	assert.Equal(t, 60*time.Second, sc.ChallengeGrace)
	assert.True(t, sc.Interactive)
	assert.Equal(t, 1920, sc.ViewportWidth)
	assert.Equal(t, 1080, sc.ViewportHeight)
}

func TestBuildPersonaAppliesConfigOverrides(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Browser.UserAgent = "TestAgent/1.0"
	cfg.Browser.ViewportWidth = 1366
	cfg.Browser.ViewportHeight = 768

	persona := buildPersona(cfg)

	assert.Equal(t, "TestAgent/1.0", persona.UserAgent)
	assert.Equal(t, int64(1366), persona.Screen.Width)
	assert.Equal(t, int64(768), persona.Screen.Height)
	// Everything not overridden stays on the stock profile.
	assert.Equal(t, "America/New_York", persona.TimezoneID)
}

func TestBuildPersonaDefaults(t *testing.T) {
	persona := buildPersona(config.NewDefaultConfig())

	assert.Contains(t, persona.UserAgent, "Chrome")
	assert.Equal(t, int64(1920), persona.Screen.Width)
}
