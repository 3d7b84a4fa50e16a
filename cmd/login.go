// File: cmd/login.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ghostlogin/internal/behavior"
	"github.com/xkilldash9x/ghostlogin/internal/browser"
	"github.com/xkilldash9x/ghostlogin/internal/browser/stealth"
	"github.com/xkilldash9x/ghostlogin/internal/classifier"
	"github.com/xkilldash9x/ghostlogin/internal/config"
	"github.com/xkilldash9x/ghostlogin/internal/evidence"
	"github.com/xkilldash9x/ghostlogin/internal/observability"
	"github.com/xkilldash9x/ghostlogin/internal/session"
)

// Process exit codes: 0 success, 1 initialization failure, 2 challenge
// pending, 3 login failed. Automation wrapping this binary keys off these.

// newLoginCmd creates and configures the `login` command.
func newLoginCmd() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Runs one login session against the configured target",
		Long: `Runs one login session: navigates to the login page, enters the
configured credentials with humanized pacing, submits, and classifies the
result. Evidence (screenshots, run log, manifest) lands in a per-run
directory under the evidence output root.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			bindings := map[string]string{
				"credentials.email":    "email",
				"credentials.password": "password",
				"target.login_url":     "target-url",
				"browser.headless":     "headless",
				"session.timeout":      "timeout",
				"session.max_attempts": "max-attempts",
				"evidence.output_root": "output",
				"session.interactive":  "interactive",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: runLogin,
	}

	loginCmd.Flags().String("email", "", "account email (or GHOSTLOGIN_EMAIL)")
	loginCmd.Flags().String("password", "", "account password (or GHOSTLOGIN_PASSWORD)")
	loginCmd.Flags().String("target-url", "", "login page URL")
	loginCmd.Flags().Bool("headless", false, "run the browser without a visible window")
	loginCmd.Flags().Duration("timeout", 30*time.Second, "per-operation timeout")
	loginCmd.Flags().Int("max-attempts", 3, "total attempts for transient failures")
	loginCmd.Flags().String("output", "./evidence", "evidence output root directory")
	loginCmd.Flags().Bool("interactive", false, "pause for manual challenge resolution")

	return loginCmd
}

// runSession is swapped out by tests.
var runSession = executeLogin

func runLogin(cmd *cobra.Command, _ []string) error {
	outcome, err := runSession(cmd.Context())
	if err != nil {
		return err
	}

	// Exit only after executeLogin has returned, so the browser shutdown
	// and page close deferred inside it have already run.
	if code := outcome.ExitCode(); code != 0 {
		observability.Sync()
		os.Exit(code)
	}
	return nil
}

// executeLogin owns the browser for exactly its own lifetime: every exit
// path, including errors, releases the page and shuts the manager down.
func executeLogin(ctx context.Context) (session.Outcome, error) {
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return session.Outcome{}, err
	}

	// A headed browser implies a human is present to solve challenges.
	interactive := viper.GetBool("session.interactive") || !cfg.Browser.Headless

	mgr, err := browser.NewManager(ctx, logger, cfg.Browser, buildPersona(cfg))
	if err != nil {
		return session.Outcome{}, fmt.Errorf("browser initialization failed: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown reported an error", zap.Error(err))
		}
	}()

	page, err := mgr.NewPage(ctx)
	if err != nil {
		return session.Outcome{}, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() { _ = page.Close(context.Background()) }()

	rec, err := evidence.NewRecorder(cfg.Evidence.OutputRoot, logger)
	if err != nil {
		return session.Outcome{}, fmt.Errorf("evidence recorder initialization failed: %w", err)
	}

	runner := session.NewRunner(
		sessionConfig(cfg, interactive),
		page,
		behavior.New(cfg.Behavior),
		classifier.New(cfg.Target.ChallengeURLMarker),
		rec,
		logger,
	)

	outcome := runner.Run(ctx)
	if err := rec.Close(string(outcome.Status)); err != nil {
		logger.Warn("Failed to finalize evidence manifest", zap.Error(err))
	}

	logger.Info("Login run finished",
		zap.String("status", string(outcome.Status)),
		zap.String("challenge", string(outcome.Challenge)),
		zap.String("reason", outcome.Reason),
		zap.Int("attempts", outcome.Attempts),
		zap.String("evidence_dir", outcome.EvidenceDir),
	)
	return outcome, nil
}

// sessionConfig flattens the application config into the runner's view.
func sessionConfig(cfg *config.Config, interactive bool) session.Config {
	return session.Config{
		LoginURL:          cfg.Target.LoginURL,
		AuthenticatedURLs: cfg.Target.AuthenticatedURLs,
		EmailSelector:     cfg.Selectors.EmailInput,
		PasswordSelector:  cfg.Selectors.PasswordInput,
		SubmitSelector:    cfg.Selectors.SubmitButton,
		Email:             cfg.Credentials.Email,
		Password:          cfg.Credentials.Password,
		Timeout:           cfg.Session.Timeout,
		MaxAttempts:       cfg.Session.MaxAttempts,
		BackoffBase:       cfg.Session.BackoffBase,
		Interactive:       interactive,
		ChallengeGrace:    cfg.Session.ChallengeGrace,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
	}
}

// buildPersona derives the stealth persona from the stock profile plus any
// config overrides. Viewport and user agent must agree between the launch
// flags and the JS-visible surfaces, so both come from the same place.
func buildPersona(cfg *config.Config) stealth.Persona {
	persona := stealth.DefaultPersona()
	if cfg.Browser.UserAgent != "" {
		persona.UserAgent = cfg.Browser.UserAgent
	}
	if cfg.Browser.ViewportWidth > 0 && cfg.Browser.ViewportHeight > 0 {
		persona.Screen = stealth.ScreenProperties{
			Width:  int64(cfg.Browser.ViewportWidth),
			Height: int64(cfg.Browser.ViewportHeight),
		}
	}
	return persona
}
