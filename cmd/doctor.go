// File: cmd/doctor.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ghostlogin/internal/browser"
	"github.com/xkilldash9x/ghostlogin/internal/browser/stealth"
	"github.com/xkilldash9x/ghostlogin/internal/config"
	"github.com/xkilldash9x/ghostlogin/internal/observability"
)

// newDoctorCmd creates the `doctor` command, a pre-flight check of the
// local setup: configuration sanity, evidence directory writability, and a
// browser launch probe. Credentials are reported but not required, so the
// check works on a fresh machine.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Checks the local setup without running a login",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	out := cmd.OutOrStdout()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	failed := false
	check := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Fprintf(out, "[FAIL] %s: %v\n", name, err)
			return
		}
		fmt.Fprintf(out, "[ OK ] %s\n", name)
	}

	check("configuration", cfg.ValidateEnvironment())

	if cfg.Credentials.Email == "" || cfg.Credentials.Password == "" {
		fmt.Fprintln(out, "[WARN] credentials: not set (export GHOSTLOGIN_EMAIL and GHOSTLOGIN_PASSWORD before `login`)")
	} else {
		fmt.Fprintln(out, "[ OK ] credentials")
	}

	check("evidence directory", checkWritable(cfg.Evidence.OutputRoot))
	check("browser launch", checkBrowser(ctx, logger, cfg))

	if failed {
		return fmt.Errorf("setup check failed")
	}
	fmt.Fprintln(out, "All checks passed.")
	return nil
}

// checkWritable verifies the evidence root exists (creating it if needed)
// and accepts writes.
func checkWritable(root string) error {
	if root == "" {
		return fmt.Errorf("evidence.output_root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", root, err)
	}
	probe := filepath.Join(root, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("cannot write to %s: %w", root, err)
	}
	return os.Remove(probe)
}

// checkBrowser launches the browser and confirms it responds. NewManager
// already probes about:blank, so a clean construction is the check.
func checkBrowser(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	browserCfg := cfg.Browser
	browserCfg.Headless = true // the probe never needs a window

	mgr, err := browser.NewManager(probeCtx, logger, browserCfg, stealth.DefaultPersona())
	if err != nil {
		return err
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return mgr.Shutdown(shutdownCtx)
}
