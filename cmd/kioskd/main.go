// Package main is the CLI entry point for kioskd.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/kioskd/internal/config"
	"github.com/eliteGoblin/focusd/kioskd/internal/daemon"
	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
	"github.com/eliteGoblin/focusd/kioskd/internal/infra"
	"github.com/eliteGoblin/focusd/kioskd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kioskd",
	Short: "Kiosk lock-down daemon",
	Long: `kioskd keeps a single designated application in the foreground.
It watches the foreground app, brings the kiosk app back whenever
something outside the allow-list takes over, and holds the OS lock
while enforcing.

Only the hidden admin gesture followed by the admin PIN ends enforcement.`,
	Version:       Version,
	SilenceUsage:  true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground (also used by the service manager)",
	RunE:  runDaemon,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install kioskd as a system service",
	RunE:  controlService("install"),
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the kioskd system service",
	RunE:  controlService("uninstall"),
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the installed service",
	RunE:  controlService("start"),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the installed service",
	RunE:  controlService("stop"),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service and owner status",
	RunE:  runStatus,
}

var signalCmd = &cobra.Command{
	Use:   "signal <excursion-start|excursion-end|resume>",
	Short: "Deliver a lifecycle signal to the running daemon",
	Long: `Drops a signal into the daemon's inbox. This is how the kiosk
content announces excursions (e.g. opening the camera) and how the
session announces that the device resumed.

Admin unlock cannot be signalled.`,
	Args: cobra.ExactArgs(1),
	RunE: runSignal,
}

var setPinCmd = &cobra.Command{
	Use:   "set-pin",
	Short: "Set the admin PIN (read from stdin)",
	RunE:  runSetPin,
}

var checkUpdateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Check for a newer kioskd release now",
	RunE:  runCheckUpdate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default depends on execution mode)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(setPinCmd)
	rootCmd.AddCommand(checkUpdateCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath returns --config or the execution mode default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return infra.DetectExecMode().ConfigPath
}

func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	s, err := newService(cfg, resolveConfigPath(), logger)
	if err != nil {
		return err
	}
	return s.Run()
}

func controlService(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newService(cfg, resolveConfigPath(), zap.NewNop())
		if err != nil {
			return err
		}
		if err := service.Control(s, action); err != nil {
			return fmt.Errorf("%s service: %w", action, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "kioskd: %s done\n", action)
		return nil
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "\n=== kioskd Status ===")

	if s, err := newService(cfg, resolveConfigPath(), zap.NewNop()); err == nil {
		status, err := s.Status()
		switch {
		case errors.Is(err, service.ErrNotInstalled):
			fmt.Fprintln(out, "Service: not installed")
		case err != nil:
			fmt.Fprintf(out, "Service: unknown (%v)\n", err)
		default:
			fmt.Fprintf(out, "Service: %s\n", serviceStatusName(status))
		}
	}

	dataDir := daemon.ResolveDataDir(cfg)
	owners := infra.NewFileOwnerRegistry(dataDir, infra.NewProcessManager())
	owner, err := owners.Current()
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if owner == nil {
		fmt.Fprintln(out, "Owner: none (daemon not running)")
	} else {
		fmt.Fprintf(out, "Owner: pid %d (%s mode, v%s)\n", owner.PID, owner.Mode, owner.AppVersion)
		fmt.Fprintf(out, "Up: %s\n", time.Since(owner.StartedAt).Round(time.Second))
	}

	fmt.Fprintf(out, "Data dir: %s\n", dataDir)
	fmt.Fprintf(out, "Locked app: %s\n", cfg.LockedApp)
	if len(cfg.Allow) > 0 {
		fmt.Fprintln(out, "\nAllowed:")
		for _, a := range cfg.Allow {
			fmt.Fprintf(out, "  - %s\n", a)
		}
	}
	if len(cfg.ExcursionApps) > 0 {
		fmt.Fprintln(out, "\nAllowed during excursions:")
		for _, a := range cfg.ExcursionApps {
			fmt.Fprintf(out, "  - %s\n", a)
		}
	}
	fmt.Fprintln(out, "=====================")
	return nil
}

func serviceStatusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func runSignal(cmd *cobra.Command, args []string) error {
	ev, ok := domain.ParseLockEvent(args[0])
	if !ok {
		return fmt.Errorf("unknown signal %q (want excursion-start, excursion-end or resume)", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := filepath.Join(daemon.ResolveDataDir(cfg), infra.SignalDirName)
	if err := infra.WriteSignal(dir, ev); err != nil {
		return fmt.Errorf("deliver signal: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signal %s delivered\n", ev.SignalName())
	return nil
}

func runSetPin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.ErrOrStderr(), "New admin PIN: ")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read PIN: %w", err)
		}
		return errors.New("no PIN given")
	}
	pin := strings.TrimSpace(scanner.Text())

	store, err := daemon.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	auth := usecase.NewAdminAuthenticator(store, "", cfg.Admin.AttemptsPerMinute, zap.NewNop())
	if err := auth.SetCredential(pin); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "admin PIN updated")
	return nil
}

func runCheckUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Update.Owner == "" || cfg.Update.Repo == "" {
		return errors.New("update.owner and update.repo must be set")
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	store, err := daemon.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	checker := infra.NewReleaseChecker(cfg.Update.Owner, cfg.Update.Repo, Version,
		cfg.Update.CheckInterval, store, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	out := cmd.OutOrStdout()
	result := make(chan error, 1)
	checker.CheckForUpdate(ctx, true,
		func(current string) {
			fmt.Fprintf(out, "kioskd %s is up to date\n", current)
			result <- nil
		},
		func(r domain.Release) {
			fmt.Fprintf(out, "Update available: %s -> %s\n", Version, r.Version)
			if r.URL != "" {
				fmt.Fprintf(out, "  %s\n", r.URL)
			}
			result <- nil
		},
		func(err error) {
			result <- err
		})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		_ = json.NewEncoder(out).Encode(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		return
	}
	fmt.Fprintf(out, "kioskd %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
}

// createLogger builds the daemon's file logger from the logging section.
func createLogger(cfg config.LoggingConfig) *zap.Logger {
	zc := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zc.Level = level
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if len(cfg.ErrorOutputPaths) > 0 {
		zc.ErrorOutputPaths = cfg.ErrorOutputPaths
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
