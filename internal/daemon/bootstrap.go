package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/kioskd/internal/config"
	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
	"github.com/eliteGoblin/focusd/kioskd/internal/infra"
	"github.com/eliteGoblin/focusd/kioskd/internal/metrics"
	"github.com/eliteGoblin/focusd/kioskd/internal/policy"
	"github.com/eliteGoblin/focusd/kioskd/internal/usecase"
)

// MsgUpdateAvailable is shown when the update channel reports a newer release.
const MsgUpdateAvailable = "A kioskd update is available: "

// ResolveDataDir returns the configured data directory or the execution
// mode default.
func ResolveDataDir(cfg *config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return infra.DetectExecMode().DataDir
}

// OpenStore opens the encrypted store, creating its key on first use.
func OpenStore(cfg *config.Config) (*infra.EncryptedStore, error) {
	dataDir := ResolveDataDir(cfg)
	key, err := infra.EnsureKey(infra.SelectKeyProvider(dataDir, cfg.UseKeyring))
	if err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}
	return infra.NewEncryptedStore(dataDir, key)
}

// BuildPolicy creates the allow-list from configuration.
func BuildPolicy(cfg *config.Config) *policy.AllowList {
	return policy.NewAllowListWithExcursions(
		domain.AppID(cfg.LockedApp),
		toAppIDs(cfg.Allow),
		toAppIDs(cfg.ExcursionApps),
	)
}

func toAppIDs(in []string) []domain.AppID {
	out := make([]domain.AppID, len(in))
	for i, s := range in {
		out[i] = domain.AppID(s)
	}
	return out
}

// Daemon is the composed kiosk service: the enforcement core plus the
// telemetry sampler, signal inbox, key reader, owner registry, update
// channel and metrics listener around it.
type Daemon struct {
	cfg     *config.Config
	version string
	dataDir string
	mode    *infra.ExecModeConfig
	logger  *zap.Logger

	Kiosk    *Kiosk
	Watchdog *Watchdog
	Machine  *usecase.LockMachine
	Metrics  *metrics.Metrics

	store    *infra.EncryptedStore
	owners   *infra.FileOwnerRegistry
	usage    *infra.UsageEventLog
	sampler  *infra.FocusSampler
	inbox    *infra.SignalInbox
	keys     *infra.EvdevKeyReader
	updates  domain.UpdateChannel
	notifier domain.Notifier
}

// Bootstrap builds every component from cfg. Nothing runs until Run.
func Bootstrap(cfg *config.Config, version string, logger *zap.Logger) (*Daemon, error) {
	mode := infra.DetectExecMode()
	dataDir := ResolveDataDir(cfg)

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	pm := infra.NewProcessManager()
	allow := BuildPolicy(cfg)
	m := metrics.New()

	usage := infra.NewUsageEventLog(cfg.Telemetry.Retention)
	sampler := infra.NewFocusSampler(infra.NewX11FocusProbe(pm), usage,
		cfg.Telemetry.SampleInterval, cfg.Telemetry.Refresh, logger)
	observer := usecase.NewForegroundObserver(usage, logger)

	var assertCmd, releaseCmd []string
	if cfg.Lock.Enabled {
		assertCmd, releaseCmd = cfg.Lock.AssertCommand, cfg.Lock.ReleaseCommand
	}
	lock := infra.NewCommandLock(assertCmd, releaseCmd, logger)
	launcher := infra.NewCommandLauncher(cfg.Launch.BringToFrontCommand, cfg.Launch.HomeCommand, logger)
	notifier := infra.NewCommandNotifier(cfg.Notify.Command, logger)
	privilege := infra.NewPrivilegeProbe(mode, cfg.Lock.GrantUserPrivilege, cfg.LockBinary())

	sanctions := policy.NewSanctions(allow)

	var recovery *usecase.Recovery
	if cfg.Recovery.TerminateViolator {
		recovery = usecase.NewRecoveryWithTermination(pm, launcher, sanctions, logger)
	} else {
		recovery = usecase.NewRecovery(launcher, sanctions, logger)
	}

	machine := usecase.NewLockMachine(allow, privilege, lock, launcher, notifier, logger)
	watchdog := NewWatchdog(WatchdogConfig{
		Interval:           cfg.Watchdog.Interval,
		Window:             cfg.Watchdog.Window,
		SelfStopWhenLocked: cfg.Watchdog.SelfStopWhenLocked,
	}, observer, sanctions, recovery, machine, lock, logger)
	machine.AttachWatchdog(watchdog)
	machine.SetInstrumentation(m)
	watchdog.SetInstrumentation(m)

	gesture := usecase.NewGestureDetector(cfg.Gesture.Key, cfg.Gesture.Window, cfg.Gesture.Threshold)
	auth := usecase.NewAdminAuthenticator(store, cfg.Admin.CredentialHash, cfg.Admin.AttemptsPerMinute, logger)
	prompter := infra.NewCommandPrompter(cfg.Prompt.Command)
	kiosk := NewKiosk(machine, watchdog, gesture, auth, prompter, notifier, logger)
	kiosk.AllowDuringPrompt(sanctions, domain.AppID(cfg.Prompt.App))

	d := &Daemon{
		cfg:      cfg,
		version:  version,
		dataDir:  dataDir,
		mode:     mode,
		logger:   logger,
		Kiosk:    kiosk,
		Watchdog: watchdog,
		Machine:  machine,
		Metrics:  m,
		store:    store,
		owners:   infra.NewFileOwnerRegistry(dataDir, pm),
		usage:    usage,
		sampler:  sampler,
		notifier: notifier,
	}
	d.inbox = infra.NewSignalInbox(filepath.Join(dataDir, infra.SignalDirName), d.onSignal, logger)
	if cfg.Gesture.Device != "" {
		d.keys = infra.NewEvdevKeyReader(cfg.Gesture.Device, logger)
	}
	if cfg.Update.Enabled {
		d.updates = infra.NewReleaseChecker(cfg.Update.Owner, cfg.Update.Repo, version,
			cfg.Update.CheckInterval, store, logger)
	}
	return d, nil
}

// DataDir returns the resolved data directory.
func (d *Daemon) DataDir() string {
	return d.dataDir
}

// Run claims ownership and serves until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	owner := domain.Owner{
		PID:        os.Getpid(),
		SessionID:  uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		AppVersion: d.version,
		Mode:       string(d.mode.Mode),
	}
	if err := d.owners.Acquire(owner); err != nil {
		if errors.Is(err, domain.ErrOwnerActive) {
			if current, _ := d.owners.Current(); current != nil {
				return fmt.Errorf("%w: pid %d since %s", err, current.PID, current.StartedAt.Format(time.RFC3339))
			}
		}
		return err
	}
	defer func() {
		if err := d.owners.Release(); err != nil {
			d.logger.Warn("failed to release owner lock", zap.Error(err))
		}
	}()

	d.logger.Info("kioskd starting",
		zap.String("version", d.version),
		zap.String("session", owner.SessionID),
		zap.String("mode", string(d.mode.Mode)),
		zap.String("locked_app", d.cfg.LockedApp),
		zap.String("data_dir", d.dataDir))

	d.applyFirstActivation()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.sampler.Run(ctx) })

	g.Go(func() error {
		if err := d.inbox.Run(ctx); err != nil {
			d.logger.Warn("signal inbox stopped", zap.Error(err))
		}
		return nil
	})

	if d.keys != nil {
		g.Go(func() error {
			if err := d.keys.Run(ctx, d.Kiosk.Press); err != nil {
				d.logger.Warn("admin gesture disabled", zap.String("device", d.cfg.Gesture.Device), zap.Error(err))
			}
			return nil
		})
	} else {
		d.logger.Info("no gesture device configured, admin gesture disabled")
	}

	if d.cfg.Metrics.Listen != "" {
		g.Go(func() error { return d.serveMetrics(ctx) })
	}

	if d.updates != nil {
		d.CheckForUpdate(ctx, false)
	}

	g.Go(func() error {
		defer d.Watchdog.Close()
		return d.Kiosk.Run(ctx)
	})

	err := g.Wait()
	d.logger.Info("kioskd stopped", zap.Stringer("state", d.Kiosk.State()))
	return err
}

// CheckForUpdate asks the update channel once. It never blocks the caller.
func (d *Daemon) CheckForUpdate(ctx context.Context, force bool) {
	d.updates.CheckForUpdate(ctx, force,
		func(current string) {
			d.logger.Info("kioskd is up to date", zap.String("version", current))
		},
		func(r domain.Release) {
			if err := d.notifier.Notify(ctx, MsgUpdateAvailable+r.Version); err != nil {
				d.logger.Warn("failed to notify user", zap.Error(err))
			}
		},
		func(err error) {
			d.logger.Warn("update check failed", zap.Error(err))
		})
}

// Close releases the store.
func (d *Daemon) Close() error {
	return d.store.Close()
}

// applyFirstActivation delays the first tick on the first-ever start so
// the device can finish provisioning, then records that it happened.
func (d *Daemon) applyFirstActivation() {
	done, err := d.store.FirstActivationDone()
	if err != nil {
		d.logger.Warn("failed to read first activation flag", zap.Error(err))
		return
	}
	if done {
		return
	}
	d.Watchdog.SetInitialDelay(d.cfg.Watchdog.FirstActivationDelay)
	if err := d.store.MarkFirstActivationDone(); err != nil {
		d.logger.Warn("failed to record first activation", zap.Error(err))
	}
	d.logger.Info("first activation, delaying enforcement",
		zap.Duration("delay", d.cfg.Watchdog.FirstActivationDelay))
}

func (d *Daemon) onSignal(ev domain.LockEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Kiosk.Signal(ctx, ev); err != nil {
		d.logger.Warn("signal dropped", zap.Stringer("event", ev), zap.Error(err))
	}
}

func (d *Daemon) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.Metrics.Handler())
	srv := &http.Server{
		Addr:              d.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	d.logger.Info("metrics listening", zap.String("addr", d.cfg.Metrics.Listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Warn("metrics listener failed", zap.Error(err))
	}
	return nil
}
