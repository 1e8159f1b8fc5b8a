// Package daemon wires every component together and runs the top-level
// event loop: signal handling, the scan engine's cadence, and graceful
// shutdown. It is the one place that knows about every other package.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ghostwatch/ghostwatchd/internal/config"
	"github.com/ghostwatch/ghostwatchd/internal/controlsock"
	"github.com/ghostwatch/ghostwatchd/internal/decision"
	"github.com/ghostwatch/ghostwatchd/internal/metrics"
	"github.com/ghostwatch/ghostwatchd/internal/notify"
	"github.com/ghostwatch/ghostwatchd/internal/scanengine"
	"github.com/ghostwatch/ghostwatchd/internal/smartlog"
	"github.com/ghostwatch/ghostwatchd/internal/smartreader"
	"github.com/ghostwatch/ghostwatchd/internal/unmount"
)

// AppName is used to locate the settings file and the control socket path.
const AppName = "ghostwatchd"

// Daemon owns every long-lived component and the process's signal loop.
type Daemon struct {
	cfgLoader     *config.Loader
	engine        *scanengine.Engine
	metrics       *metrics.Registry
	metricsAddr   string
	control       *controlsock.Server
	closeNotifier closer
}

// closer is satisfied by notify.NatsSink, whose connection needs an
// explicit Close on shutdown; notify.NoopSink needs no such cleanup.
type closer interface {
	Close()
}

// New builds every component from the resolved configuration. It never
// fails on a bad or missing settings file (config.Load already falls back
// to defaults); it can fail if smartctl cannot be located at all, since
// the daemon has nothing useful to do without it.
func New() (*Daemon, error) {
	loader := config.Load(AppName)
	cfg := loader.Current()
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid settings, continuing with validation error surfaced to operator")
	}

	reader, err := smartreader.NewReader(15 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	logger := smartlog.NewLogger(cfg.Logging.HistoryRoot, int64(cfg.Logging.RetentionSizeKB)*1024)

	mode := unmount.ModePassive
	if cfg.EmergencyUnmount.Mode == "ACTIVE" {
		mode = unmount.ModeActive
	}
	executor := unmount.NewExecutor(mode, time.Duration(cfg.EmergencyUnmount.CooldownS)*time.Second, unmount.SystemMountLister{})

	var sink notify.Sink = notify.NoopSink{}
	var notifierCloser closer
	if cfg.Notifications.NatsURL != "" {
		natsSink, err := notify.NewNatsSink(cfg.Notifications.NatsURL, cfg.Notifications.Subject)
		if err != nil {
			log.Warn().Err(err).Msg("notifications disabled: could not connect to NATS")
		} else {
			sink = natsSink
			notifierCloser = natsSink
		}
	}

	reg := metrics.NewRegistry()

	engCfg := scanengine.DefaultConfig()
	engCfg.PollingInterval = time.Duration(cfg.General.PollingIntervalS) * time.Second

	engine := scanengine.NewEngine(engCfg, reader, logger, executor, sink, reg)
	engine.SetThresholds(thresholdsFromConfig(cfg))
	engine.SetRatedEndurance(cfg.Scoring.RatedEnduranceByModel)
	engine.SetMonitoredOverrides(cfg.DiskSelection.MonitoredDevices)

	d := &Daemon{
		cfgLoader:     loader,
		engine:        engine,
		metrics:       reg,
		metricsAddr:   cfg.Metrics.ListenAddr,
		closeNotifier: notifierCloser,
	}
	d.control = controlsock.NewServer(socketPath(AppName), engine)
	return d, nil
}

func socketPath(appName string) string {
	return fmt.Sprintf("/run/%s/control.sock", appName)
}

// thresholdsFromConfig translates the settings file's alert_thresholds
// block into the decision package's Thresholds. The warning lines and the
// temperature critical lines move: reallocated/pending critical and every
// emergency tier are fixed, since the settings file has no key for them.
func thresholdsFromConfig(cfg config.Config) decision.Thresholds {
	t := decision.DefaultThresholds()
	t.ReallocatedWarning = uint64(cfg.AlertThresholds.SMART.Reallocated)
	t.PendingWarning = uint64(cfg.AlertThresholds.SMART.Pending)
	t.UncorrectableWarning = uint64(cfg.AlertThresholds.SMART.Uncorrectable)
	t.TimeoutWarning = uint64(cfg.AlertThresholds.SMART.Timeout)
	t.TempHDDWarning = cfg.AlertThresholds.Temperature.HDDWarning
	t.TempHDDCritical = cfg.AlertThresholds.Temperature.HDDCritical
	t.TempSSDWarning = cfg.AlertThresholds.Temperature.SSDWarning
	t.TempSSDCritical = cfg.AlertThresholds.Temperature.SSDCritical
	return t
}

// Run starts every background goroutine and blocks until SIGINT/SIGTERM,
// then shuts down in dependency order: stop accepting new work, let
// in-flight scans finish up to a grace period, then close connections.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.cfgLoader.Watch(func(cfg config.Config) {
		d.engine.SetThresholds(thresholdsFromConfig(cfg))
		d.engine.SetRatedEndurance(cfg.Scoring.RatedEnduranceByModel)
		d.engine.SetMonitoredOverrides(cfg.DiskSelection.MonitoredDevices)
		log.Info().Msg("settings file changed, alert thresholds and disk selection reloaded; cadence and unmount mode remain fixed for this run")
	}); err != nil {
		log.Warn().Err(err).Msg("settings hot-reload watch failed to start")
	}

	if d.metricsAddr != "" {
		go func() {
			if err := d.metrics.Serve(d.metricsAddr); err != nil {
				log.Warn().Err(err).Str("addr", d.metricsAddr).Msg("metrics endpoint stopped")
			}
		}()
	}

	engineDone := make(chan struct{})
	go func() {
		d.engine.Run(ctx)
		close(engineDone)
	}()

	if err := d.control.Start(); err != nil {
		log.Warn().Err(err).Msg("control socket failed to start, continuing without it")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	d.control.Stop()
	engDefaults := scanengine.DefaultConfig()
	grace := time.Duration(engDefaults.ShutdownGraceMul) * engDefaults.SmartDeadline
	select {
	case <-engineDone:
	case <-time.After(grace):
		log.Warn().Dur("grace", grace).Msg("in-flight scans did not finish within the shutdown grace period")
	}
	if d.closeNotifier != nil {
		d.closeNotifier.Close()
	}
	return nil
}
