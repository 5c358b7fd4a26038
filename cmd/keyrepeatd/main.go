//go:build linux

// keyrepeatd - per-key repeat daemon for Linux.
//
// keyrepeatd grabs the physical keyboard, forwards its events through a
// virtual device, and replaces hardware auto-repeat with configurable
// synthetic taps for mapped keys, gated by held modifiers and the focused
// window's title.
//
//	keyrepeatd                       Run with the default config search
//	keyrepeatd -config FILE          Run with an explicit config file
//	keyrepeatd -dry-run              Log events instead of injecting them
//	keyrepeatd -log-level debug      Override the configured log level
//
// The daemon needs read access to the keyboard device and write access to
// /dev/uinput, which usually means root or membership in the input group.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyrepeatd/internal/config"
	"keyrepeatd/internal/detector"
	"keyrepeatd/internal/event"
	"keyrepeatd/internal/input"
	"keyrepeatd/internal/logging"
	"keyrepeatd/internal/output"
	"keyrepeatd/internal/repeater"
)

var version = "dev"

// shutdownTimeout bounds how long shutdown waits for repeat tasks to
// stop and final releases to flush.
const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "config file (default: ./keyrepeatd.toml, then /etc/keyrepeatd/keyrepeatd.toml)")
	dryRun := flag.Bool("dry-run", false, "log synthesized events instead of injecting them")
	logLevel := flag.String("log-level", "", "override the configured log level")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("keyrepeatd %s\n", version)
		return
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyrepeatd: invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyrepeatd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	if err := run(cfg, logger, *dryRun); err != nil {
		logger.Error("daemon failed", "error", err)
		logger.Close()
		os.Exit(1)
	}
}

// resolveConfigPath picks the config file: explicit flag, working
// directory, then the system location. A missing file is fine; the
// loader falls back to defaults.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat("keyrepeatd.toml"); err == nil {
		return "keyrepeatd.toml"
	}
	return "/etc/keyrepeatd/keyrepeatd.toml"
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	filter, err := logging.ParseFilter(cfg.Logging.Filter)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Filter = filter
	if cfg.Logging.Format == "json" {
		logCfg.Format = logging.FormatJSON
	}
	return logging.New(logCfg)
}

func run(cfg *config.Config, logger *logging.Logger, dryRun bool) error {
	logger.Info("starting keyrepeatd", "version", version,
		"mappings", len(cfg.Mappings), "repeat_delay_ms", cfg.Repeat.RepeatDelayMs)

	sink, err := buildSink(dryRun, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	scheduler := repeater.NewScheduler(cfg, sink, logger)
	det := detector.New(cfg, scheduler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device, err := input.NewFinder(logger).Find(ctx, cfg.Input.DevicePath)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("locating keyboard: %w", err)
	}

	listener, err := input.NewListener(device, scheduler, logger)
	if err != nil {
		return fmt.Errorf("opening keyboard: %w", err)
	}

	go det.Run(ctx)

	listenErr := make(chan error, 1)
	go func() { listenErr <- listener.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-listenErr:
	}
	stop()
	listener.Close()

	shutdown(scheduler, logger)
	return runErr
}

func buildSink(dryRun bool, logger *logging.Logger) (output.Sink, error) {
	if dryRun {
		logger.Info("dry-run mode, events are logged and discarded")
		return &loggingSink{inner: output.NewDryRunSink(), logger: logger}, nil
	}
	return output.NewUinputSink("keyrepeatd virtual keyboard", logger)
}

// shutdown stops all repeat tasks and sweeps held keys, bounded by
// shutdownTimeout so a stuck sink cannot hang exit.
func shutdown(scheduler *repeater.Scheduler, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		stopped := scheduler.StopAllGracefully()
		released := scheduler.ReleaseHeldKeys()
		logger.Info("shutdown complete", "tasks_stopped", stopped, "keys_released", released)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, some keys may be left pressed",
			"timeout", shutdownTimeout)
	}
}

// loggingSink makes dry-run output visible: every event is logged before
// being recorded.
type loggingSink struct {
	inner  *output.DryRunSink
	logger *logging.Logger
}

func (s *loggingSink) Send(ev event.VirtualKeyEvent) error {
	s.logger.Info("would inject", "key_code", ev.Code, "state", ev.State.String())
	return s.inner.Send(ev)
}

func (s *loggingSink) Close() error { return s.inner.Close() }
