package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dayflow/internal/app"
	"dayflow/internal/runner"
)

func main() {
	var (
		cfgPath string
		runUser string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.StringVar(&runUser, "run", "", "run one scheduling pass for the given user id and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	// One-shot mode for cron jobs and manual runs.
	if runUser != "" {
		err := a.Runner().Submit(ctx, runner.Request{UserID: runUser, Reason: "cli"})
		code := 0
		if err != nil {
			fmt.Fprintln(os.Stderr, "run:", err)
			code = 1
		} else {
			// Submit only enqueues; a short drain lets the run finish.
			waitIdle(ctx, a)
		}
		_ = a.Stop(context.Background())
		os.Exit(code)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	stopWatchdog := startWatchdog(ctx)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopWatchdog()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}

// waitIdle polls until the runner's queue drains and nothing is in flight.
func waitIdle(ctx context.Context, a *app.App) {
	deadline := time.After(2 * time.Minute)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
			if a.Runner().Snapshot().Pending == 0 {
				return
			}
		}
	}
}

// startWatchdog pings systemd at half the configured WatchdogSec interval.
// No-op outside systemd.
func startWatchdog(ctx context.Context) (stop func()) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return func() { close(done) }
}
