package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"scriptsched/internal/app"
)

func main() {
	var (
		cfgPath  string
		headless bool
	)
	flag.StringVar(&cfgPath, "config", "./scriptsched.yaml", "path to config (yaml or json)")
	flag.BoolVar(&headless, "headless", false, "run without the interactive console")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var in io.Reader = os.Stdin
	if headless {
		in = nil
	}
	a, err := app.NewApp(cfgPath, in, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	// Not running under systemd is not an error.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	consoleDone := make(chan error, 1)
	if !headless {
		go func() { consoleDone <- a.RunConsole(ctx) }()
	}

	reason := app.StopUnknown
	select {
	case <-ctx.Done():
		reason = app.StopSignal
	case err := <-consoleDone:
		reason = app.StopConsoleExit
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "console:", err)
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
		stopCancel()
		os.Exit(1)
	}
}
