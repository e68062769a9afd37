package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"omniture-reporter/internal/app"
	"omniture-reporter/internal/config"
	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/runtime"
)

var BuildVersion = "dev"

const (
	exitRuntimeError = 1
	exitUsageError   = 2

	shutdownGrace = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	opts, command, err := config.ParseOptions()
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return 0
		}
		return exitUsageError
	}

	logger, err := runtime.NewLogger(opts, command)
	defer func() { _ = logger.Close() }()
	if err != nil {
		return fail(err)
	}
	logger.Debug("omniture-reporter starting", logging.Field("version", BuildVersion), logging.Field("command", command))

	opts, err = runtime.PrepareOptions(opts, logger)
	if err != nil {
		return fail(err)
	}
	service, err := runtime.NewService(opts, command, logger, app.Streams{In: os.Stdin, Out: os.Stdout})
	if err != nil {
		return fail(err)
	}

	controller := runtime.NewController(rootCtx)
	done := make(chan struct{})
	if err := controller.Start(service, logger, func(error) { close(done) }); err != nil {
		return fail(err)
	}
	select {
	case <-done:
	case <-rootCtx.Done():
		if !controller.Wait(shutdownGrace) {
			fmt.Fprintln(os.Stderr, "timed out waiting for shutdown")
			return exitRuntimeError
		}
	}
	if err := controller.Err(); err != nil {
		return fail(err)
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, runtime.ErrInvalidConfig) {
		return exitUsageError
	}
	return exitRuntimeError
}
