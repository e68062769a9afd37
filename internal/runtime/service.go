package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"omniture-reporter/internal/app"
	"omniture-reporter/internal/client"
	"omniture-reporter/internal/config"
	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/mockapi"
)

// ErrInvalidConfig marks errors caused by the user's settings rather than
// by the API or the network.
var ErrInvalidConfig = errors.New("invalid configuration")

type Service interface {
	RunContext(ctx context.Context) error
}

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) RunContext(ctx context.Context) error { return f(ctx) }

// PrepareOptions merges the saved profile into opts (unless disabled) and
// saves the result when asked to.
func PrepareOptions(opts config.Options, logger *logging.Logger) (config.Options, error) {
	if !opts.NoProfile {
		saved, err := config.LoadProfile()
		switch {
		case err == nil:
			opts = config.MergeOptionsWithProfile(opts, saved)
		case errors.Is(err, fs.ErrNotExist):
		default:
			logger.Warn("failed to load saved profile", logging.Field("error", err))
		}
	}
	if opts.SaveProfile {
		if _, err := config.ResolveEndpoint(opts.Environment, opts.Endpoint); err != nil {
			return opts, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if err := config.SaveProfile(config.ProfileFromOptions(opts)); err != nil {
			return opts, fmt.Errorf("save profile: %w", err)
		}
		if path, err := config.ProfilePath(); err == nil {
			logger.Info("saved profile", logging.Field("path", path))
		}
	}
	return opts, nil
}

// NewLogger builds the CLI logger. Log output goes to stderr so command
// results on stdout stay machine readable; --log-persist alone records to
// file without terminal output.
func NewLogger(opts config.Options, command string) (*logging.Logger, error) {
	logger := logging.New(opts.Debug)
	logger.SetOutput(os.Stderr)
	terminal := opts.Log || opts.Debug || command == config.CommandMockServer
	logger.SetEnabled(terminal || opts.LogPersist)
	logger.SetTerminalOutputEnabled(terminal)
	if opts.LogPersist {
		path, err := logger.EnableFilePersistence(logging.FileOptions{
			Dir:      opts.LogDir,
			MaxBytes: opts.LogMaxBytes,
			Command:  command,
		})
		if err != nil {
			return logger, fmt.Errorf("%w: log persistence: %w", ErrInvalidConfig, err)
		}
		logger.Debug("persisting logs", logging.Field("path", path))
	}
	return logger, nil
}

// NewService wires the selected command.
func NewService(opts config.Options, command string, logger *logging.Logger, streams app.Streams) (Service, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if command == config.CommandMockServer {
		return newMockService(opts, logger), nil
	}

	cfg, err := config.BuildClientConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger.Debug("resolved API configuration",
		logging.Field("endpoint", cfg.Endpoint),
		logging.Field("username", cfg.Username),
		logging.Field("poll_interval", cfg.PollInterval.String()),
		logging.Field("poll_timeout", cfg.PollTimeout.String()),
		logging.Field("poll_max_attempts", cfg.MaxPollAttempts),
		logging.Field("insecure_skip_verify", cfg.InsecureSkipVerify),
	)

	apiClient := client.New(nil, cfg, logger)
	runner := app.New(apiClient, logger, streams, app.Callbacks{})
	switch command {
	case config.CommandRequest:
		return serviceFunc(func(ctx context.Context) error {
			return runner.RunRequest(ctx, opts.Request)
		}), nil
	case config.CommandReport:
		return serviceFunc(func(ctx context.Context) error {
			return runner.RunReport(ctx, opts.Report)
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidConfig, command)
	}
}

func newMockService(opts config.Options, logger *logging.Logger) Service {
	server := mockapi.New(mockapi.Options{
		Username:   opts.Username,
		Secret:     opts.Secret,
		ReadyAfter: opts.MockServer.ReadyAfter,
		Logger:     logger,
	})
	return serviceFunc(func(ctx context.Context) error {
		ln, err := net.Listen("tcp", opts.MockServer.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", opts.MockServer.Listen, err)
		}
		return app.ServeMock(ctx, ln, server, logger)
	})
}
