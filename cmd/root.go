package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/shotlens/internal/capture"
	"github.com/timvw/shotlens/internal/config"
	telem "github.com/timvw/shotlens/internal/otel"
	"github.com/timvw/shotlens/internal/rpc"
)

var (
	// Global flags. Unset flags leave the config value in place.
	flagConfigFile string
	flagLogLevel   string
	flagCommand    string
	flagArgs       []string
	flagTimeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "shotlens",
	Short: "Editor intelligence for screenshot-capture code",
	Long: `shotlens finds screenshot-capture calls in source files and checks them:
invalid formats, out-of-range quality, missing parameters, bad capture
regions and deprecated API names.

It runs as a language server (serve), as a one-shot checker (analyze),
or as a terminal UI that revalidates a file on every save (watch).
Capture commands are forwarded to a subordinate capture server that
speaks newline-delimited JSON-RPC on stdio; configure it with --command.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config-file", envOrDefault("SHOTLENS_CONFIG", ""), "config file (default: .shotlens.yaml or ~/.config/shotlens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVar(&flagCommand, "command", "", "capture server executable")
	rootCmd.PersistentFlags().StringArrayVar(&flagArgs, "arg", nil, "argument for the capture server (repeatable)")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "capture request timeout (default: 30s)")
}

// runtime bundles what every subcommand needs after startup.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	tel     *telem.Telemetry
	metrics *telem.Metrics
}

// setup loads configuration, applies global flags, builds the logger and
// initializes telemetry. Call close when done.
func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagCommand != "" {
		cfg.Command = flagCommand
	}
	if len(flagArgs) > 0 {
		cfg.Args = flagArgs
	}
	if flagTimeout > 0 {
		cfg.RequestTimeoutDuration = flagTimeout
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	if cfg.ConfigFile != "" {
		logger.Debug("config loaded", slog.String("path", cfg.ConfigFile))
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// No-op if no endpoint configured
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, tel: tel}
	if tel != nil {
		rt.metrics = tel.Metrics
	}
	return rt, nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.tel != nil {
		if err := rt.tel.Shutdown(ctx); err != nil {
			rt.logger.Debug("otel shutdown", slog.Any("error", err))
		}
	}
}

// newLogger returns a text logger on stderr; stdout is reserved for
// protocol and command output.
func newLogger(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// newTransport builds the capture transport from configuration. It does
// not start the subordinate.
func (rt *runtime) newTransport() *rpc.Transport {
	return rpc.New(rpc.Options{
		Command:        rt.cfg.Command,
		Args:           rt.cfg.Args,
		SettleDelay:    rt.cfg.SettleDelayDuration,
		RequestTimeout: rt.cfg.RequestTimeoutDuration,
		Logger:         rt.logger,
		Metrics:        rt.metrics,
	})
}

// connect starts the capture transport and returns a client over it. The
// caller must Stop the transport.
func (rt *runtime) connect(ctx context.Context) (*rpc.Transport, *capture.Client, error) {
	if rt.cfg.Command == "" {
		return nil, nil, fmt.Errorf("no capture server configured (set --command or SHOTLENS_COMMAND)")
	}
	t := rt.newTransport()
	if err := t.Start(ctx); err != nil {
		return nil, nil, err
	}
	return t, capture.New(t), nil
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
