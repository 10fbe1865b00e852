package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timvw/shotlens/internal/capture"
	"github.com/timvw/shotlens/internal/lsp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server on stdio",
	Long: `Run the shotlens language server, speaking LSP over stdin/stdout.

Diagnostics are published as documents are opened and edited. When a
capture server is configured, code lenses and workspace/executeCommand
run captures through it; otherwise those commands report the capture
bridge as unavailable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	var executor lsp.CommandExecutor
	if rt.cfg.Command != "" {
		t := rt.newTransport()
		if err := t.Start(ctx); err != nil {
			// Diagnostics still work without the bridge.
			rt.logger.Warn("capture bridge unavailable", slog.Any("error", err))
		}
		defer t.Stop()
		executor = capture.New(t)
	}

	srv, err := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Debounce:  rt.cfg.DebounceDuration,
		CacheSize: rt.cfg.CacheSize,
		Executor:  executor,
		Version:   Version,
		Logger:    rt.logger,
		Metrics:   rt.metrics,
	})
	if err != nil {
		return err
	}

	err = srv.Run(ctx)
	if errors.Is(err, lsp.ErrExit) {
		return nil
	}
	return err
}
