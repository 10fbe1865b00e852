package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timvw/shotlens/internal/watch"
)

var flagTheme string

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Interactive TUI that revalidates a file on every save",
	Long: `Open a terminal UI listing the capture calls and findings of one file.
The file is re-read whenever it is written, including editors that save
by renaming a temp file over it, and revalidated after the debounce
period.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args[0])
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagTheme, "theme", "", "color theme: dark, light (default: config theme)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	theme := rt.cfg.Theme
	if cmd.Flags().Changed("theme") {
		theme = flagTheme
	}

	return watch.Run(ctx, watch.Options{
		Path:      path,
		Debounce:  rt.cfg.DebounceDuration,
		CacheSize: rt.cfg.CacheSize,
		Theme:     theme,
		Logger:    rt.logger,
		Metrics:   rt.metrics,
	})
}
