package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/shotlens/internal/capture"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List displays or windows known to the capture server",
}

var listDisplaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List connected displays",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *capture.Client) error {
			raw, err := c.ListDisplays(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, raw)
		})
	},
}

var listWindowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List open windows",
	Long: `List open windows. The ids printed can be passed to
"shotlens capture window --window-id".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *capture.Client) error {
			raw, err := c.ListWindows(ctx)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, raw)
		})
	},
}

func init() {
	listCmd.AddCommand(listDisplaysCmd, listWindowsCmd)
	rootCmd.AddCommand(listCmd)
}
