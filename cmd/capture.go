package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/shotlens/internal/capture"
)

var (
	flagCaptureFormat   string
	flagCaptureQuality  int
	flagCaptureSavePath string
	flagCapturePII      bool
	flagWindowID        string
	flagWindowTitle     string
	flagIncludeFrame    bool
	flagRegionX         int
	flagRegionY         int
	flagRegionWidth     int
	flagRegionHeight    int
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take a screenshot through the capture server",
	Long: `Start the configured capture server, run one capture and print the
result as JSON. The capture server decides where the image is written;
use --save-path to request a location.`,
}

var captureFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Capture the full screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := capture.FullScreenArgs{
			Format:   flagCaptureFormat,
			SavePath: flagCaptureSavePath,
		}
		if cmd.Flags().Changed("quality") {
			a.Quality = capture.Int(flagCaptureQuality)
		}
		if cmd.Flags().Changed("pii-masking") {
			a.EnablePIIMasking = capture.Bool(flagCapturePII)
		}
		return withClient(cmd.Context(), func(ctx context.Context, c *capture.Client) error {
			res, err := c.CaptureFull(ctx, a)
			return printResult(os.Stdout, res, err)
		})
	},
}

var captureWindowCmd = &cobra.Command{
	Use:   "window",
	Short: "Capture a single window by id or title",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := capture.WindowArgs{
			WindowID:    flagWindowID,
			WindowTitle: flagWindowTitle,
			Format:      flagCaptureFormat,
			SavePath:    flagCaptureSavePath,
		}
		if cmd.Flags().Changed("include-frame") {
			a.IncludeFrame = capture.Bool(flagIncludeFrame)
		}
		return withClient(cmd.Context(), func(ctx context.Context, c *capture.Client) error {
			res, err := c.CaptureWindow(ctx, a)
			return printResult(os.Stdout, res, err)
		})
	},
}

var captureRegionCmd = &cobra.Command{
	Use:   "region",
	Short: "Capture a rectangle of the screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := capture.RegionArgs{
			Format:   flagCaptureFormat,
			SavePath: flagCaptureSavePath,
		}
		// Only flags given on the command line count as present.
		flags := cmd.Flags()
		if flags.Changed("x") {
			a.X = capture.Int(flagRegionX)
		}
		if flags.Changed("y") {
			a.Y = capture.Int(flagRegionY)
		}
		if flags.Changed("width") {
			a.Width = capture.Int(flagRegionWidth)
		}
		if flags.Changed("height") {
			a.Height = capture.Int(flagRegionHeight)
		}
		if flags.Changed("quality") {
			a.Quality = capture.Int(flagCaptureQuality)
		}
		return withClient(cmd.Context(), func(ctx context.Context, c *capture.Client) error {
			res, err := c.CaptureRegion(ctx, a)
			return printResult(os.Stdout, res, err)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{captureFullCmd, captureWindowCmd, captureRegionCmd} {
		c.Flags().StringVar(&flagCaptureFormat, "format", "png", "image format: png, jpeg, webp")
		c.Flags().StringVar(&flagCaptureSavePath, "save-path", "", "where the capture server should write the image")
	}
	captureFullCmd.Flags().IntVar(&flagCaptureQuality, "quality", 0, "image quality 0-100 (jpeg, webp)")
	captureFullCmd.Flags().BoolVar(&flagCapturePII, "pii-masking", false, "ask the capture server to mask personal information")

	captureWindowCmd.Flags().StringVar(&flagWindowID, "window-id", "", "window id (see: shotlens list windows)")
	captureWindowCmd.Flags().StringVar(&flagWindowTitle, "window-title", "", "window title")
	captureWindowCmd.Flags().BoolVar(&flagIncludeFrame, "include-frame", false, "include the window frame")

	captureRegionCmd.Flags().IntVar(&flagRegionX, "x", 0, "left edge in pixels")
	captureRegionCmd.Flags().IntVar(&flagRegionY, "y", 0, "top edge in pixels")
	captureRegionCmd.Flags().IntVar(&flagRegionWidth, "width", 0, "width in pixels")
	captureRegionCmd.Flags().IntVar(&flagRegionHeight, "height", 0, "height in pixels")
	captureRegionCmd.Flags().IntVar(&flagCaptureQuality, "quality", 0, "image quality 0-100 (jpeg, webp)")

	captureCmd.AddCommand(captureFullCmd, captureWindowCmd, captureRegionCmd)
	rootCmd.AddCommand(captureCmd)
}

// withClient runs fn against a connected capture client and stops the
// capture server afterwards.
func withClient(ctx context.Context, fn func(context.Context, *capture.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	t, client, err := rt.connect(ctx)
	if err != nil {
		return fmt.Errorf("capture server: %w", err)
	}
	defer t.Stop()
	return fn(ctx, client)
}

// printResult writes the raw result and turns an error status into an
// error.
func printResult(w io.Writer, res *capture.Result, err error) error {
	if err != nil {
		return err
	}
	if err := printJSON(w, res.Raw); err != nil {
		return err
	}
	return res.Err()
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not JSON we can pretty-print; pass it through.
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
