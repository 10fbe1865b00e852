package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/shotlens/internal/diagnostics"
	"github.com/timvw/shotlens/internal/model"
	telem "github.com/timvw/shotlens/internal/otel"
	"github.com/timvw/shotlens/internal/pattern"
)

var (
	flagFormat      string
	flagFailOnError bool
	flagParallel    int
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	infoColor  = color.New(color.FgCyan)
	pathColor  = color.New(color.Bold)
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Check files for screenshot-capture problems",
	Long: `Find screenshot-capture calls in each file and run all validators.

Output is JSON by default, one report per file in argument order. Use
--format text for colored, human-readable findings. With --fail-on-error
the command exits 1 when any error-severity finding is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.Context(), args, os.Stdout)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&flagFormat, "format", "json", "output format: json, text")
	analyzeCmd.Flags().BoolVar(&flagFailOnError, "fail-on-error", false, "exit 1 if any error finding is reported")
	analyzeCmd.Flags().IntVar(&flagParallel, "parallel", 8, "number of files analyzed concurrently")
	rootCmd.AddCommand(analyzeCmd)
}

// fileReport is the analysis result of one file.
type fileReport struct {
	Path     string          `json:"path"`
	Patterns []model.Pattern `json:"patterns"`
	Findings []model.Finding `json:"findings"`
}

func runAnalyze(ctx context.Context, paths []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if flagFormat != "json" && flagFormat != "text" {
		return fmt.Errorf("unknown format %q (supported: json, text)", flagFormat)
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	reports, err := analyzeFiles(ctx, paths, diagnostics.NewPipeline(rt.logger), rt.metrics, flagParallel)
	if err != nil {
		return err
	}

	switch flagFormat {
	case "text":
		writeText(out, reports)
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}

	if flagFailOnError {
		errs := 0
		for _, r := range reports {
			errs += model.CountBySeverity(r.Findings)[model.SeverityError]
		}
		if errs > 0 {
			return fmt.Errorf("%d error finding(s)", errs)
		}
	}
	return nil
}

// analyzeFiles reads and checks paths with at most parallel files in
// flight. Reports keep argument order.
func analyzeFiles(ctx context.Context, paths []string, pipeline *diagnostics.Pipeline, metrics *telem.Metrics, parallel int) ([]fileReport, error) {
	if parallel <= 0 {
		parallel = 1
	}
	reports := make([]fileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			doc := model.Document{URI: path, Version: 1, Text: string(data)}
			patterns := pattern.Analyze(doc.Text)
			findings := pipeline.Run(doc, patterns)

			codes := make([]string, len(findings))
			for j, f := range findings {
				codes[j] = f.Code
			}
			metrics.RecordAnalysis(gctx, codes)

			if patterns == nil {
				patterns = []model.Pattern{}
			}
			if findings == nil {
				findings = []model.Finding{}
			}
			reports[i] = fileReport{Path: path, Patterns: patterns, Findings: findings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func writeText(w io.Writer, reports []fileReport) {
	for _, r := range reports {
		if len(r.Findings) == 0 {
			fmt.Fprintf(w, "%s: %d pattern(s), no findings\n", pathColor.Sprint(r.Path), len(r.Patterns))
			continue
		}
		for _, f := range r.Findings {
			fmt.Fprintf(w, "%s:%s\n", pathColor.Sprint(r.Path), severityColor(f.Severity).Sprint(model.FormatFinding(f)))
		}
	}
}

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityError:
		return errorColor
	case model.SeverityWarning:
		return warnColor
	default:
		return infoColor
	}
}
