// Package cli wires the geoexport commands: the export itself on the root
// command, plus serve and preview.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"geoexport/internal/ctxlog"
	"geoexport/internal/export"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	var (
		mapfile string
		zoom    = zoomValue(export.DefaultZoom)
		bbox    bboxValue
	)

	root := &cobra.Command{
		Use:   "geoexport --mapfile FILE --bbox W S E N [--zoom Z]",
		Short: "Render a stylesheet over a bounding box into a PNG",
		Long: `geoexport renders the map described by a Mapnik XML or HCL stylesheet
over a WGS84 bounding box and writes it next to the stylesheet as a PNG.

The image is 500*zoom pixels wide and 1000*zoom pixels high. The output
name is the part of --mapfile before its first "." followed by ".png".`,
		Example: `  geoexport --mapfile sample.xml --bbox -5.2 41.4 10.16 46.2
  geoexport --mapfile=sample.xml --zoom 3 --bbox=-5.2,41.4,10.16,46.2`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(
				getConfigString(cmd, "log-level", envLogLevel, "info"),
				getConfigString(cmd, "log-format", envLogFormat, "text"),
				cmd.ErrOrStderr())
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if mapfile == "" {
				return usageError("--mapfile is required")
			}
			if !cmd.Flags().Changed("bbox") {
				return usageError("--bbox is required")
			}
			res, err := export.Run(cmd.Context(), export.Params{
				Mapfile: mapfile,
				Zoom:    int(zoom),
				BBox:    export.BBox(bbox),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				okStyle.Render("wrote"),
				res.Output,
				dimStyle.Render(fmt.Sprintf("%dx%d in %s", res.Width, res.Height, res.Elapsed.Round(time.Millisecond))))
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: exitUsage, Err: err}
	})

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "log level: debug, info, warn or error (env "+envLogLevel+")")
	pf.String("log-format", "text", "log format: text or json (env "+envLogFormat+")")

	f := root.Flags()
	f.StringVar(&mapfile, "mapfile", "", "stylesheet to render (Mapnik XML or .hcl)")
	f.Var(&zoom, "zoom", fmt.Sprintf("resolution multiplier in [%d,%d]", export.MinZoom, export.MaxZoom))
	f.Var(&bbox, "bbox", "bounding box west south east north in WGS84 degrees")

	root.AddCommand(newServeCmd(), newPreviewCmd())
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError("unexpected arguments %q", args)
	}
	return nil
}

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(normalizeArgs(args))
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}

	code := exitFailure
	var ee *ExitError
	if errors.As(err, &ee) {
		code = ee.Code
	}
	fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("error:"), err)
	if code == exitUsage && cmd != nil {
		fmt.Fprint(stderr, cmd.UsageString())
	}
	return code
}
