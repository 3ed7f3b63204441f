package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"geoexport/internal/carto"
	"geoexport/internal/export"
	"geoexport/internal/tui"
)

func newPreviewCmd() *cobra.Command {
	var (
		mapfile string
		bbox    bboxValue
	)

	cmd := &cobra.Command{
		Use:   "preview --mapfile FILE [--bbox W S E N]",
		Short: "Browse the stylesheet's layers in the terminal",
		Long: `Load the stylesheet and show its features with braille graphics.
Without --bbox the view covers the union of the layer extents.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mapfile == "" {
				return usageError("--mapfile is required")
			}
			ctx := cmd.Context()

			m := carto.NewMap(export.Dimensions(export.DefaultZoom))
			if err := m.LoadContext(ctx, mapfile); err != nil {
				return fmt.Errorf("load %s: %w", mapfile, err)
			}
			defer m.Close()

			if cmd.Flags().Changed("bbox") {
				m.ZoomToBox(projectBBox(m.Projection(), export.BBox(bbox)))
			} else if env, ok := m.LayerEnvelope(); ok && env.Valid() {
				m.ZoomToBox(env)
			} else {
				return fmt.Errorf("%s has no layer extent to show; pass --bbox", mapfile)
			}
			return tui.Run(ctx, m, mapfile)
		},
	}

	f := cmd.Flags()
	f.StringVar(&mapfile, "mapfile", "", "stylesheet to preview")
	f.Var(&bbox, "bbox", "initial view west south east north in WGS84 degrees")
	return cmd
}

// projectBBox takes b into the map's own coordinates.
func projectBBox(p *carto.Projection, b export.BBox) carto.Box {
	lo := p.Forward(carto.Coord{X: b.West(), Y: b.South()})
	hi := p.Forward(carto.Coord{X: b.East(), Y: b.North()})
	return carto.NewBox(lo.X, lo.Y, hi.X, hi.Y)
}
