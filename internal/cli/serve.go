package cli

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"geoexport/internal/ctxlog"
	"geoexport/internal/tilecache"
	"geoexport/internal/tileserver"
)

func newServeCmd() *cobra.Command {
	var mapfile string

	cmd := &cobra.Command{
		Use:   "serve --mapfile FILE",
		Short: "Serve rendered images and XYZ tiles over HTTP",
		Long: `Start an HTTP server rendering the stylesheet on demand:
  - /{z}/{x}/{y}.png  256px Web Mercator tiles
  - /render.png       ?bbox=w,s,e,n&zoom=z, framed like the export
  - /metadata         stylesheet and cache details
  - /ping             health check

Flags take precedence over environment variables.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mapfile == "" {
				return usageError("--mapfile is required")
			}
			ctx := cmd.Context()
			logger := ctxlog.FromContext(ctx)

			addr := getConfigString(cmd, "addr", envAddr, ":8080")
			workers := getConfigInt(cmd, "workers", envWorkers, runtime.NumCPU())
			cachePath := getConfigString(cmd, "cache", envCache, "")

			pool, err := tileserver.NewPool(ctx, mapfile, workers)
			if err != nil {
				return err
			}
			defer pool.Close()

			var cache *tilecache.Cache
			if cachePath != "" {
				cache, err = tilecache.Open(ctx, cachePath, map[string]string{
					"name":        filepath.Base(mapfile),
					"description": fmt.Sprintf("tiles rendered from %s", mapfile),
				})
				if err != nil {
					return err
				}
				defer cache.Close()
			}

			logger.Info("Render pool ready.", "mapfile", mapfile, "workers", pool.Workers(), "cache", cachePath)
			return tileserver.ListenAndServe(ctx, addr, tileserver.New(ctx, mapfile, pool, cache))
		},
	}

	f := cmd.Flags()
	f.StringVar(&mapfile, "mapfile", "", "stylesheet to render")
	f.StringP("addr", "a", ":8080", "address to listen on (env "+envAddr+")")
	f.Int("workers", runtime.NumCPU(), "render workers, each with its own map (env "+envWorkers+")")
	f.String("cache", "", "MBTiles file caching rendered tiles (env "+envCache+")")
	return cmd
}
