package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meshboard-maps/mapsurface"
	"meshboard-maps/mapsurface/infra"
)

func newRenderCmd(cfg *config, logger func() *slog.Logger) *cobra.Command {
	var (
		locs    []string
		zoom    float64
		out     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render --loc lat,lng[,label] [--loc ...]",
		Short: "Render one map snapshot to a PNG file",
		Example: `  mapsched render --tiles-url http://localhost:3000 --loc "25.0330,121.5654,Taipei 101" -o map.png
  mapsched render --loc 25.03,121.56 --loc 25.05,121.60 -o - > map.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			locations, err := mapsurface.ParseLocations(locs)
			if err != nil {
				return err
			}

			renderer, err := newRenderer(*cfg, infra.NewMemoryImageCache(), logger())
			if err != nil {
				return err
			}
			defer renderer.Destroy()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if !renderer.Initialize(ctx) {
				return errors.New("map unavailable: see log for details")
			}

			img := renderer.RenderMapToImage(ctx, locations, zoom, nil)
			if img == nil {
				return errors.New("render failed: see log for details")
			}

			if out == "-" {
				_, err = cmd.OutOrStdout().Write(img)
				return err
			}
			if err := os.WriteFile(out, img, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger().Info("snapshot written", "path", out, "bytes", len(img))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&locs, "loc", nil, "Location as lat,lng[,label] (repeat up to 5 times)")
	cmd.Flags().Float64Var(&zoom, "zoom", 14, "Zoom for a single location")
	cmd.Flags().StringVarP(&out, "output", "o", "map.png", "Output file, or - for stdout")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long")
	_ = cmd.MarkFlagRequired("loc")
	return cmd
}
