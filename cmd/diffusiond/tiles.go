package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"diffusiond/internal/tiling"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Print the tile plan for a latent",
	Long: `Prints one rectangle per line in latent cells as left,top,right,bottom.
Width and height are given in pixels and divided by the scale factor.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		width, _ := f.GetInt("width")
		height, _ := f.GetInt("height")
		tile, _ := f.GetInt("tile-size")
		scale, _ := f.GetInt("scale-factor")
		if scale < 1 {
			return fmt.Errorf("scale-factor must be positive")
		}
		rects, err := tiling.Plan(height/scale, width/scale, tile, scale)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range rects {
			if _, err := fmt.Fprintf(out, "%d,%d,%d,%d\n", r.Left, r.Top, r.Right, r.Bottom); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tilesCmd)
	f := tilesCmd.Flags()
	f.Int("width", 1024, "Image width in pixels")
	f.Int("height", 1024, "Image height in pixels")
	f.Int("tile-size", 1024, "Tile edge in pixels")
	f.Int("scale-factor", 8, "Pixels per latent cell")
}
