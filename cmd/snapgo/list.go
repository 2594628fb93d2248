package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SnapGo/internal/catalog"
	"github.com/cjeanneret/SnapGo/internal/storage"
)

var (
	listLimit int
	listFiles bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured photos, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if listFiles {
			dir := storage.ResolveOutputLocation(storage.Dirs{
				ExternalMedia: cfg.Storage.ExternalMediaDirs,
				AppName:       cfg.Storage.AppName,
				Files:         cfg.Storage.FilesDir,
			})
			files, err := storage.ListCaptures(dir)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(out, f)
			}
			return nil
		}

		c, err := catalog.Open(cfg.Storage.CatalogPath)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.Latest(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCAPTURED\tSIZE\tCAMERA\tREF")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.CapturedAt.Format(time.DateTime), size(e), cameraName(e), e.Ref)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		total, err := c.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d of %d captures\n", len(entries), total)
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum entries to show (0 = all)")
	listCmd.Flags().BoolVar(&listFiles, "files", false, "list image files in the output directory instead of the catalog")
}

func size(e catalog.Entry) string {
	if e.Width == nil || e.Height == nil {
		return "-"
	}
	return fmt.Sprintf("%dx%d", *e.Width, *e.Height)
}

func cameraName(e catalog.Entry) string {
	switch {
	case e.CameraMake != nil && e.CameraModel != nil:
		return *e.CameraMake + " " + *e.CameraModel
	case e.CameraModel != nil:
		return *e.CameraModel
	case e.CameraMake != nil:
		return *e.CameraMake
	}
	return "-"
}
