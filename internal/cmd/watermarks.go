package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vanpelt/codexlens/internal/models"
)

var watermarksJSON bool

var watermarksCmd = &cobra.Command{
	Use:   "watermarks",
	Short: "📍 List per-file read cursors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		marks, err := a.store.ListWatermarks(cmd.Context())
		if err != nil {
			return err
		}
		if marks == nil {
			marks = []models.Watermark{}
		}
		if watermarksJSON {
			return writeJSON(os.Stdout, marks)
		}
		fmt.Print(renderWatermarks(marks))
		return nil
	},
}

func init() {
	watermarksCmd.Flags().BoolVar(&watermarksJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(watermarksCmd)
}
