package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ms2read/pkg/filetype"
)

var detectCmd = &cobra.Command{
	Use:   "detect PATH...",
	Short: "Report the format family of spectrum files",
	Long: `Classify each path by extension, or by directory contents for vendor
directories, and print the detected format family.

Examples:
  ms2read detect run1.mgf run2.mzML sample.d
  ms2read detect --format json sample.d`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

type detection struct {
	Path      string `json:"path" yaml:"path"`
	Format    string `json:"format" yaml:"format"`
	Supported bool   `json:"supported" yaml:"supported"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	detections := make([]detection, 0, len(args))
	for _, path := range args {
		format := filetype.Classify(path)
		detections = append(detections, detection{
			Path:      path,
			Format:    format.String(),
			Supported: format.Supported(),
		})
	}

	return writeOutput(cmd.OutOrStdout(), detections, func(w io.Writer) error {
		for _, d := range detections {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", d.Path, d.Format); err != nil {
				return err
			}
		}
		return nil
	})
}
