package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ms2read/pkg/filter"
	"github.com/ChrisMcGann/ms2read/pkg/parse"
)

var spectraCmd = &cobra.Command{
	Use:   "spectra PATH",
	Short: "Print MS2 spectra",
	Long: `Read every MS2 scan of a spectrum file and print one line per spectrum
with its identifier, peak count and precursor. Peak arrays are printed
with --peaks and can be reduced with the filter flags.

Examples:
  # Summary of all spectra
  ms2read spectra run1.mgf

  # Ten most intense peaks of every spectrum as JSON
  ms2read spectra run1.mzML --peaks --top-n 10 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSpectra,
}

func runSpectra(cmd *cobra.Command, args []string) error {
	path := args[0]

	spectra, err := parse.MS2Spectra(path)
	if err != nil {
		return err
	}
	slog.Info("read spectra", "path", path, "count", len(spectra))

	// Set up filter config
	filterConfig := &filter.Config{
		TopN:            topN,
		IntensityCutoff: cutoffPercent,
		RemoveZero:      removeZero,
	}

	views := make([]spectrumView, 0, len(spectra))
	for _, spec := range spectra {
		if filterConfig.Enabled() {
			spec = filterConfig.Apply(spec)
		}
		views = append(views, newSpectrumView(spec, showPeaks))
	}

	return writeOutput(cmd.OutOrStdout(), views, func(w io.Writer) error {
		for _, v := range views {
			precursor := "-"
			if v.Precursor != nil {
				precursor = fmt.Sprintf("%s/%d", formatFloat(v.Precursor.MZ), v.Precursor.Charge)
			}
			if _, err := fmt.Fprintf(w, "%s\t%d\t%s\n", v.Identifier, v.NumPeaks, precursor); err != nil {
				return err
			}
			for i := range v.MZ {
				if _, err := fmt.Fprintf(w, "  %g\t%g\n", v.MZ[i], v.Intensity[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
