// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	outputFormat string
	verbose      bool

	// Flags for spectra command
	showPeaks     bool
	topN          int
	cutoffPercent float64
	removeZero    bool
)

var rootCmd = &cobra.Command{
	Use:   "ms2read",
	Short: "ms2read - MS2 spectrum and precursor extraction tool",
	Long: `ms2read reads precursor ions and MS2 spectra from mass spectrometry files
into one normalized model, whatever the vendor or format.

Supported inputs:
- MGF peak lists (.mgf)
- mzML files (.mzML), plain or indexed
- Bruker timsTOF DDA-PASEF acquisitions (.d directories)`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(precursorsCmd)
	rootCmd.AddCommand(spectraCmd)

	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text, json, or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Spectra command flags
	spectraCmd.Flags().BoolVar(&showPeaks, "peaks", false, "Include peak arrays in the output")
	spectraCmd.Flags().IntVar(&topN, "top-n", 0, "Keep only top N most intense peaks (0 = no limit)")
	spectraCmd.Flags().Float64Var(&cutoffPercent, "cutoff", 0, "Intensity cutoff as % of base peak (0 = no cutoff)")
	spectraCmd.Flags().BoolVar(&removeZero, "remove-zero", false, "Drop peaks with zero intensity")
}

// setup validates global flags and configures logging
func setup(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format '%s', must be text, json, or yaml", outputFormat)
	}

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}
