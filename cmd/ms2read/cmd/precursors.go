package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ms2read/pkg/parse"
)

var precursorsCmd = &cobra.Command{
	Use:   "precursors PATH",
	Short: "Print precursor information of all MS2 scans",
	Long: `Read every MS2 scan of a spectrum file and print its precursor m/z,
retention time, ion mobility, charge and intensity, sorted by scan identifier.

Examples:
  ms2read precursors run1.mzML
  ms2read precursors --format yaml sample.d`,
	Args: cobra.ExactArgs(1),
	RunE: runPrecursors,
}

func runPrecursors(cmd *cobra.Command, args []string) error {
	path := args[0]

	precursors, err := parse.PrecursorInfo(path)
	if err != nil {
		return err
	}
	slog.Info("read precursors", "path", path, "count", len(precursors))

	ids := make([]string, 0, len(precursors))
	for id := range precursors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]precursorView, 0, len(ids))
	for _, id := range ids {
		views = append(views, newPrecursorView(id, precursors[id]))
	}

	return writeOutput(cmd.OutOrStdout(), views, func(w io.Writer) error {
		fmt.Fprintln(w, "identifier\tmz\trt\tim\tcharge\tintensity")
		for _, v := range views {
			_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				v.Identifier, formatFloat(v.MZ), formatFloat(v.RT), formatFloat(v.IM),
				v.Charge, formatFloat(v.Intensity))
			if err != nil {
				return err
			}
		}
		return nil
	})
}
