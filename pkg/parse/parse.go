// Package parse reads precursor information and MS2 spectra from any
// supported spectrum file.
package parse

import (
	"fmt"
	"log/slog"

	"github.com/ChrisMcGann/ms2read/pkg/core"
	"github.com/ChrisMcGann/ms2read/pkg/filetype"
	"github.com/ChrisMcGann/ms2read/pkg/normalize"
	"github.com/ChrisMcGann/ms2read/pkg/reader/mgf"
	"github.com/ChrisMcGann/ms2read/pkg/reader/mzml"
	"github.com/ChrisMcGann/ms2read/pkg/reader/tdf"
	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// openSource constructs the scan source for one format family
func openSource(format filetype.Format, path string) (scan.Source, error) {
	switch format {
	case filetype.OpenText:
		return mgf.Open(path)
	case filetype.OpenXML:
		return mzml.Open(path)
	case filetype.VendorBinary:
		return tdf.OpenSource(path)
	default:
		return nil, core.ErrUnsupportedFileType
	}
}

// IsSupportedFileType reports whether path is in a readable format
func IsSupportedFileType(path string) bool {
	return filetype.Classify(path).Supported()
}

// Open classifies path and opens the matching scan source. The caller must
// Close the source.
func Open(path string) (scan.Source, filetype.Format, error) {
	format := filetype.Classify(path)
	if !format.Supported() {
		return nil, format, fmt.Errorf("%w: %s", core.ErrUnsupportedFileType, path)
	}

	src, err := openSource(format, path)
	if err != nil {
		return nil, format, &core.DecodeError{Path: path, Format: format.String(), Err: err}
	}
	return src, format, nil
}

// PrecursorInfo returns the precursor of every MS2 scan in path, keyed by
// scan identifier. Scans without a precursor are left out.
func PrecursorInfo(path string) (map[string]core.Precursor, error) {
	precursors := make(map[string]core.Precursor)
	err := eachMS2Scan(path, func(s *scan.Scan) error {
		if p, ok := normalize.ResolvePrecursor(s); ok {
			precursors[s.ID] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return precursors, nil
}

// MS2Spectra returns every MS2 spectrum in path in file order
func MS2Spectra(path string) ([]core.MS2Spectrum, error) {
	var spectra []core.MS2Spectrum
	err := eachMS2Scan(path, func(s *scan.Scan) error {
		spec, err := normalize.AssembleSpectrum(s)
		if err != nil {
			return err
		}
		spectra = append(spectra, spec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spectra, nil
}

// eachMS2Scan calls fn for every MS2 scan of path. Scans whose binary data
// is missing are dropped; any other failure ends the iteration.
func eachMS2Scan(path string, fn func(*scan.Scan) error) error {
	src, format, err := Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	wrap := func(err error) error {
		return &core.DecodeError{Path: path, Format: format.String(), Err: err}
	}

	for src.Next() {
		s, err := src.Scan()
		if err != nil {
			if scan.IsSkippable(err) {
				slog.Debug("skipping scan", "path", path, "error", err)
				continue
			}
			return wrap(err)
		}
		if s.MSLevel != 2 {
			continue
		}
		if err := fn(s); err != nil {
			return wrap(err)
		}
	}
	if err := src.Err(); err != nil {
		return wrap(err)
	}
	return nil
}
