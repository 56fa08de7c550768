package normalize

import (
	"fmt"

	"github.com/ChrisMcGann/ms2read/pkg/core"
	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// AssembleSpectrum converts a decoded MS2 scan into an MS2Spectrum. It fails
// when the scan cannot be represented as centroid peaks.
func AssembleSpectrum(s *scan.Scan) (core.MS2Spectrum, error) {
	mz, intensity, err := s.CentroidPeaks()
	if err != nil {
		return core.MS2Spectrum{}, fmt.Errorf("spectrum %s: %w", s.ID, err)
	}

	var precursor *core.Precursor
	if p, ok := ResolvePrecursor(s); ok {
		precursor = &p
	}
	return core.NewMS2Spectrum(s.ID, narrow(mz), narrow(intensity), precursor), nil
}

func narrow(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
