// Package filter provides peak filtering for MS2 spectra
package filter

import (
	"sort"

	"github.com/ChrisMcGann/ms2read/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	TopN            int     // Keep only top N most intense peaks (0 = no limit)
	IntensityCutoff float64 // Keep only peaks above this % of base peak (0 = no cutoff)
	RemoveZero      bool    // Drop peaks with zero or negative intensity
}

// Enabled reports whether any filter is configured
func (c *Config) Enabled() bool {
	return c.TopN > 0 || c.IntensityCutoff > 0 || c.RemoveZero
}

// Apply returns a filtered copy of spec. Peaks keep their original order.
// The input spectrum is not modified.
func (c *Config) Apply(spec core.MS2Spectrum) core.MS2Spectrum {
	keep := make([]int, len(spec.MZ))
	for i := range keep {
		keep[i] = i
	}

	if c.RemoveZero {
		keep = removeZeroIntensity(spec, keep)
	}

	// Apply intensity filters
	if c.IntensityCutoff > 0 {
		keep = c.filterByIntensity(spec, keep)
	}

	// Apply top-N filter
	if c.TopN > 0 {
		keep = c.filterTopN(spec, keep)
	}

	mz := make([]float32, len(keep))
	intensity := make([]float32, len(keep))
	for i, k := range keep {
		mz[i] = spec.MZ[k]
		intensity[i] = spec.Intensity[k]
	}
	return core.NewMS2Spectrum(spec.Identifier, mz, intensity, spec.Precursor)
}

// removeZeroIntensity drops peaks with zero or negative intensity
func removeZeroIntensity(spec core.MS2Spectrum, keep []int) []int {
	var filtered []int
	for _, k := range keep {
		if spec.Intensity[k] > 0 {
			filtered = append(filtered, k)
		}
	}
	return filtered
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *Config) filterByIntensity(spec core.MS2Spectrum, keep []int) []int {
	if len(keep) == 0 {
		return keep
	}

	// Find maximum intensity
	var maxIntensity float32
	for _, k := range keep {
		if spec.Intensity[k] > maxIntensity {
			maxIntensity = spec.Intensity[k]
		}
	}

	// Calculate threshold
	threshold := (c.IntensityCutoff / 100.0) * float64(maxIntensity)

	var filtered []int
	for _, k := range keep {
		if float64(spec.Intensity[k]) >= threshold {
			filtered = append(filtered, k)
		}
	}
	return filtered
}

// filterTopN keeps only the N most intense peaks
func (c *Config) filterTopN(spec core.MS2Spectrum, keep []int) []int {
	if len(keep) <= c.TopN {
		return keep
	}

	// Sort a copy by intensity descending, ties in original order
	byIntensity := make([]int, len(keep))
	copy(byIntensity, keep)
	sort.SliceStable(byIntensity, func(i, j int) bool {
		return spec.Intensity[byIntensity[i]] > spec.Intensity[byIntensity[j]]
	})

	// Keep only top N, back in peak order
	top := byIntensity[:c.TopN]
	sort.Ints(top)
	return top
}
