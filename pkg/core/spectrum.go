// Package core provides the normalized precursor and MS2 spectrum models
// produced by ms2read, independent of the source file format.
package core

import (
	"fmt"
	"math"
	"strings"
)

// MS2Spectrum represents one MS2 scan in normalized form.
type MS2Spectrum struct {
	Identifier string     // Scan id native to the source format
	MZ         []float32  // Peak m/z values
	Intensity  []float32  // Peak intensities, paired with MZ
	Precursor  *Precursor // nil when no precursor could be resolved
}

// NewMS2Spectrum creates a spectrum. The precursor, when given, is copied so
// the spectrum owns its own value.
func NewMS2Spectrum(identifier string, mz, intensity []float32, precursor *Precursor) MS2Spectrum {
	spec := MS2Spectrum{
		Identifier: identifier,
		MZ:         mz,
		Intensity:  intensity,
	}
	if precursor != nil {
		p := *precursor
		spec.Precursor = &p
	}
	return spec
}

// ValidationError represents an error found during spectrum validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks the structural invariants of a spectrum.
func (s *MS2Spectrum) Validate() error {
	var errs []string

	if s.Identifier == "" {
		errs = append(errs, "identifier is required")
	}
	if len(s.MZ) != len(s.Intensity) {
		errs = append(errs, fmt.Sprintf("m/z and intensity arrays differ in length (%d != %d)",
			len(s.MZ), len(s.Intensity)))
	}
	for i, mz := range s.MZ {
		if math.IsNaN(float64(mz)) || math.IsInf(float64(mz), 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "MS2Spectrum",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// NumPeaks returns the number of peaks in the spectrum.
func (s *MS2Spectrum) NumPeaks() int {
	return len(s.MZ)
}

// HasPrecursor reports whether a precursor was resolved for the spectrum.
func (s *MS2Spectrum) HasPrecursor() bool {
	return s.Precursor != nil
}

func (s MS2Spectrum) String() string {
	precursor := "None"
	if s.Precursor != nil {
		precursor = s.Precursor.String()
	}
	return fmt.Sprintf("MS2Spectrum(identifier='%s', mz=[..], intensity=[..], precursor=%s)",
		s.Identifier, precursor)
}
