// Package normalize turns decoded scans into the normalized core records.
package normalize

import (
	"strconv"
	"strings"

	"github.com/ChrisMcGann/ms2read/pkg/core"
	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// Parameter names under which converters and vendors store ion mobility
var ionMobilityNames = []string{
	"ion_mobility",
	"inverse reduced ion mobility",
	"reverse ion mobility",
}

// chargeParamName is the free-text parameter consulted when a selected ion
// has no explicit charge
const chargeParamName = "charge"

// paramLocation selects one level of the scan metadata tree.
type paramLocation func(s *scan.Scan) scan.Params

// ionMobilityLocations lists the places searched for ion mobility, highest
// priority first.
var ionMobilityLocations = []paramLocation{
	spectrumParams,
	selectedIonParams,
	firstEventParams,
}

func spectrumParams(s *scan.Scan) scan.Params {
	return s.Params
}

func selectedIonParams(s *scan.Scan) scan.Params {
	if ion := s.Precursor.FirstIon(); ion != nil {
		return ion.Params
	}
	return nil
}

func firstEventParams(s *scan.Scan) scan.Params {
	if ev := s.FirstEvent(); ev != nil {
		return ev.Params
	}
	return nil
}

// ResolvePrecursor builds the normalized precursor of s. It returns false
// when s has no precursor block or the block holds no selected ion.
func ResolvePrecursor(s *scan.Scan) (core.Precursor, bool) {
	ion := s.Precursor.FirstIon()
	if ion == nil {
		return core.Precursor{}, false
	}

	p := core.Precursor{
		MZ:        ion.MZ,
		Intensity: ion.Intensity,
		Charge:    resolveCharge(s, ion),
		IM:        resolveIonMobility(s),
	}
	if ev := s.FirstEvent(); ev != nil {
		p.RT = ev.StartTime
	}
	return p, true
}

// resolveIonMobility returns the first ion mobility value that parses as a
// float, searching ionMobilityLocations in order
func resolveIonMobility(s *scan.Scan) float64 {
	for _, location := range ionMobilityLocations {
		if im, ok := findFloat(location(s), ionMobilityNames); ok {
			return im
		}
	}
	return 0.0
}

// findFloat returns the first parameter value among names that parses
func findFloat(params scan.Params, names []string) (float64, bool) {
	for _, par := range params {
		if !isOneOf(par.Name, names) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(par.Value), 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

func isOneOf(name string, names []string) bool {
	for _, n := range names {
		if name == n {
			return true
		}
	}
	return false
}

// resolveCharge prefers the explicit ion charge, then a "charge" parameter
// on the spectrum or the ion
func resolveCharge(s *scan.Scan, ion *scan.SelectedIon) uint {
	if ion.Charge != nil {
		c := *ion.Charge
		if c < 0 {
			c = -c
		}
		return uint(c)
	}
	for _, params := range []scan.Params{s.Params, ion.Params} {
		if par, ok := params.Find(chargeParamName); ok {
			return ParseCharge(par.Value)
		}
	}
	return 0
}

// ParseCharge parses a charge string such as "2" or "2+". Anything that is
// not an unsigned integer after removing one trailing plus sign gives 0.
func ParseCharge(v string) uint {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, "+")
	c, err := strconv.ParseUint(v, 10, 0)
	if err != nil {
		return 0
	}
	return uint(c)
}
