// Package scan defines the decoded-scan model that every format reader
// produces, and the Source interface the dispatcher drives.
package scan

import (
	"errors"
)

// Signal describes how the peak arrays of a scan were recorded.
type Signal int

const (
	SignalUnknown Signal = iota
	SignalCentroid
	SignalProfile
)

// Param is a free-text metadata entry attached to some level of a scan.
// Controlled-vocabulary terms and user parameters both map onto it.
type Param struct {
	Name      string
	Value     string
	Accession string // empty for user parameters
	Unit      string
}

// Params is an ordered list of parameters.
type Params []Param

// Find returns the first parameter whose name equals one of names.
func (p Params) Find(names ...string) (Param, bool) {
	for _, par := range p {
		for _, name := range names {
			if par.Name == name {
				return par, true
			}
		}
	}
	return Param{}, false
}

// Accession returns the first parameter with the given CV accession.
func (p Params) Accession(acc string) (Param, bool) {
	for _, par := range p {
		if par.Accession == acc {
			return par, true
		}
	}
	return Param{}, false
}

// SelectedIon is one ion of a precursor block.
type SelectedIon struct {
	MZ        float64
	Intensity float64
	Charge    *int // nil when the source carries no explicit charge
	Params    Params
}

// PrecursorBlock describes the isolation that produced an MSn scan.
type PrecursorBlock struct {
	Ions       []SelectedIon
	Activation Params
}

// FirstIon returns the primary selected ion, or nil if there is none.
func (b *PrecursorBlock) FirstIon() *SelectedIon {
	if b == nil || len(b.Ions) == 0 {
		return nil
	}
	return &b.Ions[0]
}

// Event is one acquisition scan event of a spectrum.
type Event struct {
	StartTime float64
	Params    Params
}

// Scan is one decoded spectrum as emitted by a reader.
type Scan struct {
	ID          string
	Index       int
	MSLevel     int
	Signal      Signal
	Params      Params // spectrum description parameters
	Precursor   *PrecursorBlock
	Acquisition []Event
	MZ          []float64
	Intensity   []float64
}

// FirstEvent returns the first acquisition event, or nil.
func (s *Scan) FirstEvent() *Event {
	if len(s.Acquisition) == 0 {
		return nil
	}
	return &s.Acquisition[0]
}

// CentroidPeaks returns the scan peaks in centroid form. Profile data is not
// peak picked here and yields ErrNotCentroided.
func (s *Scan) CentroidPeaks() ([]float64, []float64, error) {
	if s.Signal == SignalProfile {
		return nil, nil, ErrNotCentroided
	}
	if len(s.MZ) != len(s.Intensity) {
		return nil, nil, ErrPeakArrayMismatch
	}
	return s.MZ, s.Intensity, nil
}

var (
	// ErrNotCentroided means a scan only holds profile data
	ErrNotCentroided = errors.New("scan: profile spectrum cannot be converted to centroid peaks")
	// ErrPeakArrayMismatch means the m/z and intensity arrays differ in length
	ErrPeakArrayMismatch = errors.New("scan: m/z and intensity arrays differ in length")
	// ErrNoBinaryData means the binary payload of a scan decompressed to
	// nothing. The scan is dropped and reading continues.
	ErrNoBinaryData = errors.New("scan: no binary data")
)

// IsSkippable reports whether a per-scan error only drops that scan.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrNoBinaryData)
}
