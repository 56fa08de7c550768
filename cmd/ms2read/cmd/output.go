package cmd

import (
	"encoding/json"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/ms2read/pkg/core"
)

// writeOutput encodes data as JSON or YAML, or calls text for the default
// human-readable form
func writeOutput(w io.Writer, data interface{}, text func(io.Writer) error) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// precursorView is the serialized form of a precursor
type precursorView struct {
	Identifier  string  `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	MZ          float64 `json:"mz" yaml:"mz"`
	RT          float64 `json:"rt" yaml:"rt"`
	IM          float64 `json:"im" yaml:"im"`
	Charge      uint    `json:"charge" yaml:"charge"`
	Intensity   float64 `json:"intensity" yaml:"intensity"`
	NeutralMass float64 `json:"neutral_mass,omitempty" yaml:"neutral_mass,omitempty"`
}

func newPrecursorView(id string, p core.Precursor) precursorView {
	return precursorView{
		Identifier:  id,
		MZ:          p.MZ,
		RT:          p.RT,
		IM:          p.IM,
		Charge:      p.Charge,
		Intensity:   p.Intensity,
		NeutralMass: p.NeutralMass(),
	}
}

// spectrumView is the serialized form of an MS2 spectrum
type spectrumView struct {
	Identifier string         `json:"identifier" yaml:"identifier"`
	NumPeaks   int            `json:"num_peaks" yaml:"num_peaks"`
	Precursor  *precursorView `json:"precursor,omitempty" yaml:"precursor,omitempty"`
	MZ         []float32      `json:"mz,omitempty" yaml:"mz,flow,omitempty"`
	Intensity  []float32      `json:"intensity,omitempty" yaml:"intensity,flow,omitempty"`
}

func newSpectrumView(spec core.MS2Spectrum, withPeaks bool) spectrumView {
	v := spectrumView{
		Identifier: spec.Identifier,
		NumPeaks:   spec.NumPeaks(),
	}
	if spec.HasPrecursor() {
		p := newPrecursorView("", *spec.Precursor)
		v.Precursor = &p
	}
	if withPeaks {
		v.MZ = spec.MZ
		v.Intensity = spec.Intensity
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
