package tdftest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
)

// MiniSpectrum is one precursor of a miniTDF export together with its
// centroided peaks
type MiniSpectrum struct {
	ID              int64
	RetentionTime   float64 // seconds
	MonoisotopicMz  float64
	Charge          *int64
	Intensity       float64
	Mobility        float64
	CollisionEnergy float64
	IsolationMz     float64
	IsolationWidth  float64

	PeakMZ        []float64
	PeakIntensity []float32
	// Empty writes a blob without payload
	Empty bool
}

// MiniFixture describes the contents of a miniTDF directory
type MiniFixture struct {
	// Name is the file name stem, defaults to "spectra"
	Name    string
	Spectra []MiniSpectrum
}

// miniRow is one row of the ms2spectrum parquet table
type miniRow struct {
	ID              int64   `parquet:"Id"`
	RetentionTime   float64 `parquet:"RetentionTime"`
	MonoisotopicMz  float64 `parquet:"MonoisotopicMz"`
	Charge          *int64  `parquet:"Charge,optional"`
	Intensity       float64 `parquet:"Intensity"`
	Mobility        float64 `parquet:"ooK0"`
	CollisionEnergy float64 `parquet:"CollisionEnergy"`
	IsolationMz     float64 `parquet:"IsolationMz"`
	IsolationWidth  float64 `parquet:"IsolationWidth"`
	Offset          int64   `parquet:"binary_offset"`
}

// WriteMini creates dir with <name>.ms2spectrum.bin and
// <name>.ms2spectrum.parquet
func WriteMini(dir string, fx MiniFixture) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	name := fx.Name
	if name == "" {
		name = "spectra"
	}

	enc, err := zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()

	var bin []byte
	rows := make([]miniRow, 0, len(fx.Spectra))
	for _, s := range fx.Spectra {
		if len(s.PeakMZ) != len(s.PeakIntensity) {
			return fmt.Errorf("spectrum %d: %d m/z values for %d intensities",
				s.ID, len(s.PeakMZ), len(s.PeakIntensity))
		}
		rows = append(rows, miniRow{
			ID:              s.ID,
			RetentionTime:   s.RetentionTime,
			MonoisotopicMz:  s.MonoisotopicMz,
			Charge:          s.Charge,
			Intensity:       s.Intensity,
			Mobility:        s.Mobility,
			CollisionEnergy: s.CollisionEnergy,
			IsolationMz:     s.IsolationMz,
			IsolationWidth:  s.IsolationWidth,
			Offset:          int64(len(bin)),
		})

		if s.Empty {
			bin = append(bin, encodeBlob(enc, nil, 0)...)
			continue
		}
		bin = append(bin, encodeBlob(enc, EncodeSpectrum(s.PeakMZ, s.PeakIntensity), uint32(len(s.PeakMZ)))...)
	}

	if err := os.WriteFile(filepath.Join(dir, name+".ms2spectrum.bin"), bin, 0o644); err != nil {
		return fmt.Errorf("failed to write spectrum data: %w", err)
	}
	if err := parquet.WriteFile(filepath.Join(dir, name+".ms2spectrum.parquet"), rows); err != nil {
		return fmt.Errorf("failed to write precursor table: %w", err)
	}
	return nil
}

// EncodeSpectrum builds the uncompressed miniTDF spectrum buffer: the m/z
// values as float64 words, then the intensities as float32, split into
// byte planes
func EncodeSpectrum(mz []float64, intensity []float32) []byte {
	values := make([]uint32, 0, 3*len(mz))
	for _, v := range mz {
		bits := math.Float64bits(v)
		values = append(values, uint32(bits), uint32(bits>>32))
	}
	for _, v := range intensity {
		values = append(values, math.Float32bits(v))
	}
	return splitPlanes(values)
}
