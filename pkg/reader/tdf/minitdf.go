package tdf

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// File name suffixes of a miniTDF export
const (
	miniBinarySuffix = ".ms2spectrum.bin"
	miniTableSuffix  = ".ms2spectrum.parquet"
)

// miniPrecursor is one row of the ms2spectrum parquet table
type miniPrecursor struct {
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

// MiniReader yields the MS2 spectra of a miniTDF export: a directory with a
// parquet table of precursors and a .bin file of centroided spectra
type MiniReader struct {
	rows  []miniPrecursor
	bin   *os.File
	blobs *frameReader

	pos     int
	current *scan.Scan
	curErr  error
}

// OpenSource opens a Bruker directory: a TDF acquisition when it holds
// analysis.tdf, a miniTDF export otherwise
func OpenSource(path string) (scan.Source, error) {
	if _, err := os.Stat(filepath.Join(path, metadataFile)); err == nil {
		r, err := Open(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := OpenMini(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// OpenMini opens the miniTDF directory at dir. The caller must Close the
// reader.
func OpenMini(dir string) (*MiniReader, error) {
	binPath, tablePath, err := findMiniFiles(dir)
	if err != nil {
		return nil, err
	}

	rows, err := parquet.ReadFile[miniPrecursor](tablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read precursor table: %w", err)
	}

	bin, err := os.Open(binPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open spectrum data: %w", err)
	}
	blobs, err := newFrameReader(bin)
	if err != nil {
		bin.Close()
		return nil, err
	}
	return &MiniReader{rows: rows, bin: bin, blobs: blobs, pos: -1}, nil
}

// findMiniFiles locates the spectrum data and precursor table in dir.
// Files named *.ms2spectrum.* win over other .bin and .parquet files.
func findMiniFiles(dir string) (string, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to open input directory: %w", err)
	}

	var bin, table string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, miniBinarySuffix):
			bin = name
		case strings.HasSuffix(name, miniTableSuffix):
			table = name
		case bin == "" && filepath.Ext(name) == ".bin":
			bin = name
		case table == "" && filepath.Ext(name) == ".parquet":
			table = name
		}
	}
	if bin == "" || table == "" {
		return "", "", fmt.Errorf("%w: %s holds neither analysis.tdf nor a .bin and .parquet pair",
			ErrUnsupportedLayout, dir)
	}
	return filepath.Join(dir, bin), filepath.Join(dir, table), nil
}

// Next advances to the next precursor
func (r *MiniReader) Next() bool {
	if r.pos+1 >= len(r.rows) {
		r.current, r.curErr = nil, nil
		return false
	}
	r.pos++
	r.current, r.curErr = r.buildScan(r.pos, r.rows[r.pos])
	return true
}

// Scan returns the current scan, or the error met while decoding its peaks
func (r *MiniReader) Scan() (*scan.Scan, error) {
	return r.current, r.curErr
}

// Err always returns nil: the precursor table is read by OpenMini
func (r *MiniReader) Err() error {
	return nil
}

// Close releases the spectrum data file
func (r *MiniReader) Close() error {
	if r.bin == nil {
		return nil
	}
	r.blobs.close()
	err := r.bin.Close()
	r.bin = nil
	r.rows = nil
	return err
}

func (r *MiniReader) buildScan(index int, p miniPrecursor) (*scan.Scan, error) {
	s := &scan.Scan{
		ID:          strconv.FormatInt(p.ID, 10),
		Index:       index,
		MSLevel:     2,
		Signal:      scan.SignalCentroid,
		Acquisition: []scan.Event{{StartTime: p.RetentionTime}},
	}

	ion := scan.SelectedIon{
		MZ:        p.MonoisotopicMz,
		Intensity: p.Intensity,
		Params: scan.Params{{
			Name:  mobilityParam,
			Value: strconv.FormatFloat(p.Mobility, 'g', -1, 64),
			Unit:  "Vs/cm^2",
		}},
	}
	if p.Charge != nil {
		charge := int(*p.Charge)
		ion.Charge = &charge
	}
	s.Precursor = &scan.PrecursorBlock{
		Ions: []scan.SelectedIon{ion},
		Activation: scan.Params{
			{Name: "collision energy", Value: strconv.FormatFloat(p.CollisionEnergy, 'g', -1, 64), Unit: "electronvolt"},
			{Name: "isolation window target m/z", Value: strconv.FormatFloat(p.IsolationMz, 'g', -1, 64)},
			{Name: "isolation window width", Value: strconv.FormatFloat(p.IsolationWidth, 'g', -1, 64)},
		},
	}

	mz, intensity, err := r.readSpectrum(p.Offset)
	if err != nil {
		return nil, fmt.Errorf("precursor %d: %w", p.ID, err)
	}
	s.MZ, s.Intensity = mz, intensity
	return s, nil
}

// readSpectrum decodes the blob at offset. Its values hold every m/z as a
// little-endian float64 spread over two words, followed by one float32
// intensity per peak.
func (r *MiniReader) readSpectrum(offset int64) ([]float64, []float64, error) {
	values, _, err := r.blobs.readBlob(offset)
	if err != nil {
		return nil, nil, err
	}
	if len(values)%3 != 0 {
		return nil, nil, fmt.Errorf("%w: %d values do not split into peaks", ErrCorruptFrame, len(values))
	}

	n := len(values) / 3
	mz := make([]float64, n)
	intensity := make([]float64, n)
	for i := 0; i < n; i++ {
		mz[i] = math.Float64frombits(uint64(values[2*i]) | uint64(values[2*i+1])<<32)
		intensity[i] = float64(math.Float32frombits(values[2*n+i]))
	}
	return mz, intensity, nil
}
