// Package tdf reads DDA-PASEF MS2 spectra from Bruker timsTOF .d directories
// (analysis.tdf metadata plus analysis.tdf_bin frame data) and from miniTDF
// exports (a parquet precursor table plus a .bin file of spectra).
package tdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

const (
	metadataFile = "analysis.tdf"
	binaryFile   = "analysis.tdf_bin"
)

// Name of the ion parameter that carries the precursor mobility
const mobilityParam = "inverse reduced ion mobility"

var (
	// ErrUnsupportedLayout means the path is neither a TDF acquisition nor a
	// miniTDF export
	ErrUnsupportedLayout = errors.New("tdf: unsupported directory layout")
	// ErrUnsupportedCompression means frames use a compression other than zstd
	ErrUnsupportedCompression = errors.New("tdf: unsupported frame compression")
	// ErrCorruptFrame means a frame in analysis.tdf_bin could not be decoded
	ErrCorruptFrame = errors.New("tdf: corrupt frame")
)

// Reader yields one MS2 scan per precursor of a DDA-PASEF acquisition
type Reader struct {
	meta     *metadata
	bin      *os.File
	frames   *frameReader
	tof      tofConverter
	mobility mobilityConverter

	pos     int
	current *scan.Scan
	curErr  error
}

// Open opens the .d directory at dir. The caller must Close the reader.
func Open(dir string) (*Reader, error) {
	if err := checkLayout(dir); err != nil {
		return nil, err
	}

	meta, err := loadMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, err
	}

	bin, err := os.Open(filepath.Join(dir, binaryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame data: %w", err)
	}
	frames, err := newFrameReader(bin)
	if err != nil {
		bin.Close()
		return nil, err
	}

	g := meta.global
	return &Reader{
		meta:     meta,
		bin:      bin,
		frames:   frames,
		tof:      newTofConverter(g.mzLower, g.mzUpper, g.digitizerSamples),
		mobility: newMobilityConverter(g.imLower, g.imUpper, meta.scanMaxIndex),
		pos:      -1,
	}, nil
}

// checkLayout verifies that dir holds both TDF files
func checkLayout(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to open input directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnsupportedLayout, dir)
	}
	for _, name := range []string{metadataFile, binaryFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("%w: %s not found in %s", ErrUnsupportedLayout, name, dir)
		}
	}
	return nil
}

// Next advances to the next precursor
func (r *Reader) Next() bool {
	if r.meta == nil || r.pos+1 >= len(r.meta.precursors) {
		r.current, r.curErr = nil, nil
		return false
	}
	r.pos++
	r.current, r.curErr = r.buildScan(r.meta.precursors[r.pos])
	return true
}

// Scan returns the current scan, or the error met while decoding its frames
func (r *Reader) Scan() (*scan.Scan, error) {
	return r.current, r.curErr
}

// Err always returns nil: metadata is read by Open and per-scan failures
// are reported by Scan
func (r *Reader) Err() error {
	return nil
}

// Close releases the frame data file
func (r *Reader) Close() error {
	if r.bin == nil {
		return nil
	}
	r.frames.close()
	err := r.bin.Close()
	r.bin = nil
	r.meta = nil
	return err
}

func (r *Reader) buildScan(p precursorRow) (*scan.Scan, error) {
	index := int(p.id - 1)
	s := &scan.Scan{
		ID:      strconv.Itoa(index),
		Index:   index,
		MSLevel: 2,
		Signal:  scan.SignalCentroid,
	}

	ion := scan.SelectedIon{
		MZ: p.largestPeakMz,
		Params: scan.Params{{
			Name:  mobilityParam,
			Value: strconv.FormatFloat(r.mobility.mobility(p.scanNumber), 'g', -1, 64),
			Unit:  "Vs/cm^2",
		}},
	}
	if p.monoMz.Valid {
		ion.MZ = p.monoMz.Float64
	}
	if p.charge.Valid {
		charge := int(p.charge.Int64)
		ion.Charge = &charge
	}
	if p.intensity.Valid {
		ion.Intensity = p.intensity.Float64
	}
	s.Precursor = &scan.PrecursorBlock{Ions: []scan.SelectedIon{ion}}

	if p.parent.Valid {
		if parent, ok := r.meta.frames[p.parent.Int64]; ok {
			s.Acquisition = []scan.Event{{StartTime: parent.time}}
		}
	}

	windows := r.meta.windows[p.id]
	if len(windows) > 0 {
		w := windows[0]
		s.Precursor.Activation = scan.Params{
			{Name: "collision energy", Value: strconv.FormatFloat(w.collisionEnergy, 'g', -1, 64), Unit: "electronvolt"},
			{Name: "isolation window target m/z", Value: strconv.FormatFloat(w.isolationMz, 'g', -1, 64)},
			{Name: "isolation window width", Value: strconv.FormatFloat(w.isolationWidth, 'g', -1, 64)},
		}
	}

	mz, intensity, err := r.readPeaks(windows)
	if err != nil {
		return nil, fmt.Errorf("precursor %d: %w", p.id, err)
	}
	s.MZ, s.Intensity = mz, intensity
	return s, nil
}

// readPeaks sums the isolated scans of every PASEF window of a precursor
// into one peak list ordered by m/z
func (r *Reader) readPeaks(windows []pasefWindow) ([]float64, []float64, error) {
	summed := make(map[uint32]float64)
	for _, w := range windows {
		info, ok := r.meta.frames[w.frame]
		if !ok {
			return nil, nil, fmt.Errorf("%w: frame %d not listed in Frames", ErrCorruptFrame, w.frame)
		}
		f, err := r.frames.read(info.timsID)
		if err != nil {
			return nil, nil, fmt.Errorf("frame %d: %w", w.frame, err)
		}
		end := min(w.scanEnd, f.numScans())
		for s := max(w.scanBegin, 0); s < end; s++ {
			for p := f.offsets[s]; p < f.offsets[s+1]; p++ {
				summed[f.tof[p]] += float64(f.intensity[p])
			}
		}
	}

	tofs := make([]float64, 0, len(summed))
	for tof := range summed {
		tofs = append(tofs, float64(tof))
	}
	order := make([]int, len(tofs))
	floats.Argsort(tofs, order)

	mz := make([]float64, len(tofs))
	intensity := make([]float64, len(tofs))
	for i, tof := range tofs {
		mz[i] = r.tof.mz(uint32(tof))
		intensity[i] = summed[uint32(tof)]
	}
	return mz, intensity, nil
}
