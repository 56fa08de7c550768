// Package mgf provides a streaming reader for Mascot Generic Format peak lists
package mgf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// Maximum length of a single MGF line
const maxLineLength = 1024 * 1024

// Reader provides streaming access to MGF files
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	lineNum int
	index   int
	current *scan.Scan
	err     error
}

// NewReader creates a new MGF reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &Reader{
		scanner: scanner,
	}
}

// Open opens an MGF file for reading. The caller must Close the reader.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.current = nil

	s, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.current = s
	r.index++
	return true
}

// Scan returns the current spectrum
func (r *Reader) Scan() (*scan.Scan, error) {
	return r.current, nil
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// Close closes the underlying file, if the reader opened it
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// readSpectrum reads one BEGIN IONS ... END IONS block
func (r *Reader) readSpectrum() (*scan.Scan, error) {
	var s *scan.Scan

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if s == nil {
			// Outside a block only comments and global parameters occur
			if strings.EqualFold(line, "BEGIN IONS") {
				s = &scan.Scan{
					Index:   r.index,
					MSLevel: 2,
					Signal:  scan.SignalCentroid,
				}
			}
			continue
		}

		if strings.EqualFold(line, "END IONS") {
			if s.ID == "" {
				s.ID = fmt.Sprintf("index=%d", r.index)
			}
			return s, nil
		}

		if key, value, ok := strings.Cut(line, "="); ok {
			if err := parseHeader(s, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			continue
		}

		if err := parsePeak(s, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if s != nil {
		return nil, fmt.Errorf("line %d: missing END IONS", r.lineNum)
	}
	return nil, io.EOF
}

// parseHeader stores one KEY=VALUE line of a spectrum block
func parseHeader(s *scan.Scan, key string, value string) error {
	switch strings.ToUpper(key) {
	case "TITLE":
		s.ID = value

	case "PEPMASS":
		ion, err := parsePepMass(value)
		if err != nil {
			return err
		}
		s.Precursor = &scan.PrecursorBlock{Ions: []scan.SelectedIon{ion}}

	case "RTINSECONDS":
		if rt, ok := parseRetentionTime(value); ok {
			// Scan start times are kept in minutes
			s.Acquisition = []scan.Event{{StartTime: rt / 60.0}}
		}

	default:
		// CHARGE and everything else stay free text, keyed by the lowercase name
		s.Params = append(s.Params, scan.Param{
			Name:  strings.ToLower(key),
			Value: value,
		})
	}
	return nil
}

// parsePepMass parses "mz [intensity]"
func parsePepMass(value string) (scan.SelectedIon, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return scan.SelectedIon{}, fmt.Errorf("empty PEPMASS")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return scan.SelectedIon{}, fmt.Errorf("invalid PEPMASS m/z '%s': %w", fields[0], err)
	}
	ion := scan.SelectedIon{MZ: mz}

	if len(fields) >= 2 {
		intensity, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return scan.SelectedIon{}, fmt.Errorf("invalid PEPMASS intensity '%s': %w", fields[1], err)
		}
		ion.Intensity = intensity
	}
	return ion, nil
}

// parseRetentionTime accepts a single value or the first value of a range
// such as "51.1-52.3"
func parseRetentionTime(value string) (float64, bool) {
	if rt, err := strconv.ParseFloat(value, 64); err == nil {
		return rt, true
	}
	if first, _, ok := strings.Cut(value, "-"); ok {
		if rt, err := strconv.ParseFloat(strings.TrimSpace(first), 64); err == nil {
			return rt, true
		}
	}
	return 0, false
}

// parsePeak parses a single peak line (format: "mz intensity [charge]")
func parsePeak(s *scan.Scan, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("invalid m/z value: %w", err)
	}

	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("invalid intensity value: %w", err)
	}

	s.MZ = append(s.MZ, mz)
	s.Intensity = append(s.Intensity, intensity)
	return nil
}
