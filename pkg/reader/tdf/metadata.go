package tdf

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Compression type of the frames in analysis.tdf_bin that we can decode
const zstdCompression = 2

// globalMetadata holds the acquisition settings needed for unit conversion
type globalMetadata struct {
	mzLower          float64
	mzUpper          float64
	imLower          float64
	imUpper          float64
	digitizerSamples float64
	compression      int
}

// frameInfo is one row of the Frames table
type frameInfo struct {
	time     float64 // seconds
	timsID   int64   // byte offset in analysis.tdf_bin
	numScans int
}

// precursorRow is one row of the Precursors table
type precursorRow struct {
	id            int64
	largestPeakMz float64
	monoMz        sql.NullFloat64
	charge        sql.NullInt64
	scanNumber    float64
	intensity     sql.NullFloat64
	parent        sql.NullInt64
}

// pasefWindow is one row of PasefFrameMsMsInfo: the scan range of a frame
// in which the quadrupole isolated a precursor
type pasefWindow struct {
	frame           int64
	scanBegin       int
	scanEnd         int
	isolationMz     float64
	isolationWidth  float64
	collisionEnergy float64
}

// metadata is everything read from analysis.tdf
type metadata struct {
	global       globalMetadata
	frames       map[int64]frameInfo
	scanMaxIndex int
	precursors   []precursorRow
	windows      map[int64][]pasefWindow // keyed by precursor id
}

// loadMetadata reads analysis.tdf into memory and closes the database
func loadMetadata(path string) (*metadata, error) {
	dsn, err := readOnlyURI(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	m := &metadata{}
	if m.global, err = readGlobalMetadata(db); err != nil {
		return nil, err
	}
	if m.global.compression != zstdCompression {
		return nil, fmt.Errorf("%w: TimsCompressionType %d", ErrUnsupportedCompression, m.global.compression)
	}
	if err := m.readFrames(db); err != nil {
		return nil, err
	}
	if err := m.readPrecursors(db); err != nil {
		return nil, err
	}
	if err := m.readWindows(db); err != nil {
		return nil, err
	}
	return m, nil
}

// readOnlyURI builds a read-only SQLite URI for path. The path is escaped, so
// '?' and '#' in directory names stay part of the file name.
func readOnlyURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

func readGlobalMetadata(db *sql.DB) (globalMetadata, error) {
	var g globalMetadata

	rows, err := db.Query(`SELECT Key, Value FROM GlobalMetadata`)
	if err != nil {
		return g, fmt.Errorf("failed to query global metadata: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return g, fmt.Errorf("failed to read global metadata: %w", err)
		}
		values[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return g, fmt.Errorf("failed to read global metadata: %w", err)
	}

	floats := []struct {
		key  string
		dest *float64
	}{
		{"MzAcqRangeLower", &g.mzLower},
		{"MzAcqRangeUpper", &g.mzUpper},
		{"OneOverK0AcqRangeLower", &g.imLower},
		{"OneOverK0AcqRangeUpper", &g.imUpper},
		{"DigitizerNumSamples", &g.digitizerSamples},
	}
	for _, f := range floats {
		text, ok := values[f.key]
		if !ok {
			return g, fmt.Errorf("global metadata: missing %s", f.key)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return g, fmt.Errorf("global metadata: invalid %s '%s': %w", f.key, text, err)
		}
		*f.dest = v
	}
	if g.digitizerSamples <= 0 {
		return g, fmt.Errorf("global metadata: DigitizerNumSamples must be positive")
	}

	text, ok := values["TimsCompressionType"]
	if !ok {
		return g, fmt.Errorf("global metadata: missing TimsCompressionType")
	}
	if g.compression, err = strconv.Atoi(text); err != nil {
		return g, fmt.Errorf("global metadata: invalid TimsCompressionType '%s': %w", text, err)
	}
	return g, nil
}

func (m *metadata) readFrames(db *sql.DB) error {
	rows, err := db.Query(`SELECT Id, Time, TimsId, NumScans FROM Frames`)
	if err != nil {
		return fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	m.frames = make(map[int64]frameInfo)
	for rows.Next() {
		var id int64
		var info frameInfo
		if err := rows.Scan(&id, &info.time, &info.timsID, &info.numScans); err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}
		m.frames[id] = info
		if info.numScans > m.scanMaxIndex {
			m.scanMaxIndex = info.numScans
		}
	}
	return rows.Err()
}

func (m *metadata) readPrecursors(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT Id, LargestPeakMz, MonoisotopicMz, Charge, ScanNumber, Intensity, Parent
		FROM Precursors
		ORDER BY Id
	`)
	if err != nil {
		return fmt.Errorf("failed to query precursors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p precursorRow
		if err := rows.Scan(&p.id, &p.largestPeakMz, &p.monoMz, &p.charge,
			&p.scanNumber, &p.intensity, &p.parent); err != nil {
			return fmt.Errorf("failed to read precursor: %w", err)
		}
		m.precursors = append(m.precursors, p)
	}
	return rows.Err()
}

func (m *metadata) readWindows(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT Frame, ScanNumBegin, ScanNumEnd, IsolationMz, IsolationWidth, CollisionEnergy, Precursor
		FROM PasefFrameMsMsInfo
		ORDER BY Precursor, Frame
	`)
	if err != nil {
		return fmt.Errorf("failed to query PASEF windows: %w", err)
	}
	defer rows.Close()

	m.windows = make(map[int64][]pasefWindow)
	for rows.Next() {
		var w pasefWindow
		var precursor sql.NullInt64
		if err := rows.Scan(&w.frame, &w.scanBegin, &w.scanEnd, &w.isolationMz,
			&w.isolationWidth, &w.collisionEnergy, &precursor); err != nil {
			return fmt.Errorf("failed to read PASEF window: %w", err)
		}
		if !precursor.Valid {
			continue
		}
		m.windows[precursor.Int64] = append(m.windows[precursor.Int64], w)
	}
	return rows.Err()
}
