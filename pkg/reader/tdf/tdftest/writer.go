// Package tdftest writes small synthetic Bruker .d directories for tests.
package tdftest

import (
	"cmp"
	"database/sql"
	"encoding/binary"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// Peak is one TOF event of a mobility scan
type Peak struct {
	TOF       uint32
	Intensity uint32
}

// Frame is one TIMS frame. Scans[s] holds the peaks of mobility scan s.
type Frame struct {
	ID       int64
	Time     float64 // seconds
	MsMsType int     // 0 for MS1, 8 for DDA-PASEF
	Scans    [][]Peak
	// Empty writes a frame whose payload decompresses to nothing
	Empty bool
}

// Precursor is one row of the Precursors table. Nil pointers are stored as NULL.
type Precursor struct {
	ID             int64
	LargestPeakMz  float64
	MonoisotopicMz *float64
	Charge         *int
	ScanNumber     float64
	Intensity      float64
	Parent         int64
}

// Window is one row of PasefFrameMsMsInfo
type Window struct {
	Frame           int64
	ScanNumBegin    int
	ScanNumEnd      int
	IsolationMz     float64
	IsolationWidth  float64
	CollisionEnergy float64
	Precursor       int64
}

// Fixture describes the contents of a .d directory
type Fixture struct {
	MzLower             float64
	MzUpper             float64
	ImLower             float64
	ImUpper             float64
	DigitizerNumSamples int
	// CompressionType defaults to 2 (zstd)
	CompressionType int
	Frames          []Frame
	Precursors      []Precursor
	Windows         []Window
}

// Write creates dir with analysis.tdf and analysis.tdf_bin
func Write(dir string, fx Fixture) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	w, err := newWriter(dir)
	if err != nil {
		return err
	}
	if err := w.writeFixture(fx); err != nil {
		w.close()
		return err
	}
	return w.close()
}

// writer handles writing the tables and frames of one fixture
type writer struct {
	db            *sql.DB
	bin           *os.File
	encoder       *zstd.Encoder
	offset        int64
	frameStmt     *sql.Stmt
	precursorStmt *sql.Stmt
	windowStmt    *sql.Stmt
}

func newWriter(dir string) (*writer, error) {
	abs, err := filepath.Abs(filepath.Join(dir, "analysis.tdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	dsn := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=rwc"}
	db, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &writer{db: db}
	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	w.bin, err = os.Create(filepath.Join(dir, "analysis.tdf_bin"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create frame data: %w", err)
	}
	w.encoder, err = zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	if err != nil {
		w.bin.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return w, nil
}

// createTables creates the subset of the TDF schema that readers use
func (w *writer) createTables() error {
	schema := `
	CREATE TABLE GlobalMetadata (
		Key TEXT PRIMARY KEY,
		Value TEXT
	);

	CREATE TABLE Frames (
		Id INTEGER PRIMARY KEY,
		Time REAL NOT NULL,
		Polarity CHAR(1),
		ScanMode INTEGER,
		MsMsType INTEGER,
		TimsId INTEGER,
		MaxIntensity INTEGER,
		SummedIntensities INTEGER,
		NumScans INTEGER,
		NumPeaks INTEGER
	);

	CREATE TABLE Precursors (
		Id INTEGER PRIMARY KEY,
		LargestPeakMz REAL NOT NULL,
		AverageMz REAL NOT NULL,
		MonoisotopicMz REAL,
		Charge INTEGER,
		ScanNumber REAL NOT NULL,
		Intensity REAL NOT NULL,
		Parent INTEGER
	);

	CREATE TABLE PasefFrameMsMsInfo (
		Frame INTEGER NOT NULL,
		ScanNumBegin INTEGER NOT NULL,
		ScanNumEnd INTEGER NOT NULL,
		IsolationMz REAL NOT NULL,
		IsolationWidth REAL NOT NULL,
		CollisionEnergy REAL NOT NULL,
		Precursor INTEGER,
		PRIMARY KEY(Frame, ScanNumBegin)
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// prepareStatements prepares SQL statements for the row inserts
func (w *writer) prepareStatements() error {
	var err error

	w.frameStmt, err = w.db.Prepare(`
		INSERT INTO Frames (
			Id, Time, Polarity, ScanMode, MsMsType, TimsId,
			MaxIntensity, SummedIntensities, NumScans, NumPeaks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame statement: %w", err)
	}

	w.precursorStmt, err = w.db.Prepare(`
		INSERT INTO Precursors (
			Id, LargestPeakMz, AverageMz, MonoisotopicMz, Charge,
			ScanNumber, Intensity, Parent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare precursor statement: %w", err)
	}

	w.windowStmt, err = w.db.Prepare(`
		INSERT INTO PasefFrameMsMsInfo (
			Frame, ScanNumBegin, ScanNumEnd, IsolationMz,
			IsolationWidth, CollisionEnergy, Precursor
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare window statement: %w", err)
	}
	return nil
}

func (w *writer) writeFixture(fx Fixture) error {
	compression := fx.CompressionType
	if compression == 0 {
		compression = 2
	}
	metadata := []struct {
		key   string
		value string
	}{
		{"MzAcqRangeLower", strconv.FormatFloat(fx.MzLower, 'g', -1, 64)},
		{"MzAcqRangeUpper", strconv.FormatFloat(fx.MzUpper, 'g', -1, 64)},
		{"OneOverK0AcqRangeLower", strconv.FormatFloat(fx.ImLower, 'g', -1, 64)},
		{"OneOverK0AcqRangeUpper", strconv.FormatFloat(fx.ImUpper, 'g', -1, 64)},
		{"DigitizerNumSamples", strconv.Itoa(fx.DigitizerNumSamples)},
		{"TimsCompressionType", strconv.Itoa(compression)},
	}
	for _, m := range metadata {
		if _, err := w.db.Exec(`INSERT INTO GlobalMetadata (Key, Value) VALUES (?, ?)`, m.key, m.value); err != nil {
			return fmt.Errorf("failed to insert metadata %s: %w", m.key, err)
		}
	}

	for _, f := range fx.Frames {
		if err := w.writeFrame(f); err != nil {
			return err
		}
	}

	for _, p := range fx.Precursors {
		// Optional columns map to NULL
		var mono, charge interface{}
		if p.MonoisotopicMz != nil {
			mono = *p.MonoisotopicMz
		}
		if p.Charge != nil {
			charge = *p.Charge
		}
		_, err := w.precursorStmt.Exec(
			p.ID,            // Id
			p.LargestPeakMz, // LargestPeakMz
			p.LargestPeakMz, // AverageMz
			mono,            // MonoisotopicMz
			charge,          // Charge
			p.ScanNumber,    // ScanNumber
			p.Intensity,     // Intensity
			p.Parent,        // Parent
		)
		if err != nil {
			return fmt.Errorf("failed to insert precursor %d: %w", p.ID, err)
		}
	}

	for _, win := range fx.Windows {
		_, err := w.windowStmt.Exec(win.Frame, win.ScanNumBegin, win.ScanNumEnd,
			win.IsolationMz, win.IsolationWidth, win.CollisionEnergy, win.Precursor)
		if err != nil {
			return fmt.Errorf("failed to insert window: %w", err)
		}
	}
	return nil
}

// writeFrame appends the encoded frame to analysis.tdf_bin and records
// its offset in Frames
func (w *writer) writeFrame(f Frame) error {
	var raw []byte
	if !f.Empty {
		raw = EncodeValues(f.Scans)
	}
	blob := encodeBlob(w.encoder, raw, uint32(len(f.Scans)))

	timsID := w.offset
	if _, err := w.bin.Write(blob); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", f.ID, err)
	}
	w.offset += int64(len(blob))

	var numPeaks, maxIntensity, summed uint64
	for _, s := range f.Scans {
		for _, p := range s {
			numPeaks++
			summed += uint64(p.Intensity)
			maxIntensity = max(maxIntensity, uint64(p.Intensity))
		}
	}
	_, err := w.frameStmt.Exec(
		f.ID,         // Id
		f.Time,       // Time
		"+",          // Polarity
		9,            // ScanMode (PASEF)
		f.MsMsType,   // MsMsType
		timsID,       // TimsId
		maxIntensity, // MaxIntensity
		summed,       // SummedIntensities
		len(f.Scans), // NumScans
		numPeaks,     // NumPeaks
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame %d: %w", f.ID, err)
	}
	return nil
}

// EncodeValues builds the uncompressed frame buffer for scans: per-scan
// peak counts, then (tof delta, intensity) pairs, split into byte planes
func EncodeValues(scans [][]Peak) []byte {
	if len(scans) == 0 {
		return nil
	}
	values := make([]uint32, len(scans))
	values[0] = uint32(len(scans))
	for s := 0; s < len(scans)-1; s++ {
		values[s+1] = uint32(2 * len(scans[s]))
	}
	for _, peaks := range scans {
		sorted := slices.Clone(peaks)
		slices.SortFunc(sorted, func(a, b Peak) int {
			return cmp.Compare(a.TOF, b.TOF)
		})
		var previous uint32
		for _, p := range sorted {
			values = append(values, p.TOF+1-previous, p.Intensity)
			previous = p.TOF + 1
		}
	}
	return splitPlanes(values)
}

// splitPlanes stores the four bytes of every value in separate planes
func splitPlanes(values []uint32) []byte {
	size := len(values)
	raw := make([]byte, size*4)
	word := make([]byte, 4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(word, v)
		for j := 0; j < 4; j++ {
			raw[j*size+i] = word[j]
		}
	}
	return raw
}

// encodeBlob compresses raw and prepends the 8 byte header: total byte
// count, then count
func encodeBlob(enc *zstd.Encoder, raw []byte, count uint32) []byte {
	payload := enc.EncodeAll(raw, nil)
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:], uint32(len(header)+len(payload)))
	binary.LittleEndian.PutUint32(header[4:], count)
	return append(header, payload...)
}

func (w *writer) close() error {
	for _, stmt := range []*sql.Stmt{w.frameStmt, w.precursorStmt, w.windowStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	w.encoder.Close()
	binErr := w.bin.Close()
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return binErr
}
