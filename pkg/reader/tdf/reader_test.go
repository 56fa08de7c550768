package tdf

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ms2read/pkg/reader/tdf/tdftest"
	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

func ptr[T any](v T) *T { return &v }

// ddaFixture has two precursors: the first isolated in frame 2, the second
// in frame 3 whose payload decompresses to nothing.
func ddaFixture() tdftest.Fixture {
	return tdftest.Fixture{
		MzLower:             100,
		MzUpper:             1000,
		ImLower:             0.6,
		ImUpper:             1.6,
		DigitizerNumSamples: 1000,
		Frames: []tdftest.Frame{
			{ID: 1, Time: 0.1, MsMsType: 0, Scans: [][]tdftest.Peak{
				{{TOF: 400, Intensity: 50}}, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			}},
			{ID: 2, Time: 0.2, MsMsType: 8, Scans: [][]tdftest.Peak{
				nil,
				nil,
				{{TOF: 300, Intensity: 5}, {TOF: 100, Intensity: 10}},
				{{TOF: 100, Intensity: 7}},
				nil,
				nil,
				nil,
				{{TOF: 50, Intensity: 1}},
				nil,
				nil,
			}},
			{ID: 3, Time: 0.3, MsMsType: 8, Scans: make([][]tdftest.Peak, 10), Empty: true},
		},
		Precursors: []tdftest.Precursor{
			{ID: 1, LargestPeakMz: 501.5, MonoisotopicMz: ptr(502.0), Charge: ptr(2), ScanNumber: 5, Intensity: 10, Parent: 1},
			{ID: 2, LargestPeakMz: 700.25, ScanNumber: 0, Intensity: 0, Parent: 1},
		},
		Windows: []tdftest.Window{
			{Frame: 2, ScanNumBegin: 2, ScanNumEnd: 5, IsolationMz: 502, IsolationWidth: 2, CollisionEnergy: 30, Precursor: 1},
			{Frame: 3, ScanNumBegin: 0, ScanNumEnd: 10, IsolationMz: 700, IsolationWidth: 2, CollisionEnergy: 42, Precursor: 2},
		},
	}
}

func writeFixture(t *testing.T, fx tdftest.Fixture) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "dda_test.d")
	require.NoError(t, tdftest.Write(dir, fx))
	return dir
}

func expectedMz(tof float64) float64 {
	root := math.Sqrt(100) + tof*(math.Sqrt(1000)-math.Sqrt(100))/1000
	return root * root
}

func TestReadPrecursors(t *testing.T) {
	r, err := Open(writeFixture(t, ddaFixture()))
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Next())
	s, err := r.Scan()
	require.NoError(t, err)
	assert.Equal(t, "0", s.ID)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 2, s.MSLevel)
	assert.Equal(t, scan.SignalCentroid, s.Signal)

	ion := s.Precursor.FirstIon()
	require.NotNil(t, ion)
	assert.Equal(t, 502.0, ion.MZ, "monoisotopic m/z is preferred")
	assert.Equal(t, 10.0, ion.Intensity)
	require.NotNil(t, ion.Charge)
	assert.Equal(t, 2, *ion.Charge)

	im, ok := ion.Params.Find("inverse reduced ion mobility")
	require.True(t, ok)
	mobility, err := strconv.ParseFloat(im.Value, 64)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, mobility, 1e-9)

	require.NotNil(t, s.FirstEvent())
	assert.Equal(t, 0.1, s.FirstEvent().StartTime, "retention time of the parent frame")

	ce, ok := s.Precursor.Activation.Find("collision energy")
	require.True(t, ok)
	assert.Equal(t, "30", ce.Value)
}

func TestReadPeaks(t *testing.T) {
	r, err := Open(writeFixture(t, ddaFixture()))
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Next())
	s, err := r.Scan()
	require.NoError(t, err)

	// Scans 2 and 3 fall in the window, scan 7 does not
	require.Len(t, s.MZ, 2)
	assert.InDelta(t, expectedMz(100), s.MZ[0], 1e-9)
	assert.InDelta(t, expectedMz(300), s.MZ[1], 1e-9)
	assert.Equal(t, []float64{17, 5}, s.Intensity)
	assert.Less(t, s.MZ[0], s.MZ[1])
}

func TestEmptyFrameIsSkippable(t *testing.T) {
	r, err := Open(writeFixture(t, ddaFixture()))
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Next())
	require.True(t, r.Next())
	s, err := r.Scan()
	assert.Nil(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrNoBinaryData)
	assert.True(t, scan.IsSkippable(err))

	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestPrecursorFallbacks(t *testing.T) {
	fx := ddaFixture()
	fx.Windows = fx.Windows[:1]

	r, err := Open(writeFixture(t, fx))
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Next())
	require.True(t, r.Next())
	s, err := r.Scan()
	require.NoError(t, err)
	assert.Equal(t, "1", s.ID)

	ion := s.Precursor.FirstIon()
	assert.Equal(t, 700.25, ion.MZ, "largest peak m/z when monoisotopic is unknown")
	assert.Nil(t, ion.Charge)
	assert.Empty(t, s.MZ, "precursor without PASEF windows has no peaks")
	assert.Empty(t, s.Precursor.Activation)

	im, ok := ion.Params.Find("inverse reduced ion mobility")
	require.True(t, ok)
	assert.Equal(t, "1.6", im.Value, "scan 0 maps to the upper mobility boundary")
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "missing.d"))
		assert.Error(t, err)
	})

	t.Run("miniTDF layout", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "test.ms2")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "spectra.bin"), nil, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "spectra.parquet"), nil, 0o644))
		_, err := Open(dir)
		assert.ErrorIs(t, err, ErrUnsupportedLayout)
	})

	t.Run("unsupported compression", func(t *testing.T) {
		fx := ddaFixture()
		fx.CompressionType = 1
		_, err := Open(writeFixture(t, fx))
		assert.ErrorIs(t, err, ErrUnsupportedCompression)
	})
}

func TestOpenPathWithURICharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run?id=1#a b.d")
	require.NoError(t, tdftest.Write(dir, ddaFixture()))

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Next())
	s, err := r.Scan()
	require.NoError(t, err)
	assert.Equal(t, "0", s.ID)
}

func TestClose(t *testing.T) {
	r, err := Open(writeFixture(t, ddaFixture()))
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close(), "second close is a no-op")
	assert.False(t, r.Next())
}
