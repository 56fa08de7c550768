package parse

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ms2read/pkg/core"
	"github.com/ChrisMcGann/ms2read/pkg/filetype"
	"github.com/ChrisMcGann/ms2read/pkg/reader/tdf/tdftest"
	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

func ptr[T any](v T) *T { return &v }

// writeDDA writes a .d directory with three precursors. The frame of the
// second precursor holds no data.
func writeDDA(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "dda_test.d")
	fx := tdftest.Fixture{
		MzLower:             100,
		MzUpper:             1700,
		ImLower:             0.6,
		ImUpper:             1.6,
		DigitizerNumSamples: 200000,
		Frames: []tdftest.Frame{
			{ID: 1, Time: 0.1, Scans: make([][]tdftest.Peak, 100)},
			{ID: 2, Time: 0.2, MsMsType: 8, Scans: [][]tdftest.Peak{
				{{TOF: 1000, Intensity: 162}},
				{{TOF: 1000, Intensity: 8}, {TOF: 5000, Intensity: 3}},
			}},
			{ID: 3, Time: 0.3, MsMsType: 8, Empty: true},
			{ID: 4, Time: 0.4, MsMsType: 8, Scans: [][]tdftest.Peak{{{TOF: 7000, Intensity: 11}}}},
		},
		Precursors: []tdftest.Precursor{
			{ID: 1, LargestPeakMz: 500, MonoisotopicMz: ptr(500.5), Charge: ptr(2), ScanNumber: 25, Intensity: 20, Parent: 1},
			{ID: 2, LargestPeakMz: 600, Charge: ptr(3), ScanNumber: 50, Intensity: 15, Parent: 1},
			{ID: 3, LargestPeakMz: 502, MonoisotopicMz: ptr(502.0), Charge: ptr(2), ScanNumber: 35, Intensity: 10, Parent: 4},
		},
		Windows: []tdftest.Window{
			{Frame: 2, ScanNumBegin: 0, ScanNumEnd: 2, IsolationMz: 500, IsolationWidth: 2, CollisionEnergy: 25, Precursor: 1},
			{Frame: 3, ScanNumBegin: 0, ScanNumEnd: 2, IsolationMz: 600, IsolationWidth: 2, CollisionEnergy: 30, Precursor: 2},
			{Frame: 4, ScanNumBegin: 0, ScanNumEnd: 1, IsolationMz: 502, IsolationWidth: 2, CollisionEnergy: 30, Precursor: 3},
		},
	}
	require.NoError(t, tdftest.Write(dir, fx))
	return dir
}

func TestPrecursorInfoMGF(t *testing.T) {
	precursors, err := PrecursorInfo("testdata/test.mgf")
	require.NoError(t, err)
	require.Len(t, precursors, 1)

	p := precursors["peptide1"]
	assert.InDelta(t, 475.137295, p.MZ, 1e-4)
	assert.Equal(t, uint(2), p.Charge)
	assert.Zero(t, p.Intensity)
	assert.InDelta(t, 0.853, p.RT, 1e-3)
	assert.Equal(t, 42.42, p.IM)
}

func TestMGFWithoutPrecursor(t *testing.T) {
	precursors, err := PrecursorInfo("testdata/two_scans.mgf")
	require.NoError(t, err)
	require.Len(t, precursors, 1, "scans without PEPMASS are left out")

	p := precursors["first"]
	assert.Equal(t, 500.1, p.MZ)
	assert.Equal(t, uint(2), p.Charge)
	assert.Equal(t, 1.2, p.IM)
	assert.InDelta(t, 1.0, p.RT, 1e-12)

	spectra, err := MS2Spectra("testdata/two_scans.mgf")
	require.NoError(t, err)
	require.Len(t, spectra, 2)
	assert.Equal(t, "first", spectra[0].Identifier)
	require.NotNil(t, spectra[0].Precursor)
	assert.Equal(t, "second", spectra[1].Identifier)
	assert.Nil(t, spectra[1].Precursor)
	assert.Equal(t, []float32{300.5}, spectra[1].MZ)
}

func TestMS2SpectraMGF(t *testing.T) {
	spectra, err := MS2Spectra("testdata/test.mgf")
	require.NoError(t, err)
	require.Len(t, spectra, 1)

	spectrum := spectra[0]
	assert.Equal(t, "peptide1", spectrum.Identifier)
	assert.InDelta(t, 72.04439, spectrum.MZ[0], 1e-4)
	assert.InDelta(t, 100.0, spectrum.Intensity[0], 1e-4)
	assert.InDelta(t, 423.11802, spectrum.MZ[len(spectrum.MZ)-1], 1e-4)
	assert.InDelta(t, 200.0, spectrum.Intensity[len(spectrum.Intensity)-1], 1e-4)
	assert.NoError(t, spectrum.Validate())
}

func TestPrecursorInfoMzML(t *testing.T) {
	precursors, err := PrecursorInfo("testdata/test.mzML")
	require.NoError(t, err)
	require.Len(t, precursors, 2, "MS1 scans and precursors without selected ions are left out")

	p := precursors["index=3"]
	assert.InDelta(t, 1007.8454, p.MZ, 1e-4)
	assert.Equal(t, uint(3), p.Charge)
	assert.Zero(t, p.Intensity)
	assert.InDelta(t, 40.0138, p.RT, 1e-3)
	assert.Equal(t, 1.21, p.IM)

	p = precursors["scan=2"]
	assert.Equal(t, 445.3, p.MZ)
	assert.Equal(t, uint(2), p.Charge, "charge from the spectrum user parameter")
	assert.Equal(t, 2000.0, p.Intensity)
	assert.InDelta(t, 0.5, p.RT, 1e-12)
	assert.Equal(t, 0.85, p.IM, "mobility from the scan event")
}

func TestMS2SpectraMzML(t *testing.T) {
	spectra, err := MS2Spectra("testdata/centroid.mzML")
	require.NoError(t, err)
	require.Len(t, spectra, 2)

	assert.Equal(t, "scan=2", spectra[0].Identifier)
	assert.Equal(t, []float32{150.5, 250.75}, spectra[0].MZ)
	assert.Equal(t, []float32{100, 200}, spectra[0].Intensity)
	assert.Equal(t, "index=3", spectra[1].Identifier)
	assert.Equal(t, float32(101.071), spectra[1].MZ[0])
}

func TestMalformedMzMLCharge(t *testing.T) {
	doc, err := os.ReadFile("testdata/centroid.mzML")
	require.NoError(t, err)

	tests := []struct {
		value string
		want  uint
	}{
		{"3+", 3},
		{"two", 0},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			edited := strings.Replace(string(doc),
				`name="charge state" value="3"`, `name="charge state" value="`+tt.value+`"`, 1)
			path := filepath.Join(t.TempDir(), "charge.mzML")
			require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

			precursors, err := PrecursorInfo(path)
			require.NoError(t, err)
			require.Len(t, precursors, 2)
			assert.Equal(t, tt.want, precursors["index=3"].Charge)
			assert.InDelta(t, 1007.8454, precursors["index=3"].MZ, 1e-4)

			spectra, err := MS2Spectra(path)
			require.NoError(t, err)
			require.Len(t, spectra, 2)
			require.NotNil(t, spectra[1].Precursor)
			assert.Equal(t, tt.want, spectra[1].Precursor.Charge)
		})
	}
}

func TestMS2SpectraProfileFails(t *testing.T) {
	_, err := MS2Spectra("testdata/test.mzML")
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrNotCentroided)

	var decodeErr *core.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "mzML", decodeErr.Format)
	assert.Equal(t, "testdata/test.mzML", decodeErr.Path)
}

func TestBrukerTDF(t *testing.T) {
	dir := writeDDA(t)

	precursors, err := PrecursorInfo(dir)
	require.NoError(t, err)
	require.Len(t, precursors, 2, "the scan with an empty frame is dropped")

	p := precursors["2"]
	assert.InDelta(t, 502.0, p.MZ, 1e-4)
	assert.Equal(t, uint(2), p.Charge)
	assert.Equal(t, 10.0, p.Intensity)
	assert.InDelta(t, 0.4, p.RT, 1e-3)
	assert.InDelta(t, 1.25, p.IM, 1e-9)

	spectra, err := MS2Spectra(dir)
	require.NoError(t, err)
	require.Len(t, spectra, 2)
	assert.Equal(t, "0", spectra[0].Identifier)
	assert.Equal(t, []float32{170, 3}, spectra[0].Intensity)
	assert.Equal(t, "2", spectra[1].Identifier)
	require.NotNil(t, spectra[1].Precursor)
	assert.Equal(t, uint(2), spectra[1].Precursor.Charge)
}

// writeMiniTDF writes a miniTDF directory with three precursors
func writeMiniTDF(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "test.ms2")
	fx := tdftest.MiniFixture{
		Name: "test",
		Spectra: []tdftest.MiniSpectrum{
			{ID: 1, RetentionTime: 0.1, MonoisotopicMz: 421.7, Charge: ptr(int64(2)), Mobility: 0.95,
				PeakMZ: []float64{190.1070556640625, 305.5}, PeakIntensity: []float32{350, 20}},
			{ID: 2, RetentionTime: 0.2, MonoisotopicMz: 733.4, Mobility: 1.1,
				PeakMZ: []float64{250.25}, PeakIntensity: []float32{15}},
			{ID: 3, RetentionTime: 0.3, MonoisotopicMz: 502, Charge: ptr(int64(2)), Mobility: 1.3,
				PeakMZ: []float64{110.1, 640.3}, PeakIntensity: []float32{5, 9}},
		},
	}
	require.NoError(t, tdftest.WriteMini(dir, fx))
	return dir
}

func TestBrukerMiniTDF(t *testing.T) {
	dir := writeMiniTDF(t)
	assert.True(t, IsSupportedFileType(dir))

	precursors, err := PrecursorInfo(dir)
	require.NoError(t, err)
	require.Len(t, precursors, 3)

	p := precursors["3"]
	assert.InDelta(t, 502.0, p.MZ, 1e-4)
	assert.Equal(t, uint(2), p.Charge)
	assert.Zero(t, p.Intensity)
	assert.InDelta(t, 0.3, p.RT, 1e-3)
	assert.Equal(t, 1.3, p.IM)
	assert.Zero(t, precursors["2"].Charge)

	spectra, err := MS2Spectra(dir)
	require.NoError(t, err)
	require.Len(t, spectra, 3)
	assert.Equal(t, "1", spectra[0].Identifier)
	assert.InDelta(t, 190.1070556640625, spectra[0].MZ[0], 1e-4)
	assert.InDelta(t, 350.0, spectra[0].Intensity[0], 1e-4)
	assert.NoError(t, spectra[0].Validate())
}

func TestUnsupportedFileType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	assert.False(t, IsSupportedFileType(path))
	assert.False(t, IsSupportedFileType(dir), "directory without bin and parquet files")

	_, err := PrecursorInfo(path)
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
	_, err = MS2Spectra(path)
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
}

func TestIsSupportedFileType(t *testing.T) {
	assert.True(t, IsSupportedFileType("testdata/test.mgf"))
	assert.True(t, IsSupportedFileType("testdata/test.mzML"))
	assert.True(t, IsSupportedFileType("does/not/exist.d"))
	assert.False(t, IsSupportedFileType("does/not/exist.raw"))
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.mgf")
	require.NoError(t, os.WriteFile(bad, []byte("BEGIN IONS\nTITLE=x\n100.0 abc\nEND IONS\n"), 0o644))

	_, err := MS2Spectra(bad)
	var decodeErr *core.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "mgf", decodeErr.Format)
	assert.Contains(t, err.Error(), "invalid intensity value")

	_, err = PrecursorInfo(filepath.Join(dir, "missing.mgf"))
	require.True(t, errors.As(err, &decodeErr))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = PrecursorInfo(filepath.Join(dir, "missing.d"))
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "bruker", decodeErr.Format)
}

func TestOpen(t *testing.T) {
	src, format, err := Open("testdata/test.mgf")
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, filetype.OpenText, format)

	require.True(t, src.Next())
	s, err := src.Scan()
	require.NoError(t, err)
	assert.Equal(t, "peptide1", s.ID)
	assert.False(t, src.Next())
	assert.NoError(t, src.Err())

	_, format, err = Open("spectra.raw")
	assert.Equal(t, filetype.Unsupported, format)
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
}

func TestRepeatedCallsAreIdentical(t *testing.T) {
	paths := []string{"testdata/test.mgf", "testdata/two_scans.mgf", "testdata/centroid.mzML", writeDDA(t), writeMiniTDF(t)}
	for _, path := range paths {
		first, err := MS2Spectra(path)
		require.NoError(t, err)
		second, err := MS2Spectra(path)
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("MS2Spectra(%s) differs between calls (-first +second):\n%s", path, diff)
		}

		p1, err := PrecursorInfo(path)
		require.NoError(t, err)
		p2, err := PrecursorInfo(path)
		require.NoError(t, err)
		if diff := cmp.Diff(p1, p2); diff != "" {
			t.Errorf("PrecursorInfo(%s) differs between calls (-first +second):\n%s", path, diff)
		}
	}
}
