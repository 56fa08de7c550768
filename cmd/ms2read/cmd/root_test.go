package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testMGF = "../../../pkg/parse/testdata/test.mgf"

// execute runs the root command with args and returns what it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Flag variables are package level, reset them between runs
	outputFormat = "text"
	verbose = false
	showPeaks = false
	topN = 0
	cutoffPercent = 0
	removeZero = false

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "ms2read", rootCmd.Use)
	assert.Contains(t, rootCmd.Long, "MGF")
	assert.NotEmpty(t, rootCmd.Version)
}

func TestCommandPresence(t *testing.T) {
	for _, name := range []string{"detect", "precursors", "spectra"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := rootCmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	verboseFlag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := rootCmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestSpectraCommandFlags(t *testing.T) {
	sub, _, err := rootCmd.Find([]string{"spectra"})
	require.NoError(t, err)

	for _, name := range []string{"peaks", "top-n", "cutoff", "remove-zero"} {
		assert.NotNil(t, sub.Flags().Lookup(name), "flag %s", name)
	}
}

func TestDetect(t *testing.T) {
	out, err := execute(t, "detect", "a.mgf", "b.mzML", "c.d", "d.raw")
	require.NoError(t, err)
	assert.Equal(t, "a.mgf\tmgf\nb.mzML\tmzML\nc.d\tbruker\nd.raw\tunsupported\n", out)
}

func TestDetectJSON(t *testing.T) {
	out, err := execute(t, "detect", "--format", "json", "a.mgf")
	require.NoError(t, err)

	var got []detection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, detection{Path: "a.mgf", Format: "mgf", Supported: true}, got[0])
}

func TestPrecursors(t *testing.T) {
	out, err := execute(t, "precursors", testMGF)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "identifier\tmz\trt\tim\tcharge\tintensity", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "peptide1\t475.137295\t"))
	assert.True(t, strings.HasSuffix(lines[1], "\t42.42\t2\t0"))
}

func TestPrecursorsYAML(t *testing.T) {
	out, err := execute(t, "precursors", "--format", "yaml", testMGF)
	require.NoError(t, err)

	var got []precursorView
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "peptide1", got[0].Identifier)
	assert.Equal(t, uint(2), got[0].Charge)
	assert.Equal(t, 42.42, got[0].IM)
	assert.Greater(t, got[0].NeutralMass, 900.0)
}

func TestSpectra(t *testing.T) {
	out, err := execute(t, "spectra", testMGF)
	require.NoError(t, err)
	assert.Equal(t, "peptide1\t4\t475.137295/2\n", out)

	out, err = execute(t, "spectra", "--peaks", "--top-n", "2", testMGF)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "peptide1\t2\t475.137295/2", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  148.06"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], "\t600"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "  232.07"), lines[2])
	assert.True(t, strings.HasSuffix(lines[2], "\t300"), lines[2])
}

func TestSpectraJSON(t *testing.T) {
	out, err := execute(t, "spectra", "--format", "json", "--peaks", testMGF)
	require.NoError(t, err)

	var got []spectrumView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].NumPeaks)
	assert.Len(t, got[0].MZ, 4)
	require.NotNil(t, got[0].Precursor)
	assert.Equal(t, uint(2), got[0].Precursor.Charge)
}

func TestErrors(t *testing.T) {
	_, err := execute(t, "precursors", "spectra.raw")
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = execute(t, "spectra", "--format", "xml", testMGF)
	assert.ErrorContains(t, err, "invalid output format")

	_, err = execute(t, "precursors")
	assert.Error(t, err, "path is required")
}
