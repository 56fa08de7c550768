package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML
	found := false

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		switch t := t.(type) {
		case xml.StartElement:
			if t.Name.Local == "mzML" {
				if err := d.DecodeElement(&mzML.content, &t); err != nil {
					return mzML, err
				}
				found = true
			}
		}
	}
	if !found {
		return mzML, ErrNoSpectra
	}

	mzML.collectParamGroups()
	err := mzML.traverseScan()
	return mzML, err
}

// collectParamGroups indexes the referenceable parameter groups by id
func (f *MzML) collectParamGroups() {
	groups := f.content.ReferenceableParamGroupList.ReferenceableParamGroup
	f.groups = make(map[string]paramGroup, len(groups))
	for _, g := range groups {
		f.groups[g.ID] = g.paramGroup
	}
}

// cvParams returns the CV terms of an element, including those it
// references through referenceableParamGroupRef
func (f *MzML) cvParams(g *paramGroup) []CVParam {
	if len(g.RefGroups) == 0 {
		return g.CvPar
	}
	var all []CVParam
	for _, ref := range g.RefGroups {
		if shared, ok := f.groups[ref.Ref]; ok {
			all = append(all, shared.CvPar...)
		}
	}
	return append(all, g.CvPar...)
}

// params converts the CV terms and user parameters of an element into
// scan parameters, CV terms first
func (f *MzML) params(g *paramGroup) scan.Params {
	var out scan.Params
	for _, cvParam := range f.cvParams(g) {
		unit := cvParam.UnitName
		if unit == "" {
			unit = cvParam.UnitAccession
		}
		out = append(out, scan.Param{
			Name:      cvParam.Name,
			Value:     cvParam.Value,
			Accession: cvParam.Accession,
			Unit:      unit,
		})
	}
	for _, ref := range g.RefGroups {
		if shared, ok := f.groups[ref.Ref]; ok {
			out = appendUserParams(out, shared.UserPar)
		}
	}
	return appendUserParams(out, g.UserPar)
}

func appendUserParams(out scan.Params, userParams []userParam) scan.Params {
	for _, u := range userParams {
		out = append(out, scan.Param{
			Name:  u.Name,
			Value: u.Value,
			Unit:  u.UnitName,
		})
	}
	return out
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(cvParams []CVParam) (
	zlibCompression, bits64, mzArray, intensityArray bool, err error) {
	for _, cvParam := range cvParams {
		switch cvParam.Accession {
		case `MS:1000574`: // zlib compression
			zlibCompression = true
		case `MS:1000514`: // m/z array
			mzArray = true
		case `MS:1000515`: // intensity array
			intensityArray = true
		case `MS:1000523`: // 64-bit float
			bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			// MS-Numpress compression types
			err = fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cvParam.Accession)
			return
		}
	}
	return
}

// decodeArray turns the base64 text of a binary data array into floats
func decodeArray(encoded string, zlibCompression, bits64 bool) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if zlibCompression && len(data) > 0 {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		d, err := io.ReadAll(z)
		if err != nil {
			return nil, err
		}
		data = d
	}

	if bits64 {
		cnt := len(data) / 8
		values := make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8:])
			values[i] = math.Float64frombits(bits)
		}
		return values, nil
	}
	cnt := len(data) / 4
	values := make([]float64, cnt)
	for i := 0; i < cnt; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		values[i] = float64(math.Float32frombits(bits))
	}
	return values, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// startTime reads the scan start time of one scan element. Malformed values
// count as absent.
func (f *MzML) startTime(g *paramGroup) (float64, bool) {
	for _, cvParam := range f.cvParams(g) {
		if cvParam.Accession != cvScanStartTime {
			continue
		}
		rt, err := strconv.ParseFloat(cvParam.Value, 64)
		if err != nil {
			return 0, false
		}
		switch cvParam.UnitAccession {
		case cvUnitMinute, cvUnitMinuteLegacy:
		case cvUnitMillisecond:
			rt /= 60000
		case cvUnitSecond, "":
			rt /= 60
		default:
			// Unknown units are read as seconds, like a missing unit
			rt /= 60
		}
		return rt, true
	}
	return 0, false
}

// ReadScan reads the peaks of a single scan
// scanIndex is the sequence number of the scan in the mzML file,
// This is not the same as the scan number that is specified
// in the mzML file!
func (f *MzML) ReadScan(scanIndex int) (mz []float64, intensity []float64, err error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, nil, ErrInvalidScanIndex
	}
	for _, b := range f.content.Run.SpectrumList.Spectrum[scanIndex].BinaryDataArrayList.BinaryDataArray {
		zlibCompression, bits64, mzArray, intensityArray, err := binaryDataPars(f.cvParams(&b.paramGroup))
		if err != nil {
			return nil, nil, err
		}
		// We are only interested in mz and intensity
		if !mzArray && !intensityArray {
			continue
		}
		values, err := decodeArray(b.Binary, zlibCompression, bits64)
		if err != nil {
			return nil, nil, err
		}
		if mzArray {
			mz = values
		} else {
			intensity = values
		}
	}
	return mz, intensity, nil
}

// Signal reports whether the spectrum holds centroid or profile peaks
func (f *MzML) Signal(scanIndex int) (scan.Signal, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return scan.SignalUnknown, ErrInvalidScanIndex
	}

	for _, cvParam := range f.cvParams(&f.content.Run.SpectrumList.Spectrum[scanIndex].paramGroup) {
		switch cvParam.Accession {
		case cvCentroid:
			return scan.SignalCentroid, nil
		case cvProfile:
			return scan.SignalProfile, nil
		}
	}
	return scan.SignalUnknown, nil
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0, ErrInvalidScanIndex
	}

	for _, cvParam := range f.cvParams(&f.content.Run.SpectrumList.Spectrum[scanIndex].paramGroup) {
		if cvParam.Accession == cvMSLevel {
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// traverseScan checks that every spectrum carries the index of its
// position in the spectrum list
func (f *MzML) traverseScan() error {
	for i := range f.content.Run.SpectrumList.Spectrum {
		spec := &f.content.Run.SpectrumList.Spectrum[i]
		if i != spec.Index {
			return fmt.Errorf("%w: spectrum %q has index %d at position %d",
				ErrInvalidScanIndex, spec.ID, spec.Index, i)
		}
	}
	return nil
}

// GetPrecursors returns the mzML precursor structs for a given scanIndex
func (f *MzML) GetPrecursors(scanIndex int) ([]XMLprecursor, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		var p []XMLprecursor
		if f.content.Run.SpectrumList.Spectrum[scanIndex].PrecursorList != nil {
			p = f.content.Run.SpectrumList.Spectrum[scanIndex].PrecursorList[0].Precursor
		}
		return p, nil
	}
	return nil, ErrInvalidScanIndex
}

// Scan assembles the full scan record of the spectrum at scanIndex
func (f *MzML) Scan(scanIndex int) (*scan.Scan, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[scanIndex]

	msLevel, err := f.MSLevel(scanIndex)
	if err != nil {
		return nil, fmt.Errorf("spectrum %s: invalid ms level: %w", spec.ID, err)
	}
	signal, err := f.Signal(scanIndex)
	if err != nil {
		return nil, err
	}

	s := &scan.Scan{
		ID:      spec.ID,
		Index:   scanIndex,
		MSLevel: msLevel,
		Signal:  signal,
		Params:  f.params(&spec.paramGroup),
	}

	for i := range spec.ScanList.Scan {
		el := &spec.ScanList.Scan[i]
		event := scan.Event{Params: f.params(&el.paramGroup)}
		if rt, ok := f.startTime(&el.paramGroup); ok {
			event.StartTime = rt
		}
		s.Acquisition = append(s.Acquisition, event)
	}

	precursors, err := f.GetPrecursors(scanIndex)
	if err != nil {
		return nil, err
	}
	if len(precursors) > 0 {
		block, err := f.precursorBlock(&precursors[0])
		if err != nil {
			return nil, fmt.Errorf("spectrum %s: %w", spec.ID, err)
		}
		s.Precursor = block
	}

	s.MZ, s.Intensity, err = f.ReadScan(scanIndex)
	if err != nil {
		return nil, fmt.Errorf("spectrum %s: %w", spec.ID, err)
	}
	return s, nil
}

// precursorBlock converts the selected ions and activation of a precursor
func (f *MzML) precursorBlock(p *XMLprecursor) (*scan.PrecursorBlock, error) {
	block := &scan.PrecursorBlock{Activation: f.params(&p.Activation)}
	for i := range p.SelectedIonList.SelectedIon {
		ion, err := f.selectedIon(&p.SelectedIonList.SelectedIon[i])
		if err != nil {
			return nil, err
		}
		block.Ions = append(block.Ions, ion)
	}
	return block, nil
}

// selectedIon picks m/z, charge and intensity out of the CV terms of a
// selected ion; all remaining terms are kept as parameters
func (f *MzML) selectedIon(g *paramGroup) (scan.SelectedIon, error) {
	var ion scan.SelectedIon
	for _, p := range f.params(g) {
		switch p.Accession {
		case cvSelectedIonMz:
			mz, err := strconv.ParseFloat(p.Value, 64)
			if err != nil {
				return ion, fmt.Errorf("invalid selected ion m/z '%s': %w", p.Value, err)
			}
			ion.MZ = mz
		case cvChargeState:
			charge, err := strconv.Atoi(strings.TrimSpace(p.Value))
			if err != nil {
				// Left to the free-text charge lookup, which maps "3+" to 3
				// and anything else to 0
				ion.Params = append(ion.Params, scan.Param{Name: chargeParam, Value: p.Value, Accession: p.Accession})
				continue
			}
			ion.Charge = &charge
		case cvPeakIntensity:
			intensity, err := strconv.ParseFloat(p.Value, 64)
			if err != nil {
				return ion, fmt.Errorf("invalid selected ion intensity '%s': %w", p.Value, err)
			}
			ion.Intensity = intensity
		default:
			ion.Params = append(ion.Params, p)
		}
	}
	return ion, nil
}

// Reader iterates over the spectra of an mzML file in document order
type Reader struct {
	file    MzML
	pos     int
	current *scan.Scan
	curErr  error
}

// NewReader reads the mzML document from r
func NewReader(r io.Reader) (*Reader, error) {
	file, err := Read(r)
	if err != nil {
		return nil, err
	}
	return &Reader{file: file, pos: -1}, nil
}

// Open reads an mzML file. The document is decoded completely, so the file
// is closed again before Open returns.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	return NewReader(f)
}

// Next advances to the next spectrum
func (r *Reader) Next() bool {
	if r.pos+1 >= r.file.NumSpecs() {
		r.current, r.curErr = nil, nil
		return false
	}
	r.pos++
	r.current, r.curErr = r.file.Scan(r.pos)
	return true
}

// Scan returns the current spectrum, or the error met while decoding it
func (r *Reader) Scan() (*scan.Scan, error) {
	return r.current, r.curErr
}

// Err always returns nil: the document is parsed by NewReader and
// per-spectrum failures are reported by Scan
func (r *Reader) Err() error {
	return nil
}

// Close releases the parsed document
func (r *Reader) Close() error {
	r.file = MzML{}
	r.current = nil
	return nil
}
