// Package mzml reads spectra from mzML files.
package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the contents of the mzML file
type MzML struct {
	content mzMLContent
	groups  map[string]paramGroup
}

// The mzML content that we read. Only the parts needed to build
// spectra are parsed, everything else is skipped by the decoder.
type mzMLContent struct {
	XMLName                     xml.Name                    `xml:"mzML"`
	ReferenceableParamGroupList referenceableParamGroupList `xml:"referenceableParamGroupList"`
	Run                         run                         `xml:"run"`
}

type referenceableParamGroupList struct {
	Count                   int                       `xml:"count,attr,omitempty"`
	ReferenceableParamGroup []referenceableParamGroup `xml:"referenceableParamGroup"`
}

type referenceableParamGroup struct {
	ID string `xml:"id,attr"`
	paramGroup
}

// paramGroup is the common content model of all mzML elements that carry
// parameters: references to shared groups, CV terms and user parameters
type paramGroup struct {
	RefGroups []paramGroupRef `xml:"referenceableParamGroupRef"`
	CvPar     []CVParam       `xml:"cvParam"`
	UserPar   []userParam     `xml:"userParam"`
}

type paramGroupRef struct {
	Ref string `xml:"ref,attr"`
}

type run struct {
	ID           string       `xml:"id,attr,omitempty"`
	SpectrumList spectrumList `xml:"spectrumList"`
}

type spectrumList struct {
	Count    int        `xml:"count,attr,omitempty"`
	Spectrum []spectrum `xml:"spectrum"`
}

type spectrum struct {
	Index              int    `xml:"index,attr"`
	ID                 string `xml:"id,attr"`
	DefaultArrayLength int64  `xml:"defaultArrayLength,attr"`
	paramGroup
	ScanList scanList `xml:"scanList"`
	// precursorList is a slice so that a missing element can be told
	// apart from an empty one
	PrecursorList       []precursorList     `xml:"precursorList"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int `xml:"arrayLength,attr,omitempty"`
	paramGroup
	Binary string `xml:"binary"`
}

type scanList struct {
	Count int `xml:"count,attr,omitempty"`
	paramGroup
	Scan []scanElement `xml:"scan"`
}

type scanElement struct {
	InstrConfRef string `xml:"instrumentConfigurationRef,attr,omitempty"`
	paramGroup
}

type userParam struct {
	Name     string `xml:"name,attr,omitempty"`
	Value    string `xml:"value,attr,omitempty"`
	Type     string `xml:"type,attr,omitempty"`
	UnitName string `xml:"unitName,attr,omitempty"`
}

type precursorList struct {
	Count     int            `xml:"count,attr,omitempty"`
	Precursor []XMLprecursor `xml:"precursor"`
}

// XMLprecursor contains info for the correspondingly named tag in the mzML file
type XMLprecursor struct {
	SpectrumRef     string          `xml:"spectrumRef,attr,omitempty"`
	IsolationWindow paramGroup      `xml:"isolationWindow"`
	SelectedIonList selectedIonList `xml:"selectedIonList"`
	Activation      paramGroup      `xml:"activation"`
}

type selectedIonList struct {
	Count       int          `xml:"count,attr,omitempty"`
	SelectedIon []paramGroup `xml:"selectedIon"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

// CV terms used when building scans
const (
	cvMSLevel          = `MS:1000511`
	cvCentroid         = `MS:1000127`
	cvProfile          = `MS:1000128`
	cvScanStartTime    = `MS:1000016`
	cvSelectedIonMz    = `MS:1000744`
	cvChargeState      = `MS:1000041`
	cvPeakIntensity    = `MS:1000042`
	cvUnitSecond       = `UO:0000010`
	cvUnitMinute       = `UO:0000031`
	cvUnitMinuteLegacy = `MS:1000038`
	cvUnitMillisecond  = `UO:0000028`
)

// Name of the free-text parameter that carries a malformed charge state
const chargeParam = "charge"

var (
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnsupportedCompression means a binary array uses a compression
	// scheme that the reader cannot decode (MS-Numpress)
	ErrUnsupportedCompression = errors.New("MzML: unsupported binary compression")
	// ErrNoSpectra means the file holds no mzML run content
	ErrNoSpectra = errors.New("MzML: no mzML content found")
)
