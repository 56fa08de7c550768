// Package filetype classifies spectrum file paths into supported format families
package filetype

import (
	"os"
	"path/filepath"
	"strings"
)

// Format is the closed set of format families ms2read can read.
type Format int

const (
	Unsupported  Format = iota
	OpenText            // Mascot Generic Format (.mgf)
	OpenXML             // mzML (.mzML)
	VendorBinary        // Bruker timsTOF (.d directory, miniTDF)
)

func (f Format) String() string {
	switch f {
	case OpenText:
		return "mgf"
	case OpenXML:
		return "mzML"
	case VendorBinary:
		return "bruker"
	default:
		return "unsupported"
	}
}

// Supported reports whether f is a readable format.
func (f Format) Supported() bool {
	return f != Unsupported
}

// Extensions that identify a vendor directory made of auxiliary files
const (
	blobExtension  = "bin"
	tableExtension = "parquet"
)

// Classify returns the format family of path. It never fails; anything it
// cannot recognize is Unsupported.
func Classify(path string) Format {
	switch extension(path) {
	case "mgf":
		return OpenText
	case "mzml":
		return OpenXML
	case "d", "ms2":
		return VendorBinary
	}

	if dirContainsExtension(path, blobExtension) && dirContainsExtension(path, tableExtension) {
		return VendorBinary
	}
	return Unsupported
}

// extension returns the lowercase final extension of path without the dot
func extension(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	if trimmed == "" {
		return ""
	}
	ext := filepath.Ext(trimmed)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// dirContainsExtension reports whether dir is a directory holding at least
// one entry with the given extension
func dirContainsExtension(dir string, ext string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if extension(entry.Name()) == ext {
			return true
		}
	}
	return false
}
