package core

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFileType is returned when a path cannot be classified into a
// supported format. Callers can use it to skip a file.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// DecodeError reports that a source could not be opened or fully decoded.
type DecodeError struct {
	Path   string
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("read %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
