package scan

// Source yields decoded scans from one opened file or directory.
//
// The iteration follows the readers' Next/Err convention:
//
//	for src.Next() {
//		s, err := src.Scan()
//		...
//	}
//	if err := src.Err(); err != nil {
//		...
//	}
//
// Scan returns the per-scan decode error for the current position, if any.
// Err reports the error that stopped iteration. Close releases the
// underlying resources and must be called on every exit path.
type Source interface {
	Next() bool
	Scan() (*Scan, error)
	Err() error
	Close() error
}
