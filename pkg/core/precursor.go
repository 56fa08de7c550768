package core

import (
	"fmt"
	"strconv"
)

// Precursor holds the normalized attributes of the ion selected for
// fragmentation in an MS2 scan.
type Precursor struct {
	MZ        float64 // Precursor m/z
	RT        float64 // Retention time, source-native unit (0 when unknown)
	IM        float64 // Ion mobility (0 when unknown)
	Charge    uint    // Charge state (0 when unknown)
	Intensity float64 // Precursor intensity (0 when unknown)
}

func (p Precursor) String() string {
	return fmt.Sprintf("Precursor(mz=%s, rt=%s, im=%s, charge=%d, intensity=%s)",
		formatFloat(p.MZ), formatFloat(p.RT), formatFloat(p.IM), p.Charge, formatFloat(p.Intensity))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
