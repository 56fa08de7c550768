package tdf

import "math"

// tofConverter maps TOF indices to m/z. The square root of m/z is linear in
// the TOF index between the acquisition boundaries.
type tofConverter struct {
	intercept float64
	slope     float64
}

func newTofConverter(mzLower, mzUpper, tofMaxIndex float64) tofConverter {
	intercept := math.Sqrt(mzLower)
	return tofConverter{
		intercept: intercept,
		slope:     (math.Sqrt(mzUpper) - intercept) / tofMaxIndex,
	}
}

func (c tofConverter) mz(tof uint32) float64 {
	root := c.intercept + c.slope*float64(tof)
	return root * root
}

// mobilityConverter maps scan numbers to inverse reduced ion mobility (1/K0).
// Scan 0 holds the upper boundary and mobility falls linearly with the scan.
type mobilityConverter struct {
	intercept float64
	slope     float64
}

func newMobilityConverter(imLower, imUpper float64, scanMaxIndex int) mobilityConverter {
	c := mobilityConverter{intercept: imUpper}
	if scanMaxIndex > 0 {
		c.slope = (imLower - imUpper) / float64(scanMaxIndex)
	}
	return c
}

func (c mobilityConverter) mobility(scanNumber float64) float64 {
	return c.intercept + c.slope*scanNumber
}
