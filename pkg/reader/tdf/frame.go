package tdf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/ChrisMcGann/ms2read/pkg/scan"
)

// Size of the frame header in analysis.tdf_bin: byte count and scan count,
// both little-endian uint32
const frameHeaderSize = 8

// frame is one decompressed TIMS frame. Peaks of scan s are
// offsets[s] .. offsets[s+1] in tof and intensity.
type frame struct {
	offsets   []int
	tof       []uint32
	intensity []uint32
}

// numScans returns the number of mobility scans in the frame
func (f *frame) numScans() int {
	return len(f.offsets) - 1
}

// frameReader reads frames out of analysis.tdf_bin
type frameReader struct {
	bin     io.ReaderAt
	decoder *zstd.Decoder
}

func newFrameReader(bin io.ReaderAt) (*frameReader, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &frameReader{bin: bin, decoder: decoder}, nil
}

func (r *frameReader) close() {
	r.decoder.Close()
}

// readBlob decompresses the blob stored at offset. It returns the uint32
// values of the blob and the count held in the second header word.
func (r *frameReader) readBlob(offset int64) ([]uint32, int, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := r.bin.ReadAt(header, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: header at offset %d: %v", ErrCorruptFrame, offset, err)
	}
	byteCount := binary.LittleEndian.Uint32(header[0:])
	count := binary.LittleEndian.Uint32(header[4:])
	if byteCount <= frameHeaderSize {
		return nil, 0, scan.ErrNoBinaryData
	}

	payload := make([]byte, byteCount-frameHeaderSize)
	if _, err := r.bin.ReadAt(payload, offset+frameHeaderSize); err != nil {
		return nil, 0, fmt.Errorf("%w: payload at offset %d: %v", ErrCorruptFrame, offset, err)
	}

	raw, err := r.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	if len(raw) == 0 {
		return nil, 0, scan.ErrNoBinaryData
	}
	if len(raw)%4 != 0 {
		return nil, 0, fmt.Errorf("%w: buffer length %d is not a multiple of 4", ErrCorruptFrame, len(raw))
	}
	return interleave(raw), int(count), nil
}

// read decodes the frame stored at offset
func (r *frameReader) read(offset int64) (*frame, error) {
	values, scanCount, err := r.readBlob(offset)
	if err != nil {
		return nil, err
	}
	return decodeFrame(values, scanCount)
}

// decodeFrame parses the values of a decompressed frame: one slot per scan
// holding twice the peak count of the previous scan, then (tof delta,
// intensity) pairs. TOF indices are cumulative within a scan and stored off
// by one.
func decodeFrame(values []uint32, scanCount int) (*frame, error) {
	if scanCount <= 0 || scanCount > len(values) || (len(values)-scanCount)%2 != 0 {
		return nil, fmt.Errorf("%w: %d values cannot hold %d scans", ErrCorruptFrame, len(values), scanCount)
	}
	peakCount := (len(values) - scanCount) / 2

	offsets := make([]int, scanCount+1)
	for s := 0; s < scanCount-1; s++ {
		offsets[s+1] = offsets[s] + int(values[s+1]/2)
	}
	offsets[scanCount] = peakCount
	if offsets[scanCount-1] > peakCount {
		return nil, fmt.Errorf("%w: scan sizes exceed %d peaks", ErrCorruptFrame, peakCount)
	}

	f := &frame{
		offsets:   offsets,
		tof:       make([]uint32, peakCount),
		intensity: make([]uint32, peakCount),
	}
	for s := 0; s < scanCount; s++ {
		var tof uint32
		for p := offsets[s]; p < offsets[s+1]; p++ {
			tof += values[scanCount+2*p]
			f.tof[p] = tof - 1
			f.intensity[p] = values[scanCount+2*p+1]
		}
	}
	return f, nil
}

// interleave reassembles uint32 values from four byte planes. Frames and
// miniTDF spectra store the four bytes of every value in separate planes.
func interleave(raw []byte) []uint32 {
	size := len(raw) / 4
	buf := make([]byte, len(raw))
	for i := 0; i < size; i++ {
		for j := 0; j < 4; j++ {
			buf[i*4+j] = raw[j*size+i]
		}
	}
	values := make([]uint32, size)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return values
}
