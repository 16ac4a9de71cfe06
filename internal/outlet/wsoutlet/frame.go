package wsoutlet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFrame packs one sample as little-endian float64s: timestamp first, then every value.
// Binary frames carry NaN unchanged, which a JSON encoding cannot.
func EncodeFrame(values []float64, timestamp float64) []byte {
	buf := make([]byte, 8*(len(values)+1))
	binary.LittleEndian.PutUint64(buf, math.Float64bits(timestamp))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*(i+1):], math.Float64bits(v))
	}
	return buf
}

// DecodeFrame unpacks a frame produced by EncodeFrame
func DecodeFrame(frame []byte) (values []float64, timestamp float64, err error) {
	if len(frame) < 8 || len(frame)%8 != 0 {
		return nil, 0, fmt.Errorf("malformed frame: %d bytes", len(frame))
	}
	timestamp = math.Float64frombits(binary.LittleEndian.Uint64(frame))
	values = make([]float64, len(frame)/8-1)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(frame[8*(i+1):]))
	}
	return values, timestamp, nil
}
