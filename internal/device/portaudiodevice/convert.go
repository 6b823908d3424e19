package portaudiodevice

import (
	"encoding/binary"
	"math"
)

// encodeFloat32LE packs a PortAudio float32 sample buffer into little-endian
// wire bytes.
func encodeFloat32LE(src []float32, dst []byte) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

// decodeFloat32LE unpacks little-endian wire bytes into a PortAudio float32
// sample buffer.
func decodeFloat32LE(src []byte, dst []float32) {
	for i := range dst {
		bits := binary.LittleEndian.Uint32(src[i*4:])
		dst[i] = math.Float32frombits(bits)
	}
}
