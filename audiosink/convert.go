//go:build !headless

package audiosink

import "unsafe"

// byteFloats reinterprets p (a byte buffer handed to us by oto, always a
// multiple of 4 bytes long for FormatFloat32LE) as a []float32 view over
// the same backing array, the same unsafe.Pointer reinterpretation
// audio_backend_oto.go's Read uses to move samples into oto's byte buffer
// without an extra copy.
func byteFloats(p []byte) []float32 {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&p[0])), len(p)/4)
}
