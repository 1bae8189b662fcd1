package audio

import "encoding/binary"

const (
	DefaultSampleRate = 16000
	// FrameSamples is the processor buffer size; one Frame per 4096 input samples.
	FrameSamples = 4096
)

// Frame is one block of mono PCM16 samples. Frames are never persisted.
type Frame []int16

// Bytes encodes the frame as little-endian s16 for wire transport.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, sample := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// EncodePCM16 clamps each sample to [-1, 1] and scales it asymmetrically so
// both -1 and 1 land exactly on the int16 range limits.
func EncodePCM16(samples []float32) Frame {
	out := make(Frame, len(samples))
	for i, s := range samples {
		switch {
		case s != s:
			continue
		case s < -1:
			s = -1
		case s > 1:
			s = 1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// Framer accumulates float samples and emits fixed-size PCM16 frames.
type Framer struct {
	size    int
	pending []float32
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size, pending: make([]float32, 0, size)}
}

// Write buffers samples and returns every complete frame they finish.
func (f *Framer) Write(samples []float32) []Frame {
	var frames []Frame
	for len(samples) > 0 {
		room := f.size - len(f.pending)
		n := min(room, len(samples))
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		if len(f.pending) == f.size {
			frames = append(frames, EncodePCM16(f.pending))
			f.pending = f.pending[:0]
		}
	}
	return frames
}

// Pending reports buffered samples that have not yet formed a frame.
func (f *Framer) Pending() int {
	return len(f.pending)
}

