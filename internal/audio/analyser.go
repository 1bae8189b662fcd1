package audio

import (
	"math"
	"math/cmplx"
	"sync"
)

const (
	DefaultFFTSize = 256

	minDecibels = -100.0
	maxDecibels = -30.0
	smoothing   = 0.8
)

// Analyser keeps the latest FFT-size window of samples and exposes
// WebAudio-style byte frequency bins for level metering.
type Analyser struct {
	mu       sync.Mutex
	size     int
	ring     []float64
	pos      int
	window   []float64
	smoothed []float64
}

// NewAnalyser returns an analyser for size samples; size must be a power of two.
func NewAnalyser(size int) *Analyser {
	if size <= 0 || size&(size-1) != 0 {
		size = DefaultFFTSize
	}
	a := &Analyser{
		size:     size,
		ring:     make([]float64, size),
		window:   blackman(size),
		smoothed: make([]float64, size/2),
	}
	return a
}

// Write pushes samples into the analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % a.size
	}
}

// ByteFrequencyData returns size/2 bins mapped from [-100, -30] dB onto 0..255.
func (a *Analyser) ByteFrequencyData() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := make([]complex128, a.size)
	for i := range a.size {
		buf[i] = complex(a.ring[(a.pos+i)%a.size]*a.window[i], 0)
	}
	fft(buf)

	bins := make([]byte, a.size/2)
	scale := 255.0 / (maxDecibels - minDecibels)
	for k := range bins {
		magnitude := cmplx.Abs(buf[k]) / float64(a.size)
		a.smoothed[k] = smoothing*a.smoothed[k] + (1-smoothing)*magnitude

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := math.Floor(scale * (db - minDecibels))
		switch {
		case v < 0 || math.IsNaN(v):
			bins[k] = 0
		case v > 255:
			bins[k] = 255
		default:
			bins[k] = byte(v)
		}
	}
	return bins
}

// Level returns the current meter reading in [0, 100].
func (a *Analyser) Level() int {
	return LevelFromBins(a.ByteFrequencyData())
}

// LevelFromBins maps the mean bin value onto 0..100 (mean 128 reads as 100).
func LevelFromBins(bins []byte) int {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	mean := float64(sum) / float64(len(bins))
	level := int(math.Round(mean * 100 / 128))
	return max(0, min(level, 100))
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2
	w := make([]float64, n)
	for i := range n {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

// fft is an in-place iterative radix-2 transform; len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(length)))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			half := length / 2
			for k := range half {
				u := x[start+k]
				v := x[start+k+half] * w
				x[start+k] = u + v
				x[start+k+half] = u - v
				w *= step
			}
		}
	}
}
