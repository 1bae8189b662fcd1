package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/jotter/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

const (
	cueSampleRate = 16000
	cueGap        = 20 * time.Millisecond
	cueFade       = 6 * time.Millisecond
	cueFileLimit  = 4 * time.Second
)

// cueMu serializes playback across notifiers.
var cueMu sync.Mutex

type tone struct {
	hz   float64
	dur  time.Duration
	gain float64
}

// cue is one audible event: a configured file, else synthesized tones.
type cue struct {
	tones []tone
	file  func(config.IndicatorConfig) string
	pcm   []int16
}

var cues = map[cueKind]*cue{
	cueStart: {
		tones: []tone{{hz: 660, dur: 60 * time.Millisecond, gain: 0.16}, {hz: 990, dur: 80 * time.Millisecond, gain: 0.16}},
		file:  func(c config.IndicatorConfig) string { return c.SoundStartFile },
	},
	cueStop: {
		tones: []tone{{hz: 990, dur: 60 * time.Millisecond, gain: 0.16}, {hz: 660, dur: 80 * time.Millisecond, gain: 0.16}},
		file:  func(c config.IndicatorConfig) string { return c.SoundStopFile },
	},
	cueError: {
		tones: []tone{{hz: 440, dur: 90 * time.Millisecond, gain: 0.2}, {hz: 330, dur: 120 * time.Millisecond, gain: 0.2}},
		file:  func(c config.IndicatorConfig) string { return c.SoundErrorFile },
	},
}

func init() {
	for _, c := range cues {
		c.pcm = renderTones(c.tones)
	}
}

// emitCue plays the configured file for kind, falling back to the synthesized cue.
func emitCue(kind cueKind, cfg config.IndicatorConfig) error {
	c, ok := cues[kind]
	if !ok {
		return nil
	}
	if path := expandHome(c.file(cfg)); path != "" {
		if err := playFile(path); err == nil {
			return nil
		}
	}
	return playPCM(c.pcm)
}

func expandHome(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

func playFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cueFileLimit)
	defer cancel()

	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

// pcmReader feeds a fixed buffer to a playback stream.
type pcmReader struct {
	samples []int16
	pos     int
}

func (r *pcmReader) read(buf []int16) (int, error) {
	n := copy(buf, r.samples[r.pos:])
	r.pos += n
	if r.pos >= len(r.samples) {
		return n, pulse.EndOfData
	}
	return n, nil
}

func playPCM(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("jotter"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	reader := &pcmReader{samples: samples}
	stream, err := client.NewPlayback(
		pulse.Int16Reader(reader.read),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("jotter cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// renderTones concatenates tones separated by cueGap of silence.
func renderTones(tones []tone) []int16 {
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, sampleCount(cueGap))...)
		}
		pcm = append(pcm, renderTone(t)...)
	}
	return pcm
}

// renderTone is a sine with a raised-cosine fade at both ends.
func renderTone(t tone) []int16 {
	n := sampleCount(t.dur)
	if n == 0 || t.hz <= 0 || t.gain <= 0 {
		return nil
	}
	fade := min(sampleCount(cueFade), n/2)

	pcm := make([]int16, n)
	for i := range pcm {
		amp := t.gain
		if edge := min(i, n-1-i); edge < fade {
			amp *= 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(fade))
		}
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * amp * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
