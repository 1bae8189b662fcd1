// Package audio handles device discovery, selection, and the capture graph
// that turns microphone samples into PCM16 frames and level readings.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// ErrPermissionDenied reports that the selected source refused capture (muted).
var ErrPermissionDenied = errors.New("microphone access denied")

const applicationName = "jotter"

// Device describes one Pulse input source surfaced to jotter.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns every Pulse input source, flagging the server default.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	def, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info != nil {
			devices = append(devices, deviceFromSource(info, def.ID()))
		}
	}
	return devices, nil
}

func deviceFromSource(info *pulseproto.GetSourceInfoReply, defaultID string) Device {
	return Device{
		ID:          info.SourceName,
		Description: info.Device,
		State:       sourceStateString(info.State),
		Available:   sourceAvailable(info),
		Muted:       info.Mute,
		Default:     info.SourceName == defaultID,
	}
}

// PulseMicrophone opens float32 mono record streams on the configured source.
type PulseMicrophone struct {
	Input      string
	Fallback   string
	SampleRate int
}

// Open selects a device and creates a corked record stream on it.
// Samples flow only after Start, which the capture Context calls on Resume.
func (m PulseMicrophone) Open(ctx context.Context) (Source, error) {
	selection, err := SelectDevice(ctx, m.Input, m.Fallback)
	if err != nil {
		return nil, err
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	rate := m.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	stream := &PulseStream{device: selection.Device, client: client}
	record, err := client.NewRecord(
		pulse.Float32Writer(stream.onSamples),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(rate),
		pulse.RecordMediaName("jotter dictation"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	stream.record = record

	if ctx.Err() != nil {
		_ = stream.Close()
		return nil, ctx.Err()
	}
	return stream, nil
}

// PulseStream is one exclusive record stream.
type PulseStream struct {
	device Device
	client *pulse.Client
	record *pulse.RecordStream

	mu     sync.Mutex
	sink   func([]float32)
	closed bool
}

// Device returns capture metadata for logging and diagnostics.
func (s *PulseStream) Device() Device {
	return s.device
}

func (s *PulseStream) Attach(sink func([]float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *PulseStream) Start() {
	if s.record != nil {
		s.record.Start()
	}
}

func (s *PulseStream) Stop() {
	if s.record != nil {
		s.record.Stop()
	}
}

// Close releases the stream and its Pulse connection. Repeated calls are no-ops.
func (s *PulseStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.sink = nil
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// onSamples copies Pulse buffers out before handing them to the attached sink.
func (s *PulseStream) onSamples(buffer []float32) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil && len(buffer) > 0 {
		samples := make([]float32, len(buffer))
		copy(samples, buffer)
		sink(samples)
	}
	return len(buffer), nil
}

var sourceStates = [...]string{"running", "idle", "suspended"}

func sourceStateString(state uint32) string {
	if int(state) < len(sourceStates) {
		return sourceStates[state]
	}
	return fmt.Sprintf("unknown(%d)", state)
}

// sourceAvailable reports whether the active port is usable. Port availability
// is 0 unknown, 1 no, 2 yes; sources without ports count as available.
func sourceAvailable(info *pulseproto.GetSourceInfoReply) bool {
	if info == nil {
		return false
	}
	for _, port := range info.Ports {
		if port.Name == info.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
