package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	sink    func([]float32)
	started int
	stopped int
	closed  int
}

func (f *fakeSource) Attach(sink func([]float32)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *fakeSource) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) emit(samples []float32) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(samples)
	}
}

func TestContextStartsSuspendedAndDropsSamples(t *testing.T) {
	src := &fakeSource{}
	ctx := NewContext(src)

	var frames []Frame
	ctx.Connect(func(f Frame) { frames = append(frames, f) })
	require.Equal(t, ContextSuspended, ctx.State())

	src.emit(make([]float32, FrameSamples))
	require.Empty(t, frames)
	require.Zero(t, src.started)
}

func TestContextResumeRoutesFrames(t *testing.T) {
	src := &fakeSource{}
	ctx := NewContext(src)

	var frames []Frame
	ctx.Connect(func(f Frame) { frames = append(frames, f) })
	ctx.Resume()
	ctx.Resume()
	require.Equal(t, 1, src.started)
	require.Equal(t, ContextRunning, ctx.State())

	src.emit(make([]float32, FrameSamples-1))
	require.Empty(t, frames)
	src.emit([]float32{1})
	require.Len(t, frames, 1)
	require.Len(t, frames[0], FrameSamples)
	require.Equal(t, int16(32767), frames[0][FrameSamples-1])
}

func TestContextDisconnectDetachesSource(t *testing.T) {
	src := &fakeSource{}
	ctx := NewContext(src)

	var frames []Frame
	ctx.Connect(func(f Frame) { frames = append(frames, f) })
	ctx.Resume()
	src.emit(make([]float32, 100))
	require.Equal(t, 100, ctx.Disconnect())
	require.Zero(t, ctx.Disconnect())

	require.Nil(t, src.sink)
	ctx.Process(make([]float32, FrameSamples))
	require.Empty(t, frames)
	require.Equal(t, 0, ctx.Level())
	require.Zero(t, src.closed)
}

func TestContextCloseTwiceReportsClosed(t *testing.T) {
	ctx := NewContext(&fakeSource{})
	require.NoError(t, ctx.Close())
	require.ErrorIs(t, ctx.Close(), ErrContextClosed)
	require.Equal(t, ContextClosed, ctx.State())

	ctx.Resume()
	require.Equal(t, ContextClosed, ctx.State())
}
