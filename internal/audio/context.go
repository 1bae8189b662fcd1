package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrContextClosed is returned by Close on an already-closed Context.
var ErrContextClosed = errors.New("audio context already closed")

// Source is a capture stream that starts corked and delivers samples once started.
type Source interface {
	Attach(sink func([]float32))
	Start()
	Stop()
	Close() error
}

type ContextState string

const (
	ContextSuspended ContextState = "suspended"
	ContextRunning   ContextState = "running"
	ContextClosed    ContextState = "closed"
)

// Context is the capture graph: source -> analyser -> processor -> destination.
// The processor is a Framer and the destination is the frame sink.
type Context struct {
	mu       sync.Mutex
	state    ContextState
	source   Source
	analyser *Analyser
	framer   *Framer
	sink     func(Frame)
}

// NewContext wraps source in a suspended graph.
func NewContext(source Source) *Context {
	return &Context{
		state:    ContextSuspended,
		source:   source,
		analyser: NewAnalyser(DefaultFFTSize),
		framer:   NewFramer(FrameSamples),
	}
}

func (c *Context) State() ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect wires the graph and routes completed frames to sink.
func (c *Context) Connect(sink func(Frame)) {
	c.mu.Lock()
	if c.state == ContextClosed {
		c.mu.Unlock()
		return
	}
	c.sink = sink
	source := c.source
	c.mu.Unlock()

	if source != nil {
		source.Attach(c.Process)
	}
}

// Resume uncorks the source if the context is suspended.
func (c *Context) Resume() {
	c.mu.Lock()
	if c.state != ContextSuspended {
		c.mu.Unlock()
		return
	}
	c.state = ContextRunning
	source := c.source
	c.mu.Unlock()

	if source != nil {
		source.Start()
	}
}

// Process feeds one buffer through the analyser and processor.
// Buffers arriving while the context is not running are discarded.
func (c *Context) Process(samples []float32) {
	c.mu.Lock()
	if c.state != ContextRunning || c.framer == nil {
		c.mu.Unlock()
		return
	}
	if c.analyser != nil {
		c.analyser.Write(samples)
	}
	frames := c.framer.Write(samples)
	sink := c.sink
	c.mu.Unlock()

	if sink == nil {
		return
	}
	for _, frame := range frames {
		sink(frame)
	}
}

// Level reads the analyser meter; 0 once disconnected.
func (c *Context) Level() int {
	c.mu.Lock()
	analyser := c.analyser
	c.mu.Unlock()
	if analyser == nil {
		return 0
	}
	return analyser.Level()
}

// Disconnect detaches nodes in graph order: source, analyser, processor,
// destination. It returns the samples of the partial frame it discarded.
func (c *Context) Disconnect() int {
	c.mu.Lock()
	source := c.source
	c.source = nil
	c.mu.Unlock()
	if source != nil {
		source.Attach(nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	if c.framer != nil {
		dropped = c.framer.Pending()
	}
	c.analyser = nil
	c.framer = nil
	c.sink = nil
	return dropped
}

// Close moves the context to closed. It does not close the source, which the
// caller owns. Closing twice returns ErrContextClosed.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return ErrContextClosed
	}
	c.state = ContextClosed
	return nil
}

// Microphone opens one exclusive capture Source.
type Microphone interface {
	Open(ctx context.Context) (Source, error)
}
