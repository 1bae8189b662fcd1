package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
	"github.com/rbright/jotter/internal/fsm"
	"github.com/rbright/jotter/internal/wake"
)

// micHolder counts concurrent microphone holders.
type micHolder struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (h *micHolder) acquire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current++
	h.peak = max(h.peak, h.current)
}

func (h *micHolder) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current--
}

func (h *micHolder) snapshot() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.peak
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeSource struct {
	holder *micHolder
	log    *eventLog

	mu      sync.Mutex
	sink    func([]float32)
	started bool
	closes  int
}

func (s *fakeSource) Attach(sink func([]float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *fakeSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *fakeSource) Stop() {}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		s.holder.release()
		s.log.add("stream.close")
	}
	return nil
}

func (s *fakeSource) emit(samples []float32) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(samples)
	}
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeMic struct {
	holder *micHolder
	log    *eventLog

	mu      sync.Mutex
	err     error
	opens   int
	sources []*fakeSource
}

func (m *fakeMic) Open(ctx context.Context) (audio.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.holder.acquire()
	src := &fakeSource{holder: m.holder, log: m.log}
	m.sources = append(m.sources, src)
	return src, nil
}

func (m *fakeMic) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMic) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *fakeMic) last() *fakeSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[len(m.sources)-1]
}

type fakeConn struct {
	log *eventLog

	mu     sync.Mutex
	frames []audio.Frame
	closes int
}

func (c *fakeConn) Send(frame audio.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closes == 1 {
		c.log.add("session.close")
	}
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeProvider struct {
	log *eventLog

	mu    sync.Mutex
	block bool
	err   error
	cfg   dictation.Config
	cb    dictation.Callbacks
	conns []*fakeConn
}

func (p *fakeProvider) Connect(ctx context.Context, cfg dictation.Config, cb dictation.Callbacks) (dictation.Conn, error) {
	p.mu.Lock()
	p.cfg = cfg
	p.cb = cb
	block, err := p.block, p.err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	conn := &fakeConn{log: p.log}
	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.mu.Unlock()
	return conn, nil
}

func (p *fakeProvider) callbacks() dictation.Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

func (p *fakeProvider) lastConn() *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[len(p.conns)-1]
}

func (p *fakeProvider) setBlock(block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = block
}

type recordingObserver struct {
	mu     sync.Mutex
	states []fsm.State
	levels []int
	texts  []string
}

func (o *recordingObserver) StateChanged(s fsm.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) LevelChanged(level int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.levels = append(o.levels, level)
}

func (o *recordingObserver) LiveText(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
}

func (o *recordingObserver) seen(state fsm.State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.states {
		if s == state {
			return true
		}
	}
	return false
}

func (o *recordingObserver) lastText() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.texts) == 0 {
		return ""
	}
	return o.texts[len(o.texts)-1]
}

type recordingReporter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingReporter) ReportError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingReporter) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type textSink struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *textSink) Finalize(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func (s *textSink) SetInput(_ context.Context, text string) error {
	return s.Finalize(context.Background(), text)
}

func (s *textSink) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// heldRecognizer holds the microphone from Start until Abort.
type heldRecognizer struct {
	holder   *micHolder
	handlers wake.Handlers

	mu      sync.Mutex
	started bool
	aborted bool
}

func (r *heldRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return errors.New("recognizer aborted")
	}
	r.started = true
	r.holder.acquire()
	return nil
}

func (r *heldRecognizer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return
	}
	r.aborted = true
	if r.started {
		r.holder.release()
	}
}

type recognizerFactory struct {
	holder *micHolder
	made   atomic.Int32

	mu   sync.Mutex
	last *heldRecognizer
}

func (f *recognizerFactory) build(_ wake.Options, h wake.Handlers) (wake.Recognizer, error) {
	rec := &heldRecognizer{holder: f.holder, handlers: h}
	f.made.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = rec
	return rec, nil
}

func (f *recognizerFactory) current() *heldRecognizer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (p *fakeProvider) config() dictation.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}
