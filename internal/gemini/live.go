// Package gemini streams dictation audio to the Gemini Live API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
)

const DefaultLiveModel = "gemini-live-2.5-flash-preview"

// Config controls the Gemini client.
type Config struct {
	APIKey string
	Model  string
}

// liveSession is the subset of *genai.Session the provider drives.
type liveSession interface {
	SendRealtimeInput(genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)

// LiveProvider implements dictation.Provider over genai Live sessions.
type LiveProvider struct {
	model   string
	connect connectFunc
}

// NewLiveProvider builds a Gemini API client for Live sessions.
func NewLiveProvider(ctx context.Context, cfg Config) (*LiveProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &LiveProvider{
		model: cfg.Model,
		connect: func(ctx context.Context, model string, lc *genai.LiveConnectConfig) (liveSession, error) {
			return client.Live.Connect(ctx, model, lc)
		},
	}, nil
}

// Connect opens a Live session; it returns once the setup handshake completes.
func (p *LiveProvider) Connect(ctx context.Context, cfg dictation.Config, cb dictation.Callbacks) (dictation.Conn, error) {
	model := firstNonEmpty(cfg.Model, p.model, DefaultLiveModel)

	session, err := p.connect(ctx, model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open gemini live session: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}

	conn := &liveConn{
		session:  session,
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", rate),
		cb:       cb,
	}
	go conn.receiveLoop()
	return conn, nil
}

func liveConfig(cfg dictation.Config) *genai.LiveConnectConfig {
	modality := genai.ModalityAudio
	if m := strings.TrimSpace(cfg.ResponseModality); m != "" {
		modality = genai.Modality(strings.ToUpper(m))
	}

	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{modality},
	}
	if cfg.TranscriptionEnabled {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if prompt := strings.TrimSpace(cfg.SystemPrompt); prompt != "" {
		lc.SystemInstruction = genai.NewContentFromText(prompt, genai.RoleUser)
	}
	return lc
}

type liveConn struct {
	session  liveSession
	mimeType string
	cb       dictation.Callbacks

	mu     sync.Mutex
	closed bool
}

func (c *liveConn) Send(frame audio.Frame) error {
	if c.isClosed() {
		return dictation.ErrSessionClosed
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: c.mimeType, Data: frame.Bytes()},
	})
}

func (c *liveConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.session.Close()
}

func (c *liveConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *liveConn) receiveLoop() {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			if c.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if c.cb.OnClose != nil {
					c.cb.OnClose()
				}
				return
			}
			if c.cb.OnError != nil {
				c.cb.OnError(fmt.Errorf("receive gemini message: %w", err))
			}
			return
		}

		ev, ok := eventFrom(msg)
		if !ok || c.cb.OnMessage == nil {
			continue
		}
		c.cb.OnMessage(ev)
	}
}

// eventFrom extracts input transcription and turn boundaries; model audio is ignored.
func eventFrom(msg *genai.LiveServerMessage) (dictation.Event, bool) {
	if msg == nil || msg.ServerContent == nil {
		return dictation.Event{}, false
	}
	content := msg.ServerContent

	var ev dictation.Event
	if content.InputTranscription != nil {
		ev.Transcript = content.InputTranscription.Text
	}
	ev.TurnComplete = content.TurnComplete
	return ev, ev.Transcript != "" || ev.TurnComplete
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
