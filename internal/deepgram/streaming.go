// Package deepgram streams dictation audio to Deepgram's live listen API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// Provider implements dictation.Provider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *Provider) Connect(ctx context.Context, cfg dictation.Config, cb dictation.Callbacks) (dictation.Conn, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	session := &streamingSession{conn: conn, cb: cb}
	go session.readLoop()
	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn
	cb   dictation.Callbacks

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Send writes one PCM16 frame as a binary message.
func (s *streamingSession) Send(frame audio.Frame) error {
	if s.isClosed() {
		return dictation.ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Bytes()); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// Close asks Deepgram to flush and then drops the connection.
func (s *streamingSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *streamingSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *streamingSession) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			if s.cb.OnError != nil && !s.isClosed() {
				s.cb.OnError(errors.New(message))
			}
			return
		}

		ev, ok := eventFrom(response)
		if ok && s.cb.OnMessage != nil && !s.isClosed() {
			s.cb.OnMessage(ev)
		}
	}
}

func (s *streamingSession) handleReadError(err error) {
	if s.isClosed() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		if s.cb.OnClose != nil {
			s.cb.OnClose()
		}
		return
	}
	if s.cb.OnError != nil {
		s.cb.OnError(fmt.Errorf("failed to read provider event: %w", err))
	}
}

// eventFrom keeps only finalized segments so the transcript accumulates once
// per utterance. Segments carry a leading space as a word separator.
func eventFrom(response deepgramResponse) (dictation.Event, bool) {
	if strings.EqualFold(response.Type, "UtteranceEnd") {
		return dictation.Event{TurnComplete: true}, true
	}

	var ev dictation.Event
	if response.IsFinal || response.SpeechFinal {
		if transcript := extractTranscript(response); transcript != "" {
			ev.Transcript = " " + transcript
		}
	}
	ev.TurnComplete = response.SpeechFinal
	return ev, ev.Transcript != "" || ev.TurnComplete
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(providerCfg Config, streamCfg dictation.Config) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	rate := streamCfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	model := providerCfg.Model
	if strings.TrimSpace(streamCfg.Model) != "" {
		model = strings.TrimSpace(streamCfg.Model)
	}

	query := listenURL.Query()
	query.Set("model", model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", rate))
	query.Set("channels", "1")
	query.Set("interim_results", "true")
	query.Set("utterance_end_ms", "1000")
	query.Set("vad_events", "true")
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
