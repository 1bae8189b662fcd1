package voice

import (
	"fmt"
	"time"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
	"github.com/rbright/jotter/internal/fsm"
)

// callbacks binds session events to one attempt. Every handler re-checks that
// res is still current and reads state through the controller.
func (c *Controller) callbacks(res *resources) dictation.Callbacks {
	return dictation.Callbacks{
		OnMessage: func(ev dictation.Event) { c.onMessage(res, ev) },
		OnError:   func(err error) { c.onRemoteError(res, err) },
		OnClose:   func() { c.onRemoteClose(res) },
	}
}

func (c *Controller) onMessage(res *resources, ev dictation.Event) {
	if !c.current(res) || res.retired() {
		return
	}
	session := res.dictation()
	if session == nil {
		return
	}
	if ev.Transcript != "" {
		c.observer.LiveText(session.Transcript())
	}
	if ev.TurnComplete && c.State() == fsm.StateListening {
		c.applyCommand(res, session)
	}
}

// applyCommand runs the turn-complete command policy against the transcript.
func (c *Controller) applyCommand(res *resources, session *dictation.Session) {
	command, leading := dictation.DetectCommand(session.Transcript())
	switch command {
	case dictation.CommandNone:
		return
	case dictation.CommandSend, dictation.CommandStop:
		if !res.retire() {
			return
		}
		session.ClearTranscript()
	case dictation.CommandClear:
		if !c.clearTranscript(res, session) {
			return
		}
	}
	c.metrics.RecordCommand(command.String())
	c.logger.Debug("voice command", "command", command.String())

	switch command {
	case dictation.CommandSend:
		if leading != "" {
			go c.finalize(leading)
		}
		go c.fullStop(res, fsm.StateIdle, nil, false)
	case dictation.CommandStop:
		if leading != "" {
			go c.setLiveInput(leading)
		}
		go c.fullStop(res, fsm.StateIdle, nil, false)
	}
}

// clearTranscript drops the transcript when the table allows a clear from the
// current state of res.
func (c *Controller) clearTranscript(res *resources, session *dictation.Session) bool {
	c.mu.Lock()
	if c.res != res {
		c.mu.Unlock()
		return false
	}
	next, err := fsm.Transition(c.state, fsm.EventClear)
	if err != nil {
		c.mu.Unlock()
		c.logger.Debug("clear ignored", "error", err.Error())
		return false
	}
	c.state = next
	c.mu.Unlock()

	session.ClearTranscript()
	c.observer.LiveText("")
	return true
}

func (c *Controller) finalize(text string) {
	if c.finalizer == nil {
		c.logger.Warn("dropping finalized note: no finalizer configured")
		return
	}
	if err := c.finalizer.Finalize(c.baseContext(), text); err != nil {
		c.logger.Error("finalize note", "error", err.Error())
		c.reporter.ReportError("Could not save note: " + err.Error())
	}
}

func (c *Controller) setLiveInput(text string) {
	if c.liveInput == nil {
		return
	}
	if err := c.liveInput.SetInput(c.baseContext(), text); err != nil {
		c.logger.Warn("set live input", "error", err.Error())
	}
}

func (c *Controller) onRemoteError(res *resources, err error) {
	if !c.current(res) || res.retired() {
		return
	}
	c.reporter.ReportError(msgConnectionError + err.Error())
	c.metrics.RecordFailure("remote")
	go c.fullStop(res, fsm.StateIdle, fmt.Errorf("%w: %w", ErrRemoteSession, err), false)
}

func (c *Controller) onRemoteClose(res *resources) {
	if !c.current(res) || res.retired() {
		return
	}
	if state := c.State(); state != fsm.StateListening && !state.Pending() {
		return
	}
	c.reporter.ReportError(msgUnexpectedClose)
	c.metrics.RecordFailure("closed")
	go c.fullStop(res, fsm.StateError, ErrUnexpectedClose, false)
}

// visualize samples the analyser every frame interval while listening.
func (c *Controller) visualize(res *resources, graph *audio.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !c.setListeningLevel(res, graph.Level()) {
			return
		}
	}
}
