package voice

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
	"github.com/rbright/jotter/internal/fsm"
	"github.com/rbright/jotter/internal/permission"
	"github.com/rbright/jotter/internal/retry"
	"github.com/rbright/jotter/internal/wake"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

type harness struct {
	ctrl       *Controller
	holder     *micHolder
	log        *eventLog
	mic        *fakeMic
	provider   *fakeProvider
	tracker    *permission.Tracker
	observer   *recordingObserver
	reporter   *recordingReporter
	finalized  *textSink
	liveInput  *textSink
	recognizer *recognizerFactory
	listener   *wake.Listener
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		holder:    &micHolder{},
		log:       &eventLog{},
		tracker:   permission.NewTracker(nil),
		observer:  &recordingObserver{},
		reporter:  &recordingReporter{},
		finalized: &textSink{},
		liveInput: &textSink{},
	}
	h.mic = &fakeMic{holder: h.holder, log: h.log}
	h.provider = &fakeProvider{log: h.log}

	cfg := Config{
		Dictation:       dictation.Config{Model: "test-model", TranscriptionEnabled: true, ResponseModality: "AUDIO"},
		ConnectTimeout:  time.Second,
		MicReleaseDelay: time.Millisecond,
		SettleDelay:     5 * time.Millisecond,
		FrameInterval:   tick,
		ErrorHold:       40 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.ctrl = NewController(cfg, Deps{
		Mic:        h.mic,
		Provider:   h.provider,
		Permission: h.tracker,
		Observer:   h.observer,
		Reporter:   h.reporter,
		Finalizer:  h.finalized,
		LiveInput:  h.liveInput,
	})

	h.recognizer = &recognizerFactory{holder: h.holder}
	h.listener = wake.NewListener(wake.Config{
		Factory: h.recognizer.build,
		Policy:  retry.Policy{FastPath: time.Millisecond, Base: time.Millisecond, Max: 5 * time.Millisecond},
		Gate:    h.ctrl.WakeAllowed,
		OnWake: func() {
			go func() { _ = h.ctrl.Start(context.Background()) }()
		},
	})
	h.ctrl.AttachWake(h.listener)

	t.Cleanup(h.ctrl.Shutdown)
	return h
}

func (h *harness) startListening(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Equal(t, fsm.StateListening, h.ctrl.State())
}

func (h *harness) say(text string, turnComplete bool) {
	h.provider.callbacks().OnMessage(dictation.Event{Transcript: text, TurnComplete: turnComplete})
}

func (h *harness) waitState(t *testing.T, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want }, waitFor, tick)
}

func TestStartReachesListeningAndStreamsFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	require.Equal(t, permission.Granted, h.ctrl.Permission())
	require.Equal(t, "test-model", h.provider.config().Model)
	require.Equal(t, audio.DefaultSampleRate, h.provider.config().SampleRate)

	h.observer.mu.Lock()
	require.Equal(t, []fsm.State{
		fsm.StateRequestingPermission,
		fsm.StateInitializingAudio,
		fsm.StateConnecting,
		fsm.StateListening,
	}, h.observer.states)
	h.observer.mu.Unlock()

	src := h.mic.last()
	src.mu.Lock()
	require.True(t, src.started)
	src.mu.Unlock()

	src.emit(make([]float32, audio.FrameSamples))
	conn := h.provider.lastConn()
	require.Eventually(t, func() bool { return conn.frameCount() == 1 }, waitFor, tick)
}

func TestStartRejectedWhileBusy(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	require.ErrorIs(t, h.ctrl.Start(context.Background()), ErrBusy)
	require.Equal(t, 1, h.mic.openCount())
}

func TestSendCommandFinalizesAndStops(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.say("Please email the client send", false)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
	require.Equal(t, "Please email the client send", h.observer.lastText())

	h.say("", true)
	h.waitState(t, fsm.StateIdle)

	require.Eventually(t, func() bool {
		texts := h.finalized.list()
		return len(texts) == 1 && texts[0] == "Please email the client"
	}, waitFor, tick)
	require.Empty(t, h.liveInput.list())
	require.Equal(t, 1, h.provider.lastConn().closeCount())
	require.Equal(t, 1, h.mic.last().closeCount())
	require.Equal(t, 0, h.ctrl.Level())
}

func TestSendWithoutLeadingTextDoesNotFinalize(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.say("done.", true)
	h.waitState(t, fsm.StateIdle)

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, h.finalized.list())
}

func TestClearCommandKeepsListening(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.say("remind Sarah tomorrow clear input", true)

	require.Equal(t, fsm.StateListening, h.ctrl.State())
	require.Empty(t, h.observer.lastText())
	require.Empty(t, h.finalized.list())

	h.say("buy milk", false)
	h.say(" send", true)
	h.waitState(t, fsm.StateIdle)
	require.Eventually(t, func() bool {
		texts := h.finalized.list()
		return len(texts) == 1 && texts[0] == "buy milk"
	}, waitFor, tick)
}

func TestStopCommandEmitsLiveInput(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.say("draft the memo stop listening", true)
	h.waitState(t, fsm.StateIdle)

	require.Eventually(t, func() bool {
		texts := h.liveInput.list()
		return len(texts) == 1 && texts[0] == "draft the memo"
	}, waitFor, tick)
	require.Empty(t, h.finalized.list())
}

func TestStopCommandRunsOnceWhenTurnEndsRepeat(t *testing.T) {
	for range 10 {
		h := newHarness(t, nil)
		h.startListening(t)

		h.say("draft reply stop listening", true)
		h.say("", true)
		h.say("", true)
		h.waitState(t, fsm.StateIdle)

		require.Eventually(t, func() bool { return len(h.liveInput.list()) > 0 }, waitFor, tick)
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, []string{"draft reply"}, h.liveInput.list())
		require.Empty(t, h.reporter.list())
	}
}

func TestSendCommandRunsOnceWhenTurnEndsRepeat(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.say("email the client send", true)
	h.say("", true)
	h.provider.callbacks().OnClose()
	h.waitState(t, fsm.StateIdle)

	require.Eventually(t, func() bool { return len(h.finalized.list()) > 0 }, waitFor, tick)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, []string{"email the client"}, h.finalized.list())
	require.Empty(t, h.reporter.list())
	require.False(t, h.observer.seen(fsm.StateError))
}

func TestCommandsOnlyAtTurnComplete(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.say("call Bob send", false)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())

	h.say(" and Alice", true)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
	require.Equal(t, "call Bob send and Alice", h.observer.lastText())
}

func TestStopBeforeConnectingCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.Set(permission.Granted)
	h.provider.setBlock(true)

	result := make(chan error, 1)
	go func() { result <- h.ctrl.Start(context.Background()) }()

	h.waitState(t, fsm.StateConnecting)
	require.False(t, h.listener.Active())

	h.ctrl.Stop()

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrStopped)
	case <-time.After(waitFor):
		t.Fatal("start did not return after stop")
	}
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.False(t, h.observer.seen(fsm.StateListening))
	require.Equal(t, 1, h.mic.last().closeCount())

	require.Eventually(t, h.listener.Active, waitFor, tick)
}

func TestCallerCancellationStopsPendingAttempt(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.setBlock(true)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- h.ctrl.Start(ctx) }()

	h.waitState(t, fsm.StateConnecting)
	cancel()

	require.ErrorIs(t, <-result, ErrStopped)
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
}

func TestFullStopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	done := make(chan struct{})
	for range 3 {
		go func() {
			h.ctrl.Stop()
			done <- struct{}{}
		}()
	}
	for range 3 {
		<-done
	}
	h.ctrl.Stop()

	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Equal(t, 1, h.mic.last().closeCount())
	require.Equal(t, 1, h.provider.lastConn().closeCount())

	current, _ := h.holder.snapshot()
	require.LessOrEqual(t, current, 1)
}

func TestTeardownReleasesStreamBeforeSession(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.ctrl.Stop()
	require.Equal(t, []string{"stream.close", "session.close"}, h.log.list())
}

func TestConnectTimeoutReturnsToIdle(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.ConnectTimeout = 30 * time.Millisecond })
	h.provider.setBlock(true)

	err := h.ctrl.Start(context.Background())
	require.ErrorIs(t, err, ErrConnectTimeout)
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Equal(t, []string{"Connection timed out"}, h.reporter.list())
	require.Equal(t, 1, h.mic.last().closeCount())
}

func TestPermissionDeniedPath(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.setErr(audio.ErrPermissionDenied)

	err := h.ctrl.Start(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Equal(t, fsm.StateError, h.ctrl.State())
	require.Equal(t, permission.Denied, h.ctrl.Permission())
	require.Equal(t, []string{"Microphone access denied"}, h.reporter.list())

	require.ErrorIs(t, h.ctrl.Start(context.Background()), ErrPermissionDenied)
	require.Equal(t, 1, h.mic.openCount())

	h.mic.setErr(nil)
	h.tracker.Set(permission.Granted)
	h.startListening(t)
}

func TestMicrophoneFailureEndsIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.setErr(errors.New("connect pulse server: no such file"))

	err := h.ctrl.Start(context.Background())
	require.ErrorIs(t, err, ErrMicrophone)
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Equal(t, []string{"Could not access microphone"}, h.reporter.list())
	require.Equal(t, permission.Prompt, h.ctrl.Permission())
}

func TestConnectFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.mu.Lock()
	h.provider.err = errors.New("handshake refused")
	h.provider.mu.Unlock()

	err := h.ctrl.Start(context.Background())
	require.ErrorIs(t, err, ErrRemoteSession)
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Len(t, h.reporter.list(), 1)
	require.Contains(t, h.reporter.list()[0], "Connection error: ")
}

func TestRemoteErrorStopsToIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	h.provider.callbacks().OnError(errors.New("boom"))
	h.waitState(t, fsm.StateIdle)
	require.Equal(t, []string{"Connection error: boom"}, h.reporter.list())
	require.Equal(t, 1, h.provider.lastConn().closeCount())
}

func TestUnexpectedCloseEndsInError(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.ErrorHold = time.Hour })
	h.startListening(t)

	h.provider.callbacks().OnClose()
	h.waitState(t, fsm.StateError)
	require.Equal(t, []string{"Connection closed unexpectedly"}, h.reporter.list())
	require.Equal(t, 1, h.mic.last().closeCount())

	h.ctrl.Stop()
	require.Equal(t, fsm.StateIdle, h.ctrl.State())

	h.startListening(t)
}

func TestUnexpectedCloseReturnsToIdleAndRearmsWake(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.Set(permission.Granted)
	h.ctrl.Activate(context.Background())
	require.Eventually(t, h.listener.Active, waitFor, tick)

	h.startListening(t)
	h.provider.callbacks().OnClose()
	require.Eventually(t, func() bool { return h.observer.seen(fsm.StateError) }, waitFor, tick)

	h.waitState(t, fsm.StateIdle)
	require.Eventually(t, h.listener.Active, waitFor, tick)
	require.Equal(t, []string{"Connection closed unexpectedly"}, h.reporter.list())
}

func TestPermissionDenialStaysInError(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.setErr(audio.ErrPermissionDenied)

	require.ErrorIs(t, h.ctrl.Start(context.Background()), ErrPermissionDenied)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, fsm.StateError, h.ctrl.State())
}

func TestLateCallbacksFromOldAttemptAreIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)
	stale := h.provider.callbacks()
	h.ctrl.Stop()

	h.startListening(t)
	stale.OnClose()
	stale.OnError(errors.New("stale"))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
	require.Empty(t, h.reporter.list())
}

func TestLevelTracksInputWhileListening(t *testing.T) {
	h := newHarness(t, nil)
	h.startListening(t)

	samples := make([]float32, 512)
	for i := range samples {
		samples[i] = float32(0.9 * math.Sin(2*math.Pi*float64(i)/16))
	}
	src := h.mic.last()
	require.Eventually(t, func() bool {
		src.emit(samples)
		return h.ctrl.Level() > 0
	}, waitFor, tick)

	h.ctrl.Stop()
	require.Equal(t, 0, h.ctrl.Level())
}

func TestWakeRestartsAfterSettle(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.Set(permission.Granted)
	h.ctrl.Activate(context.Background())

	require.Eventually(t, h.listener.Active, waitFor, tick)

	h.startListening(t)
	require.False(t, h.listener.Active())

	h.ctrl.Stop()
	require.Eventually(t, h.listener.Active, waitFor, tick)
}

func TestWakeStaysOffWithoutPermission(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Activate(context.Background())

	time.Sleep(30 * time.Millisecond)
	require.False(t, h.listener.Active())

	h.tracker.Set(permission.Granted)
	require.Eventually(t, h.listener.Active, waitFor, tick)
}

func TestMicrophoneHeldByOneEngineAtATime(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.Set(permission.Granted)
	h.ctrl.Activate(context.Background())

	for i := range 5 {
		require.Eventually(t, h.listener.Active, waitFor, tick)
		h.recognizer.current().handlers.OnResult(wake.ResultEvent{
			Results: []wake.Result{{Alternatives: []string{"hey jotter"}}},
		})
		h.waitState(t, fsm.StateListening)

		if i%2 == 0 {
			h.say("note number one send", true)
		} else {
			h.ctrl.Stop()
		}
		h.waitState(t, fsm.StateIdle)
	}

	_, peak := h.holder.snapshot()
	require.Equal(t, 1, peak)
}

func TestToggle(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.ctrl.Toggle(context.Background()))
	require.Equal(t, fsm.StateListening, h.ctrl.State())

	require.NoError(t, h.ctrl.Toggle(context.Background()))
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
}

func TestFinalizeFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.finalized.err = errors.New("store offline")
	h.startListening(t)

	h.say("buy milk send", true)
	require.Eventually(t, func() bool {
		return len(h.reporter.list()) == 1
	}, waitFor, tick)
	require.Equal(t, "Could not save note: store offline", h.reporter.list()[0])
}
