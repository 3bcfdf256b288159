package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/realtime"
	"github.com/engaging-workplace/clarity/internal/script"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

// State is the controller's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StatePaused     State = "paused"
)

// Config wires a Controller. Script, Credentials, Dialer and Logger are
// required.
type Config struct {
	Script      *script.Script
	Credentials CredentialSource
	Dialer      Dialer
	Logger      TranscriptLogger

	// VAD silence duration override in milliseconds; zero keeps the script's.
	SilenceDurationMS int

	ConnectTimeout  time.Duration
	LogTimeout      time.Duration
	SpeakFirstDelay time.Duration
	Now             func() time.Time

	OnStateChange func(State)
	OnTranscript  func(transcript.Record)
	OnProgress    func(progress, total int)
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State     State
	SessionID string
	Progress  int
	Total     int
	Current   string
	Completed []string
}

// Controller runs one interview at a time over a realtime transport.
type Controller struct {
	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	state         State
	gen           uint64
	sessionID     string
	transport     Transport
	opened        chan struct{}
	openSeen      bool
	cancelConnect context.CancelFunc
	speakTimer    *time.Timer
	buffer        *UtteranceBuffer
	progress      *Estimator

	logs sync.WaitGroup
}

func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.Script == nil:
		return nil, errors.New("session: script is required")
	case cfg.Credentials == nil:
		return nil, errors.New("session: credential source is required")
	case cfg.Dialer == nil:
		return nil, errors.New("session: dialer is required")
	case cfg.Logger == nil:
		return nil, errors.New("session: transcript logger is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	if cfg.LogTimeout <= 0 {
		cfg.LogTimeout = 10 * time.Second
	}
	if cfg.SpeakFirstDelay <= 0 {
		cfg.SpeakFirstDelay = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		cfg:      cfg,
		log:      observability.Component("session"),
		state:    StateIdle,
		buffer:   NewUtteranceBuffer(),
		progress: NewEstimator(cfg.Script),
	}, nil
}

// Start opens a new interview session and blocks until it is active or has
// failed. On failure the controller is back in StateIdle.
func (c *Controller) Start(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.gen++
	gen := c.gen
	c.sessionID = fmt.Sprintf("session-%d", c.cfg.Now().UnixMilli())
	c.opened = make(chan struct{})
	c.openSeen = false
	c.cancelConnect = cancel
	c.state = StateConnecting
	opened := c.opened
	sessionID := c.sessionID
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	c.log.Info().Str("session_id", sessionID).Msg("connecting interview session")

	err := c.connect(connectCtx, gen, opened)
	if err == nil {
		c.log.Info().Str("session_id", sessionID).Msg("interview session active")
		return nil
	}

	c.mu.Lock()
	stopped := c.gen != gen
	c.mu.Unlock()
	switch {
	case stopped:
		err = ErrStopped
	case errors.Is(connectCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("%w after %s: %w", ErrConnectTimeout, c.cfg.ConnectTimeout, err)
	}

	c.abort(gen)
	c.log.Warn().Err(err).Str("session_id", sessionID).Msg("interview session failed to start")
	return err
}

func (c *Controller) connect(ctx context.Context, gen uint64, opened <-chan struct{}) error {
	cred, err := c.cfg.Credentials.Credential(ctx)
	if err != nil {
		return fmt.Errorf("fetch credential: %w", err)
	}

	t, err := c.cfg.Dialer.Dial(ctx, cred.ClientSecret, Handlers{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(data []byte) { c.handleMessage(gen, data) },
		OnClose:   func() { c.handleClose(gen) },
	})
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = t.Close()
		return ErrStopped
	}
	c.transport = t
	c.mu.Unlock()

	select {
	case <-opened:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.activate(gen)
}

func (c *Controller) activate(gen uint64) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrStopped
	}
	t := c.transport
	c.state = StateActive
	c.cancelConnect = nil
	c.mu.Unlock()

	observability.SessionStarted()
	c.notifyState(StateActive)

	update, err := realtime.SessionUpdate(c.sessionConfig())
	if err != nil {
		return fmt.Errorf("encode session.update: %w", err)
	}
	if err := t.Send(update); err != nil {
		return fmt.Errorf("send session.update: %w", err)
	}

	if c.cfg.Script.SpeakFirst {
		c.mu.Lock()
		if c.gen == gen {
			c.speakTimer = time.AfterFunc(c.cfg.SpeakFirstDelay, func() { c.requestResponse(gen) })
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) sessionConfig() realtime.SessionConfig {
	s := c.cfg.Script
	silence := s.TurnDetection.SilenceDurationMS
	if c.cfg.SilenceDurationMS > 0 {
		silence = c.cfg.SilenceDurationMS
	}

	cfg := realtime.SessionConfig{
		Modalities:   []string{"text", "audio"},
		Instructions: s.Instructions,
		Voice:        s.Voice,
		Temperature:  s.Temperature,
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         s.TurnDetection.Threshold,
			PrefixPaddingMS:   s.TurnDetection.PrefixPaddingMS,
			SilenceDurationMS: silence,
		},
	}
	if s.TranscriptionModel != "" {
		cfg.InputAudioTranscription = &realtime.InputAudioTranscription{Model: s.TranscriptionModel}
	}
	return cfg
}

func (c *Controller) requestResponse(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || (c.state != StateActive && c.state != StatePaused) {
		c.mu.Unlock()
		return
	}
	t := c.transport
	c.speakTimer = nil
	c.mu.Unlock()

	if err := t.Send(realtime.ResponseCreate()); err != nil {
		c.log.Warn().Err(err).Msg("send response.create")
	}
}

func (c *Controller) handleOpen(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.openSeen {
		return
	}
	c.openSeen = true
	close(c.opened)
}

func (c *Controller) handleClose(gen uint64) {
	c.mu.Lock()
	live := c.gen == gen && c.state != StateIdle
	c.mu.Unlock()
	if !live {
		return
	}
	c.log.Warn().Msg("realtime transport closed by remote; ending interview session")
	c.abort(gen)
}

func (c *Controller) handleMessage(gen uint64, data []byte) {
	ev, err := realtime.ParseEvent(data)
	if err != nil {
		c.log.Debug().Err(err).Msg("ignoring malformed realtime event")
		return
	}

	c.mu.Lock()
	if c.gen != gen || (c.state != StateActive && c.state != StatePaused) {
		c.mu.Unlock()
		return
	}

	var rec *transcript.Record
	progress, changed := 0, false

	switch ev.Type {
	case realtime.EventTranscriptDelta:
		c.buffer.AddDelta(ev.Delta)
	case realtime.EventTranscriptDone:
		c.buffer.Flush(ev.Transcript)
		progress, changed = c.progress.Observe(ev.Transcript)
		rec = c.recordLocked(transcript.SpeakerAgent, ev.Transcript)
	case realtime.EventInputTranscriptionCompleted:
		rec = c.recordLocked(transcript.SpeakerParticipant, ev.Transcript)
	case realtime.EventAudioDone, realtime.EventResponseDone:
		c.buffer.Flush("")
	case realtime.EventError:
		c.mu.Unlock()
		if ev.Error != nil {
			c.log.Error().Err(ev.Error).Msg("realtime error event")
		} else {
			c.log.Error().Msg("realtime error event without payload")
		}
		return
	}
	c.mu.Unlock()

	if changed && c.cfg.OnProgress != nil {
		c.cfg.OnProgress(progress, c.progress.Total())
	}
	if rec != nil {
		c.dispatch(*rec)
	}
}

// recordLocked builds a record for a completed utterance, or nil for blank
// text.
func (c *Controller) recordLocked(speaker transcript.Speaker, text string) *transcript.Record {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	rec := transcript.NewRecord(c.cfg.Now(), c.sessionID, speaker, text)
	return &rec
}

// dispatch hands a record to the logger without waiting for it. A failure is
// logged and has no effect on the session.
func (c *Controller) dispatch(rec transcript.Record) {
	if c.cfg.OnTranscript != nil {
		c.cfg.OnTranscript(rec)
	}

	c.logs.Add(1)
	go func() {
		defer c.logs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LogTimeout)
		defer cancel()
		if err := c.cfg.Logger.LogTranscript(ctx, rec); err != nil {
			c.log.Warn().Err(err).
				Str("session_id", rec.SessionID).
				Str("speaker", string(rec.Speaker)).
				Msg("failed to log transcript")
		}
	}()
}

// Pause mutes the agent's audio. The session stays connected.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.transport.SetMuted(true)
	c.state = StatePaused
	c.mu.Unlock()

	c.notifyState(StatePaused)
	return nil
}

func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.transport.SetMuted(false)
	c.state = StateActive
	c.mu.Unlock()

	c.notifyState(StateActive)
	return nil
}

// Stop tears the session down from any state. Calling it when idle is a
// no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	prev, t := c.resetLocked()
	c.mu.Unlock()
	return c.finish(prev, t)
}

func (c *Controller) abort(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	prev, t := c.resetLocked()
	c.mu.Unlock()
	if err := c.finish(prev, t); err != nil {
		c.log.Warn().Err(err).Msg("tear down interview session")
	}
}

func (c *Controller) resetLocked() (State, Transport) {
	prev, t := c.state, c.transport
	c.gen++
	c.state = StateIdle
	c.transport = nil
	c.sessionID = ""
	c.buffer.Reset()
	c.progress.Reset()
	if c.speakTimer != nil {
		c.speakTimer.Stop()
		c.speakTimer = nil
	}
	if c.cancelConnect != nil {
		c.cancelConnect()
		c.cancelConnect = nil
	}
	return prev, t
}

func (c *Controller) finish(prev State, t Transport) error {
	var err error
	if t != nil {
		if cerr := t.Close(); cerr != nil {
			err = fmt.Errorf("close transport: %w", cerr)
		}
	}
	if prev == StateActive || prev == StatePaused {
		observability.SessionEnded()
	}
	if prev != StateIdle {
		c.notifyState(StateIdle)
		c.log.Info().Msg("interview session stopped")
	}
	return err
}

func (c *Controller) notifyState(s State) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		SessionID: c.sessionID,
		Progress:  c.progress.Progress(),
		Total:     c.progress.Total(),
		Current:   c.buffer.Current(),
		Completed: c.buffer.Completed(),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until every in-flight transcript log call has returned.
func (c *Controller) Wait() {
	c.logs.Wait()
}
