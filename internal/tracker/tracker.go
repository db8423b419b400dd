// Package tracker supervises the live recitation-following session: it owns
// the speech provider lifecycle (start, stop, resume, retry with backoff,
// debounced restarts), feeds transcript updates through the aligner, and
// publishes the resulting cursor as observable state.
//
// All aligner and window state is mutated only on the run loop goroutine;
// public methods marshal their work onto that loop through a command channel.
// Cheap observables (cursor, listening, speaking) are published through
// atomics so readers never block the loop.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mushafapp/recite/internal/align"
	"github.com/mushafapp/recite/internal/observe"
	"github.com/mushafapp/recite/internal/refindex"
	"github.com/mushafapp/recite/internal/textnorm"
	"github.com/mushafapp/recite/pkg/speech"
)

// ErrNotListening is returned by SendAudio when no recognition session is
// live.
var ErrNotListening = errors.New("tracker: no live recognition session")

// levelRingSize bounds the rolling amplitude history kept for visualization.
const levelRingSize = 100

// Config holds the tracker's tuning parameters. The zero value of any field
// selects its default.
type Config struct {
	// Locale is the recognition language passed to the provider.
	Locale string

	// SampleRate and Channels describe the PCM audio forwarded to the
	// provider.
	SampleRate int
	Channels   int

	// HintWords is how many upcoming reference words are sent to the
	// provider as contextual vocabulary hints.
	HintWords int

	// WindowCapacity bounds the transcript word window.
	WindowCapacity int

	// SpeakingThreshold is the normalised audio level above which the
	// reader counts as actively speaking.
	SpeakingThreshold float64

	// LevelHistory is how many recent level samples are averaged for
	// speech detection.
	LevelHistory int

	// RetryBaseDelay is the per-attempt backoff increment after a provider
	// error; RetryMaxDelay caps it.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// FormatRetryDelay is the fixed short delay after an audio format
	// error.
	FormatRetryDelay time.Duration

	// DeviceSettleDelay is the longer delay after an input device change.
	DeviceSettleDelay time.Duration

	// RestartDebounce is the delay before reopening a session after a
	// deliberate restart (manual jump).
	RestartDebounce time.Duration

	// MaxRetries is how many consecutive restart attempts are made before
	// the tracker fails the session.
	MaxRetries int

	// Align tunes the alignment engine.
	Align align.Config
}

// DefaultConfig returns the tuned default parameters.
func DefaultConfig() Config {
	return Config{
		Locale:            "ar",
		SampleRate:        16000,
		Channels:          1,
		HintWords:         50,
		SpeakingThreshold: 0.15,
		LevelHistory:      10,
		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     1500 * time.Millisecond,
		FormatRetryDelay:  200 * time.Millisecond,
		DeviceSettleDelay: 1 * time.Second,
		RestartDebounce:   150 * time.Millisecond,
		MaxRetries:        10,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Locale == "" {
		c.Locale = d.Locale
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.HintWords <= 0 {
		c.HintWords = d.HintWords
	}
	if c.SpeakingThreshold <= 0 {
		c.SpeakingThreshold = d.SpeakingThreshold
	}
	if c.LevelHistory <= 0 {
		c.LevelHistory = d.LevelHistory
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.FormatRetryDelay <= 0 {
		c.FormatRetryDelay = d.FormatRetryDelay
	}
	if c.DeviceSettleDelay <= 0 {
		c.DeviceSettleDelay = d.DeviceSettleDelay
	}
	if c.RestartDebounce <= 0 {
		c.RestartDebounce = d.RestartDebounce
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	c.Align = c.Align.WithDefaults()
	return c
}

// EventKind discriminates Event values.
type EventKind string

const (
	// EventCursor reports a cursor movement.
	EventCursor EventKind = "cursor"

	// EventState reports a supervisor state transition.
	EventState EventKind = "state"
)

// Event is one observable change emitted on the Events channel. Events are
// dropped rather than blocking the run loop when the consumer falls behind.
type Event struct {
	Kind EventKind

	// Cursor and Phase are set for EventCursor.
	Cursor int
	Phase  align.Phase

	// State is set for EventState; Err carries the fatal error when State
	// is StateFailed.
	State State
	Err   error
}

// Option is a functional option for configuring a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithMetrics sets the metrics instruments. Defaults to
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithProviderFactory installs a constructor for fresh provider instances,
// used on input device changes where cached provider state can go stale.
// Without a factory, a device change restarts the session on the existing
// provider.
func WithProviderFactory(f func() (speech.Provider, error)) Option {
	return func(t *Tracker) { t.providerFactory = f }
}

// sessionMsg is one message forwarded from a session pump goroutine onto the
// run loop. gen tags the session generation so messages from torn-down
// sessions are discarded.
type sessionMsg struct {
	gen    int
	upd    speech.Update
	closed bool
	err    error
}

// Tracker is the recitation session supervisor. Construct with New, then
// call Run on a dedicated goroutine; all other methods may be called from
// any goroutine.
type Tracker struct {
	cfg             Config
	norm            *textnorm.Normalizer
	provider        speech.Provider
	providerFactory func() (speech.Provider, error)
	log             *slog.Logger
	metrics         *observe.Metrics

	cmds    chan func()
	updates chan sessionMsg
	samples chan float64
	events  chan Event
	done    chan struct{}

	// Loop-owned state, touched only from Run.
	runCtx       context.Context
	ref          *refindex.Text
	aligner      *align.Aligner
	window       *align.Window
	gen          int
	retries      int
	firstUpdate  bool
	restartTimer *time.Timer
	timerArmed   bool

	// sess is also read by SendAudio, hence the mutex.
	sessMu sync.Mutex
	sess   speech.Session

	// Published observables.
	cursor    atomic.Int64
	listening atomic.Bool
	speaking  atomic.Bool

	mu      sync.Mutex
	state   State
	lastErr error
	levels  []float64
}

// New creates a Tracker over the given provider and normalizer. Call Run to
// start it.
func New(provider speech.Provider, norm *textnorm.Normalizer, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:      cfg.withDefaults(),
		norm:     norm,
		provider: provider,
		log:      slog.Default(),

		cmds:    make(chan func(), 16),
		updates: make(chan sessionMsg, 64),
		samples: make(chan float64, 64),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),

		state: StateIdle,
	}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	t.window = align.NewWindow(t.cfg.WindowCapacity, norm)
	return t
}

// Run executes the supervisor loop until ctx is cancelled. It owns all
// aligner and session state; commands, transcript updates, level samples,
// and restart timers are all serialized here.
func (t *Tracker) Run(ctx context.Context) error {
	t.runCtx = ctx
	defer close(t.done)
	defer t.teardownSession()
	defer t.cancelRestart()

	for {
		var timerC <-chan time.Time
		if t.restartTimer != nil {
			timerC = t.restartTimer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-t.cmds:
			fn()
		case msg := <-t.updates:
			t.onSessionMsg(msg)
		case <-timerC:
			t.onRestartTimer()
		case lvl := <-t.samples:
			t.onSample(lvl)
		}
	}
}

// Events returns the channel of observable changes. Slow consumers miss
// events rather than stalling the tracker.
func (t *Tracker) Events() <-chan Event { return t.events }

// Start resets all state, indexes referenceText as the new reading segment,
// and begins listening from offset 0.
func (t *Tracker) Start(referenceText string) {
	t.enqueue(func() {
		ctx, span := observe.StartSpan(t.runCtx, "tracker.start")
		defer span.End()

		t.teardownSession()
		t.cancelRestart()
		t.setError(nil)
		t.retries = 0

		t.ref = refindex.Build(referenceText, t.norm)
		t.aligner = align.New(t.ref, t.cfg.Align)
		t.window.Reset()
		t.publishCursor(align.Phase(""))
		observe.Logger(ctx, t.log).Info("reading segment indexed",
			"words", t.ref.Len(), "total_runes", t.ref.TotalLen)

		t.openSession()
	})
}

// Stop pauses listening gracefully. The cursor is preserved; no retries are
// attempted afterwards.
func (t *Tracker) Stop() {
	t.enqueue(func() { t.halt(StateStopped) })
}

// ForceStop halts immediately, discarding any pending restart and any armed
// manual jump. Idempotent and safe to call at any time.
func (t *Tracker) ForceStop() {
	t.enqueue(func() {
		if t.aligner != nil {
			t.aligner.ClearJump()
			t.aligner.Release()
		}
		t.halt(StateStopped)
	})
}

// Resume restarts listening from the current cursor after a Stop. The search
// anchor is resynced to the cursor, so searching resumes from the confirmed
// position. No-op unless a segment has been started.
func (t *Tracker) Resume() {
	t.enqueue(func() {
		if t.aligner == nil || t.State() == StateListening || t.State() == StateStarting {
			return
		}
		t.cancelRestart()
		t.setError(nil)
		t.retries = 0
		t.aligner.Resync()
		t.openSession()
	})
}

// JumpTo moves the cursor to the given character offset and arms a bounded
// search around the target. When a session is live it is restarted, with
// stale matches suppressed until the new session delivers its first update.
func (t *Tracker) JumpTo(offset int) {
	t.enqueue(func() {
		if t.aligner == nil {
			return
		}
		t.aligner.Seek(offset)
		t.publishCursor(align.PhaseJump)

		if t.listening.Load() {
			t.aligner.Suppress()
			t.teardownSession()
			t.listening.Store(false)
			t.setState(StateRetrying)
			t.metrics.RecordRestart(t.runCtx, "jump")
			t.scheduleRestart(t.cfg.RestartDebounce)
		}
	})
}

// DeviceChanged signals that the audio input device changed. The session is
// restarted on a fresh provider instance (when a factory is installed) after
// a longer settle delay, since cached audio format state can go stale.
func (t *Tracker) DeviceChanged() {
	t.enqueue(func() {
		if t.providerFactory != nil {
			p, err := t.providerFactory()
			if err != nil {
				t.log.Error("provider rebuild after device change failed, keeping current provider", "error", err)
			} else {
				t.provider = p
			}
		}
		if t.State() != StateListening && t.State() != StateRetrying && t.State() != StateStarting {
			return
		}
		t.teardownSession()
		t.listening.Store(false)
		t.setState(StateRetrying)
		t.metrics.RecordRestart(t.runCtx, "device_change")
		t.scheduleRestart(t.cfg.DeviceSettleDelay)
	})
}

// SendAudio forwards a PCM chunk to the live recognition session. Returns
// ErrNotListening when no session is live.
func (t *Tracker) SendAudio(chunk []byte) error {
	t.sessMu.Lock()
	sess := t.sess
	t.sessMu.Unlock()
	if sess == nil {
		return ErrNotListening
	}
	return sess.SendAudio(chunk)
}

// AddSample records one normalised audio level sample [0, 1] from the
// capture callback. Samples are marshalled onto the run loop; excess samples
// are dropped rather than blocking the producer.
func (t *Tracker) AddSample(level float64) {
	select {
	case t.samples <- level:
	case <-t.done:
	default:
	}
}

// Cursor returns the current character-offset cursor.
func (t *Tracker) Cursor() int { return int(t.cursor.Load()) }

// Listening reports whether a recognition session is live.
func (t *Tracker) Listening() bool { return t.listening.Load() }

// Speaking reports whether the recent audio level indicates active speech.
func (t *Tracker) Speaking() bool { return t.speaking.Load() }

// State returns the supervisor state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastError returns the sticky fatal error, cleared by the next Start or
// Resume.
func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Levels returns a copy of the rolling amplitude history, oldest first.
func (t *Tracker) Levels() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.levels))
	copy(out, t.levels)
	return out
}

// ---- run loop internals ----

// enqueue marshals fn onto the run loop. Dropped once Run has exited.
func (t *Tracker) enqueue(fn func()) {
	select {
	case t.cmds <- fn:
	case <-t.done:
	}
}

// openSession starts a new provider session and its pump goroutine.
func (t *Tracker) openSession() {
	t.setState(StateStarting)

	cfg := speech.Config{
		Locale:     t.cfg.Locale,
		Hints:      t.hints(),
		SampleRate: t.cfg.SampleRate,
		Channels:   t.cfg.Channels,
	}
	sess, err := t.provider.Start(t.runCtx, cfg)
	if err != nil {
		t.onSessionFailure(err)
		return
	}

	t.gen++
	t.firstUpdate = true
	t.window.Reset()
	t.aligner.Resync()

	t.sessMu.Lock()
	t.sess = sess
	t.sessMu.Unlock()

	t.listening.Store(true)
	t.setState(StateListening)
	t.metrics.ActiveSessions.Add(t.runCtx, 1)
	t.log.Info("recognition session started", "generation", t.gen)

	go t.pump(t.gen, sess)
}

// pump forwards one session's updates onto the run loop, tagged with its
// generation, and reports the terminal error when the channel closes.
func (t *Tracker) pump(gen int, sess speech.Session) {
	for upd := range sess.Updates() {
		select {
		case t.updates <- sessionMsg{gen: gen, upd: upd}:
		case <-t.done:
			return
		}
	}
	select {
	case t.updates <- sessionMsg{gen: gen, closed: true, err: sess.Err()}:
	case <-t.done:
	}
}

// onSessionMsg dispatches one pump message, discarding messages from
// superseded session generations.
func (t *Tracker) onSessionMsg(msg sessionMsg) {
	if msg.gen != t.gen {
		return
	}
	if msg.closed {
		t.onSessionClosed(msg.err)
		return
	}
	t.onUpdate(msg.upd)
}

// onUpdate runs one transcript update through the aligner.
func (t *Tracker) onUpdate(upd speech.Update) {
	if t.firstUpdate {
		// The new session is delivering speech from the current position:
		// any jump suppression can lift and the retry budget resets.
		t.firstUpdate = false
		t.retries = 0
		t.aligner.Release()
	}
	t.metrics.TranscriptUpdates.Add(t.runCtx, 1)

	if !t.window.Update(upd.Text) {
		return
	}

	wasArmed := t.aligner.JumpArmed()
	recent := t.window.Recent(t.cfg.Align.RecentWords)

	began := time.Now()
	phase, moved := t.aligner.Process(recent, t.speaking.Load())
	t.metrics.AlignDuration.Record(t.runCtx, time.Since(began).Seconds())

	if wasArmed {
		switch {
		case phase == align.PhaseJump:
			t.metrics.RecordJump(t.runCtx, "confirmed")
		case !t.aligner.JumpArmed():
			t.metrics.RecordJump(t.runCtx, "abandoned")
		}
	}
	if phase != "" {
		t.metrics.RecordMatch(t.runCtx, string(phase))
	}
	if phase == align.PhaseStall {
		t.metrics.Stalls.Add(t.runCtx, 1)
		t.log.Debug("stall recovery advanced the cursor", "cursor", t.aligner.Cursor())
	}
	if moved {
		t.publishCursor(phase)
	}
}

// onSessionClosed handles the end of the live session. A close while the
// supervisor still wants to listen counts as a provider failure.
func (t *Tracker) onSessionClosed(err error) {
	t.sessMu.Lock()
	hadSession := t.sess != nil
	t.sess = nil
	t.sessMu.Unlock()

	t.listening.Store(false)
	if hadSession {
		t.metrics.ActiveSessions.Add(t.runCtx, -1)
	}

	switch t.State() {
	case StateStopped, StateFailed, StateIdle:
		return
	}
	if err == nil {
		err = errors.New("recognition session ended unexpectedly")
	}
	t.onSessionFailure(err)
}

// onSessionFailure classifies err and either schedules a debounced restart
// or fails the session.
func (t *Tracker) onSessionFailure(err error) {
	if errors.Is(err, speech.ErrAuthDenied) {
		t.fail(err)
		return
	}

	t.retries++
	if t.retries > t.cfg.MaxRetries {
		t.fail(fmt.Errorf("restart budget exhausted after %d attempts: %w", t.cfg.MaxRetries, err))
		return
	}

	var delay time.Duration
	reason := "provider_error"
	if errors.Is(err, speech.ErrBadFormat) {
		delay = t.cfg.FormatRetryDelay
		reason = "bad_format"
	} else {
		delay = min(time.Duration(t.retries)*t.cfg.RetryBaseDelay, t.cfg.RetryMaxDelay)
	}

	t.log.Warn("recognition session failed, restart scheduled",
		"error", err,
		"attempt", t.retries,
		"delay", delay,
	)
	t.setState(StateRetrying)
	t.metrics.RecordRestart(t.runCtx, reason)
	t.scheduleRestart(delay)
}

// scheduleRestart arms the single restart timer, replacing any pending one
// so at most one restart is ever in flight.
func (t *Tracker) scheduleRestart(d time.Duration) {
	if t.restartTimer == nil {
		t.restartTimer = time.NewTimer(d)
	} else {
		if !t.restartTimer.Stop() {
			select {
			case <-t.restartTimer.C:
			default:
			}
		}
		t.restartTimer.Reset(d)
	}
	t.timerArmed = true
}

// cancelRestart disarms any pending restart.
func (t *Tracker) cancelRestart() {
	if t.restartTimer == nil {
		return
	}
	if !t.restartTimer.Stop() {
		select {
		case <-t.restartTimer.C:
		default:
		}
	}
	t.timerArmed = false
}

// onRestartTimer reopens the session when a scheduled restart fires.
func (t *Tracker) onRestartTimer() {
	if !t.timerArmed {
		return
	}
	t.timerArmed = false
	if t.State() != StateRetrying {
		return
	}
	t.openSession()
}

// onSample folds one amplitude sample into the rolling history and rederives
// the speaking flag from the average of the most recent samples.
func (t *Tracker) onSample(level float64) {
	t.mu.Lock()
	t.levels = append(t.levels, level)
	if len(t.levels) > levelRingSize {
		t.levels = t.levels[len(t.levels)-levelRingSize:]
	}
	n := t.cfg.LevelHistory
	if n > len(t.levels) {
		n = len(t.levels)
	}
	var sum float64
	for _, v := range t.levels[len(t.levels)-n:] {
		sum += v
	}
	t.mu.Unlock()

	t.speaking.Store(n > 0 && sum/float64(n) >= t.cfg.SpeakingThreshold)
}

// halt tears down the session and pending restart and enters the given
// terminal state.
func (t *Tracker) halt(s State) {
	t.teardownSession()
	t.cancelRestart()
	t.listening.Store(false)
	t.setState(s)
}

// teardownSession closes the live session, if any, and bumps the generation
// so in-flight pump messages are discarded.
func (t *Tracker) teardownSession() {
	t.sessMu.Lock()
	sess := t.sess
	t.sess = nil
	t.sessMu.Unlock()
	if sess == nil {
		return
	}
	t.gen++
	if err := sess.Close(); err != nil {
		t.log.Warn("closing recognition session failed", "error", err)
	}
	if t.runCtx != nil {
		t.metrics.ActiveSessions.Add(t.runCtx, -1)
	}
}

// fail records a fatal error as sticky state and halts.
func (t *Tracker) fail(err error) {
	t.log.Error("session failed permanently", "error", err)
	t.setError(err)
	t.teardownSession()
	t.cancelRestart()
	t.listening.Store(false)
	t.setState(StateFailed)
}

// hints collects upcoming readable reference words around the cursor as
// contextual vocabulary hints for the provider.
func (t *Tracker) hints() []string {
	if t.ref == nil || t.ref.Len() == 0 {
		return nil
	}
	start := t.ref.WordContaining(t.aligner.Cursor())
	if start < 0 {
		start = 0
	}
	hints := make([]string, 0, t.cfg.HintWords)
	for i := start; i < t.ref.Len() && len(hints) < t.cfg.HintWords; i++ {
		if t.ref.Words[i].Annotation {
			continue
		}
		hints = append(hints, t.ref.Words[i].Text)
	}
	return hints
}

// publishCursor stores the aligner's cursor in the atomic observable and
// emits a cursor event.
func (t *Tracker) publishCursor(phase align.Phase) {
	c := t.aligner.Cursor()
	t.cursor.Store(int64(c))
	t.emit(Event{Kind: EventCursor, Cursor: c, Phase: phase})
}

// setState records a state transition and emits it.
func (t *Tracker) setState(s State) {
	t.mu.Lock()
	changed := t.state != s
	t.state = s
	err := t.lastErr
	t.mu.Unlock()
	if changed {
		t.emit(Event{Kind: EventState, State: s, Err: err})
	}
}

// setError records the sticky error.
func (t *Tracker) setError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

// emit delivers an event without ever blocking the run loop.
func (t *Tracker) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}
