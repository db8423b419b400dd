// Package speech defines the Provider interface for continuous
// speech-to-text backends consumed by the recitation tracker.
//
// A provider wraps a streaming recognition service (a cloud WebSocket API or
// a local whisper.cpp model) behind a uniform session abstraction: once
// started, a session accepts raw PCM audio frames and emits Update values,
// each carrying the full transcript recognized so far in the session. The
// tracker only needs the cumulative text per callback, never incremental
// diffs.
//
// Implementations must be safe for concurrent use.
package speech

import "context"

// Config describes the audio format and recognition hints for a new session.
type Config struct {
	// Locale is the BCP-47 language tag for recognition (e.g., "ar-SA").
	// An empty string lets the provider auto-detect, if supported.
	Locale string

	// Hints is a list of contextual vocabulary hints, typically words from
	// the reference text being read, that raise recognition probability
	// for domain terms. Providers without hint support ignore them.
	Hints []string

	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// providers). Implementors may downmix internally.
	Channels int
}

// Update is one recognition callback.
type Update struct {
	// Text is the full transcript recognized so far in this session,
	// including the current interim hypothesis.
	Text string

	// Final reports whether the trailing hypothesis has been committed.
	Final bool
}

// Session is an open streaming recognition session.
//
// The Updates channel is closed when the session terminates for any reason;
// Err then reports the terminal error, or nil after a clean Close. Callers
// must call Close when the session is no longer needed. All methods must be
// safe for concurrent use.
type Session interface {
	// SendAudio delivers a chunk of raw PCM audio for recognition. The
	// chunk must match the SampleRate and Channels agreed in Config.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Updates returns the channel of recognition updates. Closed when the
	// session ends.
	Updates() <-chan Update

	// Err returns the terminal error once Updates is closed, or nil when
	// the session ended cleanly. Before the channel closes it returns nil.
	Err() error

	// Close terminates the session and releases all associated resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any continuous speech-to-text backend.
type Provider interface {
	// Start opens a new streaming recognition session. The returned Session
	// is ready to accept audio immediately. Returns an error when the
	// session cannot be established (authorization failure, unsupported
	// format, or ctx already cancelled).
	Start(ctx context.Context, cfg Config) (Session, error)
}
