// Package mock provides test doubles for the speech package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// Config and to hand out scripted Sessions. Use Session to feed controlled
// Update values and inspect delivered audio.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Start(ctx, cfg)
//	sess.Emit("بسم الله", false)
package mock

import (
	"context"
	"sync"

	"github.com/mushafapp/recite/pkg/speech"
)

// StartCall records a single invocation of Provider.Start.
type StartCall struct {
	// Ctx is the context passed to Start.
	Ctx context.Context
	// Cfg is the Config passed to Start.
	Cfg speech.Config
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Start when Queue is empty. If both are nil,
	// Start returns a fresh default Session.
	Session *Session

	// Queue holds sessions returned by successive Start calls, in order.
	// Once exhausted, Start falls back to Session (or a fresh default).
	Queue []*Session

	// StartErr, if non-nil, is returned as the error from every Start call.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall
}

// Start records the call and returns the next scripted session.
func (p *Provider) Start(ctx context.Context, cfg speech.Config) (speech.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, StartCall{Ctx: ctx, Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	if len(p.Queue) > 0 {
		s := p.Queue[0]
		p.Queue = p.Queue[1:]
		return s, nil
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// StartCallCount returns the number of recorded Start calls. Thread-safe.
func (p *Provider) StartCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = nil
}

// Ensure Provider implements speech.Provider at compile time.
var _ speech.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of speech.Session. Drive it from tests
// with Emit and Fail; it closes its Updates channel when failed or closed.
type Session struct {
	mu sync.Mutex

	updates  chan speech.Update
	closed   bool
	terminal error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session with a buffered Updates channel.
func NewSession() *Session {
	return &Session{
		updates: make(chan speech.Update, 64),
	}
}

// Emit delivers an Update carrying the full transcript text so far.
// No-op once the session has ended.
func (s *Session) Emit(text string, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.updates <- speech.Update{Text: text, Final: final}
}

// Fail terminates the session with err: the Updates channel closes and Err
// reports err from then on. Safe to call once; later calls are no-ops.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.terminal = err
	close(s.updates)
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Updates returns the session's update channel.
func (s *Session) Updates() <-chan speech.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Err returns the terminal error set by Fail, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return nil
	}
	return s.terminal
}

// Close records the call and ends the session cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	return nil
}

// Ensure Session implements speech.Session at compile time.
var _ speech.Session = (*Session)(nil)
