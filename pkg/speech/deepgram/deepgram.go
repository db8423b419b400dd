// Package deepgram provides a Deepgram-backed speech provider using the
// Deepgram streaming WebSocket API. It implements the speech.Provider
// interface, accumulating committed segments so that every Update carries
// the full transcript recognized so far in the session.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/mushafapp/recite/pkg/speech"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "ar"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
// Overridden per session by Config.Locale.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the provider-level default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements speech.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: %w: apiKey must not be empty", speech.ErrAuthDenied)
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Start opens a streaming recognition session with Deepgram. It respects
// cfg.SampleRate, cfg.Locale, and cfg.Hints.
func (p *Provider) Start(ctx context.Context, cfg speech.Config) (speech.Session, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("deepgram: dial: %w", speech.ErrAuthDenied)
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:    conn,
		updates: make(chan speech.Update, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg speech.Config) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Locale
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, hint := range cfg.Hints {
		q.Add("keywords", hint)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure of a Deepgram Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements
// speech.Session. The committed-segment accumulator is confined to readLoop.
type session struct {
	conn    *websocket.Conn
	updates chan speech.Update
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Updates returns the channel of cumulative transcript updates.
func (s *session) Updates() <-chan speech.Update { return s.updates }

// Err returns the terminal error once Updates is closed.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close terminates the session cleanly, flushing pending audio.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush buffered audio before tearing down.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain remaining audio before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives Deepgram messages, folds committed segments into the
// cumulative transcript, and emits an Update per Results event.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.updates)

	var acc accumulator
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Close was requested; clean shutdown.
			default:
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
			}
			return
		}

		segment, final, ok := parseResponse(msg)
		if !ok {
			continue
		}

		text := acc.fold(segment, final)
		select {
		case s.updates <- speech.Update{Text: text, Final: final}:
		case <-s.done:
			return
		}
	}
}

// accumulator assembles the full-so-far transcript from committed segments
// plus the current interim hypothesis.
type accumulator struct {
	committed []string
}

// fold incorporates one segment and returns the cumulative transcript text.
func (a *accumulator) fold(segment string, final bool) string {
	if final {
		if segment != "" {
			a.committed = append(a.committed, segment)
		}
		return strings.Join(a.committed, " ")
	}
	if segment == "" {
		return strings.Join(a.committed, " ")
	}
	parts := make([]string, 0, len(a.committed)+1)
	parts = append(parts, a.committed...)
	parts = append(parts, segment)
	return strings.Join(parts, " ")
}

// parseResponse extracts the top alternative's transcript segment from a raw
// Deepgram message. Returns ok=false for non-Results messages.
func parseResponse(data []byte) (segment string, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" {
		return "", false, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}

// Ensure interface satisfaction at compile time.
var (
	_ speech.Provider = (*Provider)(nil)
	_ speech.Session  = (*session)(nil)
)
