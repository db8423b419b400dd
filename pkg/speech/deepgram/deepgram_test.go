package deepgram

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/mushafapp/recite/pkg/speech"
)

func TestNew(t *testing.T) {
	t.Run("empty api key is an auth error", func(t *testing.T) {
		_, err := New("")
		if !errors.Is(err, speech.ErrAuthDenied) {
			t.Fatalf("New(\"\") error = %v, want ErrAuthDenied", err)
		}
	})

	t.Run("options override defaults", func(t *testing.T) {
		p, err := New("key", WithModel("base"), WithLanguage("en"), WithSampleRate(8000))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.model != "base" || p.language != "en" || p.sampleRate != 8000 {
			t.Errorf("provider = %+v, options not applied", p)
		}
	})
}

func TestBuildURL(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.buildURL(speech.Config{
		Locale:     "ar",
		SampleRate: 16000,
		Channels:   1,
		Hints:      []string{"بسم", "الله"},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Scheme != "wss" || u.Host != "api.deepgram.com" {
		t.Errorf("endpoint = %s://%s, want wss://api.deepgram.com", u.Scheme, u.Host)
	}

	q := u.Query()
	for key, want := range map[string]string{
		"model":           defaultModel,
		"language":        "ar",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"interim_results": "true",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
	if got := q["keywords"]; len(got) != 2 {
		t.Errorf("keywords = %v, want both hints", got)
	}
}

func TestBuildURLDefaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.buildURL(speech.Config{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	if got := q.Get("language"); got != defaultLanguage {
		t.Errorf("language = %q, want default %q", got, defaultLanguage)
	}
	if got := q.Get("sample_rate"); got != "16000" {
		t.Errorf("sample_rate = %q, want 16000", got)
	}
	if q.Has("channels") {
		t.Errorf("channels should be omitted when zero, got %q", q.Get("channels"))
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		msg         string
		wantSegment string
		wantFinal   bool
		wantOK      bool
	}{
		{
			name:        "interim result",
			msg:         `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"بسم الله","confidence":0.9}]}}`,
			wantSegment: "بسم الله",
			wantFinal:   false,
			wantOK:      true,
		},
		{
			name:        "final result",
			msg:         `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" الرحمن ","confidence":0.95}]}}`,
			wantSegment: "الرحمن",
			wantFinal:   true,
			wantOK:      true,
		},
		{
			name:   "metadata message ignored",
			msg:    `{"type":"Metadata","request_id":"abc"}`,
			wantOK: false,
		},
		{
			name:   "no alternatives ignored",
			msg:    `{"type":"Results","channel":{"alternatives":[]}}`,
			wantOK: false,
		},
		{
			name:   "invalid json ignored",
			msg:    `{not json`,
			wantOK: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			segment, final, ok := parseResponse([]byte(tc.msg))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if segment != tc.wantSegment || final != tc.wantFinal {
				t.Errorf("parseResponse = (%q, %v), want (%q, %v)", segment, final, tc.wantSegment, tc.wantFinal)
			}
		})
	}
}

func TestAccumulator(t *testing.T) {
	var acc accumulator

	steps := []struct {
		segment string
		final   bool
		want    string
	}{
		{segment: "بسم", final: false, want: "بسم"},
		{segment: "بسم الله", final: true, want: "بسم الله"},
		{segment: "الرحمن", final: false, want: "بسم الله الرحمن"},
		{segment: "", final: false, want: "بسم الله"},
		{segment: "الرحمن الرحيم", final: true, want: "بسم الله الرحمن الرحيم"},
		{segment: "", final: true, want: "بسم الله الرحمن الرحيم"},
	}
	for i, s := range steps {
		if got := acc.fold(s.segment, s.final); got != s.want {
			t.Fatalf("step %d: fold(%q, %v) = %q, want %q", i, s.segment, s.final, got, s.want)
		}
	}
	if strings.Join(acc.committed, " ") != "بسم الله الرحمن الرحيم" {
		t.Errorf("committed = %v", acc.committed)
	}
}
