package align

import (
	"strings"
	"testing"

	"github.com/mushafapp/recite/internal/refindex"
	"github.com/mushafapp/recite/internal/textnorm"
)

// vocab is a pool of mutually dissimilar filler words, so fuzzy matching in
// tests only fires where a test plants a real match.
var vocab = strings.Fields(
	"apple banana cherry damson elder fig grape honey iris jasmine " +
		"kiwi lemon mango nectar olive peach quince raspberry strawberry tomato " +
		"ugli vanilla walnut xigua yam zucchini almond basil carrot daikon " +
		"endive fennel garlic hazel iceberg jicama kale leek mustard nutmeg " +
		"okra parsnip radish spinach turnip")

func buildRef(t *testing.T, words []string) *refindex.Text {
	t.Helper()
	return refindex.Build(strings.Join(words, " "), textnorm.New())
}

func TestSequentialAdvance(t *testing.T) {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	ref := buildRef(t, words)
	a := New(ref, Config{})

	var transcript []string
	prev := 0
	for i, w := range words {
		transcript = append(transcript, w)
		phase, moved := a.Process(transcript, false)
		if phase != PhaseSequential {
			t.Fatalf("word %d: phase = %q, want %q", i, phase, PhaseSequential)
		}
		if !moved {
			t.Fatalf("word %d: cursor did not move", i)
		}
		if got, want := a.Cursor(), ref.WordEnd(i); got != want {
			t.Fatalf("word %d: cursor = %d, want %d", i, got, want)
		}
		if a.Cursor() <= prev && i > 0 {
			t.Fatalf("word %d: cursor moved backward: %d after %d", i, a.Cursor(), prev)
		}
		prev = a.Cursor()
	}
}

func TestSequentialSkipsAnnotations(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo", "﴿١﴾", "charlie"})
	a := New(ref, Config{})

	a.Process([]string{"alpha"}, false)
	if _, moved := a.Process([]string{"alpha", "bravo"}, false); !moved {
		t.Fatal("bravo did not advance the cursor")
	}
	// The match end extends over the trailing verse marker, so the next
	// search starts past it and the cursor never parks in front of it.
	if got, want := a.Cursor(), ref.WordEnd(2); got != want {
		t.Fatalf("cursor = %d, want %d (past the verse marker)", got, want)
	}

	phase, moved := a.Process([]string{"alpha", "bravo", "charlie"}, false)
	if phase != PhaseSequential || !moved {
		t.Fatalf("charlie: phase = %q moved = %v", phase, moved)
	}
	if got, want := a.Cursor(), ref.WordEnd(3); got != want {
		t.Fatalf("cursor = %d, want %d", got, want)
	}
}

func TestNearOccurrencePreferred(t *testing.T) {
	// The same phrase appears near the cursor and again ~40 words later.
	phrase := []string{"red", "green", "blue"}
	var words []string
	words = append(words, vocab[0:2]...)
	words = append(words, phrase...) // indexes 2..4
	words = append(words, vocab[2:37]...)
	words = append(words, phrase...) // indexes 40..42
	words = append(words, vocab[37:40]...)
	ref := buildRef(t, words)

	a := New(ref, Config{})
	phase, moved := a.Process(phrase, false)
	if phase != PhaseNearForward {
		t.Fatalf("phase = %q, want %q", phase, PhaseNearForward)
	}
	if !moved {
		t.Fatal("cursor did not move")
	}
	if got, want := a.Cursor(), ref.WordEnd(4); got != want {
		t.Fatalf("cursor = %d, want %d (near occurrence, not the one at word 40)", got, want)
	}
}

func TestFarOccurrenceNeedsStrongTail(t *testing.T) {
	// Phrase exists only far ahead of the cursor; a 3-word tail is below
	// the far-forward evidence bar, a 5-word tail clears it.
	phrase := []string{"red", "green", "blue", "amber", "violet"}
	var words []string
	words = append(words, vocab[0:40]...)
	words = append(words, phrase...) // indexes 40..44
	ref := buildRef(t, words)

	a := New(ref, Config{})
	if phase, _ := a.Process(phrase[:3], false); phase != "" {
		t.Fatalf("3-word tail matched far occurrence via %q, want no match", phase)
	}

	phase, moved := a.Process(phrase, false)
	if phase != PhaseFarForward || !moved {
		t.Fatalf("5-word tail: phase = %q moved = %v, want %q", phase, moved, PhaseFarForward)
	}
	if got, want := a.Cursor(), ref.WordEnd(44); got != want {
		t.Fatalf("cursor = %d, want %d", got, want)
	}
}

func TestBackwardRereading(t *testing.T) {
	ref := buildRef(t, vocab)
	a := New(ref, Config{})
	a.Seek(ref.WordEnd(30))
	a.ClearJump()

	spoken := []string{vocab[5], vocab[6], vocab[7]}
	phase, moved := a.Process(spoken, false)
	if phase != PhaseBackward || !moved {
		t.Fatalf("phase = %q moved = %v, want %q", phase, moved, PhaseBackward)
	}
	if got, want := a.Cursor(), ref.WordEnd(7); got != want {
		t.Fatalf("cursor = %d, want %d", got, want)
	}
}

func TestJumpConfirmed(t *testing.T) {
	ref := buildRef(t, vocab)
	a := New(ref, Config{})

	target := ref.Words[20].Offset + 1
	a.Seek(target)
	if !a.JumpArmed() {
		t.Fatal("jump not armed after Seek")
	}
	if got := a.Cursor(); got != target {
		t.Fatalf("cursor after Seek = %d, want %d", got, target)
	}

	spoken := []string{vocab[19], vocab[20], vocab[21]}
	phase, moved := a.Process(spoken, false)
	if phase != PhaseJump || !moved {
		t.Fatalf("phase = %q moved = %v, want %q", phase, moved, PhaseJump)
	}
	if a.JumpArmed() {
		t.Fatal("jump still armed after confirmation")
	}
	if got, want := a.Cursor(), ref.WordEnd(21); got != want {
		t.Fatalf("cursor = %d, want %d", got, want)
	}
}

func TestJumpAbandonedAfterBudget(t *testing.T) {
	ref := buildRef(t, vocab)
	a := New(ref, Config{})

	target := ref.Words[20].Offset
	a.Seek(target)

	for i := range 6 {
		phase, moved := a.Process([]string{"zzz"}, false)
		if phase != "" || moved {
			t.Fatalf("attempt %d: phase = %q moved = %v, want held", i, phase, moved)
		}
	}
	if a.JumpArmed() {
		t.Fatal("jump still armed after 6 failed attempts")
	}
	if got := a.Cursor(); got != target {
		t.Fatalf("cursor = %d, want unchanged %d", got, target)
	}
}

func TestStallForceAdvance(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo", "charlie"})
	a := New(ref, Config{})

	for i := range 7 {
		phase, moved := a.Process([]string{"zzz"}, true)
		if phase != "" || moved {
			t.Fatalf("update %d: phase = %q moved = %v, want no match", i, phase, moved)
		}
	}
	phase, moved := a.Process([]string{"zzz"}, true)
	if phase != PhaseStall || !moved {
		t.Fatalf("8th update: phase = %q moved = %v, want %q", phase, moved, PhaseStall)
	}
	// Exactly one word forward.
	if got, want := a.Cursor(), ref.WordEnd(0); got != want {
		t.Fatalf("cursor = %d, want %d", got, want)
	}
}

func TestStallRequiresSpeech(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo"})
	a := New(ref, Config{})

	for i := range 12 {
		if phase, moved := a.Process([]string{"zzz"}, false); phase != "" || moved {
			t.Fatalf("update %d: phase = %q moved = %v, want nothing while silent", i, phase, moved)
		}
	}
	if a.Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0", a.Cursor())
	}
}

func TestSuppression(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo", "charlie"})
	a := New(ref, Config{})

	a.Suppress()
	if phase, moved := a.Process([]string{"alpha"}, true); phase != "" || moved {
		t.Fatalf("suppressed: phase = %q moved = %v, want ignored", phase, moved)
	}
	a.Release()
	if _, moved := a.Process([]string{"alpha"}, true); !moved {
		t.Fatal("released aligner did not process the update")
	}
}

func TestResync(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo", "charlie"})
	a := New(ref, Config{})
	a.Process([]string{"alpha"}, false)
	a.Process([]string{"alpha", "bravo"}, false)

	a.Resync()
	if a.Anchor() != a.Cursor() {
		t.Fatalf("Anchor = %d, Cursor = %d, want equal after Resync", a.Anchor(), a.Cursor())
	}
	// Alignment continues from the confirmed position.
	if _, moved := a.Process([]string{"charlie"}, false); !moved {
		t.Fatal("charlie did not advance after Resync")
	}
	if got, want := a.Cursor(), ref.WordEnd(2); got != want {
		t.Fatalf("cursor = %d, want %d", got, want)
	}
}

func TestSeekClamps(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo"})
	a := New(ref, Config{})

	a.Seek(-5)
	if a.Cursor() != 0 {
		t.Errorf("Seek(-5): cursor = %d, want 0", a.Cursor())
	}
	a.Seek(10_000)
	if a.Cursor() != ref.TotalLen {
		t.Errorf("Seek(10000): cursor = %d, want %d", a.Cursor(), ref.TotalLen)
	}
}

func TestNoMoveOnRepeatedMatch(t *testing.T) {
	ref := buildRef(t, []string{"alpha", "bravo"})
	a := New(ref, Config{})

	if _, moved := a.Process([]string{"alpha"}, false); !moved {
		t.Fatal("first match did not move the cursor")
	}
	// The same evidence again matches but the offset is unchanged.
	phase, moved := a.Process([]string{"alpha", "alpha"}, false)
	if moved {
		t.Fatalf("cursor reported moved on identical position (phase %q)", phase)
	}
}
