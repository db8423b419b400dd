package align

import (
	"strings"

	"github.com/mushafapp/recite/internal/textnorm"
)

// defaultWindowCapacity bounds the number of recognized words retained
// between provider updates.
const defaultWindowCapacity = 48

// Window is a bounded buffer of the most recent words recognized by the
// speech provider. It is rebuilt from the cumulative transcript on every
// update; the oldest words are dropped once capacity is exceeded.
//
// Window is owned by the tracker's run loop and is not safe for concurrent
// use.
type Window struct {
	norm     *textnorm.Normalizer
	capacity int
	words    []string
	fprint   string
}

// NewWindow creates a Window holding at most capacity words. A capacity of
// zero or less selects the default.
func NewWindow(capacity int, n *textnorm.Normalizer) *Window {
	if capacity <= 0 {
		capacity = defaultWindowCapacity
	}
	return &Window{
		norm:     n,
		capacity: capacity,
	}
}

// Update rebuilds the window from the cumulative transcript text. Returns
// false when the resulting word sequence is identical to the previous one,
// letting the caller skip no-op provider updates.
func (w *Window) Update(transcript string) bool {
	fields := strings.Fields(transcript)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		key := w.norm.Key(f)
		if key == "" {
			continue
		}
		words = append(words, key)
	}
	if len(words) > w.capacity {
		words = words[len(words)-w.capacity:]
	}

	fprint := strings.Join(words, " ")
	if fprint == w.fprint {
		return false
	}
	w.words = words
	w.fprint = fprint
	return true
}

// Recent returns the last k words, newest last. Returns fewer when the
// window holds fewer.
func (w *Window) Recent(k int) []string {
	if k > len(w.words) {
		k = len(w.words)
	}
	return w.words[len(w.words)-k:]
}

// Reset clears the window. Called when a new recognition session starts,
// since the cumulative transcript restarts from empty.
func (w *Window) Reset() {
	w.words = nil
	w.fprint = ""
}
