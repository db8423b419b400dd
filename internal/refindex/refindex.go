// Package refindex builds the ordered word index of a reading segment's
// reference text. The index is built once per segment and is immutable
// afterwards; when the segment changes the caller rebuilds it wholesale and
// drops the old index.
package refindex

import (
	"strings"
	"unicode/utf8"

	"github.com/mushafapp/recite/internal/textnorm"
)

// Word is a single reference word with its comparison key and position.
type Word struct {
	// Text is the original surface form.
	Text string

	// Key is the normalized comparison key (letters and digits only).
	Key string

	// Offset is the rune offset of the word's first character in the
	// space-joined reference string.
	Offset int

	// Annotation marks non-readable tokens (verse-number markers,
	// bracketed notes) that are never matched against.
	Annotation bool
}

// Text is the indexed reference text for one reading segment. Offsets are
// strictly increasing: each word's offset equals the cumulative rune length
// of all preceding words plus one separator each.
type Text struct {
	// Words holds the reference words in reading order.
	Words []Word

	// TotalLen is the rune count of the space-joined reference string.
	TotalLen int
}

// Build splits text on whitespace, preserving order, and indexes every word
// with its rune offset, comparison key, and annotation flag. Runs in O(n) of
// the word count; cheap enough to redo on every segment change.
func Build(text string, n *textnorm.Normalizer) *Text {
	fields := strings.Fields(text)
	t := &Text{
		Words: make([]Word, 0, len(fields)),
	}

	offset := 0
	for _, f := range fields {
		t.Words = append(t.Words, Word{
			Text:       f,
			Key:        n.Key(f),
			Offset:     offset,
			Annotation: n.IsAnnotation(f),
		})
		offset += utf8.RuneCountInString(f) + 1
	}
	if len(t.Words) > 0 {
		t.TotalLen = offset - 1
	}
	return t
}

// Len returns the number of indexed words.
func (t *Text) Len() int { return len(t.Words) }

// WordEnd returns the rune offset just past the last character of word i.
func (t *Text) WordEnd(i int) int {
	w := t.Words[i]
	return w.Offset + utf8.RuneCountInString(w.Text)
}

// LastWordBefore returns the index of the last word that ends at or before
// offset, or -1 when no word has been fully passed yet. This derives the
// aligner's word index from a character-offset cursor.
func (t *Text) LastWordBefore(offset int) int {
	last := -1
	for i := range t.Words {
		if t.WordEnd(i) <= offset {
			last = i
			continue
		}
		break
	}
	return last
}

// WordContaining returns the index of the word whose span covers offset.
// Offsets inside the separator after a word belong to that word. Clamps to
// the first/last word for out-of-range offsets; returns -1 for an empty text.
func (t *Text) WordContaining(offset int) int {
	if len(t.Words) == 0 {
		return -1
	}
	for i := range t.Words {
		if offset <= t.WordEnd(i) {
			return i
		}
	}
	return len(t.Words) - 1
}

// NextReadable returns the index of the first non-annotation word after i,
// or -1 when none remains. Pass -1 to find the first readable word.
func (t *Text) NextReadable(i int) int {
	for j := i + 1; j < len(t.Words); j++ {
		if !t.Words[j].Annotation {
			return j
		}
	}
	return -1
}
