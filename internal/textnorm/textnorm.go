// Package textnorm maps raw reference and transcript words to a
// comparison-friendly form so that the aligner can match speech-recognition
// output against the reference text despite orthographic variation.
//
// Normalization proceeds in a fixed order: lowercase, diacritic stripping
// (Unicode NFD decomposition followed by removal of combining marks),
// letter-variant folding via a replaceable table, and filtering down to
// letters, digits, and whitespace. Comparison keys additionally drop
// whitespace and anything that is not a letter or digit.
//
// Mark stripping keeps the madda and hamza combiners so that NFC
// recomposes their carrier letters; collapsing those carriers is owned
// entirely by the fold table and so stays replaceable.
//
// The default fold table targets Arabic recitation text: alif variants
// collapse to bare alif, hamza carriers to their base letter, taa marbuta to
// haa, and standalone hamza and tatweel elongation are removed. Other
// scripts can be supported by substituting the table via [WithFolds].
//
// All functions are deterministic and idempotent; a Normalizer is read-only
// after construction and safe for concurrent use.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dropRune is the fold-table target that removes a rune entirely.
const dropRune = rune(0)

// strippableMark matches combining marks to remove during normalization.
// The madda and hamza combiners (U+0653..U+0655) are excluded: they
// recompose into precomposed carrier letters under NFC, and the fold table
// decides what happens to those.
var strippableMark = runes.Predicate(func(r rune) bool {
	if r >= '\u0653' && r <= '\u0655' {
		return false
	}
	return unicode.Is(unicode.Mn, r)
})

// DefaultArabicFolds returns the default letter-variant fold table for
// Arabic. Keys are surface runes, values their canonical replacement; a
// value of rune(0) deletes the rune.
func DefaultArabicFolds() map[rune]rune {
	return map[rune]rune{
		'آ': 'ا', // alif madda → alif
		'أ': 'ا', // alif + hamza above → alif
		'إ': 'ا', // alif + hamza below → alif
		'ٱ': 'ا', // alif wasla → alif
		'ؤ': 'و', // waw + hamza → waw
		'ئ': 'ي', // yaa + hamza → yaa
		'ى': 'ي', // alif maqsura → yaa
		'ة': 'ه', // taa marbuta → haa
		'ء': dropRune, // standalone hamza
		'ـ': dropRune, // tatweel elongation
	}
}

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithFolds replaces the letter-variant fold table. Map a rune to rune(0)
// to delete it. Pass an empty (non-nil) map to disable folding entirely.
func WithFolds(folds map[rune]rune) Option {
	return func(n *Normalizer) {
		n.folds = folds
	}
}

// Normalizer converts words to their canonical comparison form.
type Normalizer struct {
	folds      map[rune]rune
	stripMarks transform.Transformer
}

// New returns a Normalizer with the default Arabic fold table, configurable
// via options.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		folds: DefaultArabicFolds(),
	}
	for _, o := range opts {
		o(n)
	}
	n.stripMarks = transform.Chain(norm.NFD, runes.Remove(strippableMark), norm.NFC)
	return n
}

// Normalize maps raw text to its comparison-friendly form: lowercased,
// diacritics stripped, letter variants folded, and restricted to letters,
// digits, and whitespace. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(text string) string {
	lowered := strings.ToLower(text)

	stripped, _, err := transform.String(n.stripMarks, lowered)
	if err != nil {
		// Invalid UTF-8: fall back to the lowered input and let the
		// rune filter below drop whatever is unusable.
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if mapped, ok := n.folds[r]; ok {
			if mapped == dropRune {
				continue
			}
			r = mapped
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Key returns the comparison key for a single word: the normalized form with
// everything that is not a letter or digit removed. An empty key means the
// word has no matchable content.
func (n *Normalizer) Key(word string) string {
	normalized := n.Normalize(word)
	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAnnotation reports whether word is a non-readable token that must never
// be matched against: a bracketed note, a verse-number marker (digits only),
// or a word with no letters or digits at all.
func (n *Normalizer) IsAnnotation(word string) bool {
	trimmed := strings.TrimSpace(word)
	if trimmed == "" {
		return true
	}
	if isBracketed(trimmed) {
		return true
	}
	key := n.Key(trimmed)
	if key == "" {
		return true
	}
	return allDigits(key)
}

// bracketPairs maps opening bracket runes to their closing counterparts.
// Includes the ornate parentheses used for Quranic verse markers.
var bracketPairs = map[rune]rune{
	'[': ']',
	'(': ')',
	'{': '}',
	'«': '»',
	// Ornate parentheses; both orders occur depending on how the source
	// text stores RTL runs.
	'﴾': '﴿',
	'﴿': '﴾',
}

// isBracketed reports whether s is enclosed in a recognised bracket pair.
func isBracketed(s string) bool {
	rs := []rune(s)
	if len(rs) < 2 {
		return false
	}
	closing, ok := bracketPairs[rs[0]]
	if !ok {
		return false
	}
	return rs[len(rs)-1] == closing
}

// allDigits reports whether s consists solely of digit runes. Arabic-Indic
// digits count as digits.
func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
