package align

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// fuzzyMatch reports whether a spoken word and a reference word should be
// treated as the same word despite transcription noise. Both inputs must be
// normalized comparison keys.
//
// Rules, in order:
//
//   - Exact match.
//   - Words of length ≤2 match exactly only; short particles must not match
//     inside longer words.
//   - Prefix relation in either direction.
//   - Substring containment, but only when the contained word has ≥4 runes.
//   - Shared prefix covering ≥60% of the shorter word (minimum 2 runes).
//   - Edit distance scaled by length: ≤1 for words up to 4 runes, ≤2 up to
//     8, and max(len)/3 beyond that.
func fuzzyMatch(spoken, ref string) bool {
	return fuzzy(spoken, ref, false)
}

// fuzzyMatchRelaxed is the looser variant used only for the immediate-next
// word in the sequential phase: 2-rune words may match at edit distance 1,
// the shared-prefix threshold drops to 50%, and one extra unit of edit
// distance is allowed.
func fuzzyMatchRelaxed(spoken, ref string) bool {
	return fuzzy(spoken, ref, true)
}

func fuzzy(spoken, ref string, relaxed bool) bool {
	if spoken == ref {
		return true
	}
	if spoken == "" || ref == "" {
		return false
	}

	la := utf8.RuneCountInString(spoken)
	lb := utf8.RuneCountInString(ref)
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	if shorter <= 2 {
		if relaxed && shorter == 2 {
			return matchr.Levenshtein(spoken, ref) <= 1
		}
		return false
	}

	if strings.HasPrefix(spoken, ref) || strings.HasPrefix(ref, spoken) {
		return true
	}

	if shorter >= 4 && (strings.Contains(spoken, ref) || strings.Contains(ref, spoken)) {
		return true
	}

	prefixThreshold := 0.6
	if relaxed {
		prefixThreshold = 0.5
	}
	if shared := sharedPrefixLen(spoken, ref); shared >= 2 &&
		float64(shared) >= prefixThreshold*float64(shorter) {
		return true
	}

	allowed := 0
	switch {
	case longer <= 4:
		allowed = 1
	case longer <= 8:
		allowed = 2
	default:
		allowed = longer / 3
	}
	if relaxed {
		allowed++
	}
	return matchr.Levenshtein(spoken, ref) <= allowed
}

// sharedPrefixLen returns the number of leading runes a and b have in common.
func sharedPrefixLen(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return n
}
