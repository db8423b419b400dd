// Package align implements the transcript-to-reference alignment engine: a
// stateful algorithm that follows a reader through a known reference text
// using the noisy, continuously-updating transcript of their speech, and
// maintains a stable character-offset cursor for live highlighting.
//
// The aligner processes each transcript update through staged search phases
// with progressively stronger evidence requirements. A sequential-bias phase
// keeps the cursor gliding forward on clean reading with single-word
// evidence; windowed searches handle noise, skips, and re-reading but demand
// multi-word matching tails; far and global searches demand the strongest
// tails so the cursor never jumps to a distant repeated phrase on weak
// evidence. A manual jump arms a bounded search around the requested target,
// and a stall counter force-advances the cursor when the reader is audibly
// speaking but nothing matches.
//
// The aligner is not safe for concurrent use; the tracker serializes all
// access onto its run loop.
package align

import (
	"unicode/utf8"

	"github.com/mushafapp/recite/internal/refindex"
)

// Config holds the aligner's tuning parameters. These are empirically tuned
// constants; the zero value of any field selects its default.
type Config struct {
	// RecentWords is how many trailing transcript words feed each phase.
	RecentWords int

	// JumpWindow is the ± word radius searched around a manual jump target.
	JumpWindow int

	// JumpMinTail is the minimum matching tail length to confirm a jump.
	JumpMinTail int

	// JumpAttempts is how many transcript updates a jump stays armed before
	// being abandoned.
	JumpAttempts int

	// SeqCandidates is how many upcoming readable words the sequential
	// phase considers.
	SeqCandidates int

	// SeqLookaheadCap bounds how many reference words ahead a non-immediate
	// sequential candidate may sit, so an unread repeated word is not
	// skipped.
	SeqLookaheadCap int

	// NearWindow is the forward search radius (in words) with the normal
	// evidence bar.
	NearWindow int

	// FarWindow is the outer forward search radius requiring the strong
	// evidence bar.
	FarWindow int

	// BackWindow is the backward search radius for re-reading.
	BackWindow int

	// MinTail is the normal minimum matching tail length.
	MinTail int

	// StrongMinTail is the minimum tail length for far and global searches.
	StrongMinTail int

	// StallThreshold is the number of consecutive no-match updates, while
	// speech is detected, that triggers a forced one-word advance.
	StallThreshold int

	// ShortTailMinWordLen and ShortTailMinTotal gate tails shorter than
	// four words: at least one word of this rune length and this many total
	// runes, suppressing false positives on short common words.
	ShortTailMinWordLen int
	ShortTailMinTotal   int
}

// DefaultConfig returns the tuned default parameters.
func DefaultConfig() Config {
	return Config{
		RecentWords:         6,
		JumpWindow:          24,
		JumpMinTail:         3,
		JumpAttempts:        6,
		SeqCandidates:       5,
		SeqLookaheadCap:     4,
		NearWindow:          20,
		FarWindow:           120,
		BackWindow:          80,
		MinTail:             3,
		StrongMinTail:       5,
		StallThreshold:      8,
		ShortTailMinWordLen: 4,
		ShortTailMinTotal:   8,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RecentWords <= 0 {
		c.RecentWords = d.RecentWords
	}
	if c.JumpWindow <= 0 {
		c.JumpWindow = d.JumpWindow
	}
	if c.JumpMinTail <= 0 {
		c.JumpMinTail = d.JumpMinTail
	}
	if c.JumpAttempts <= 0 {
		c.JumpAttempts = d.JumpAttempts
	}
	if c.SeqCandidates <= 0 {
		c.SeqCandidates = d.SeqCandidates
	}
	if c.SeqLookaheadCap <= 0 {
		c.SeqLookaheadCap = d.SeqLookaheadCap
	}
	if c.NearWindow <= 0 {
		c.NearWindow = d.NearWindow
	}
	if c.FarWindow <= 0 {
		c.FarWindow = d.FarWindow
	}
	if c.BackWindow <= 0 {
		c.BackWindow = d.BackWindow
	}
	if c.MinTail <= 0 {
		c.MinTail = d.MinTail
	}
	if c.StrongMinTail <= 0 {
		c.StrongMinTail = d.StrongMinTail
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = d.StallThreshold
	}
	if c.ShortTailMinWordLen <= 0 {
		c.ShortTailMinWordLen = d.ShortTailMinWordLen
	}
	if c.ShortTailMinTotal <= 0 {
		c.ShortTailMinTotal = d.ShortTailMinTotal
	}
	return c
}

// jumpRequest is an armed manual seek, consumed across transcript updates
// until confirmed by matching speech or abandoned.
type jumpRequest struct {
	targetWord int
	attempts   int
}

// Aligner tracks the reading cursor for one reference segment.
type Aligner struct {
	cfg Config
	ref *refindex.Text

	cursor     int // last confirmed character offset
	cursorWord int // index of the last fully-read word, -1 before the first
	anchor     int // search anchor offset, resynced to cursor on restart

	misses     int // consecutive updates with no cursor advance
	suppressed bool
	jump       *jumpRequest
}

// New creates an Aligner over the given reference index with the cursor at
// offset 0.
func New(ref *refindex.Text, cfg Config) *Aligner {
	return &Aligner{
		cfg:        cfg.WithDefaults(),
		ref:        ref,
		cursorWord: -1,
	}
}

// Cursor returns the current character-offset cursor.
func (a *Aligner) Cursor() int { return a.cursor }

// Anchor returns the current search anchor offset.
func (a *Aligner) Anchor() int { return a.anchor }

// Resync resets the search anchor to the cursor. Called when a session
// resumes so searching restarts from the confirmed position.
func (a *Aligner) Resync() {
	a.anchor = a.cursor
	a.cursorWord = a.ref.LastWordBefore(a.cursor)
	a.misses = 0
}

// Suppress makes the aligner ignore transcript updates until [Release] is
// called. Used while a deliberate jump restarts the recognition session, so
// stale speech from the old position cannot drag the cursor back.
func (a *Aligner) Suppress() { a.suppressed = true }

// Release clears suppression.
func (a *Aligner) Release() { a.suppressed = false }

// Suppressed reports whether updates are currently ignored.
func (a *Aligner) Suppressed() bool { return a.suppressed }

// Seek moves the cursor and anchor to offset and arms a jump request: the
// next updates search a bounded window around the target word for matching
// speech before normal phases resume.
func (a *Aligner) Seek(offset int) {
	offset = a.clamp(offset)
	a.cursor = offset
	a.anchor = offset
	a.cursorWord = a.ref.LastWordBefore(offset)
	a.misses = 0
	target := a.ref.WordContaining(offset)
	if target < 0 {
		a.jump = nil
		return
	}
	a.jump = &jumpRequest{
		targetWord: target,
		attempts:   a.cfg.JumpAttempts,
	}
}

// ClearJump drops any armed jump request without moving the cursor. Called
// on a hard stop so a stale jump cannot survive into the next session.
func (a *Aligner) ClearJump() { a.jump = nil }

// JumpArmed reports whether a manual jump is pending confirmation.
func (a *Aligner) JumpArmed() bool { return a.jump != nil }

// Phase identifies which search phase produced a cursor movement.
type Phase string

const (
	PhaseJump          Phase = "jump"
	PhaseSequential    Phase = "sequential"
	PhaseNearForward   Phase = "near_forward"
	PhaseFarForward    Phase = "far_forward"
	PhaseBackward      Phase = "backward"
	PhaseGlobalBack    Phase = "global_backward"
	PhaseGlobalForward Phase = "global_forward"
	PhaseStall         Phase = "stall_advance"
)

// Process runs one transcript update through the phased search. recent must
// be normalized comparison keys, oldest first; speaking reports whether the
// audio level currently indicates active speech. Returns the phase that
// applied a match (empty when nothing matched) and whether the cursor offset
// actually changed.
func (a *Aligner) Process(recent []string, speaking bool) (Phase, bool) {
	if a.suppressed {
		return "", false
	}
	if len(recent) > a.cfg.RecentWords {
		recent = recent[len(recent)-a.cfg.RecentWords:]
	}
	if len(recent) == 0 {
		return "", false
	}

	if a.jump != nil {
		applied, moved, held := a.processJump(recent)
		if applied {
			return PhaseJump, moved
		}
		if held {
			return "", false
		}
		// Jump abandoned; fall through to the normal phases.
	}

	if applied, moved := a.processSequential(recent); applied {
		return PhaseSequential, moved
	}

	if len(recent) >= a.cfg.MinTail {
		if phase, moved, ok := a.processStrong(recent); ok {
			return phase, moved
		}
	}

	a.misses++
	if a.misses >= a.cfg.StallThreshold && speaking {
		a.misses = 0
		if next := a.ref.NextReadable(a.cursorWord); next >= 0 {
			moved := a.apply(next)
			return PhaseStall, moved
		}
	}
	return "", false
}

// processJump searches around the armed jump target. held means the jump is
// still armed and the normal phases must not run this update.
func (a *Aligner) processJump(recent []string) (applied, moved, held bool) {
	lo := a.jump.targetWord - a.cfg.JumpWindow
	hi := a.jump.targetWord + a.cfg.JumpWindow
	if m, ok := a.findBestMatch(recent, lo, hi, a.cfg.JumpMinTail, a.jump.targetWord); ok {
		a.jump = nil
		return true, a.apply(m.end), false
	}
	a.jump.attempts--
	if a.jump.attempts <= 0 {
		a.jump = nil
		return false, false, false
	}
	return false, false, true
}

// processSequential advances the cursor on clean sequential reading without
// demanding multi-word evidence. A two-word tail anchored at the next
// readable word is a strong signal; otherwise the most recent spoken word is
// tried against each upcoming candidate with tightening rules.
func (a *Aligner) processSequential(recent []string) (applied, moved bool) {
	candidates := make([]int, 0, a.cfg.SeqCandidates)
	for i := a.cursorWord + 1; i < a.ref.Len() && len(candidates) < a.cfg.SeqCandidates; i++ {
		if !a.ref.Words[i].Annotation {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return false, false
	}

	if len(recent) >= 2 {
		if end, ok := a.matchTail(recent[len(recent)-2:], candidates[0]); ok {
			return true, a.apply(end)
		}
	}

	last := recent[len(recent)-1]
	for i, ci := range candidates {
		key := a.ref.Words[ci].Key
		if i == 0 {
			// The immediate next word gets the relaxed rules, including
			// edit-distance matching for 2-rune words.
			if fuzzyMatchRelaxed(last, key) {
				return true, a.apply(ci)
			}
			continue
		}
		// Later candidates tighten: longer words only, and never so far
		// ahead that an unread repeated word could be skipped.
		if ci-a.cursorWord > a.cfg.SeqLookaheadCap {
			break
		}
		if utf8.RuneCountInString(key) < 3 {
			continue
		}
		if fuzzyMatch(last, key) {
			return true, a.apply(ci)
		}
	}
	return false, false
}

// processStrong runs the windowed searches in order of increasing risk:
// near-forward, far-forward, backward, then the global last resorts.
func (a *Aligner) processStrong(recent []string) (Phase, bool, bool) {
	cw := a.cursorWord

	if m, ok := a.findBestMatch(recent, cw+1, cw+a.cfg.NearWindow, a.cfg.MinTail, cw); ok {
		return PhaseNearForward, a.apply(m.end), true
	}
	if m, ok := a.findBestMatch(recent, cw+a.cfg.NearWindow+1, cw+a.cfg.FarWindow, a.cfg.StrongMinTail, cw); ok {
		return PhaseFarForward, a.apply(m.end), true
	}
	if m, ok := a.findBestMatch(recent, cw-a.cfg.BackWindow, cw, a.cfg.MinTail, cw); ok {
		return PhaseBackward, a.apply(m.end), true
	}
	if m, ok := a.findBestMatch(recent, 0, cw, a.cfg.StrongMinTail, cw); ok {
		return PhaseGlobalBack, a.apply(m.end), true
	}
	if m, ok := a.findBestMatch(recent, cw, a.ref.Len()-1, a.cfg.StrongMinTail, cw); ok {
		return PhaseGlobalForward, a.apply(m.end), true
	}
	return "", false, false
}

// matchResult is a confirmed tail match against the reference.
type matchResult struct {
	start, end int
	length     int
}

// findBestMatch scans start indexes in [lo, hi] for the highest-scoring tail
// match. Longer tails are tried first and dominate the score
// (length*1000 − distance); ties at a given length break toward the
// preferred index. Tails shorter than four words must pass the quality
// guard.
func (a *Aligner) findBestMatch(recent []string, lo, hi, minTail, preferred int) (matchResult, bool) {
	if lo < 0 {
		lo = 0
	}
	if hi > a.ref.Len()-1 {
		hi = a.ref.Len() - 1
	}
	if lo > hi {
		return matchResult{}, false
	}

	maxTail := len(recent)
	for tl := maxTail; tl >= minTail; tl-- {
		tail := recent[len(recent)-tl:]
		if tl < 4 && !a.tailQuality(tail) {
			continue
		}

		best := matchResult{}
		bestScore := -1 << 31
		for s := lo; s <= hi; s++ {
			if a.ref.Words[s].Annotation {
				continue
			}
			end, ok := a.matchTail(tail, s)
			if !ok {
				continue
			}
			score := tl*1000 - abs(s-preferred)
			if score > bestScore {
				bestScore = score
				best = matchResult{start: s, end: end, length: tl}
			}
		}
		if best.length > 0 {
			return best, true
		}
	}
	return matchResult{}, false
}

// tailQuality gates short tails: at least one word of ShortTailMinWordLen
// runes and ShortTailMinTotal runes in total.
func (a *Aligner) tailQuality(tail []string) bool {
	total := 0
	hasLong := false
	for _, w := range tail {
		n := utf8.RuneCountInString(w)
		total += n
		if n >= a.cfg.ShortTailMinWordLen {
			hasLong = true
		}
	}
	return hasLong && total >= a.cfg.ShortTailMinTotal
}

// matchTail walks spoken words against consecutive readable reference words
// starting at start. Annotation words are skipped; any mismatch aborts.
// Returns the index of the last matched reference word.
func (a *Aligner) matchTail(spoken []string, start int) (end int, ok bool) {
	i := start
	for _, w := range spoken {
		for i < a.ref.Len() && a.ref.Words[i].Annotation {
			i++
		}
		if i >= a.ref.Len() {
			return 0, false
		}
		if !fuzzyMatch(w, a.ref.Words[i].Key) {
			return 0, false
		}
		end = i
		i++
	}
	return end, true
}

// apply confirms a match ending at word index end: the end extends forward
// over any trailing annotation words so the cursor never parks in front of a
// verse-number marker, and the cursor and anchor move to the end of the
// extended run. Resets the stall counter.
func (a *Aligner) apply(end int) bool {
	for end+1 < a.ref.Len() && a.ref.Words[end+1].Annotation {
		end++
	}
	a.cursorWord = end
	a.misses = 0

	offset := a.ref.WordEnd(end)
	if offset == a.cursor {
		return false
	}
	a.cursor = offset
	a.anchor = offset
	return true
}

// clamp bounds offset to [0, TotalLen].
func (a *Aligner) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > a.ref.TotalLen {
		return a.ref.TotalLen
	}
	return offset
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
