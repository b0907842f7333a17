// Package textmatch provides whole-word substring matching used by skill
// detection and live prompt highlighting.
package textmatch

// isWordByte reports whether b is an alphanumeric word character.
// Underscore is intentionally not a word character here: skill keywords are
// matched the way a reader sees words, and "foo" inside "foo_bar" is still
// considered adjacent to a boundary.
func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' ||
		b >= 'A' && b <= 'Z' ||
		b >= '0' && b <= '9'
}

// FindWholeWords returns the start indexes of every whole-word occurrence of
// needle in haystack. An occurrence at index i qualifies only when the byte
// before i (if any) and the byte after the occurrence (if any) are not
// alphanumeric. Matching is case sensitive; callers normalize case first.
//
// The scan cursor advances one byte past a failed position and past the
// whole match on a hit, so matches of the same needle never overlap.
func FindWholeWords(haystack, needle string) []int {
	var matches []int
	s := NewScanner(haystack, needle)
	for {
		i, ok := s.Next()
		if !ok {
			return matches
		}
		matches = append(matches, i)
	}
}

// Contains reports whether haystack contains at least one whole-word
// occurrence of needle.
func Contains(haystack, needle string) bool {
	s := NewScanner(haystack, needle)
	_, ok := s.Next()
	return ok
}

// Scanner yields whole-word matches left to right, one at a time.
// A Scanner is restartable via Reset and cheap to construct, so callers that
// only need the first hit do not pay for a full scan.
type Scanner struct {
	haystack string
	needle   string
	pos      int
}

// NewScanner returns a Scanner over haystack for needle.
func NewScanner(haystack, needle string) *Scanner {
	return &Scanner{haystack: haystack, needle: needle}
}

// Reset rewinds the scanner to the start of the haystack.
func (s *Scanner) Reset() {
	s.pos = 0
}

// Next returns the start index of the next whole-word match, or false when
// the haystack is exhausted. An empty needle never matches.
func (s *Scanner) Next() (int, bool) {
	n := len(s.needle)
	if n == 0 {
		return 0, false
	}
	for s.pos+n <= len(s.haystack) {
		i := s.pos
		s.pos++
		if s.haystack[i:i+n] != s.needle {
			continue
		}
		if i > 0 && isWordByte(s.haystack[i-1]) {
			continue
		}
		if i+n < len(s.haystack) && isWordByte(s.haystack[i+n]) {
			continue
		}
		// Advance past the whole match so occurrences of the same
		// needle never overlap.
		s.pos = i + n
		return i, true
	}
	return 0, false
}
