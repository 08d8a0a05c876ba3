package streaming

import (
	"strings"
	"unicode/utf8"
)

// sentenceTerminators is the full terminator set from spec.md §4.1: ASCII
// and CJK full-width punctuation, plus newline.
var sentenceTerminators = []rune{'.', '!', '?', '。', '！', '？', '\n'}

func isTerminator(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

// ChunkSplitter accumulates text fragments from a single agent text stream
// and emits whole, sentence-sized chunks suitable for speech synthesis.
//
// A ChunkSplitter is stateful and single-use per turn: construct one per
// agent text stream via [NewChunkSplitter], feed it fragments via [Feed],
// and call [Finalize] once at stream end. Do not share an instance across
// distinct upstream text sources — unrelated fragments would be joined.
//
// Not safe for concurrent use; a ChunkSplitter is owned by a single
// consumer goroutine.
type ChunkSplitter struct {
	minChunkLen int
	buf         strings.Builder
}

// NewChunkSplitter constructs a ChunkSplitter. minChunkLen is the minimum
// code-point length a prefix must reach (up to and including a terminator)
// before it is emitted; shorter prefixes are merged forward with subsequent
// text. A minChunkLen <= 0 is treated as the spec default of 10.
func NewChunkSplitter(minChunkLen int) *ChunkSplitter {
	if minChunkLen <= 0 {
		minChunkLen = 10
	}
	return &ChunkSplitter{minChunkLen: minChunkLen}
}

// Feed appends fragment to the internal buffer and scans for the *latest*
// terminator in the buffer. If the prefix ending at that terminator has
// reached minChunkLen code points, it is emitted and the remainder retained;
// if it is still shorter, Feed keeps accumulating without emitting. Because
// the scan always finds the last terminator in the buffer, the retained
// remainder never itself contains one — a single Feed call therefore emits
// at most one chunk; the loop exists so a remainder left over from a prior
// call, combined with fragment, is re-evaluated against the same rule
// rather than duplicated in a second helper.
func (c *ChunkSplitter) Feed(fragment string) []string {
	if fragment == "" {
		return nil
	}
	c.buf.WriteString(fragment)

	var emitted []string
	for {
		s := c.buf.String()
		idx := lastTerminatorIndex(s)
		if idx < 0 {
			return emitted
		}
		prefix := s[:idx+utf8.RuneLen(runeAt(s, idx))]
		if utf8.RuneCountInString(prefix) < c.minChunkLen {
			return emitted
		}
		rest := s[len(prefix):]
		c.buf.Reset()
		c.buf.WriteString(rest)
		emitted = append(emitted, prefix)
	}
}

// Finalize returns any non-empty remaining buffer as a final chunk and
// clears the splitter's state. Call exactly once, at stream end.
func (c *ChunkSplitter) Finalize() []string {
	rest := c.buf.String()
	c.buf.Reset()
	if rest == "" {
		return nil
	}
	return []string{rest}
}

// lastTerminatorIndex returns the byte index of the last terminator rune in
// s, or -1 if none is present.
func lastTerminatorIndex(s string) int {
	last := -1
	for i, r := range s {
		if isTerminator(r) {
			last = i
		}
	}
	return last
}

// runeAt decodes the rune starting at byte offset i in s.
func runeAt(s string, i int) rune {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}
