// Package tokenizer splits document text into index terms. A term is a
// maximal run of ASCII letters and digits, lower-cased. There is no stemming
// and no stop-word removal, so every occurrence in the source text is kept.
package tokenizer

import "strings"

// Counter accumulates term counts from text written to it in chunks of any
// size. A term split across two writes is counted once. Call Flush after
// the last write.
type Counter struct {
	counts  map[string]int
	partial []byte
}

// NewCounter returns a Counter that adds to into.
func NewCounter(into map[string]int) *Counter {
	return &Counter{counts: into}
}

// Write tokenizes p. It never fails.
func (c *Counter) Write(p []byte) (int, error) {
	start := -1
	for i := 0; i < len(p); i++ {
		if isAlnum(p[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		switch {
		case start >= 0:
			c.add(p[start:i])
			start = -1
		case len(c.partial) > 0:
			c.add(nil)
		}
	}
	if start >= 0 {
		c.partial = append(c.partial, p[start:]...)
	}
	return len(p), nil
}

// Flush counts a term left open by the last write.
func (c *Counter) Flush() {
	if len(c.partial) > 0 {
		c.add(nil)
	}
}

// add counts seg, joined to any term carried over from the previous write.
func (c *Counter) add(seg []byte) {
	term := seg
	if len(c.partial) > 0 {
		c.partial = append(c.partial, seg...)
		term = c.partial
	}
	c.counts[toLowerASCII(string(term))]++
	c.partial = c.partial[:0]
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// toLowerASCII avoids an allocation when the word is already lower-case.
func toLowerASCII(word string) string {
	for i := 0; i < len(word); i++ {
		if 'A' <= word[i] && word[i] <= 'Z' {
			return strings.ToLower(word)
		}
	}
	return word
}
