// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

// StableID returns a 12-hex-character identifier derived from parts,
// unchanged across runs for unchanged input.
func StableID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// WordCount counts CJK characters and other whitespace-separated words.
func WordCount(text string) int {
	cjk, words := countText(text)
	return cjk + words
}

// ReadingMinutes estimates reading time at 300 CJK characters or 200 words
// per minute, never less than one minute.
func ReadingMinutes(text string) int {
	cjk, words := countText(text)
	minutes := (cjk + 299) / 300
	minutes += (words + 199) / 200
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func countText(text string) (cjk, words int) {
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				words++
				inWord = true
			}
		case r == '\'' || r == '-' || r == '_':
			// keep contractions and compounds together
		default:
			inWord = false
		}
	}
	return cjk, words
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// Anchor returns a heading anchor in the GitHub style: lowercase, spaces to
// hyphens, punctuation dropped.
func Anchor(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}

// slugger hands out unique anchors in document order.
type slugger struct {
	seen map[string]int
}

func newSlugger() *slugger { return &slugger{seen: make(map[string]int)} }

func (s *slugger) next(title string) string {
	base := Anchor(title)
	n := s.seen[base]
	s.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

// stripLeadingHeading drops a first-line heading that repeats the chapter title.
func stripLeadingHeading(text, title string) string {
	trimmed := strings.TrimLeft(text, "\n")
	first, rest, _ := strings.Cut(trimmed, "\n")
	if strings.HasPrefix(first, "#") {
		heading := strings.TrimSpace(strings.TrimLeft(first, "#"))
		if strings.EqualFold(heading, strings.TrimSpace(title)) {
			return strings.TrimLeft(rest, "\n")
		}
	}
	return trimmed
}
