package chat

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	fallbackPrefix    = "Got it: "
	fallbackEchoChars = 200
)

var (
	// <|im_end|>, <|eot_id|>, <|assistant|> and similar
	controlTokenRe = regexp.MustCompile(`<\|[^<>|]*\|>`)
	markerRe       = regexp.MustCompile(`(?i)</?s>|\[/?s\]|\[/?INST\]|<</?SYS>>`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
)

// CleanReply strips model meta tokens and stray artifacts from generated text.
// Cleaning only deletes characters, apart from newline normalisation, and
// cleaning a cleaned string returns it unchanged.
func CleanReply(s string) string {
	for {
		next := cleanOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanOnce(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlTokenRe.ReplaceAllString(s, "")
	s = markerRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '|' || r == '[' || r == '<'
	})
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// FallbackReply echoes the start of the user's text.
func FallbackReply(text string) string {
	return CleanReply(fallbackPrefix + truncateRunes(text, fallbackEchoChars))
}
