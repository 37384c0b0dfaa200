package parser

import (
	"regexp"
	"strings"
)

var (
	decimalComma = regexp.MustCompile(`(\d),(\d)`)
	// Keep letters, digits, '#', '-', '_', '.', '/' and spaces; everything
	// else becomes a space.
	stripChars = regexp.MustCompile(`[^a-z0-9#\-_./ ]+`)
	strayDots  = regexp.MustCompile(`(^|[^0-9a-z])\.|\.($|[^0-9])`)
	fillers    = regexp.MustCompile(`\b(?:please|pls|kindly|just|now|can you|could you|would you|will you|i want to|i'd like to|i would like to|we need to|let's|lets|go ahead and|the)\b`)
	spaces     = regexp.MustCompile(`\s+`)
)

var rewrites = strings.NewReplacer(
	"advanced", "advance",
	"postponed", "postpone",
	"delayed", "delay",
	"swapped", "swap",
	"switched", "switch",
	"’", "'",
	"&", " and ",
)

// Normalize lowercases a command, drops filler words and punctuation, and
// collapses whitespace. The result is what the pattern templates match.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = rewrites.Replace(s)
	s = fillers.ReplaceAllString(s, " ")
	s = decimalComma.ReplaceAllString(s, "$1.$2")
	s = strings.ReplaceAll(s, "'", "")
	s = stripChars.ReplaceAllString(s, " ")
	// Run twice: adjacent matches share a boundary character.
	s = strayDots.ReplaceAllString(s, "$1 $2")
	s = strayDots.ReplaceAllString(s, "$1 $2")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
