package resolve

import (
	"math"
	"strconv"
	"strings"
)

// MaxNumber is the largest order number that spoken or typed references may
// name. Anything larger is treated as unresolvable rather than guessed.
const MaxNumber = 999

var units = map[string]int{
	"zero": 0, "oh": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fourty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var ordinals = map[string]string{
	"first": "one", "second": "two", "third": "three", "fifth": "five",
	"eighth": "eight", "ninth": "nine", "twelfth": "twelve",
}

// ParseInteger reads a non-negative integer written in digits ("42") or
// English words ("forty-two", "one hundred and five", "a hundred").
// Values above MaxNumber are rejected.
func ParseInteger(s string) (int, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0 && n <= MaxNumber
	}

	words := strings.Fields(strings.ReplaceAll(s, "-", " "))
	total, current := 0, 0
	seen := false
	for i, w := range words {
		if o, ok := ordinals[w]; ok {
			w = o
		} else if strings.HasSuffix(w, "th") && len(w) > 4 {
			w = strings.TrimSuffix(w, "th")
			if strings.HasSuffix(w, "ie") {
				w = strings.TrimSuffix(w, "ie") + "y"
			}
		}

		switch {
		case w == "and":
			if i == 0 || i == len(words)-1 {
				return 0, false
			}
		case (w == "a" || w == "an") && i == 0 && len(words) > 1:
			current = 1
		case w == "hundred":
			if current == 0 {
				current = 1
			}
			if current >= 10 {
				return 0, false
			}
			total += current * 100
			current = 0
			seen = true
		default:
			if n, ok := units[w]; ok {
				if current%10 != 0 || (current >= 10 && current < 20) {
					return 0, false
				}
				current += n
				seen = true
				continue
			}
			if n, ok := tens[w]; ok {
				if current != 0 {
					return 0, false
				}
				current = n
				seen = true
				continue
			}
			if n, err := strconv.Atoi(w); err == nil && current == 0 {
				current = n
				seen = true
				continue
			}
			return 0, false
		}
	}

	n := total + current
	return n, seen && n <= MaxNumber
}

// ParseQuantity reads a possibly fractional quantity: digits with a dot or
// comma decimal ("1.5", "1,5"), articles ("a", "an"), fractions ("half",
// "a quarter"), mixed forms ("two and a half", "an hour and a half" is
// handled by the caller) and anything ParseInteger accepts.
func ParseQuantity(s string) (float64, bool) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	s = strings.TrimSuffix(strings.TrimSuffix(s, " of an"), " of a")
	s = strings.TrimSuffix(strings.TrimSuffix(s, " an"), " a")
	if s == "" {
		return 0, false
	}

	if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
		return f, f >= 0 && !math.IsInf(f, 0)
	}

	switch s {
	case "a", "an", "one":
		return 1, true
	case "half", "a half", "one half":
		return 0.5, true
	case "quarter", "a quarter", "one quarter":
		return 0.25, true
	case "three quarters":
		return 0.75, true
	case "a couple", "couple", "a couple of", "couple of":
		return 2, true
	case "a few", "few":
		return 3, true
	}

	for _, suffix := range []string{" and a half", " and half", " and a quarter"} {
		if whole, ok := strings.CutSuffix(s, suffix); ok {
			base, ok := ParseQuantity(whole)
			if !ok {
				return 0, false
			}
			if suffix == " and a quarter" {
				return base + 0.25, true
			}
			return base + 0.5, true
		}
	}

	n, ok := ParseInteger(s)
	return float64(n), ok
}
