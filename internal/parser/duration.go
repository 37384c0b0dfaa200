package parser

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/resolve"
)

// MaxDuration bounds a single shift so typos like "delay by 9000 days" fail
// instead of throwing an order years into the future.
const MaxDuration = 365 * 24 * time.Hour

var (
	digitLetter = regexp.MustCompile(`(\d)([a-z])`)
	letterDigit = regexp.MustCompile(`([a-z])(\d)`)
)

// Hedges that carry no amount. "another" reads as "an".
var durationNoise = map[string]string{
	"about": "", "around": "", "approximately": "", "roughly": "", "some": "",
	"extra": "", "more": "", "additional": "", "another": "an",
}

var durationUnits = map[string]time.Duration{
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "wk": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// ParseDuration reads a spoken or typed amount of time: "2 hours",
// "thirty minutes", "1.5h", "2h30m", "half an hour", "a day and a half",
// "two and a half hours", "tomorrow" (one day). A leading "-" or "minus"
// negates. The result is rounded to the minute and must be non-zero.
func ParseDuration(s string) (time.Duration, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	s = decimalComma.ReplaceAllString(s, "$1.$2")
	s = digitLetter.ReplaceAllString(s, "$1 $2")
	s = letterDigit.ReplaceAllString(s, "$1 $2")
	s = strings.NewReplacer(",", " ", "+", " ").Replace(s)

	sign := 1.0
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "minus "):
		sign, s = -1, strings.TrimSpace(s[len("minus "):])
	}

	tokens := strings.Fields(s)
	var (
		total    float64
		pending  []string
		lastUnit time.Duration
		counted  bool
	)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if repl, ok := durationNoise[tok]; ok {
			if repl == "" {
				continue
			}
			tok = repl
		}
		if unit, ok := durationUnits[tok]; ok {
			if len(pending) == 0 {
				return 0, malformedDuration(raw, "missing amount before %q", tok)
			}
			qty, ok := resolve.ParseQuantity(strings.Join(pending, " "))
			if !ok {
				return 0, malformedDuration(raw, "%q is not an amount", strings.Join(pending, " "))
			}
			total += qty * float64(unit)
			lastUnit, pending, counted = unit, nil, true
			continue
		}

		switch {
		case tok == "tomorrow" && len(pending) == 0:
			total += float64(24 * time.Hour)
			lastUnit, counted = 24*time.Hour, true
		case tok == "and" && len(pending) == 0:
			// "an hour and a half": the fraction applies to the previous unit.
			if lastUnit != 0 && i+1 < len(tokens) && (tokens[i+1] == "half" ||
				(i+2 < len(tokens) && tokens[i+1] == "a" && tokens[i+2] == "half")) {
				total += 0.5 * float64(lastUnit)
				if tokens[i+1] == "a" {
					i++
				}
				i++
			}
		default:
			pending = append(pending, tok)
		}
	}

	if len(pending) > 0 {
		// "one hour thirty": a trailing bare number is minutes after hours.
		qty, ok := resolve.ParseQuantity(strings.Join(pending, " "))
		if !ok || lastUnit != time.Hour {
			return 0, malformedDuration(raw, "no time unit in %q", raw)
		}
		total += qty * float64(time.Minute)
	}
	if !counted {
		return 0, malformedDuration(raw, "no time unit in %q", raw)
	}

	d := time.Duration(sign * total).Round(time.Minute)
	if d == 0 {
		return 0, malformedDuration(raw, "duration must not be zero")
	}
	if math.Abs(float64(d)) > float64(MaxDuration) {
		return 0, malformedDuration(raw, "duration %q is longer than a year", raw)
	}
	return d, nil
}

func malformedDuration(token, format string, args ...any) *outcome.Failure {
	return outcome.Failf(outcome.KindMalformedDuration, format, args...).WithToken(token)
}
