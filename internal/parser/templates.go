package parser

import (
	"regexp"
	"time"

	"github.com/Flowka-lab/Scenario-2/internal/intent"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/resolve"
)

// Template is one deterministic phrasing of an intent. Templates are tried
// in order against normalized text and the first match wins, so more
// specific phrasings must come before general ones.
type Template struct {
	Name    string
	Kind    intent.Kind
	Example string
	re      *regexp.Regexp
	build   func(m match, rc *resolve.Context) (intent.Intent, error)
}

type match map[string]string

// Match reports whether normalized text fits the template and returns its
// named groups.
func (t Template) Match(normalized string) (match, bool) {
	sub := t.re.FindStringSubmatch(normalized)
	if sub == nil {
		return nil, false
	}
	m := make(match)
	for i, name := range t.re.SubexpNames() {
		if name != "" {
			m[name] = sub[i]
		}
	}
	return m, true
}

const (
	delayVerbs   = `(?:delay|postpone|push|shift|move|reschedule|hold|slide)`
	advanceVerbs = `(?:advance|expedite|prepone|bring forward|pull in|pull forward|move up|move forward|move earlier)`
	swapVerbs    = `(?:swap|switch|exchange|interchange|trade)`
	assignVerbs  = `(?:move|reassign|assign|put|transfer|shift|send|run|schedule|reschedule)`
	// A bare duration begins with a sign, a digit, an article or a whole
	// number word, so machine IDs such as "tensioner_1" are not durations.
	bareDuration = `(?:-|minus\s|\d|(?:an?|half|one|two|three|four|five|six|seven|eight|nine|ten|twelve|fifteen|twenty|thirty|forty|fifty|sixty|ninety|tomorrow)\b)`
)

// DefaultTemplates returns the built-in templates in match order.
func DefaultTemplates() []Template {
	return []Template{
		{
			Name:    "swap-with",
			Kind:    intent.KindSwapOrders,
			Example: "swap order 1 with order 2",
			re:      regexp.MustCompile(`^` + swapVerbs + `\s+(?:orders?\s+)?(?P<a>.+?)\s+with\s+(?P<b>.+)$`),
			build:   buildSwap,
		},
		{
			Name:    "swap-and",
			Kind:    intent.KindSwapOrders,
			Example: "swap order 67 and 83",
			re:      regexp.MustCompile(`^` + swapVerbs + `\s+(?:orders?\s+)?(?P<a>.+?)\s+and\s+(?P<b>.+)$`),
			build:   buildSwap,
		},
		{
			Name:    "advance-by",
			Kind:    intent.KindDelayOrder,
			Example: "advance order 3 by 2 hours",
			re:      regexp.MustCompile(`^` + advanceVerbs + `\s+(?P<ref>.+?)\s+(?:by|for)\s+(?P<dur>.+)$`),
			build:   buildDelay(-1),
		},
		{
			Name:    "advance-phrasal",
			Kind:    intent.KindDelayOrder,
			Example: "bring order 3 forward by 90 minutes",
			re:      regexp.MustCompile(`^(?:bring|pull|move|shift)\s+(?P<ref>.+?)\s+(?:forward|earlier|ahead|in|up)\s+(?:by\s+|for\s+)?(?P<dur>.+)$`),
			build:   buildDelay(-1),
		},
		{
			Name:    "delay-phrasal",
			Kind:    intent.KindDelayOrder,
			Example: "push order 3 back by 2 hours",
			re:      regexp.MustCompile(`^(?:push|move|shift|set|slide)\s+(?P<ref>.+?)\s+(?:back|later|out)\s+(?:by\s+|for\s+)?(?P<dur>.+)$`),
			build:   buildDelay(1),
		},
		{
			Name:    "delay-by",
			Kind:    intent.KindDelayOrder,
			Example: "delay order 1 by 2 hours",
			re: regexp.MustCompile(`^` + delayVerbs + `\s+(?P<ref>.+?)\s+(?:(?:by|for|until|till)\s+(?P<dur>.+)|to\s+(?P<dur_to>` +
				bareDuration + `.*))$`),
			build:   buildDelay(1),
		},
		{
			Name:    "delay-bare",
			Kind:    intent.KindDelayOrder,
			Example: "delay order 5 thirty minutes",
			re:      regexp.MustCompile(`^(?:delay|postpone)\s+(?P<ref>(?:order\s+|ord-?|#)?[a-z0-9\-_#]+)\s+(?P<dur>` + bareDuration + `.*)$`),
			build:   buildDelay(1),
		},
		{
			Name:    "reassign",
			Kind:    intent.KindReassignMachine,
			Example: "move order 4 to FILL_1",
			re:      regexp.MustCompile(`^` + assignVerbs + `\s+(?P<ref>.+?)\s+(?:to|onto|on)\s+(?:machine\s+|line\s+)?(?P<machine>.+)$`),
			build:   buildReassign,
		},
	}
}

func buildSwap(m match, rc *resolve.Context) (intent.Intent, error) {
	a, err := rc.Order(m["a"])
	if err != nil {
		return nil, err
	}
	b, err := rc.Order(m["b"])
	if err != nil {
		return nil, err
	}
	return intent.SwapOrders{A: a, B: b}, nil
}

func buildDelay(sign int) func(m match, rc *resolve.Context) (intent.Intent, error) {
	return func(m match, rc *resolve.Context) (intent.Intent, error) {
		id, err := rc.Order(m["ref"])
		if err != nil {
			return nil, err
		}
		dur := m["dur"]
		if dur == "" {
			dur = m["dur_to"]
		}
		d, err := ParseDuration(dur)
		if err != nil {
			return nil, err
		}
		if sign < 0 && d < 0 {
			return nil, outcome.Failf(outcome.KindMalformedDuration,
				"cannot advance by a negative duration").WithToken(dur)
		}
		return intent.DelayOrder{OrderID: id, Duration: time.Duration(sign) * d}, nil
	}
}

func buildReassign(m match, rc *resolve.Context) (intent.Intent, error) {
	id, err := rc.Order(m["ref"])
	if err != nil {
		return nil, err
	}
	machine, err := rc.Machine(m["machine"])
	if err != nil {
		return nil, err
	}
	return intent.ReassignMachine{OrderID: id, MachineID: machine}, nil
}
