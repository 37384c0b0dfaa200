// Package resolve maps the informal references found in commands ("order 5",
// "order five", "#5", "ORD-005", "filling line") to canonical identifiers.
// A Context is built from one schedule snapshot and never mutates it.
package resolve

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

const (
	defaultPrefix = "ORD-"
	defaultWidth  = 3
)

var (
	numberedID   = regexp.MustCompile(`^(.*?)(\d+)$`)
	orderPrefix  = regexp.MustCompile(`^(?:(?:orders?|ord|number|num|no\.?|#)\s*[-#:.]?\s*)+`)
	machineNoise = regexp.MustCompile(`^(?:(?:the|machine|line|lane|station)\s+)+|\s+(?:machine|line|lane|station)$`)
)

// Context is the alias table for one schedule snapshot.
type Context struct {
	orders     map[string]string
	byNumber   map[int][]string
	prefix     string
	width      int
	machines   []machineAliases
	orderIDs   []string
	machineIDs []string
}

type machineAliases struct {
	id   string
	keys []string
}

// NewContext indexes every order and machine in the snapshot.
func NewContext(snap schedule.Snapshot) *Context {
	c := &Context{
		orders:   make(map[string]string, len(snap.Orders)),
		byNumber: make(map[int][]string),
		prefix:   defaultPrefix,
		width:    defaultWidth,
	}

	type format struct {
		prefix string
		width  int
	}
	counts := make(map[format]int)

	for _, o := range snap.Orders {
		c.orderIDs = append(c.orderIDs, o.ID)
		c.orders[strings.ToUpper(o.ID)] = o.ID

		m := numberedID.FindStringSubmatch(o.ID)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		c.byNumber[n] = append(c.byNumber[n], o.ID)
		counts[format{m[1], len(m[2])}]++
	}
	slices.Sort(c.orderIDs)

	best, bestCount := format{}, 0
	for f, n := range counts {
		if n > bestCount || (n == bestCount && (f.prefix < best.prefix || (f.prefix == best.prefix && f.width < best.width))) {
			best, bestCount = f, n
		}
	}
	if bestCount > 0 {
		c.prefix, c.width = best.prefix, best.width
	}

	for _, m := range snap.Machines {
		c.machineIDs = append(c.machineIDs, m.ID)
		keys := []string{machineKey(m.ID)}
		if m.Name != "" {
			keys = append(keys, machineKey(m.Name))
			for _, part := range strings.FieldsFunc(m.Name, func(r rune) bool { return r == '/' || r == ',' }) {
				keys = append(keys, machineKey(part))
			}
		}
		c.machines = append(c.machines, machineAliases{id: m.ID, keys: keys})
	}

	return c
}

// OrderIDs returns every canonical order ID, sorted.
func (c *Context) OrderIDs() []string { return slices.Clone(c.orderIDs) }

// MachineIDs returns every canonical machine ID in roster order.
func (c *Context) MachineIDs() []string { return slices.Clone(c.machineIDs) }

// Canonical formats an order number in the schedule's stored ID format.
func (c *Context) Canonical(n int) string {
	return fmt.Sprintf("%s%0*d", c.prefix, c.width, n)
}

// Order resolves a reference to a canonical order ID. It fails with
// KindUnknownReference when nothing matches and KindAmbiguousReference when
// a number maps to several stored IDs.
func (c *Context) Order(ref string) (string, error) {
	raw := strings.TrimSpace(ref)
	raw = strings.TrimRightFunc(raw, func(r rune) bool { return unicode.IsPunct(r) && r != '#' })
	if raw == "" {
		return "", unknownOrder(ref, "no order given")
	}
	if id, ok := c.orders[strings.ToUpper(raw)]; ok {
		return id, nil
	}

	rest := strings.TrimSpace(orderPrefix.ReplaceAllString(strings.ToLower(raw), ""))
	if rest == "" {
		return "", unknownOrder(ref, "no order number in %q", raw)
	}
	if id, ok := c.orders[strings.ToUpper(rest)]; ok {
		return id, nil
	}

	n, ok := ParseInteger(rest)
	if !ok {
		return "", unknownOrder(ref, "%q is not an order reference", raw)
	}
	if n < 1 || n > MaxNumber {
		return "", unknownOrder(ref, "order number %d is out of range 1-%d", n, MaxNumber)
	}

	switch ids := c.byNumber[n]; len(ids) {
	case 0:
		f := unknownOrder(ref, "order %s not found", c.Canonical(n))
		f.OrderID = c.Canonical(n)
		return "", f
	case 1:
		return ids[0], nil
	default:
		return "", outcome.Failf(outcome.KindAmbiguousReference,
			"%q matches several orders: %s", raw, strings.Join(ids, ", ")).WithToken(ref)
	}
}

// Machine resolves a reference by ID, name, or a unique prefix of either.
func (c *Context) Machine(ref string) (string, error) {
	key := machineKey(machineNoise.ReplaceAllString(strings.ToLower(strings.TrimSpace(ref)), ""))
	if key == "" {
		return "", outcome.Failf(outcome.KindUnknownReference, "no machine given").WithToken(ref)
	}

	exact := c.matchMachines(func(k string) bool { return k == key })
	if len(exact) == 0 && len(key) >= 3 {
		exact = c.matchMachines(func(k string) bool { return strings.HasPrefix(k, key) })
	}

	switch len(exact) {
	case 0:
		f := outcome.Failf(outcome.KindUnknownReference, "machine %q not found (known: %s)",
			strings.TrimSpace(ref), strings.Join(c.machineIDs, ", ")).WithToken(ref)
		return "", f
	case 1:
		return exact[0], nil
	default:
		return "", outcome.Failf(outcome.KindAmbiguousReference,
			"%q matches several machines: %s", strings.TrimSpace(ref), strings.Join(exact, ", ")).WithToken(ref)
	}
}

func (c *Context) matchMachines(match func(key string) bool) []string {
	var ids []string
	for _, m := range c.machines {
		if slices.ContainsFunc(m.keys, match) {
			ids = append(ids, m.id)
		}
	}
	return ids
}

func unknownOrder(ref, format string, args ...any) *outcome.Failure {
	return outcome.Failf(outcome.KindUnknownReference, format, args...).WithToken(ref)
}

// machineKey lowercases, turns number words into digits, and drops
// separators, so "Fill one", "fill-1" and "FILL_1" share the key "fill1".
func machineKey(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, f := range fields {
		if _, isWord := units[f]; isWord {
			if n, ok := ParseInteger(f); ok {
				f = strconv.Itoa(n)
			}
		}
		b.WriteString(f)
	}
	return b.String()
}
