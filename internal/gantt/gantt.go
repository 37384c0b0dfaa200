// Package gantt draws a schedule snapshot as a terminal Gantt chart: one row
// per machine, one bar per order, time running left to right.
package gantt

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// ColorBy selects what a bar's color encodes.
type ColorBy string

const (
	ColorByOrder   ColorBy = "order"
	ColorByProduct ColorBy = "product"
	ColorByMachine ColorBy = "machine"
)

// ParseColorBy accepts the color modes case-insensitively. An empty string
// selects ColorByProduct.
func ParseColorBy(s string) (ColorBy, error) {
	switch c := ColorBy(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ColorByProduct, nil
	case ColorByOrder, ColorByProduct, ColorByMachine:
		return c, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (want order, product or machine)", s)
	}
}

const (
	// DefaultMaxOrders is the chart's order limit when none is given.
	DefaultMaxOrders = 20
	DefaultWidth     = 100
	minChartWidth    = 20
	barRune          = "█"
	emptyRune        = "·"
)

// Options filter and size the chart. Product and machine filters are
// matched case-insensitively; machines match by ID or display name. Empty
// filters keep everything.
type Options struct {
	MaxOrders int
	Products  []string
	Machines  []string
	ColorBy   ColorBy
	Width     int
	// Renderer decides the color profile. Nil uses lipgloss's default
	// renderer for stdout.
	Renderer *lipgloss.Renderer
}

// Palette is the 256-color set bars cycle through.
var Palette = []lipgloss.Color{
	lipgloss.Color("33"),  // blue
	lipgloss.Color("208"), // orange
	lipgloss.Color("34"),  // green
	lipgloss.Color("160"), // red
	lipgloss.Color("135"), // purple
	lipgloss.Color("130"), // brown
	lipgloss.Color("205"), // pink
	lipgloss.Color("245"), // gray
	lipgloss.Color("142"), // olive
	lipgloss.Color("37"),  // teal
}

var (
	labelColor = lipgloss.Color("252")
	faintColor = lipgloss.Color("240")
	headColor  = lipgloss.Color("255")
)

// Filter returns the orders the chart shows: the product and machine
// filters are applied first, then the first MaxOrders by start time.
func Filter(snap schedule.Snapshot, opts Options) []schedule.Order {
	machines := machineSet(snap.Machines, opts.Machines)
	var out []schedule.Order
	for _, o := range snap.Orders {
		if len(opts.Products) > 0 && !containsFold(opts.Products, o.Product) {
			continue
		}
		if !machines[o.Machine] {
			continue
		}
		out = append(out, o)
	}
	// Snapshot orders are already sorted by (start, id).
	limit := opts.MaxOrders
	if limit <= 0 {
		limit = DefaultMaxOrders
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Render draws the chart. An empty selection renders a one-line notice.
func Render(snap schedule.Snapshot, opts Options) string {
	r := opts.Renderer
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	orders := Filter(snap, opts)
	if len(orders) == 0 {
		return r.NewStyle().Foreground(faintColor).Render("No orders match the filters") + "\n"
	}

	rows := visibleMachines(snap.Machines, opts.Machines)
	labelWidth := 0
	for _, m := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(rowLabel(m)))
	}
	labelWidth += 2

	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	cols := max(width-labelWidth, minChartWidth)

	first, last := span(orders)
	scale := timeScale{first: first, span: last.Sub(first), cols: cols}
	colors := newColorMap(opts.ColorBy, orders, snap.Machines)

	labelStyle := r.NewStyle().Width(labelWidth).Foreground(labelColor)
	faint := r.NewStyle().Foreground(faintColor)

	var lines []string
	lines = append(lines, r.NewStyle().Bold(true).Foreground(headColor).Render(
		fmt.Sprintf("%d orders, %s to %s", len(orders), schedule.FormatTime(first), schedule.FormatTime(last))))
	lines = append(lines, strings.Repeat(" ", labelWidth)+axis(scale))

	for _, m := range rows {
		cells := make([]string, cols)
		for i := range cells {
			cells[i] = faint.Render(emptyRune)
		}
		for _, o := range orders {
			if o.Machine != m.ID {
				continue
			}
			from, to := scale.col(o.Start), scale.col(o.End)
			to = max(to, from+1)
			to = min(to, cols)
			bar := r.NewStyle().Foreground(colors.of(o))
			label := r.NewStyle().Background(colors.of(o)).Foreground(lipgloss.Color("0"))
			text := []rune(shortID(o.ID))
			for c := from; c < to; c++ {
				if i := c - from; i < len(text) && to-from > len(text) {
					cells[c] = label.Render(string(text[i]))
					continue
				}
				cells[c] = bar.Render(barRune)
			}
		}
		lines = append(lines, labelStyle.Render(rowLabel(m))+strings.Join(cells, ""))
	}

	lines = append(lines, "")
	for _, o := range orders {
		swatch := r.NewStyle().Foreground(colors.of(o)).Render(barRune + barRune)
		lines = append(lines, fmt.Sprintf("%s %-8s %-24s %s", swatch, o.ID, o.Product, o.Slot()))
	}
	return strings.Join(lines, "\n") + "\n"
}

func rowLabel(m schedule.Machine) string {
	if m.Name == "" {
		return m.ID
	}
	return m.Name
}

// shortID drops the "ORD-" prefix so the label fits in short bars.
func shortID(id string) string {
	if _, rest, ok := strings.Cut(id, "-"); ok && rest != "" {
		return rest
	}
	return id
}

type timeScale struct {
	first time.Time
	span  time.Duration
	cols  int
}

func (s timeScale) col(t time.Time) int {
	if s.span <= 0 {
		return 0
	}
	c := int(float64(t.Sub(s.first)) / float64(s.span) * float64(s.cols))
	return min(max(c, 0), s.cols)
}

// axis labels the first and last instants of the chart.
func axis(s timeScale) string {
	left := s.first.Format("02 Jan 15:04")
	right := s.first.Add(s.span).Format("02 Jan 15:04")
	gap := s.cols - len(left) - len(right)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + right
}

func span(orders []schedule.Order) (time.Time, time.Time) {
	first, last := orders[0].Start, orders[0].End
	for _, o := range orders[1:] {
		if o.Start.Before(first) {
			first = o.Start
		}
		if o.End.After(last) {
			last = o.End
		}
	}
	return first, last
}

func visibleMachines(roster []schedule.Machine, filter []string) []schedule.Machine {
	set := machineSet(roster, filter)
	var out []schedule.Machine
	for _, m := range roster {
		if set[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func machineSet(roster []schedule.Machine, filter []string) map[string]bool {
	set := make(map[string]bool, len(roster))
	for _, m := range roster {
		if len(filter) == 0 || containsFold(filter, m.ID) || (m.Name != "" && containsFold(filter, m.Name)) {
			set[m.ID] = true
		}
	}
	return set
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), s)
	})
}

// colorMap assigns palette colors by sorted key so a given order, product
// or machine keeps its color while the schedule changes.
type colorMap struct {
	by    ColorBy
	index map[string]int
}

func newColorMap(by ColorBy, orders []schedule.Order, machines []schedule.Machine) colorMap {
	if by == "" {
		by = ColorByProduct
	}
	var keys []string
	switch by {
	case ColorByMachine:
		for _, m := range machines {
			keys = append(keys, m.ID)
		}
	default:
		for _, o := range orders {
			keys = append(keys, colorKey(by, o))
		}
		slices.Sort(keys)
		keys = slices.Compact(keys)
	}
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return colorMap{by: by, index: index}
}

func (m colorMap) of(o schedule.Order) lipgloss.Color {
	return Palette[m.index[colorKey(m.by, o)]%len(Palette)]
}

func colorKey(by ColorBy, o schedule.Order) string {
	switch by {
	case ColorByOrder:
		return o.ID
	case ColorByMachine:
		return o.Machine
	default:
		return o.Product
	}
}
