// Package schedule holds the production schedule: orders placed on machine
// lanes over time. The Store is the only place the schedule is mutated.
package schedule

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Flowka-lab/Scenario-2/internal/checksum"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Slot is the placement of an order: a machine and a half-open [Start, End) interval.
type Slot struct {
	Machine string    `json:"machine"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Duration returns End - Start.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether two slots share a machine and intersect in time.
// Touching intervals ([9,11) and [11,13)) do not overlap.
func (s Slot) Overlaps(other Slot) bool {
	return s.Machine == other.Machine && s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Shift moves the interval by d, keeping the machine.
func (s Slot) Shift(d time.Duration) Slot {
	return Slot{Machine: s.Machine, Start: s.Start.Add(d), End: s.End.Add(d)}
}

// Equal compares slots by machine and instant.
func (s Slot) Equal(other Slot) bool {
	return s.Machine == other.Machine && s.Start.Equal(other.Start) && s.End.Equal(other.End)
}

func (s Slot) String() string {
	return fmt.Sprintf("%s [%s, %s)", s.Machine, FormatTime(s.Start), FormatTime(s.End))
}

// FormatTime renders a timestamp the way outcome messages and the chart show it.
func FormatTime(t time.Time) string {
	return t.Format("Mon 02 Jan 15:04")
}

// Order is one production run.
type Order struct {
	ID      string    `json:"id"`
	Product string    `json:"product"`
	Machine string    `json:"machine"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Status  Status    `json:"status,omitempty"`
	QtyKg   float64   `json:"qty_kg,omitempty"`
	Due     time.Time `json:"due,omitzero"`
}

// Slot returns the order's current placement.
func (o Order) Slot() Slot {
	return Slot{Machine: o.Machine, Start: o.Start, End: o.End}
}

// WithSlot returns a copy of the order placed at s.
func (o Order) WithSlot(s Slot) Order {
	o.Machine = s.Machine
	o.Start = s.Start
	o.End = s.End
	return o
}

// Machine is a lane on which orders run one after another. An empty
// Products list accepts every product.
type Machine struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Products []string `json:"products,omitempty"`
}

// Accepts reports whether the machine may run the given product.
func (m Machine) Accepts(product string) bool {
	if len(m.Products) == 0 {
		return true
	}
	return slices.ContainsFunc(m.Products, func(p string) bool {
		return strings.EqualFold(p, product)
	})
}

// Snapshot is an immutable copy of the schedule. Orders are sorted by
// (Start, ID); machines keep roster order.
type Snapshot struct {
	Version     uint64    `json:"version"`
	Orders      []Order   `json:"orders"`
	Machines    []Machine `json:"machines"`
	Fingerprint string    `json:"fingerprint"`
}

// Order looks up an order by canonical ID.
func (s Snapshot) Order(id string) (Order, bool) {
	for _, o := range s.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// Machine looks up a machine by canonical ID.
func (s Snapshot) Machine(id string) (Machine, bool) {
	for _, m := range s.Machines {
		if m.ID == id {
			return m, true
		}
	}
	return Machine{}, false
}

// OrdersOn returns the orders on a machine in start order.
func (s Snapshot) OrdersOn(machine string) []Order {
	var out []Order
	for _, o := range s.Orders {
		if o.Machine == machine {
			out = append(out, o)
		}
	}
	return out
}

// Span returns the earliest start and latest end across all orders.
func (s Snapshot) Span() (time.Time, time.Time) {
	var first, last time.Time
	for i, o := range s.Orders {
		if i == 0 || o.Start.Before(first) {
			first = o.Start
		}
		if i == 0 || o.End.After(last) {
			last = o.End
		}
	}
	return first, last
}

// Fingerprint hashes the content of a schedule. Two schedules with the same
// orders and machines have the same fingerprint regardless of input order.
func Fingerprint(orders []Order, machines []Machine) string {
	doc := struct {
		Orders   []Order   `json:"orders"`
		Machines []Machine `json:"machines"`
	}{
		Orders:   sortedOrdersByID(orders),
		Machines: sortedMachines(machines),
	}
	for i := range doc.Orders {
		doc.Orders[i].Start = doc.Orders[i].Start.UTC()
		doc.Orders[i].End = doc.Orders[i].End.UTC()
		doc.Orders[i].Due = doc.Orders[i].Due.UTC()
	}
	// Only plain structs and slices: Marshal cannot fail.
	data, _ := json.Marshal(doc)
	return checksum.SHA256Bytes(data)
}

func sortedOrdersByID(orders []Order) []Order {
	out := slices.Clone(orders)
	slices.SortFunc(out, func(a, b Order) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func sortedOrdersByStart(orders []Order) []Order {
	out := slices.Clone(orders)
	slices.SortFunc(out, func(a, b Order) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func cloneMachines(machines []Machine) []Machine {
	out := make([]Machine, len(machines))
	for i, m := range machines {
		m.Products = slices.Clone(m.Products)
		out[i] = m
	}
	return out
}

func sortedMachines(machines []Machine) []Machine {
	out := cloneMachines(machines)
	slices.SortFunc(out, func(a, b Machine) int { return strings.Compare(a.ID, b.ID) })
	return out
}
