// Package intent defines the closed set of schedule mutations a command can
// request. Intents carry canonical identifiers only, never raw command text.
package intent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind names an intent variant. The values double as the wire names used by
// the language-model schema and the journal.
type Kind string

const (
	KindDelayOrder      Kind = "delay_order"
	KindSwapOrders      Kind = "swap_orders"
	KindReassignMachine Kind = "reassign_machine"
)

// Intent is implemented only by the types in this package.
type Intent interface {
	Kind() Kind
	// Describe renders the intent for logs and confirmations.
	Describe() string
	// Orders lists the canonical order IDs the intent touches.
	Orders() []string
	sealed()
}

// DelayOrder shifts one order's interval by Duration. A negative duration
// moves the order earlier.
type DelayOrder struct {
	OrderID  string
	Duration time.Duration
}

func (DelayOrder) Kind() Kind         { return KindDelayOrder }
func (d DelayOrder) Orders() []string { return []string{d.OrderID} }
func (DelayOrder) sealed()            {}

func (d DelayOrder) Describe() string {
	if d.Duration < 0 {
		return fmt.Sprintf("advance %s by %s", d.OrderID, FormatDuration(-d.Duration))
	}
	return fmt.Sprintf("delay %s by %s", d.OrderID, FormatDuration(d.Duration))
}

func (d DelayOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Intent  Kind    `json:"intent"`
		OrderID string  `json:"order_id"`
		Minutes float64 `json:"minutes"`
	}{KindDelayOrder, d.OrderID, d.Duration.Minutes()})
}

// SwapOrders exchanges the (machine, start, end) placement of two orders.
type SwapOrders struct {
	A string
	B string
}

func (SwapOrders) Kind() Kind         { return KindSwapOrders }
func (s SwapOrders) Orders() []string { return []string{s.A, s.B} }
func (SwapOrders) sealed()            {}

func (s SwapOrders) Describe() string {
	return fmt.Sprintf("swap %s with %s", s.A, s.B)
}

func (s SwapOrders) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Intent   Kind   `json:"intent"`
		OrderID  string `json:"order_id"`
		OrderID2 string `json:"order_id_2"`
	}{KindSwapOrders, s.A, s.B})
}

// ReassignMachine moves an order to another machine, keeping its interval.
type ReassignMachine struct {
	OrderID   string
	MachineID string
}

func (ReassignMachine) Kind() Kind         { return KindReassignMachine }
func (r ReassignMachine) Orders() []string { return []string{r.OrderID} }
func (ReassignMachine) sealed()            {}

func (r ReassignMachine) Describe() string {
	return fmt.Sprintf("move %s to %s", r.OrderID, r.MachineID)
}

func (r ReassignMachine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Intent    Kind   `json:"intent"`
		OrderID   string `json:"order_id"`
		MachineID string `json:"machine_id"`
	}{KindReassignMachine, r.OrderID, r.MachineID})
}

// FormatDuration renders d as days, hours and minutes, e.g. "1d 2h 30m".
// Seconds are rounded to the nearest minute.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Round(time.Minute)
	if d == 0 {
		return "0m"
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return sign + strings.Join(parts, " ")
}

// Decode reads an intent written by MarshalJSON, for example from the
// command journal.
func Decode(data []byte) (Intent, error) {
	var wire struct {
		Intent    Kind    `json:"intent"`
		OrderID   string  `json:"order_id"`
		OrderID2  string  `json:"order_id_2"`
		MachineID string  `json:"machine_id"`
		Minutes   float64 `json:"minutes"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding intent: %w", err)
	}
	if wire.OrderID == "" {
		return nil, fmt.Errorf("decoding intent: missing order_id")
	}

	switch wire.Intent {
	case KindDelayOrder:
		d := time.Duration(wire.Minutes * float64(time.Minute)).Round(time.Minute)
		return DelayOrder{OrderID: wire.OrderID, Duration: d}, nil
	case KindSwapOrders:
		if wire.OrderID2 == "" {
			return nil, fmt.Errorf("decoding intent: swap is missing order_id_2")
		}
		return SwapOrders{A: wire.OrderID, B: wire.OrderID2}, nil
	case KindReassignMachine:
		if wire.MachineID == "" {
			return nil, fmt.Errorf("decoding intent: reassign is missing machine_id")
		}
		return ReassignMachine{OrderID: wire.OrderID, MachineID: wire.MachineID}, nil
	default:
		return nil, fmt.Errorf("decoding intent: unknown intent %q", wire.Intent)
	}
}
