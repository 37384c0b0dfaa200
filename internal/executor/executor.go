// Package executor validates intents against the live schedule and applies
// them as single transactions. A rejected intent never changes the schedule.
package executor

import (
	"fmt"
	"log/slog"

	"github.com/Flowka-lab/Scenario-2/internal/intent"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// Executor applies intents to a schedule store.
type Executor struct {
	store  *schedule.Store
	logger *slog.Logger
}

// New creates an executor over store.
func New(store *schedule.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, logger: logger}
}

// Apply validates in against the current schedule and commits it. On
// failure the returned snapshot is the unchanged schedule and the error is
// a *outcome.Failure.
func (e *Executor) Apply(in intent.Intent) (outcome.Outcome, schedule.Snapshot, error) {
	if in == nil {
		return outcome.Outcome{}, e.store.Snapshot(), outcome.Failf(outcome.KindUnsupportedIntent, "no intent to apply")
	}

	var out outcome.Outcome
	snap, err := e.store.Update(func(tx *schedule.Tx) error {
		var err error
		switch in := in.(type) {
		case intent.DelayOrder:
			out, err = delay(tx, in)
		case intent.SwapOrders:
			out, err = swap(tx, in)
		case intent.ReassignMachine:
			out, err = reassign(tx, in)
		default:
			err = outcome.Failf(outcome.KindUnsupportedIntent, "unsupported intent %T", in)
		}
		return err
	})
	if err != nil {
		f := outcome.FromError(err)
		e.logger.Debug("intent rejected", "intent", in.Kind(), "kind", f.Kind, "error", err)
		return outcome.Outcome{}, snap, f
	}

	out.Intent = in.Kind()
	out.Applied = in
	e.logger.Info("intent applied", "intent", in.Kind(), "orders", in.Orders(), "version", snap.Version)
	return out, snap, nil
}

// Compensation returns the intent that undoes an applied outcome.
func Compensation(out outcome.Outcome) (intent.Intent, error) {
	switch in := out.Applied.(type) {
	case intent.DelayOrder:
		return intent.DelayOrder{OrderID: in.OrderID, Duration: -in.Duration}, nil
	case intent.SwapOrders:
		return in, nil
	case intent.ReassignMachine:
		c, ok := out.Change(in.OrderID)
		if !ok {
			return nil, fmt.Errorf("outcome of %s has no change for %s", in.Describe(), in.OrderID)
		}
		return intent.ReassignMachine{OrderID: in.OrderID, MachineID: c.Before.Machine}, nil
	case nil:
		return nil, fmt.Errorf("outcome has no applied intent")
	default:
		return nil, fmt.Errorf("cannot compensate %T", in)
	}
}

func delay(tx *schedule.Tx, in intent.DelayOrder) (outcome.Outcome, error) {
	o, err := lookup(tx, in.OrderID)
	if err != nil {
		return outcome.Outcome{}, err
	}
	if in.Duration == 0 {
		return outcome.Outcome{}, outcome.Failf(outcome.KindNoChange, "%s is already at that time", o.ID).WithOrder(o.ID)
	}

	before := o.Slot()
	after := before.Shift(in.Duration)
	if other, clash := tx.Conflict(after, o.ID); clash {
		return outcome.Outcome{}, conflict(o.ID, other, after)
	}
	if err := tx.Set(o.WithSlot(after)); err != nil {
		return outcome.Outcome{}, err
	}

	verb := "Delayed"
	amount := in.Duration
	if amount < 0 {
		verb, amount = "Advanced", -amount
	}
	return outcome.Outcome{
		Changes: []outcome.Change{{OrderID: o.ID, Before: before, After: after}},
		Message: fmt.Sprintf("%s %s by %s: now %s to %s on %s", verb, o.ID, intent.FormatDuration(amount),
			schedule.FormatTime(after.Start), schedule.FormatTime(after.End), after.Machine),
	}, nil
}

func swap(tx *schedule.Tx, in intent.SwapOrders) (outcome.Outcome, error) {
	if in.A == in.B {
		return outcome.Outcome{}, outcome.Failf(outcome.KindSameOrder, "cannot swap %s with itself", in.A).WithOrder(in.A)
	}
	a, err := lookup(tx, in.A)
	if err != nil {
		return outcome.Outcome{}, err
	}
	b, err := lookup(tx, in.B)
	if err != nil {
		return outcome.Outcome{}, err
	}

	aBefore, bBefore := a.Slot(), b.Slot()
	if err := compatible(tx, a, bBefore.Machine); err != nil {
		return outcome.Outcome{}, err
	}
	if err := compatible(tx, b, aBefore.Machine); err != nil {
		return outcome.Outcome{}, err
	}

	// Both slots are vacated together, so only third orders can clash.
	if other, clash := tx.Conflict(bBefore, a.ID, b.ID); clash {
		return outcome.Outcome{}, conflict(a.ID, other, bBefore)
	}
	if other, clash := tx.Conflict(aBefore, a.ID, b.ID); clash {
		return outcome.Outcome{}, conflict(b.ID, other, aBefore)
	}
	if err := tx.Set(a.WithSlot(bBefore)); err != nil {
		return outcome.Outcome{}, err
	}
	if err := tx.Set(b.WithSlot(aBefore)); err != nil {
		return outcome.Outcome{}, err
	}

	return outcome.Outcome{
		Changes: []outcome.Change{
			{OrderID: a.ID, Before: aBefore, After: bBefore},
			{OrderID: b.ID, Before: bBefore, After: aBefore},
		},
		Message: fmt.Sprintf("Swapped %s and %s: %s now starts %s on %s, %s now starts %s on %s",
			a.ID, b.ID,
			a.ID, schedule.FormatTime(bBefore.Start), bBefore.Machine,
			b.ID, schedule.FormatTime(aBefore.Start), aBefore.Machine),
	}, nil
}

func reassign(tx *schedule.Tx, in intent.ReassignMachine) (outcome.Outcome, error) {
	o, err := lookup(tx, in.OrderID)
	if err != nil {
		return outcome.Outcome{}, err
	}
	if _, ok := tx.Machine(in.MachineID); !ok {
		return outcome.Outcome{}, outcome.Failf(outcome.KindUnknownReference, "machine %s not found", in.MachineID).
			WithToken(in.MachineID).WithMachine(in.MachineID)
	}
	if o.Machine == in.MachineID {
		return outcome.Outcome{}, outcome.Failf(outcome.KindNoChange, "%s is already on %s", o.ID, in.MachineID).
			WithOrder(o.ID).WithMachine(in.MachineID)
	}
	if err := compatible(tx, o, in.MachineID); err != nil {
		return outcome.Outcome{}, err
	}

	before := o.Slot()
	after := schedule.Slot{Machine: in.MachineID, Start: before.Start, End: before.End}
	if other, clash := tx.Conflict(after, o.ID); clash {
		return outcome.Outcome{}, conflict(o.ID, other, after)
	}
	if err := tx.Set(o.WithSlot(after)); err != nil {
		return outcome.Outcome{}, err
	}

	return outcome.Outcome{
		Changes: []outcome.Change{{OrderID: o.ID, Before: before, After: after}},
		Message: fmt.Sprintf("Moved %s from %s to %s, %s to %s", o.ID, before.Machine, after.Machine,
			schedule.FormatTime(after.Start), schedule.FormatTime(after.End)),
	}, nil
}

func lookup(tx *schedule.Tx, id string) (schedule.Order, error) {
	o, ok := tx.Order(id)
	if !ok {
		return schedule.Order{}, outcome.Failf(outcome.KindUnknownReference, "order %s not found", id).
			WithToken(id).WithOrder(id)
	}
	return o, nil
}

func compatible(tx *schedule.Tx, o schedule.Order, machineID string) error {
	m, ok := tx.Machine(machineID)
	if !ok {
		return outcome.Failf(outcome.KindUnknownReference, "machine %s not found", machineID).WithToken(machineID)
	}
	if m.Accepts(o.Product) {
		return nil
	}
	return outcome.Failf(outcome.KindIncompatibleMachine, "%s cannot run %s (product %s)", m.ID, o.ID, o.Product).
		WithOrder(o.ID).WithMachine(m.ID)
}

func conflict(orderID string, other schedule.Order, at schedule.Slot) error {
	f := outcome.Failf(outcome.KindScheduleConflict, "%s would overlap %s on %s (%s to %s)",
		orderID, other.ID, at.Machine, schedule.FormatTime(other.Start), schedule.FormatTime(other.End))
	f.ConflictWith = other.ID
	return f.WithOrder(orderID).WithMachine(at.Machine)
}
