package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrInvalidSchedule is wrapped by every consistency violation the store detects.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Store owns the live schedule. All mutation goes through Update, which
// runs validation and application under one lock.
type Store struct {
	mu       sync.Mutex
	orders   map[string]Order
	machines []Machine
	initial  []Order
	base     string
	version  uint64
	logger   *slog.Logger
}

// New builds a store from a loaded schedule. The orders are validated
// against the machine roster and kept as the reset point.
func New(orders []Order, machines []Machine, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(machines) == 0 {
		return nil, fmt.Errorf("%w: no machines", ErrInvalidSchedule)
	}
	roster := sortedMachines(machines)
	for i := 1; i < len(roster); i++ {
		if roster[i].ID == roster[i-1].ID {
			return nil, fmt.Errorf("%w: duplicate machine %s", ErrInvalidSchedule, roster[i].ID)
		}
	}

	s := &Store{
		machines: cloneMachines(machines),
		logger:   logger,
	}
	for _, m := range s.machines {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: machine with empty id", ErrInvalidSchedule)
		}
	}

	byID := make(map[string]Order, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			return nil, fmt.Errorf("%w: order with empty id", ErrInvalidSchedule)
		}
		if _, dup := byID[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate order %s", ErrInvalidSchedule, o.ID)
		}
		if o.Status == "" {
			o.Status = StatusScheduled
		}
		byID[o.ID] = o
	}
	if err := s.validate(byID); err != nil {
		return nil, err
	}

	s.orders = byID
	s.initial = sortedOrdersByID(orders)
	for i := range s.initial {
		if s.initial[i].Status == "" {
			s.initial[i].Status = StatusScheduled
		}
	}
	s.base = Fingerprint(s.initial, s.machines)

	logger.Debug("schedule loaded", "orders", len(byID), "machines", len(s.machines))
	return s, nil
}

// Snapshot returns an immutable copy of the current schedule.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Update stages the changes made by fn and commits them only if fn returns
// nil and the resulting schedule passes validation. Any other outcome
// leaves the schedule untouched. fn runs with the store locked; it must not
// call back into the store.
func (s *Store) Update(fn func(tx *Tx) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s, staged: make(map[string]Order)}
	if err := fn(tx); err != nil {
		return s.snapshotLocked(), err
	}
	if len(tx.staged) == 0 {
		return s.snapshotLocked(), nil
	}

	next := make(map[string]Order, len(s.orders))
	for id, o := range s.orders {
		next[id] = o
	}
	for id, o := range tx.staged {
		next[id] = o
	}
	if err := s.validate(next); err != nil {
		s.logger.Error("rejected commit that would break schedule consistency", "error", err)
		return s.snapshotLocked(), err
	}

	s.orders = next
	s.version++
	return s.snapshotLocked(), nil
}

// Restore replaces every order with the given set, for example a persisted
// session. The roster is unchanged and the orders must be consistent with it.
func (s *Store) Restore(orders []Order) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Order, len(orders))
	for _, o := range orders {
		if _, dup := next[o.ID]; dup {
			return s.snapshotLocked(), fmt.Errorf("%w: duplicate order %s", ErrInvalidSchedule, o.ID)
		}
		next[o.ID] = o
	}
	if err := s.validate(next); err != nil {
		return s.snapshotLocked(), err
	}

	s.orders = next
	s.version++
	return s.snapshotLocked(), nil
}

// Base returns the fingerprint of the schedule the store was created with.
func (s *Store) Base() string {
	return s.base
}

// Reset restores the schedule the store was created with.
func (s *Store) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[string]Order, len(s.initial))
	for _, o := range s.initial {
		s.orders[o.ID] = o
	}
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	orders := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	return Snapshot{
		Version:     s.version,
		Orders:      sortedOrdersByStart(orders),
		Machines:    cloneMachines(s.machines),
		Fingerprint: Fingerprint(orders, s.machines),
	}
}

func (s *Store) machine(id string) (Machine, bool) {
	for _, m := range s.machines {
		if m.ID == id {
			return m, true
		}
	}
	return Machine{}, false
}

// validate checks every structural rule: known machine, positive interval,
// product allowed, and no two orders overlapping on one machine.
func (s *Store) validate(orders map[string]Order) error {
	lanes := make(map[string][]Order)
	for id, o := range orders {
		m, ok := s.machine(o.Machine)
		if !ok {
			return fmt.Errorf("%w: order %s is on unknown machine %q", ErrInvalidSchedule, id, o.Machine)
		}
		if !o.Start.Before(o.End) {
			return fmt.Errorf("%w: order %s must start before it ends", ErrInvalidSchedule, id)
		}
		if !m.Accepts(o.Product) {
			return fmt.Errorf("%w: machine %s cannot run product %s of order %s", ErrInvalidSchedule, m.ID, o.Product, id)
		}
		lanes[o.Machine] = append(lanes[o.Machine], o)
	}

	for machine, lane := range lanes {
		lane = sortedOrdersByStart(lane)
		for i := 1; i < len(lane); i++ {
			if lane[i-1].Slot().Overlaps(lane[i].Slot()) {
				return fmt.Errorf("%w: orders %s and %s overlap on %s", ErrInvalidSchedule, lane[i-1].ID, lane[i].ID, machine)
			}
		}
	}
	return nil
}

// Tx is a staged view of the schedule handed to Update callbacks. Reads see
// staged writes.
type Tx struct {
	store  *Store
	staged map[string]Order
}

// Order returns the staged or committed order with the given ID.
func (tx *Tx) Order(id string) (Order, bool) {
	if o, ok := tx.staged[id]; ok {
		return o, true
	}
	o, ok := tx.store.orders[id]
	return o, ok
}

// Machine returns the machine with the given ID.
func (tx *Tx) Machine(id string) (Machine, bool) {
	return tx.store.machine(id)
}

// Set stages a new placement for an existing order.
func (tx *Tx) Set(o Order) error {
	if _, ok := tx.Order(o.ID); !ok {
		return fmt.Errorf("%w: order %s does not exist", ErrInvalidSchedule, o.ID)
	}
	tx.staged[o.ID] = o
	return nil
}

// Conflict returns the first order, in start order, that would overlap slot
// on its machine. Orders named in ignore are skipped.
func (tx *Tx) Conflict(slot Slot, ignore ...string) (Order, bool) {
	var found []Order
	seen := make(map[string]bool)
	check := func(o Order) {
		if seen[o.ID] || slices.Contains(ignore, o.ID) {
			return
		}
		seen[o.ID] = true
		if o.Slot().Overlaps(slot) {
			found = append(found, o)
		}
	}
	for _, o := range tx.staged {
		check(o)
	}
	for _, o := range tx.store.orders {
		check(o)
	}
	if len(found) == 0 {
		return Order{}, false
	}
	return sortedOrdersByStart(found)[0], true
}
