// Package outcome defines what a command returns: an Outcome describing an
// applied change, or a Failure naming why nothing changed.
package outcome

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Flowka-lab/Scenario-2/internal/intent"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// Kind classifies a failed command
type Kind string

const (
	KindUnknownReference        Kind = "unknown_reference"
	KindAmbiguousReference      Kind = "ambiguous_reference"
	KindNoPatternMatch          Kind = "no_pattern_match"
	KindUnsupportedIntent       Kind = "unsupported_intent"
	KindMalformedDuration       Kind = "malformed_duration"
	KindMalformedResponse       Kind = "malformed_response"
	KindScheduleConflict        Kind = "schedule_conflict"
	KindIncompatibleMachine     Kind = "incompatible_machine"
	KindSameOrder               Kind = "same_order"
	KindNoChange                Kind = "no_change"
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
	KindNothingToUndo           Kind = "nothing_to_undo"
	KindInternal                Kind = "internal_error"
)

// ParseStage reports whether the kind comes from understanding the command
// text rather than from references or validation.
func (k Kind) ParseStage() bool {
	switch k {
	case KindNoPatternMatch, KindUnsupportedIntent, KindMalformedDuration, KindMalformedResponse:
		return true
	}
	return false
}

// Failure is a structured command rejection. It implements error so it can
// travel through ordinary error returns and be recovered with errors.As.
type Failure struct {
	Kind         Kind   `json:"kind"`
	Message      string `json:"message"`
	Token        string `json:"token,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	MachineID    string `json:"machine_id,omitempty"`
	ConflictWith string `json:"conflict_with,omitempty"`
	// Detail is diagnostic only (raw model reply, transport error) and is
	// never part of the user-facing message.
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

// Failf builds a Failure with a formatted message.
func Failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage is the single line shown to the planner.
func (f *Failure) UserMessage() string {
	if f.Kind.ParseStage() {
		msg := "Could not understand the command"
		if f.Message != "" {
			msg += ": " + f.Message
		}
		return msg
	}
	if f.Message == "" {
		return strings.ReplaceAll(string(f.Kind), "_", " ")
	}
	return f.Message
}

// WithToken records the offending text.
func (f *Failure) WithToken(token string) *Failure {
	f.Token = token
	return f
}

// WithOrder records the order the failure is about.
func (f *Failure) WithOrder(id string) *Failure {
	f.OrderID = id
	return f
}

// WithMachine records the machine the failure is about.
func (f *Failure) WithMachine(id string) *Failure {
	f.MachineID = id
	return f
}

// WithDetail records diagnostic text.
func (f *Failure) WithDetail(detail string) *Failure {
	f.Detail = detail
	return f
}

// Wrap records the underlying error.
func (f *Failure) Wrap(err error) *Failure {
	f.Err = err
	return f
}

// AsFailure extracts a Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// FromError classifies any error as a Failure. Errors that are not already
// failures become KindInternal so no raw error crosses the command boundary.
func FromError(err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := AsFailure(err); ok {
		return f
	}
	return &Failure{Kind: KindInternal, Message: "the command could not be completed", Detail: err.Error(), Err: err}
}

// Change is the before and after placement of one order.
type Change struct {
	OrderID string        `json:"order_id"`
	Before  schedule.Slot `json:"before"`
	After   schedule.Slot `json:"after"`
}

// Outcome describes a successfully applied intent.
type Outcome struct {
	Intent  intent.Kind   `json:"intent"`
	Applied intent.Intent `json:"-"`
	Changes []Change      `json:"changes"`
	Message string        `json:"message"`
}

// Change returns the recorded change for an order.
func (o Outcome) Change(orderID string) (Change, bool) {
	for _, c := range o.Changes {
		if c.OrderID == orderID {
			return c, true
		}
	}
	return Change{}, false
}
