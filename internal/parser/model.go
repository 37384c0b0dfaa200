package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Flowka-lab/Scenario-2/internal/intent"
	"github.com/Flowka-lab/Scenario-2/internal/llm"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/resolve"
)

const unknownIntent = "unknown"

const systemPrompt = `You convert a production planner's command into one JSON object.
Reply with JSON only, no prose and no code fences.

Schema (every key is optional except "intent"; use null when not applicable):
{
  "intent": "delay_order" | "swap_orders" | "reassign_machine" | "unknown",
  "order_id": string,     // order to change (first order for swap_orders)
  "order_id_2": string,   // second order, swap_orders only
  "machine_id": string,   // target machine, reassign_machine only
  "days": number,
  "hours": number,
  "minutes": number,
  "reason": string        // optional, only for "unknown"
}

Rules:
- delay_order shifts an order later; to move it earlier ("advance", "bring forward", "pull in", "expedite") use negative amounts.
- "half a day" is 12 hours, "half an hour" is 30 minutes, "tomorrow" is 1 day.
- Treat "advanced" as "advance".
- Use only the identifiers listed below. Spoken numbers refer to order numbers ("order five" is the order numbered 5).
- If the command is not one of these intents, answer {"intent": "unknown"}.`

// modelReply is the closed schema the model must answer with. Pointer
// fields distinguish "absent or null" from zero values.
type modelReply struct {
	Intent    *string  `json:"intent"`
	OrderID   *string  `json:"order_id"`
	OrderID2  *string  `json:"order_id_2"`
	MachineID *string  `json:"machine_id"`
	Days      *float64 `json:"days"`
	Hours     *float64 `json:"hours"`
	Minutes   *float64 `json:"minutes"`
	Reason    *string  `json:"reason"`
}

// ModelExtractor is the model-assisted tier. It asks a language model for a
// schema-conforming intent and validates the answer strictly.
type ModelExtractor struct {
	caller llm.Caller
}

// NewModelExtractor wraps a language-model caller.
func NewModelExtractor(caller llm.Caller) *ModelExtractor {
	return &ModelExtractor{caller: caller}
}

// BuildPrompt grounds the model on the live identifiers.
func BuildPrompt(text string, rc *resolve.Context) llm.Prompt {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nKnown order IDs: ")
	b.WriteString(strings.Join(rc.OrderIDs(), ", "))
	b.WriteString("\nKnown machine IDs: ")
	b.WriteString(strings.Join(rc.MachineIDs(), ", "))
	return llm.Prompt{System: b.String(), User: text}
}

// Extract returns the resolved intent and the raw model reply. Transport
// errors become KindCollaboratorUnavailable; every malformed or
// schema-violating reply becomes KindMalformedResponse.
func (e *ModelExtractor) Extract(ctx context.Context, text string, rc *resolve.Context) (intent.Intent, string, error) {
	reply, err := e.caller.Complete(ctx, BuildPrompt(text, rc))
	if err != nil {
		return nil, "", outcome.Failf(outcome.KindCollaboratorUnavailable,
			"the language model is unavailable, try again or rephrase").Wrap(err).WithDetail(err.Error())
	}

	in, err := decodeReply(reply, rc)
	if err != nil {
		if f, ok := outcome.AsFailure(err); ok {
			if f.Detail == "" {
				f.Detail = reply
			}
			return nil, reply, f
		}
		return nil, reply, outcome.Failf(outcome.KindMalformedResponse, "%v", err).Wrap(err).WithDetail(reply)
	}
	return in, reply, nil
}

func decodeReply(reply string, rc *resolve.Context) (intent.Intent, error) {
	payload := extractJSON(reply)
	if payload == "" {
		return nil, errors.New("the reply contained no JSON object")
	}

	var r modelReply
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("the reply does not match the schema: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("the reply has trailing content after the JSON object")
	}
	if r.Intent == nil {
		return nil, errors.New(`the reply has no "intent"`)
	}

	switch kind := strings.TrimSpace(*r.Intent); kind {
	case unknownIntent:
		f := outcome.Failf(outcome.KindUnsupportedIntent, "the request is not a supported schedule change")
		if r.Reason != nil && *r.Reason != "" {
			f.Detail = *r.Reason
		}
		return nil, f

	case string(intent.KindDelayOrder):
		if err := requireAbsent(map[string]bool{"order_id_2": r.OrderID2 != nil, "machine_id": r.MachineID != nil}); err != nil {
			return nil, err
		}
		id, err := resolveField(rc, "order_id", r.OrderID)
		if err != nil {
			return nil, err
		}
		d, err := replyDuration(r)
		if err != nil {
			return nil, err
		}
		return intent.DelayOrder{OrderID: id, Duration: d}, nil

	case string(intent.KindSwapOrders):
		if err := requireAbsent(map[string]bool{"machine_id": r.MachineID != nil, "duration": hasAmount(r)}); err != nil {
			return nil, err
		}
		a, err := resolveField(rc, "order_id", r.OrderID)
		if err != nil {
			return nil, err
		}
		b, err := resolveField(rc, "order_id_2", r.OrderID2)
		if err != nil {
			return nil, err
		}
		return intent.SwapOrders{A: a, B: b}, nil

	case string(intent.KindReassignMachine):
		if err := requireAbsent(map[string]bool{"order_id_2": r.OrderID2 != nil, "duration": hasAmount(r)}); err != nil {
			return nil, err
		}
		id, err := resolveField(rc, "order_id", r.OrderID)
		if err != nil {
			return nil, err
		}
		if r.MachineID == nil || strings.TrimSpace(*r.MachineID) == "" {
			return nil, errors.New(`reassign_machine requires "machine_id"`)
		}
		machine, err := rc.Machine(*r.MachineID)
		if err != nil {
			return nil, err
		}
		return intent.ReassignMachine{OrderID: id, MachineID: machine}, nil

	default:
		return nil, fmt.Errorf("unknown intent %q", kind)
	}
}

func resolveField(rc *resolve.Context, name string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", fmt.Errorf("the reply is missing %q", name)
	}
	return rc.Order(*v)
}

func requireAbsent(fields map[string]bool) error {
	for name, present := range fields {
		if present {
			return fmt.Errorf("the reply sets %q, which does not apply to this intent", name)
		}
	}
	return nil
}

// hasAmount reports a non-zero duration field.
func hasAmount(r modelReply) bool {
	for _, v := range []*float64{r.Days, r.Hours, r.Minutes} {
		if v != nil && *v != 0 {
			return true
		}
	}
	return false
}

func replyDuration(r modelReply) (time.Duration, error) {
	if r.Days == nil && r.Hours == nil && r.Minutes == nil {
		return 0, errors.New(`delay_order requires "days", "hours" or "minutes"`)
	}
	var total float64
	for _, part := range []struct {
		v    *float64
		unit time.Duration
	}{{r.Days, 24 * time.Hour}, {r.Hours, time.Hour}, {r.Minutes, time.Minute}} {
		if part.v == nil {
			continue
		}
		if math.IsNaN(*part.v) || math.IsInf(*part.v, 0) {
			return 0, errors.New("duration fields must be finite numbers")
		}
		total += *part.v * float64(part.unit)
	}

	d := time.Duration(total).Round(time.Minute)
	if d == 0 {
		return 0, outcome.Failf(outcome.KindMalformedDuration, "duration must not be zero")
	}
	if d > MaxDuration || d < -MaxDuration {
		return 0, outcome.Failf(outcome.KindMalformedDuration, "duration %s is longer than a year", intent.FormatDuration(d))
	}
	return d, nil
}

// extractJSON pulls the JSON object out of a model reply, accepting a
// ```json fenced block or the first balanced {...} span.
func extractJSON(reply string) string {
	lines := strings.Split(reply, "\n")
	inBlock := false
	var block []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inBlock && strings.HasPrefix(trimmed, "```") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, "```") {
			break
		}
		if inBlock {
			block = append(block, line)
		}
	}
	if len(block) > 0 {
		return strings.TrimSpace(strings.Join(block, "\n"))
	}

	start := strings.IndexByte(reply, '{')
	if start == -1 {
		return ""
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case c == '{' && !inString:
			depth++
		case c == '}' && !inString:
			depth--
			if depth == 0 {
				return string(bytes.TrimSpace([]byte(reply[start : i+1])))
			}
		}
	}
	return ""
}
