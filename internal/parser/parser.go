// Package parser turns command text into a resolved intent. Deterministic
// templates are tried first; only when none matches is the language-model
// tier consulted.
package parser

import (
	"context"
	"log/slog"

	"github.com/Flowka-lab/Scenario-2/internal/intent"
	"github.com/Flowka-lab/Scenario-2/internal/llm"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/resolve"
)

// Tier names which stage produced a result
type Tier string

const (
	TierPattern Tier = "pattern"
	TierModel   Tier = "model"
)

// Result is what parsing produced. On failure the fields that were filled
// before the failure (normalized text, matched template, model reply) are
// still set for diagnostics.
type Result struct {
	Intent     intent.Intent
	Tier       Tier
	Template   string
	Normalized string
	ModelReply string
}

// Parser runs the two tiers.
type Parser struct {
	templates []Template
	model     *ModelExtractor
	logger    *slog.Logger
}

// New creates a parser. A nil caller disables the model tier, in which case
// text that matches no template is reported as unsupported.
func New(caller llm.Caller, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		templates: DefaultTemplates(),
		logger:    logger,
	}
	if caller != nil {
		p.model = NewModelExtractor(caller)
	}
	return p
}

// Templates returns the pattern tier in match order.
func (p *Parser) Templates() []Template {
	out := make([]Template, len(p.templates))
	copy(out, p.templates)
	return out
}

// Parse produces exactly one resolved intent or a *outcome.Failure.
func (p *Parser) Parse(ctx context.Context, text string, rc *resolve.Context) (Result, error) {
	res := Result{Normalized: Normalize(text)}
	if res.Normalized == "" {
		return res, outcome.Failf(outcome.KindUnsupportedIntent, "the command is empty")
	}

	in, err := p.matchPatterns(&res, rc)
	if err == nil {
		res.Intent = in
		return res, nil
	}
	if f, ok := outcome.AsFailure(err); !ok || f.Kind != outcome.KindNoPatternMatch {
		return res, err
	}

	p.logger.Debug("no template matched", "normalized", res.Normalized)
	if p.model == nil {
		return res, outcome.Failf(outcome.KindUnsupportedIntent,
			"try phrasings like %q or %q", "delay order 1 by 2 hours", "swap order 1 with order 2").
			WithDetail("no language model is configured")
	}

	res.Tier = TierModel
	in, reply, err := p.model.Extract(ctx, text, rc)
	res.ModelReply = reply
	if err != nil {
		p.logger.Debug("model tier rejected command", "error", err)
		return res, err
	}
	res.Intent = in
	return res, nil
}

// matchPatterns returns KindNoPatternMatch when no template fits. A template
// that fits but cannot be built (unknown order, bad duration) is final.
func (p *Parser) matchPatterns(res *Result, rc *resolve.Context) (intent.Intent, error) {
	for _, t := range p.templates {
		m, ok := t.Match(res.Normalized)
		if !ok {
			continue
		}
		res.Tier = TierPattern
		res.Template = t.Name
		return t.build(m, rc)
	}
	return nil, outcome.Failf(outcome.KindNoPatternMatch, "no template matched %q", res.Normalized)
}
