package services

import (
	"strconv"
	"strings"
	"time"
)

// Signal is an advisory condition raised while resolving an edit. Signals
// are not errors: the clamp behind OverLimit is already applied, and
// ConfirmationRequired pauses the cascade until the caller decides.
type Signal string

const (
	SignalConfirmationRequired Signal = "confirmation_required"
	SignalTierRequired         Signal = "tier_required"
	SignalOverLimit            Signal = "over_limit"
)

const (
	answerYes = "Yes"
	answerNo  = "No"
)

// Resolution is the outcome of resolving one edit: the edited question
// after coercion plus the side-effect mutations the dependency rules
// produced. When NeedsConfirmation is set nothing may be applied; the
// caller must re-resolve with ResolveOptions.Confirmed once the user has
// approved the disable cascade.
type Resolution struct {
	Primary           *Question   `json:"primary,omitempty"`
	SideEffects       []*Question `json:"side_effects,omitempty"`
	Signals           []Signal    `json:"signals,omitempty"`
	NeedsConfirmation bool        `json:"needs_confirmation,omitempty"`
	// PendingDependents lists the dependents that will be disabled once
	// the caller confirms.
	PendingDependents []string `json:"pending_dependents,omitempty"`
}

func (r *Resolution) signal(s Signal) {
	r.Signals = append(r.Signals, s)
}

// Apply merges the resolution into the question collection, returning a
// new slice. A resolution awaiting confirmation applies nothing.
func (r *Resolution) Apply(qs []*Question) []*Question {
	if r == nil || r.NeedsConfirmation {
		return qs
	}
	out := make([]*Question, len(qs))
	for i, q := range qs {
		out[i] = q
		if r.Primary != nil && q.ID == r.Primary.ID {
			out[i] = r.Primary
			continue
		}
		for _, se := range r.SideEffects {
			if q.ID == se.ID {
				out[i] = se
				break
			}
		}
	}
	return out
}

type ResolveOptions struct {
	// Confirmed acknowledges a previously returned ConfirmationRequired
	// checkpoint, allowing the disable cascade to proceed.
	Confirmed bool
}

// ruleFunc inspects the already-coerced primary question and appends side
// effects or signals. Rules look exactly one hop from the edited question;
// side effects never re-trigger rules within a pass.
type ruleFunc func(e *Engine, primary *Question, all []*Question, res *Resolution, opts ResolveOptions) error

// Engine resolves an edited question against the full collection, turning
// one answer change into an explicit, deterministic set of mutations.
type Engine struct {
	rules []ruleFunc
	table *RuleSet
	now   func() time.Time
}

func NewEngine(table *RuleSet) *Engine {
	return &Engine{
		rules: []ruleFunc{booleanGateRule, numericCeilingRule},
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Resolve coerces the raw value onto the edited question and runs the rule
// table. Side effects are computed from current state, so resolving the
// same edit twice from the same starting state is a no-op the second time.
func (e *Engine) Resolve(editedID string, raw any, qs []*Question, opts ResolveOptions) (*Resolution, error) {
	edited := findQuestion(qs, editedID)
	if edited == nil {
		return nil, NewNotFoundError("question not found: " + editedID)
	}
	if edited.Disabled() {
		return nil, NewInvalidError("question is disabled: " + editedID)
	}
	if edited.Type == TypeMultiSelect && containsString(edited.Options, NAText) {
		var err error
		raw, err = exclusiveSelections(edited, raw)
		if err != nil {
			return nil, err
		}
	}
	primary, err := SetAnswer(edited, raw, e.now())
	if err != nil {
		return nil, err
	}
	res := &Resolution{Primary: primary}
	for _, rule := range e.rules {
		if err := rule(e, res.Primary, qs, res, opts); err != nil {
			return nil, err
		}
		if res.NeedsConfirmation {
			res.Primary = nil
			res.SideEffects = nil
			return res, nil
		}
	}
	return res, nil
}

// exclusiveSelections enforces mutual exclusion for multiSelect questions
// carrying an N/A option: picking any real option drops N/A, and dropping
// the last real option re-adds it, so the set is never empty.
func exclusiveSelections(q *Question, raw any) (any, error) {
	if raw == nil {
		return []string{NAText}, nil
	}
	sel, err := coerceStringSlice(raw)
	if err != nil {
		return nil, err
	}
	real := make([]string, 0, len(sel))
	for _, s := range sel {
		if s != NAText {
			real = append(real, s)
		}
	}
	if len(real) == 0 {
		return []string{NAText}, nil
	}
	return real, nil
}

// booleanGateRule handles controller questions whose boolean answer owns
// the enabled state of their dependents ("Bridge required?" and friends).
// Both yesNo and checkbox questions can act as controllers; a checked
// checkbox reads as Yes, an unchecked one as No.
func booleanGateRule(e *Engine, primary *Question, all []*Question, res *Resolution, opts ResolveOptions) error {
	answer, ok := gateAnswer(primary)
	if !ok {
		return nil
	}
	deps := gateDependents(all, primary.ID)
	if len(deps) == 0 {
		return nil
	}
	switch answer {
	case answerNo:
		var holding []string
		for _, dep := range deps {
			if !dep.Disabled() && holdsRealAnswer(dep) {
				holding = append(holding, dep.ID)
			}
		}
		if len(holding) > 0 && !opts.Confirmed {
			res.NeedsConfirmation = true
			res.PendingDependents = holding
			res.signal(SignalConfirmationRequired)
			return nil
		}
		for _, dep := range deps {
			// A dependent already claimed by a different controller is
			// left untouched; ownership of the disable is per-question.
			if dep.Meta.DisabledBy != "" {
				continue
			}
			res.SideEffects = append(res.SideEffects, SetDisabled(dep, primary.ID))
		}
	case answerYes:
		for _, dep := range deps {
			if dep.Meta.DisabledBy != primary.ID {
				continue
			}
			res.SideEffects = append(res.SideEffects, SetDisabled(dep, ""))
		}
	}
	return nil
}

// gateAnswer flattens a controller's answer to Yes/No. An unanswered
// controller yields the empty string, which drives neither branch.
func gateAnswer(q *Question) (string, bool) {
	switch q.Type {
	case TypeYesNo:
		if q.Answer == nil {
			return "", true
		}
		return q.Answer.Text, true
	case TypeCheckbox:
		if q.Answer == nil || q.Answer.Checked == nil {
			return "", true
		}
		if *q.Answer.Checked {
			return answerYes, true
		}
		return answerNo, true
	}
	return "", false
}

// gateDependents returns the questions gated by the given controller.
// Questions pointing at the controller through sku_limits metadata belong
// to the numeric-ceiling rule, not the gate.
func gateDependents(all []*Question, controllerID string) []*Question {
	var out []*Question
	for _, q := range all {
		if q.ID == controllerID {
			continue
		}
		if q.Meta.DependsOn == controllerID && len(q.Meta.SKULimits) == 0 {
			out = append(out, q)
		}
	}
	return out
}

// numericCeilingRule clamps a numeric answer to the ceiling of the
// currently selected tier. The clamp is mandatory; TierRequired and
// OverLimit are advisory.
func numericCeilingRule(e *Engine, primary *Question, all []*Question, res *Resolution, opts ResolveOptions) error {
	ceiling, ok := e.table.Ceiling(primary)
	if !ok {
		return nil
	}
	if primary.Answer == nil || primary.Answer.Text == "" {
		return nil
	}
	tier := ""
	if tierQ := findQuestion(all, ceiling.TierQuestionID); tierQ != nil && tierQ.Answer != nil {
		tier = tierQ.Answer.Text
	}
	if tier == "" || tier == NAText {
		cleared, err := SetAnswer(primary, nil, e.now())
		if err != nil {
			return err
		}
		res.Primary = cleared
		res.signal(SignalTierRequired)
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(primary.Answer.Text))
	if err != nil {
		return ErrInvalidAnswerShape
	}
	limit, known := ceiling.Limits[tier]
	if !known || n <= limit {
		return nil
	}
	clamped, err := SetAnswer(primary, strconv.Itoa(limit), e.now())
	if err != nil {
		return err
	}
	res.Primary = clamped
	res.signal(SignalOverLimit)
	return nil
}
