package services

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func bridgeQuestions() []*Question {
	return []*Question{
		{ID: "bridge", Order: 1, Section: "Connectivity", Type: TypeYesNo, Options: []string{"Yes", "No"}},
		{ID: "bridge-host", Order: 2, Section: "Connectivity", Type: TypeTextInput, Meta: QuestionMeta{DependsOn: "bridge"}},
		{ID: "bridge-window", Order: 3, Section: "Connectivity", Type: TypeDateInput, Meta: QuestionMeta{DependsOn: "bridge"}},
		{ID: "tier", Order: 4, Section: "Plan", Type: TypeDropdown, Options: []string{"Starter", "Business", "Enterprise"}},
		{ID: "sites", Order: 5, Section: "Plan", Type: TypeTextInput, Meta: QuestionMeta{DependsOn: "tier", SKULimits: map[string]int{"Starter": 1, "Business": 10}}},
		{ID: "sources", Order: 6, Section: "Data", Type: TypeMultiSelect, Options: []string{"Databases", "Mailboxes", NAText}},
	}
}

func testEngine() *Engine {
	e := NewEngine(NewRuleSet())
	e.now = func() time.Time { return testTime }
	return e
}

func mustResolve(t *testing.T, e *Engine, id string, raw any, qs []*Question, opts ResolveOptions) *Resolution {
	t.Helper()
	res, err := e.Resolve(id, raw, qs, opts)
	if err != nil {
		t.Fatalf("Resolve(%s) returned error: %v", id, err)
	}
	return res
}

func TestGateNoWithAnswersRequiresConfirmation(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()

	qs = mustResolve(t, e, "bridge-host", "vpn.example.net", qs, ResolveOptions{}).Apply(qs)
	before := CloneQuestions(qs)

	res := mustResolve(t, e, "bridge", "No", qs, ResolveOptions{})
	if !res.NeedsConfirmation {
		t.Fatalf("expected confirmation checkpoint, got %+v", res)
	}
	if res.Primary != nil || len(res.SideEffects) != 0 {
		t.Fatalf("confirmation resolution must carry no mutations: %+v", res)
	}
	if len(res.PendingDependents) != 1 || res.PendingDependents[0] != "bridge-host" {
		t.Fatalf("pending dependents = %v, want [bridge-host]", res.PendingDependents)
	}
	if len(res.Signals) != 1 || res.Signals[0] != SignalConfirmationRequired {
		t.Fatalf("signals = %v, want [confirmation_required]", res.Signals)
	}
	applied := res.Apply(qs)
	if !reflect.DeepEqual(applied, before) {
		t.Fatalf("Apply mutated questions despite pending confirmation")
	}
}

func TestGateDisableCascadeAfterConfirmation(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "bridge-host", "vpn.example.net", qs, ResolveOptions{}).Apply(qs)

	res := mustResolve(t, e, "bridge", "No", qs, ResolveOptions{Confirmed: true})
	if res.NeedsConfirmation {
		t.Fatalf("confirmed resolve still asked for confirmation")
	}
	if res.Primary == nil || res.Primary.Answer.Text != "No" {
		t.Fatalf("primary = %+v, want bridge=No", res.Primary)
	}
	if len(res.SideEffects) != 2 {
		t.Fatalf("side effects = %d, want 2", len(res.SideEffects))
	}
	qs = res.Apply(qs)

	host := findQuestion(qs, "bridge-host")
	if host.Meta.DisabledBy != "bridge" || host.Answer == nil || host.Answer.Text != NAText || host.Completed {
		t.Fatalf("bridge-host after cascade = %+v", host)
	}
	window := findQuestion(qs, "bridge-window")
	if window.Meta.DisabledBy != "bridge" || window.Answer != nil || window.Completed {
		t.Fatalf("bridge-window after cascade = %+v", window)
	}
}

func TestGateNoWithoutAnswersNeedsNoConfirmation(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	res := mustResolve(t, e, "bridge", "No", qs, ResolveOptions{})
	if res.NeedsConfirmation {
		t.Fatalf("empty dependents should disable without confirmation")
	}
	if len(res.SideEffects) != 2 {
		t.Fatalf("side effects = %d, want 2", len(res.SideEffects))
	}
}

func TestGateReEnableRestoresOwnDependentsOnly(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "bridge", "No", qs, ResolveOptions{}).Apply(qs)

	// A different controller claims the window question.
	for i, q := range qs {
		if q.ID == "bridge-window" {
			qs[i] = q.Clone()
			qs[i].Meta.DisabledBy = "other-gate"
		}
	}

	res := mustResolve(t, e, "bridge", "Yes", qs, ResolveOptions{})
	if len(res.SideEffects) != 1 || res.SideEffects[0].ID != "bridge-host" {
		t.Fatalf("side effects = %+v, want only bridge-host re-enabled", res.SideEffects)
	}
	qs = res.Apply(qs)
	if findQuestion(qs, "bridge-host").Disabled() {
		t.Fatalf("bridge-host still disabled after re-enable")
	}
	if got := findQuestion(qs, "bridge-window").Meta.DisabledBy; got != "other-gate" {
		t.Fatalf("bridge-window disabled_by = %q, want other-gate untouched", got)
	}
}

func TestGateCheckboxController(t *testing.T) {
	qs := []*Question{
		{ID: "dns-cutover", Order: 1, Section: "DNS", Type: TypeCheckbox},
		{ID: "dns-ttl", Order: 2, Section: "DNS", Type: TypeTextInput, Meta: QuestionMeta{DependsOn: "dns-cutover"}},
	}
	e := testEngine()

	qs = mustResolve(t, e, "dns-ttl", "300", qs, ResolveOptions{}).Apply(qs)

	res := mustResolve(t, e, "dns-cutover", false, qs, ResolveOptions{})
	if !res.NeedsConfirmation {
		t.Fatalf("unchecking with a held dependent answer should ask first, got %+v", res)
	}
	qs = mustResolve(t, e, "dns-cutover", false, qs, ResolveOptions{Confirmed: true}).Apply(qs)
	ttl := findQuestion(qs, "dns-ttl")
	if ttl.Meta.DisabledBy != "dns-cutover" || ttl.Answer == nil || ttl.Answer.Text != NAText {
		t.Fatalf("dns-ttl after uncheck = %+v", ttl)
	}

	qs = mustResolve(t, e, "dns-cutover", true, qs, ResolveOptions{}).Apply(qs)
	ttl = findQuestion(qs, "dns-ttl")
	if ttl.Disabled() || ttl.Answer != nil {
		t.Fatalf("dns-ttl after re-check = %+v, want enabled and empty", ttl)
	}
}

func TestResolveIdempotent(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "bridge", "No", qs, ResolveOptions{}).Apply(qs)

	again := mustResolve(t, e, "bridge", "No", qs, ResolveOptions{})
	if again.NeedsConfirmation {
		t.Fatalf("re-resolving settled state asked for confirmation")
	}
	if len(again.SideEffects) != 0 {
		t.Fatalf("second resolve produced side effects: %+v", again.SideEffects)
	}
	if !reflect.DeepEqual(again.Apply(qs), qs) {
		t.Fatalf("second resolve changed state")
	}
}

func TestResolveRejectsDisabledQuestion(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "bridge", "No", qs, ResolveOptions{}).Apply(qs)

	if _, err := e.Resolve("bridge-host", "sneaky", qs, ResolveOptions{}); err == nil {
		t.Fatalf("editing a disabled question was allowed")
	}
}

func TestCeilingClampsToTierLimit(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "tier", "Business", qs, ResolveOptions{}).Apply(qs)

	res := mustResolve(t, e, "sites", "25", qs, ResolveOptions{})
	if res.Primary.Answer.Text != "10" {
		t.Fatalf("clamped value = %q, want 10", res.Primary.Answer.Text)
	}
	if len(res.Signals) != 1 || res.Signals[0] != SignalOverLimit {
		t.Fatalf("signals = %v, want [over_limit]", res.Signals)
	}

	within := mustResolve(t, e, "sites", "7", res.Apply(qs), ResolveOptions{})
	if within.Primary.Answer.Text != "7" || len(within.Signals) != 0 {
		t.Fatalf("in-range value altered: %+v signals %v", within.Primary.Answer, within.Signals)
	}
}

func TestCeilingTierRequiredClearsAnswer(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	res := mustResolve(t, e, "sites", "5", qs, ResolveOptions{})
	if res.Primary.Answer != nil {
		t.Fatalf("answer = %+v, want cleared", res.Primary.Answer)
	}
	if res.Primary.Completed {
		t.Fatalf("cleared answer marked completed")
	}
	if len(res.Signals) != 1 || res.Signals[0] != SignalTierRequired {
		t.Fatalf("signals = %v, want [tier_required]", res.Signals)
	}
}

func TestCeilingUnknownTierHasNoLimit(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "tier", "Enterprise", qs, ResolveOptions{}).Apply(qs)

	res := mustResolve(t, e, "sites", "500", qs, ResolveOptions{})
	if res.Primary.Answer.Text != "500" || len(res.Signals) != 0 {
		t.Fatalf("unknown tier clamped: %+v signals %v", res.Primary.Answer, res.Signals)
	}
}

func TestCeilingRejectsNonNumericAnswer(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()
	qs = mustResolve(t, e, "tier", "Starter", qs, ResolveOptions{}).Apply(qs)

	if _, err := e.Resolve("sites", "many", qs, ResolveOptions{}); !errors.Is(err, ErrInvalidAnswerShape) {
		t.Fatalf("err = %v, want ErrInvalidAnswerShape", err)
	}
}

func TestCeilingFromRegisteredRule(t *testing.T) {
	qs := []*Question{
		{ID: "tier", Type: TypeDropdown, Options: []string{"Basic"}},
		{ID: "mailboxes", Type: TypeTextInput},
	}
	table := NewRuleSet()
	table.Register(NumericCeiling{QuestionID: "mailboxes", TierQuestionID: "tier", Limits: map[string]int{"Basic": 3}})
	e := NewEngine(table)
	e.now = func() time.Time { return testTime }

	qs = mustResolve(t, e, "tier", "Basic", qs, ResolveOptions{}).Apply(qs)
	res := mustResolve(t, e, "mailboxes", "9", qs, ResolveOptions{})
	if res.Primary.Answer.Text != "3" {
		t.Fatalf("registered rule not applied: %+v", res.Primary.Answer)
	}
}

func TestMultiSelectMutualExclusion(t *testing.T) {
	qs := bridgeQuestions()
	e := testEngine()

	// Starting from ["N/A"], picking a real option drops N/A.
	qs = mustResolve(t, e, "sources", nil, qs, ResolveOptions{}).Apply(qs)
	if got := findQuestion(qs, "sources").Answer.Selections; len(got) != 1 || got[0] != NAText {
		t.Fatalf("cleared multiSelect = %v, want [N/A]", got)
	}

	res := mustResolve(t, e, "sources", []string{NAText, "Databases"}, qs, ResolveOptions{})
	if got := res.Primary.Answer.Selections; len(got) != 1 || got[0] != "Databases" {
		t.Fatalf("selections = %v, want [Databases]", got)
	}
	qs = res.Apply(qs)

	// Removing the last real option re-adds N/A; the set is never empty.
	res = mustResolve(t, e, "sources", []string{}, qs, ResolveOptions{})
	if got := res.Primary.Answer.Selections; len(got) != 1 || got[0] != NAText {
		t.Fatalf("selections = %v, want [N/A]", got)
	}
	if !res.Primary.Completed {
		t.Fatalf("non-empty multiSelect should count as completed")
	}
}

func TestResolveUnknownQuestion(t *testing.T) {
	e := testEngine()
	if _, err := e.Resolve("missing", "x", bridgeQuestions(), ResolveOptions{}); err == nil {
		t.Fatalf("expected not-found error")
	}
}
