package services

import (
	"errors"
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestSetAnswerCheckbox(t *testing.T) {
	q := &Question{ID: "Q1", Type: TypeCheckbox}
	out, err := SetAnswer(q, true, testTime)
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	if out.Answer == nil || out.Answer.Checked == nil || !*out.Answer.Checked {
		t.Fatalf("answer = %+v, want checked", out.Answer)
	}
	if !out.Completed {
		t.Fatalf("checked checkbox should be completed")
	}
	if out.CompletedAt == nil || !out.CompletedAt.Equal(testTime) {
		t.Fatalf("completed_at = %v, want %v", out.CompletedAt, testTime)
	}
	if q.Answer != nil || q.Completed {
		t.Fatalf("SetAnswer mutated its input")
	}

	unchecked, err := SetAnswer(out, false, testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	if unchecked.Completed || unchecked.CompletedAt != nil {
		t.Fatalf("unchecked checkbox should not be completed, got %+v", unchecked)
	}
}

func TestSetAnswerRejectsWrongShapes(t *testing.T) {
	cases := []struct {
		q   *Question
		raw any
	}{
		{&Question{ID: "A", Type: TypeCheckbox}, "yes"},
		{&Question{ID: "B", Type: TypeTextInput}, true},
		{&Question{ID: "C", Type: TypeDateInput}, 42.0},
		{&Question{ID: "D", Type: TypeDateInput}, "not-a-date"},
		{&Question{ID: "E", Type: TypeDropdown, Options: []string{"a", "b"}}, "c"},
		{&Question{ID: "F", Type: TypeYesNo, Options: []string{"Yes", "No"}}, 1.0},
		{&Question{ID: "G", Type: TypeMultiSelect, Options: []string{"x"}}, "x"},
		{&Question{ID: "H", Type: TypeMultiSelect, Options: []string{"x"}}, []string{"y"}},
	}
	for _, tc := range cases {
		if _, err := SetAnswer(tc.q, tc.raw, testTime); !errors.Is(err, ErrInvalidAnswerShape) {
			t.Fatalf("question %s: err = %v, want ErrInvalidAnswerShape", tc.q.ID, err)
		}
	}
}

func TestSetAnswerDateLayouts(t *testing.T) {
	q := &Question{ID: "D1", Type: TypeDateInput}
	out, err := SetAnswer(q, "2026-04-01", testTime)
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	if out.Answer == nil || out.Answer.Date == nil {
		t.Fatalf("date answer missing: %+v", out.Answer)
	}
	if got := out.Answer.Date.Format("2006-01-02"); got != "2026-04-01" {
		t.Fatalf("date = %s, want 2026-04-01", got)
	}
	if !out.Completed {
		t.Fatalf("valid date should complete the question")
	}
}

func TestSetAnswerClearsOnNil(t *testing.T) {
	q := &Question{ID: "T1", Type: TypeTextInput}
	answered, err := SetAnswer(q, "dc1.example.net", testTime)
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	cleared, err := SetAnswer(answered, nil, testTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	if cleared.Answer != nil || cleared.Completed || cleared.CompletedAt != nil {
		t.Fatalf("cleared question = %+v, want empty/uncompleted", cleared)
	}
}

func TestCompletedTimestampNotRestamped(t *testing.T) {
	q := &Question{ID: "T1", Type: TypeTextInput}
	first, err := SetAnswer(q, "one", testTime)
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	second, err := SetAnswer(first, "two", testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetAnswer returned error: %v", err)
	}
	if !second.CompletedAt.Equal(testTime) {
		t.Fatalf("completed_at restamped to %v, want original %v", second.CompletedAt, testTime)
	}
}

func TestSetDisabledForcesNA(t *testing.T) {
	checked := true
	date := testTime
	cases := []struct {
		q        *Question
		wantNil  bool
		wantText string
		wantSel  []string
	}{
		{&Question{ID: "A", Type: TypeCheckbox, Answer: &Answer{Checked: &checked}, Completed: true}, true, "", nil},
		{&Question{ID: "B", Type: TypeDateInput, Answer: &Answer{Date: &date}, Completed: true}, true, "", nil},
		{&Question{ID: "C", Type: TypeTextInput, Answer: &Answer{Text: "host"}, Completed: true}, false, NAText, nil},
		{&Question{ID: "D", Type: TypeYesNo, Options: []string{"Yes", "No"}, Answer: &Answer{Text: "Yes"}, Completed: true}, false, NAText, nil},
		{&Question{ID: "E", Type: TypeDropdown, Options: []string{"a"}, Answer: &Answer{Text: "a"}, Completed: true}, false, NAText, nil},
		{&Question{ID: "F", Type: TypeMultiSelect, Options: []string{"x", NAText}, Answer: &Answer{Selections: []string{"x"}}, Completed: true}, false, "", []string{NAText}},
	}
	for _, tc := range cases {
		out := SetDisabled(tc.q, "controller-1")
		if out.Meta.DisabledBy != "controller-1" {
			t.Fatalf("question %s: disabled_by = %q", tc.q.ID, out.Meta.DisabledBy)
		}
		if out.Completed || out.CompletedAt != nil {
			t.Fatalf("question %s: disabled question must not be completed", tc.q.ID)
		}
		if tc.wantNil {
			if out.Answer != nil {
				t.Fatalf("question %s: answer = %+v, want nil", tc.q.ID, out.Answer)
			}
			continue
		}
		if tc.wantText != "" && (out.Answer == nil || out.Answer.Text != tc.wantText) {
			t.Fatalf("question %s: answer = %+v, want text %q", tc.q.ID, out.Answer, tc.wantText)
		}
		if tc.wantSel != nil {
			if out.Answer == nil || len(out.Answer.Selections) != 1 || out.Answer.Selections[0] != NAText {
				t.Fatalf("question %s: selections = %+v, want [%s]", tc.q.ID, out.Answer, NAText)
			}
		}
	}
}

func TestReEnableResetsAnswerToEmpty(t *testing.T) {
	q := &Question{ID: "T1", Type: TypeTextInput, Answer: &Answer{Text: "kept?"}, Completed: true}
	disabled := SetDisabled(q, "ctrl")
	enabled := SetDisabled(disabled, "")
	if enabled.Meta.DisabledBy != "" {
		t.Fatalf("disabled_by = %q, want empty", enabled.Meta.DisabledBy)
	}
	// Prior answers are not retained across a disable/enable cycle.
	if enabled.Answer != nil {
		t.Fatalf("re-enabled answer = %+v, want empty", enabled.Answer)
	}
	if enabled.Completed {
		t.Fatalf("re-enabled question must not be completed")
	}
}

func TestValidateQuestion(t *testing.T) {
	if err := ValidateQuestion(&Question{ID: "Q", Type: "slider"}); err == nil {
		t.Fatalf("unknown type accepted")
	}
	if err := ValidateQuestion(&Question{ID: "Q", Type: TypeDropdown}); err == nil {
		t.Fatalf("dropdown without options accepted")
	}
	if err := ValidateQuestion(&Question{ID: "Q", Type: TypeCheckbox}); err != nil {
		t.Fatalf("checkbox rejected: %v", err)
	}
}

func TestParseQuestionTypeClosedSet(t *testing.T) {
	for _, s := range []string{"checkbox", "textInput", "dateInput", "dropdown", "yesNo", "multiSelect"} {
		if _, err := ParseQuestionType(s); err != nil {
			t.Fatalf("ParseQuestionType(%q) = %v", s, err)
		}
	}
	if _, err := ParseQuestionType("likert"); !errors.Is(err, ErrUnknownQuestionType) {
		t.Fatalf("expected ErrUnknownQuestionType, got %v", err)
	}
}
