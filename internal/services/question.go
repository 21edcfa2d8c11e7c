package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NAText is the literal written into text-shaped answers when a question
// is disabled by a controller.
const NAText = "N/A"

// naAnswer is the single source of truth for the per-type "not applicable"
// representation a disabled question is forced to.
func naAnswer(t QuestionType) *Answer {
	switch t {
	case TypeCheckbox, TypeDateInput:
		return nil
	case TypeTextInput, TypeDropdown, TypeYesNo:
		return &Answer{Text: NAText}
	case TypeMultiSelect:
		return &Answer{Selections: []string{NAText}}
	}
	return nil
}

// dateLayouts accepted for dateInput answers arriving as strings.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// SetAnswer coerces raw (a decoded JSON value) into the question type's
// shape, recomputes Completed, and stamps or clears CompletedAt. It is a
// pure transform: the input question is not modified. A nil raw clears
// the answer.
func SetAnswer(q *Question, raw any, at time.Time) (*Question, error) {
	ans, err := coerceAnswer(q, raw)
	if err != nil {
		return nil, err
	}
	out := q.Clone()
	out.Answer = ans
	completed := answerComplete(q.Type, ans)
	if completed && !out.Completed {
		stamp := at
		out.CompletedAt = &stamp
	}
	if !completed {
		out.CompletedAt = nil
	}
	out.Completed = completed
	return out, nil
}

// SetDisabled disables the question on behalf of the given controller,
// forcing the type's N/A answer and Completed=false. An empty disabledBy
// re-enables it, resetting the answer to empty; prior answers are not
// retained across a disable/enable cycle.
func SetDisabled(q *Question, disabledBy string) *Question {
	out := q.Clone()
	out.Meta.DisabledBy = disabledBy
	if disabledBy != "" {
		out.Answer = naAnswer(q.Type)
	} else {
		out.Answer = nil
	}
	out.Completed = false
	out.CompletedAt = nil
	return out
}

func coerceAnswer(q *Question, raw any) (*Answer, error) {
	if raw == nil {
		return nil, nil
	}
	switch q.Type {
	case TypeCheckbox:
		b, ok := raw.(bool)
		if !ok {
			return nil, ErrInvalidAnswerShape
		}
		return &Answer{Checked: &b}, nil
	case TypeTextInput:
		s, err := coerceText(raw)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		return &Answer{Text: s}, nil
	case TypeDateInput:
		switch v := raw.(type) {
		case time.Time:
			return &Answer{Date: &v}, nil
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, nil
			}
			for _, layout := range dateLayouts {
				if d, err := time.Parse(layout, v); err == nil {
					return &Answer{Date: &d}, nil
				}
			}
			return nil, ErrInvalidAnswerShape
		}
		return nil, ErrInvalidAnswerShape
	case TypeDropdown, TypeYesNo:
		s, ok := raw.(string)
		if !ok {
			return nil, ErrInvalidAnswerShape
		}
		if s == "" {
			return nil, nil
		}
		if !containsString(q.Options, s) {
			return nil, ErrInvalidAnswerShape
		}
		return &Answer{Text: s}, nil
	case TypeMultiSelect:
		sel, err := coerceStringSlice(raw)
		if err != nil {
			return nil, err
		}
		if len(sel) == 0 {
			return nil, nil
		}
		for _, s := range sel {
			if !containsString(q.Options, s) {
				return nil, ErrInvalidAnswerShape
			}
		}
		return &Answer{Selections: sel}, nil
	}
	return nil, ErrUnknownQuestionType
}

// answerComplete is the per-type completion rule: a question is completed
// only when its answer is materially filled in, not merely present.
func answerComplete(t QuestionType, a *Answer) bool {
	if a == nil {
		return false
	}
	switch t {
	case TypeCheckbox:
		return a.Checked != nil && *a.Checked
	case TypeTextInput, TypeDropdown, TypeYesNo:
		return a.Text != ""
	case TypeDateInput:
		return a.Date != nil
	case TypeMultiSelect:
		return len(a.Selections) > 0
	}
	return false
}

// holdsRealAnswer reports whether the question carries a value the user
// actually entered, as opposed to being empty or at its N/A placeholder.
func holdsRealAnswer(q *Question) bool {
	if q.Answer == nil {
		return false
	}
	switch q.Type {
	case TypeCheckbox:
		return q.Answer.Checked != nil && *q.Answer.Checked
	case TypeTextInput, TypeDropdown, TypeYesNo:
		return q.Answer.Text != "" && q.Answer.Text != NAText
	case TypeDateInput:
		return q.Answer.Date != nil
	case TypeMultiSelect:
		for _, s := range q.Answer.Selections {
			if s != NAText {
				return true
			}
		}
		return false
	}
	return false
}

// coerceText accepts strings and JSON numbers; numeric site counts arrive
// as numbers from some clients and are kept as their decimal text.
func coerceText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	}
	return "", ErrInvalidAnswerShape
}

func coerceStringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, ErrInvalidAnswerShape
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, ErrInvalidAnswerShape
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateQuestion checks the structural invariants for one question:
// a known type and non-empty options where the type requires them.
func ValidateQuestion(q *Question) error {
	if q == nil {
		return NewInvalidError("question required")
	}
	if strings.TrimSpace(q.ID) == "" {
		return NewInvalidError("question id required")
	}
	if _, err := ParseQuestionType(string(q.Type)); err != nil {
		return NewInvalidError(fmt.Sprintf("question %s: unknown type %q", q.ID, q.Type))
	}
	switch q.Type {
	case TypeDropdown, TypeYesNo, TypeMultiSelect:
		if len(q.Options) == 0 {
			return NewInvalidError(fmt.Sprintf("question %s: options required for type %s", q.ID, q.Type))
		}
	}
	return nil
}
