package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

// ExportChecklistCSV renders one document as a CSV of its questions in
// checklist order.
func ExportChecklistCSV(m *Migration) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"order", "section", "question", "type", "answer", "completed", "completed_at"})
	for _, q := range m.Questions {
		completedAt := ""
		if q.CompletedAt != nil {
			completedAt = q.CompletedAt.Format(time.RFC3339)
		}
		rec := []string{
			strconv.Itoa(q.Order),
			q.Section,
			q.Prompt,
			string(q.Type),
			AnswerText(q),
			strconv.FormatBool(q.Completed),
			completedAt,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// AnswerText flattens an answer to its display text.
func AnswerText(q *Question) string {
	if q.Answer == nil {
		return ""
	}
	switch q.Type {
	case TypeCheckbox:
		if q.Answer.Checked != nil && *q.Answer.Checked {
			return "checked"
		}
		return ""
	case TypeTextInput, TypeDropdown, TypeYesNo:
		return q.Answer.Text
	case TypeDateInput:
		if q.Answer.Date != nil {
			return q.Answer.Date.Format("2006-01-02")
		}
		return ""
	case TypeMultiSelect:
		return strings.Join(q.Answer.Selections, "; ")
	}
	return ""
}
