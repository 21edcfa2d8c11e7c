package services

import (
	"errors"
	"time"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	// ErrInvalidAnswerShape is returned when a raw value does not match the
	// question type's expected shape. Rejected at the edit boundary; never
	// mutates state.
	ErrInvalidAnswerShape = errors.New("answer shape does not match question type")
	// ErrUnknownQuestionType flags a question type outside the closed set.
	ErrUnknownQuestionType = errors.New("unknown question type")
)

// Role identifies the actor class performing an operation.
type Role string

const (
	RoleConsultant Role = "consultant"
	RoleClient     Role = "client"
	RoleGuest      Role = "guest"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleConsultant, RoleClient, RoleGuest:
		return Role(s), nil
	}
	return "", NewInvalidError("unknown role: " + s)
}

// Actor carries the identity and scope used for field-level write gating.
// It is passed explicitly; services never read ambient session state.
type Actor struct {
	UserID      string
	Role        Role
	ClientScope string
}

// QuestionType is the closed set of checklist item kinds.
type QuestionType string

const (
	TypeCheckbox    QuestionType = "checkbox"
	TypeTextInput   QuestionType = "textInput"
	TypeDateInput   QuestionType = "dateInput"
	TypeDropdown    QuestionType = "dropdown"
	TypeYesNo       QuestionType = "yesNo"
	TypeMultiSelect QuestionType = "multiSelect"
)

// ParseQuestionType rejects anything outside the closed set. Unknown types
// are a data-integrity error, never silently ignored.
func ParseQuestionType(s string) (QuestionType, error) {
	switch QuestionType(s) {
	case TypeCheckbox, TypeTextInput, TypeDateInput, TypeDropdown, TypeYesNo, TypeMultiSelect:
		return QuestionType(s), nil
	}
	return "", ErrUnknownQuestionType
}

// Answer holds the typed value for one question. Which field is populated
// depends on the question type; a nil *Answer means unanswered.
type Answer struct {
	Checked    *bool      `json:"checked,omitempty"`    // checkbox
	Text       string     `json:"text,omitempty"`       // textInput, dropdown, yesNo
	Date       *time.Time `json:"date,omitempty"`       // dateInput
	Selections []string   `json:"selections,omitempty"` // multiSelect
}

func (a *Answer) clone() *Answer {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Checked != nil {
		v := *a.Checked
		cp.Checked = &v
	}
	if a.Date != nil {
		v := *a.Date
		cp.Date = &v
	}
	if a.Selections != nil {
		cp.Selections = append([]string(nil), a.Selections...)
	}
	return &cp
}

// QuestionMeta is the dependency/validation metadata bag.
type QuestionMeta struct {
	// DependsOn names the controlling question: the gate controller for a
	// dependent, or the tier selector for a numeric-ceiling question.
	DependsOn string `json:"depends_on,omitempty"`
	// DisabledBy back-references the controller that disabled this
	// question. Empty means enabled.
	DisabledBy string `json:"disabled_by,omitempty"`
	// SKULimits maps tier name to the numeric ceiling for that tier.
	SKULimits map[string]int `json:"sku_limits,omitempty"`
	// Optional questions are excluded from the progress denominator.
	Optional bool `json:"optional,omitempty"`
}

// Question is one checklist item.
type Question struct {
	ID          string       `json:"id"`
	Section     string       `json:"section"`
	Order       int          `json:"order"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"prompt"`
	Options     []string     `json:"options,omitempty"`
	Answer      *Answer      `json:"answer,omitempty"`
	Completed   bool         `json:"completed"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Meta        QuestionMeta `json:"meta,omitempty"`
}

func (q *Question) Disabled() bool { return q.Meta.DisabledBy != "" }

func (q *Question) Clone() *Question {
	cp := *q
	cp.Answer = q.Answer.clone()
	if q.Options != nil {
		cp.Options = append([]string(nil), q.Options...)
	}
	if q.CompletedAt != nil {
		v := *q.CompletedAt
		cp.CompletedAt = &v
	}
	if q.Meta.SKULimits != nil {
		limits := make(map[string]int, len(q.Meta.SKULimits))
		for k, v := range q.Meta.SKULimits {
			limits[k] = v
		}
		cp.Meta.SKULimits = limits
	}
	return &cp
}

// ClientInfo is a flat record of project metadata. It is independently
// editable and takes no part in the dependency graph.
type ClientInfo struct {
	Company         string `json:"company,omitempty"`
	ContactName     string `json:"contact_name,omitempty"`
	ContactEmail    string `json:"contact_email,omitempty"`
	ContactPhone    string `json:"contact_phone,omitempty"`
	CurrentProvider string `json:"current_provider,omitempty"`
	TargetPlatform  string `json:"target_platform,omitempty"`
	KickoffDate     string `json:"kickoff_date,omitempty"`
}

// Migration is the checklist document for one client project. Questions
// are owned exclusively by their document.
type Migration struct {
	ID              string      `json:"id"`
	ClientID        string      `json:"client_id"`
	Name            string      `json:"name"`
	Questions       []*Question `json:"questions"`
	ClientInfo      ClientInfo  `json:"client_info"`
	AdditionalNotes string      `json:"additional_notes,omitempty"`
	Version         int         `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (m *Migration) Clone() *Migration {
	cp := *m
	cp.Questions = CloneQuestions(m.Questions)
	return &cp
}

// Question returns the question with the given id, or nil.
func (m *Migration) Question(id string) *Question {
	return findQuestion(m.Questions, id)
}

func CloneQuestions(qs []*Question) []*Question {
	if qs == nil {
		return nil
	}
	out := make([]*Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

func findQuestion(qs []*Question, id string) *Question {
	for _, q := range qs {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// MigrationPatch is the field-by-field update body. Nil fields are left
// untouched; Version is the optimistic-concurrency check value.
type MigrationPatch struct {
	ClientInfo      *ClientInfo `json:"client_info,omitempty"`
	Questions       []*Question `json:"questions,omitempty"`
	AdditionalNotes *string     `json:"additional_notes,omitempty"`
	Version         int         `json:"version"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor,omitempty"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	Note   string    `json:"note,omitempty"`
}
