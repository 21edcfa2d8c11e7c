package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MigrationStore abstracts persistence for checklist documents.
type MigrationStore interface {
	InsertMigration(m *Migration) (*Migration, error)
	GetMigration(id string) (*Migration, error)
	// UpdateMigration persists m when the stored version equals
	// expectedVersion, bumping the version; otherwise it returns a
	// conflict ServiceError.
	UpdateMigration(m *Migration, expectedVersion int) (*Migration, error)
	DeleteMigration(id string) error
	ListMigrations(clientID string) ([]*Migration, error)
	AddAudit(e AuditEntry)
}

// fieldAccess is the per-role write-permission table. Gating is a table
// lookup, not branching code; the engine itself takes no dependency on
// ambient session state.
type fieldAccess struct {
	clientInfo bool // clientInfo record
	notes      bool // additionalNotes
	answers    bool // question answers
	structure  bool // add/edit/delete/reorder questions
}

var roleAccess = map[Role]fieldAccess{
	RoleConsultant: {clientInfo: true, notes: true, answers: true, structure: true},
	RoleClient:     {notes: true, answers: true},
	RoleGuest:      {},
}

// MigrationService owns document lifecycle and server-side edits. Answer
// commits run through the same dependency engine as client drafts.
type MigrationService struct {
	store MigrationStore
	table *RuleSet
	now   func() time.Time
	idGen func() string
}

func NewMigrationService(store MigrationStore) *MigrationService {
	return &MigrationService{
		store: store,
		table: NewRuleSet(),
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(8) },
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// AnswerResult carries the outcome of a server-side answer commit.
type AnswerResult struct {
	Resolution *Resolution `json:"resolution"`
	Migration  *Migration  `json:"migration,omitempty"`
	Progress   Progress    `json:"progress"`
}

// CreateMigration snapshots the template questions into a new document.
func (s *MigrationService) CreateMigration(actor Actor, name, clientID string, template []*Question, info ClientInfo) (*Migration, error) {
	if !roleAccess[actor.Role].structure {
		return nil, NewForbiddenError("forbidden")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, NewInvalidError("client_id required")
	}
	qs := CloneQuestions(template)
	for _, q := range qs {
		if err := ValidateQuestion(q); err != nil {
			return nil, err
		}
	}
	renumber(qs)
	now := s.now()
	m := &Migration{
		ID:         s.idGen(),
		ClientID:   clientID,
		Name:       name,
		Questions:  qs,
		ClientInfo: info,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := s.store.InsertMigration(m)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: actor.UserID, Action: "create_migration", Target: m.ID, Note: clientID})
	if created == nil {
		return m, nil
	}
	return created, nil
}

// GetMigration reads a document within the actor's scope.
func (s *MigrationService) GetMigration(actor Actor, id string) (*Migration, error) {
	m, err := s.store.GetMigration(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, NewNotFoundError("migration not found")
	}
	if err := checkScope(actor, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMigrations returns the documents visible to the actor: all of them
// for consultants, only the scoped client's for clients and guests.
func (s *MigrationService) ListMigrations(actor Actor) ([]*Migration, error) {
	if actor.Role == RoleConsultant {
		return s.store.ListMigrations("")
	}
	if actor.ClientScope == "" {
		return nil, NewForbiddenError("forbidden")
	}
	return s.store.ListMigrations(actor.ClientScope)
}

// UpdateMigration applies a field-by-field patch under the role table and
// the optimistic version check. Local edits are never force-pushed over a
// conflicting remote: a version mismatch surfaces as a conflict error.
func (s *MigrationService) UpdateMigration(actor Actor, id string, patch MigrationPatch) (*Migration, error) {
	m, err := s.GetMigration(actor, id)
	if err != nil {
		return nil, err
	}
	access := roleAccess[actor.Role]
	updated := m.Clone()
	if patch.ClientInfo != nil {
		if !access.clientInfo {
			return nil, NewForbiddenError("role may not edit client info")
		}
		updated.ClientInfo = *patch.ClientInfo
	}
	if patch.AdditionalNotes != nil {
		if !access.notes {
			return nil, NewForbiddenError("role may not edit notes")
		}
		updated.AdditionalNotes = *patch.AdditionalNotes
	}
	if patch.Questions != nil {
		if !access.answers {
			return nil, NewForbiddenError("role may not edit questions")
		}
		if !access.structure && !sameStructure(m.Questions, patch.Questions) {
			return nil, NewForbiddenError("role may not change checklist structure")
		}
		qs := CloneQuestions(patch.Questions)
		for _, q := range qs {
			if err := ValidateQuestion(q); err != nil {
				return nil, err
			}
		}
		renumber(qs)
		s.normalizeCompletion(qs)
		updated.Questions = qs
	}
	updated.UpdatedAt = s.now()
	return s.store.UpdateMigration(updated, patch.Version)
}

// DeleteMigration removes the whole document; partial deletes do not
// exist.
func (s *MigrationService) DeleteMigration(actor Actor, id string) error {
	if !roleAccess[actor.Role].structure {
		return NewForbiddenError("forbidden")
	}
	m, err := s.store.GetMigration(id)
	if err != nil {
		return err
	}
	if m == nil {
		return NewNotFoundError("migration not found")
	}
	if err := s.store.DeleteMigration(id); err != nil {
		return err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor.UserID, Action: "delete_migration", Target: id})
	return nil
}

// ApplyAnswer commits one answer server-side through the dependency
// engine, applying the resolved cascade and bumping the version.
func (s *MigrationService) ApplyAnswer(actor Actor, id, questionID string, raw any, confirmed bool) (*AnswerResult, error) {
	m, err := s.GetMigration(actor, id)
	if err != nil {
		return nil, err
	}
	if !roleAccess[actor.Role].answers {
		return nil, NewForbiddenError("role may not answer questions")
	}
	engine := NewEngine(s.table)
	res, err := engine.Resolve(questionID, raw, m.Questions, ResolveOptions{Confirmed: confirmed})
	if err != nil {
		return nil, err
	}
	if res.NeedsConfirmation {
		return &AnswerResult{Resolution: res, Progress: ComputeProgress(m.Questions)}, nil
	}
	updated := m.Clone()
	updated.Questions = res.Apply(updated.Questions)
	updated.UpdatedAt = s.now()
	saved, err := s.store.UpdateMigration(updated, m.Version)
	if err != nil {
		return nil, err
	}
	return &AnswerResult{Resolution: res, Migration: saved, Progress: ComputeProgress(saved.Questions)}, nil
}

// AddQuestion appends a question to the document, renumbering 1..N.
func (s *MigrationService) AddQuestion(actor Actor, id string, q *Question) (*Migration, error) {
	return s.editStructure(actor, id, func(m *Migration) error {
		if q.ID == "" {
			q.ID = s.idGen()
		}
		if err := ValidateQuestion(q); err != nil {
			return err
		}
		if m.Question(q.ID) != nil {
			return NewConflictError("question id exists: " + q.ID)
		}
		m.Questions = append(m.Questions, q.Clone())
		return nil
	})
}

// UpdateQuestion replaces a question's definition in place.
func (s *MigrationService) UpdateQuestion(actor Actor, id string, q *Question) (*Migration, error) {
	return s.editStructure(actor, id, func(m *Migration) error {
		if err := ValidateQuestion(q); err != nil {
			return err
		}
		for i, existing := range m.Questions {
			if existing.ID == q.ID {
				m.Questions[i] = q.Clone()
				return nil
			}
		}
		return NewNotFoundError("question not found: " + q.ID)
	})
}

// DeleteQuestion removes a question; remaining orders stay contiguous.
func (s *MigrationService) DeleteQuestion(actor Actor, id, questionID string) (*Migration, error) {
	return s.editStructure(actor, id, func(m *Migration) error {
		for i, q := range m.Questions {
			if q.ID == questionID {
				m.Questions = append(m.Questions[:i], m.Questions[i+1:]...)
				return nil
			}
		}
		return NewNotFoundError("question not found: " + questionID)
	})
}

// ReorderQuestions rewrites the collection in the given id order. The
// order must name every question exactly once.
func (s *MigrationService) ReorderQuestions(actor Actor, id string, order []string) (*Migration, error) {
	return s.editStructure(actor, id, func(m *Migration) error {
		if len(order) != len(m.Questions) {
			return NewInvalidError("order must list every question")
		}
		seen := make(map[string]bool, len(order))
		reordered := make([]*Question, 0, len(order))
		for _, qid := range order {
			if seen[qid] {
				return NewInvalidError("duplicate question id in order: " + qid)
			}
			seen[qid] = true
			q := m.Question(qid)
			if q == nil {
				return NewNotFoundError("question not found: " + qid)
			}
			reordered = append(reordered, q)
		}
		m.Questions = reordered
		return nil
	})
}

func (s *MigrationService) editStructure(actor Actor, id string, edit func(m *Migration) error) (*Migration, error) {
	if !roleAccess[actor.Role].structure {
		return nil, NewForbiddenError("forbidden")
	}
	m, err := s.GetMigration(actor, id)
	if err != nil {
		return nil, err
	}
	updated := m.Clone()
	if err := edit(updated); err != nil {
		return nil, err
	}
	renumber(updated.Questions)
	updated.UpdatedAt = s.now()
	return s.store.UpdateMigration(updated, m.Version)
}

// normalizeCompletion recomputes Completed from the answer itself, so a
// patch cannot claim completion it does not have. Disabled questions are
// never completed.
func (s *MigrationService) normalizeCompletion(qs []*Question) {
	now := s.now()
	for _, q := range qs {
		completed := !q.Disabled() && answerComplete(q.Type, q.Answer)
		if !completed {
			q.Completed = false
			q.CompletedAt = nil
			continue
		}
		q.Completed = true
		if q.CompletedAt == nil {
			stamp := now
			q.CompletedAt = &stamp
		}
	}
}

// renumber rewrites Order to the contiguous sequence 1..N in slice order.
// Every insert/delete/reorder funnels through here to hold the
// postcondition.
func renumber(qs []*Question) {
	for i, q := range qs {
		q.Order = i + 1
	}
}

// sameStructure compares everything except answers and completion state,
// so answer-only patches from clients pass while structural drift does
// not.
func sameStructure(a, b []*Question) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Section != y.Section || x.Type != y.Type || x.Prompt != y.Prompt {
			return false
		}
		if len(x.Options) != len(y.Options) {
			return false
		}
		for j := range x.Options {
			if x.Options[j] != y.Options[j] {
				return false
			}
		}
		if x.Meta.DependsOn != y.Meta.DependsOn || x.Meta.Optional != y.Meta.Optional {
			return false
		}
		if len(x.Meta.SKULimits) != len(y.Meta.SKULimits) {
			return false
		}
		for tier, limit := range x.Meta.SKULimits {
			if got, ok := y.Meta.SKULimits[tier]; !ok || got != limit {
				return false
			}
		}
	}
	return true
}

func checkScope(actor Actor, m *Migration) error {
	switch actor.Role {
	case RoleConsultant:
		return nil
	case RoleClient, RoleGuest:
		if actor.ClientScope != "" && actor.ClientScope == m.ClientID {
			return nil
		}
		return NewForbiddenError("forbidden")
	}
	return NewForbiddenError("forbidden")
}
