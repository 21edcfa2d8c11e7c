package api

import (
	"sort"
	"sync"

	"github.com/crossgrade/checklist/internal/services"
)

// memoryStore keeps everything behind one RWMutex. Documents are cloned
// on the way in and out so callers never share mutable state with the
// store.
type memoryStore struct {
	mu           sync.RWMutex
	migrations   map[string]*services.Migration
	usersByEmail map[string]*services.User
	audit        []services.AuditEntry
}

func NewMemoryStore() Store { return newMemoryStore() }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		migrations:   map[string]*services.Migration{},
		usersByEmail: map[string]*services.User{},
	}
}

func (s *memoryStore) InsertMigration(m *services.Migration) (*services.Migration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.migrations[m.ID]; exists {
		return nil, services.NewConflictError("migration id exists: " + m.ID)
	}
	s.migrations[m.ID] = m.Clone()
	return m.Clone(), nil
}

func (s *memoryStore) GetMigration(id string) (*services.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.migrations[id]; ok {
		return m.Clone(), nil
	}
	return nil, nil
}

func (s *memoryStore) UpdateMigration(m *services.Migration, expectedVersion int) (*services.Migration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.migrations[m.ID]
	if !ok {
		return nil, services.NewNotFoundError("migration not found")
	}
	if stored.Version != expectedVersion {
		return nil, services.NewConflictError("document version mismatch")
	}
	updated := m.Clone()
	updated.Version = expectedVersion + 1
	s.migrations[m.ID] = updated
	return updated.Clone(), nil
}

func (s *memoryStore) DeleteMigration(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.migrations, id)
	return nil
}

func (s *memoryStore) ListMigrations(clientID string) ([]*services.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Migration, 0, len(s.migrations))
	for _, m := range s.migrations {
		if clientID == "" || m.ClientID == clientID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *memoryStore) ListAudit() []services.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]services.AuditEntry(nil), s.audit...)
}

func (s *memoryStore) FindUserByEmail(email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usersByEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) AddUser(u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[u.Email]; exists {
		return services.NewConflictError("email exists")
	}
	cp := *u
	s.usersByEmail[u.Email] = &cp
	return nil
}
