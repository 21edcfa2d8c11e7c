package api

import "github.com/crossgrade/checklist/internal/services"

// Store is the persistence surface the HTTP layer is wired to. Both the
// in-memory store and the sqlite-backed store satisfy it.
type Store interface {
	services.MigrationStore
	services.AuthStore
	ListAudit() []services.AuditEntry
}

var _ Store = (*memoryStore)(nil)
