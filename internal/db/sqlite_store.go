package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crossgrade/checklist/internal/api"
	"github.com/crossgrade/checklist/internal/services"
)

// SQLiteStore persists checklist documents as JSON columns. The document
// is the unit of consistency, so a single-row write with a version guard
// gives us optimistic concurrency without row-per-question bookkeeping.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

var _ api.Store = (*SQLiteStore)(nil)

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SQLiteStore) InsertMigration(m *services.Migration) (*services.Migration, error) {
	questions, err := encodeJSON(m.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	info, err := encodeJSON(m.ClientInfo)
	if err != nil {
		return nil, fmt.Errorf("encode client info: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO migrations (id, client_id, name, client_info, questions, additional_notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ClientID, m.Name, info, questions, toNullString(m.AdditionalNotes), m.Version, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert migration: %w", err)
	}
	return m.Clone(), nil
}

func (s *SQLiteStore) GetMigration(id string) (*services.Migration, error) {
	row := s.db.QueryRow(`SELECT id, client_id, name, client_info, questions, additional_notes, version, created_at, updated_at
		FROM migrations WHERE id = ?`, id)
	m, err := scanMigration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// UpdateMigration writes the document only when the stored version still
// equals expectedVersion. Zero rows affected means a concurrent writer
// won, or the document is gone.
func (s *SQLiteStore) UpdateMigration(m *services.Migration, expectedVersion int) (*services.Migration, error) {
	questions, err := encodeJSON(m.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	info, err := encodeJSON(m.ClientInfo)
	if err != nil {
		return nil, fmt.Errorf("encode client info: %w", err)
	}
	res, err := s.db.Exec(`UPDATE migrations
		SET client_id = ?, name = ?, client_info = ?, questions = ?, additional_notes = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		m.ClientID, m.Name, info, questions, toNullString(m.AdditionalNotes), expectedVersion+1, m.UpdatedAt,
		m.ID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update migration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		existing, gerr := s.GetMigration(m.ID)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, services.NewNotFoundError("migration not found")
		}
		return nil, services.NewConflictError("document version mismatch")
	}
	updated := m.Clone()
	updated.Version = expectedVersion + 1
	return updated, nil
}

func (s *SQLiteStore) DeleteMigration(id string) error {
	if _, err := s.db.Exec(`DELETE FROM migrations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMigrations(clientID string) ([]*services.Migration, error) {
	query := `SELECT id, client_id, name, client_info, questions, additional_notes, version, created_at, updated_at
		FROM migrations`
	args := []any{}
	if clientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()
	var out []*services.Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMigration(row rowScanner) (*services.Migration, error) {
	var (
		m         services.Migration
		info      sql.NullString
		questions string
		notes     sql.NullString
	)
	if err := row.Scan(&m.ID, &m.ClientID, &m.Name, &info, &questions, &notes, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if info.Valid && info.String != "" {
		if err := json.Unmarshal([]byte(info.String), &m.ClientInfo); err != nil {
			return nil, fmt.Errorf("decode client info: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(questions), &m.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	m.AdditionalNotes = notes.String
	return &m, nil
}

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		e.Time, toNullString(e.Actor), e.Action, toNullString(e.Target), toNullString(e.Note))
	if err != nil {
		log.Printf("sqlite store: add audit: %v", err)
	}
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query(`SELECT at, actor, action, target, note FROM audit_log ORDER BY seq`)
	if err != nil {
		log.Printf("sqlite store: list audit: %v", err)
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var (
			e             services.AuditEntry
			at            time.Time
			actor, target sql.NullString
			note          sql.NullString
		)
		if err := rows.Scan(&at, &actor, &e.Action, &target, &note); err != nil {
			log.Printf("sqlite store: scan audit: %v", err)
			return out
		}
		e.Time = at
		e.Actor = actor.String
		e.Target = target.String
		e.Note = note.String
		out = append(out, e)
	}
	return out
}

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, role, client_scope, created_at FROM users WHERE email = ?`, email)
	var (
		u     services.User
		role  string
		scope sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PassHash, &role, &scope, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	parsed, err := services.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("stored role for %s: %w", u.Email, err)
	}
	u.Role = parsed
	u.ClientScope = scope.String
	return &u, nil
}

func (s *SQLiteStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, pass_hash, role, client_scope, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, string(u.Role), toNullString(u.ClientScope), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
