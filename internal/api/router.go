package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/crossgrade/checklist/internal/middleware"
	"github.com/crossgrade/checklist/internal/services"
)

type Router struct {
	store      Store
	migrations *services.MigrationService
	auth       *services.AuthService
	template   []*services.Question
}

// NewRouter wires the service layer onto the given store. New documents
// are seeded from template.
func NewRouter(store Store, template []*services.Question) *Router {
	return &Router{
		store:      store,
		migrations: services.NewMigrationService(store),
		auth:       services.NewAuthService(store, middleware.SignToken),
		template:   template,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister) // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)       // POST
	mux.HandleFunc("/api/migrations", rt.handleMigrations)  // GET list, POST create
	mux.HandleFunc("/api/migrations/", rt.handleMigrationScoped)
	mux.HandleFunc("/api/audit", rt.handleAudit) // GET
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service error codes onto HTTP statuses. Shape
// and type errors from the answer engine come back as 400s.
func writeServiceError(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": se.Code, "message": se.Message})
		return
	}
	if errors.Is(err, services.ErrInvalidAnswerShape) || errors.Is(err, services.ErrUnknownQuestionType) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": services.ErrorInvalid, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal", "message": err.Error()})
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		Role        string `json:"role"`
		ClientScope string `json:"client_scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actor := middleware.ActorFromContext(r.Context())
	res, err := rt.auth.Register(actor, req.Email, req.Password, req.Role, req.ClientScope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": res.Token, "user_id": res.UserID, "role": res.Role, "client_scope": res.ClientScope,
	})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": res.Token, "user_id": res.UserID, "role": res.Role, "client_scope": res.ClientScope,
	})
}

// GET /api/migrations — list within the actor's scope
// POST /api/migrations — create a document seeded from the template
func (rt *Router) handleMigrations(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		list, err := rt.migrations.ListMigrations(actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"migrations": list})
	case http.MethodPost:
		var req struct {
			Name       string               `json:"name"`
			ClientID   string               `json:"client_id"`
			ClientInfo services.ClientInfo  `json:"client_info"`
			Questions  []*services.Question `json:"questions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		template := req.Questions
		if template == nil {
			template = rt.template
		}
		m, err := rt.migrations.CreateMigration(actor, req.Name, req.ClientID, template, req.ClientInfo)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMigrationScoped dispatches /api/migrations/{id}[/...] by path
// segments.
func (rt *Router) handleMigrationScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/migrations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	actor := middleware.ActorFromContext(r.Context())

	if len(parts) == 1 {
		rt.handleMigrationDoc(w, r, actor, id)
		return
	}
	switch parts[1] {
	case "answers":
		rt.handleAnswer(w, r, actor, id)
	case "questions":
		if len(parts) == 2 {
			rt.handleQuestionAdd(w, r, actor, id)
			return
		}
		if parts[2] == "reorder" {
			rt.handleReorder(w, r, actor, id)
			return
		}
		rt.handleQuestionByID(w, r, actor, id, parts[2])
	case "progress":
		rt.handleProgress(w, r, actor, id)
	case "export":
		rt.handleExport(w, r, actor, id)
	default:
		http.NotFound(w, r)
	}
}

// GET/PUT/DELETE /api/migrations/{id}
func (rt *Router) handleMigrationDoc(w http.ResponseWriter, r *http.Request, actor services.Actor, id string) {
	switch r.Method {
	case http.MethodGet:
		m, err := rt.migrations.GetMigration(actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	case http.MethodPut:
		var patch services.MigrationPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m, err := rt.migrations.UpdateMigration(actor, id, patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	case http.MethodDelete:
		if err := rt.migrations.DeleteMigration(actor, id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/migrations/{id}/answers
// { question_id, value, confirmed }
//
// A resolution with needs_confirmation=true and no migration means
// nothing was written; the client should re-submit with confirmed=true.
func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request, actor services.Actor, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		QuestionID string `json:"question_id"`
		Value      any    `json:"value"`
		Confirmed  bool   `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.migrations.ApplyAnswer(actor, id, req.QuestionID, req.Value, req.Confirmed)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/migrations/{id}/questions
func (rt *Router) handleQuestionAdd(w http.ResponseWriter, r *http.Request, actor services.Actor, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var q services.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := rt.migrations.AddQuestion(actor, id, &q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// PUT/DELETE /api/migrations/{id}/questions/{qid}
func (rt *Router) handleQuestionByID(w http.ResponseWriter, r *http.Request, actor services.Actor, id, qid string) {
	switch r.Method {
	case http.MethodPut:
		var q services.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q.ID = qid
		m, err := rt.migrations.UpdateQuestion(actor, id, &q)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	case http.MethodDelete:
		m, err := rt.migrations.DeleteQuestion(actor, id, qid)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// PUT /api/migrations/{id}/questions/reorder — { order: [question ids] }
func (rt *Router) handleReorder(w http.ResponseWriter, r *http.Request, actor services.Actor, id string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := rt.migrations.ReorderQuestions(actor, id, req.Order)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GET /api/migrations/{id}/progress
func (rt *Router) handleProgress(w http.ResponseWriter, r *http.Request, actor services.Actor, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m, err := rt.migrations.GetMigration(actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ComputeProgress(m.Questions))
}

// GET /api/migrations/{id}/export — checklist as CSV
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request, actor services.Actor, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m, err := rt.migrations.GetMigration(actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	b, err := services.ExportChecklistCSV(m)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=checklist.csv")
	_, _ = w.Write(b)
}

// GET /api/audit — consultants only
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := middleware.ActorFromContext(r.Context())
	if actor.Role != services.RoleConsultant {
		writeServiceError(w, services.NewForbiddenError("forbidden"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": rt.store.ListAudit()})
}
