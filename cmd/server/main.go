package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crossgrade/checklist/internal/api"
	dbstore "github.com/crossgrade/checklist/internal/db"
	"github.com/crossgrade/checklist/internal/middleware"
	"github.com/crossgrade/checklist/internal/services"
	"github.com/crossgrade/checklist/internal/utils"
)

func main() {
	addr := utils.SafeEnv("CHECKLIST_ADDR", ":8080")
	commit := os.Getenv("CHECKLIST_COMMIT")
	buildTime := os.Getenv("CHECKLIST_BUILD_TIME")

	template, err := services.LoadTemplateFile(os.Getenv("CHECKLIST_TEMPLATE_PATH"))
	if err != nil {
		log.Fatalf("load checklist template: %v", err)
	}

	store, err := openStore(os.Getenv("CHECKLIST_SQLITE_PATH"))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	seedAdmin(store)

	mux := http.NewServeMux()
	api.NewRouter(store, template).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Crossgrade Checklist API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Serve the frontend build when a static dir is configured.
	if staticDir := os.Getenv("CHECKLIST_STATIC_DIR"); staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	handler := middleware.CORS(middleware.SecureHeaders(middleware.NoStore(middleware.WithAuth(mux))))

	log.Printf("checklist server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// seedAdmin creates the initial consultant account from the environment.
// Consultant accounts can otherwise only be minted by an existing
// consultant, so a fresh deployment needs this bootstrap.
func seedAdmin(store api.Store) {
	email := os.Getenv("CHECKLIST_ADMIN_EMAIL")
	password := os.Getenv("CHECKLIST_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}
	existing, err := store.FindUserByEmail(email)
	if err != nil {
		log.Printf("seed admin: lookup %s: %v", email, err)
		return
	}
	if existing != nil {
		return
	}
	auth := services.NewAuthService(store, middleware.SignToken)
	if _, err := auth.Register(services.Actor{Role: services.RoleConsultant}, email, password, "consultant", ""); err != nil {
		log.Printf("seed admin: %v", err)
		return
	}
	log.Printf("seeded consultant account %s", email)
}

// openStore picks sqlite when a path is configured and falls back to the
// in-memory store otherwise.
func openStore(sqlitePath string) (api.Store, error) {
	if sqlitePath == "" {
		log.Printf("CHECKLIST_SQLITE_PATH not set, using in-memory store")
		return api.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(sqlitePath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dbstore.RunMigrations(sqliteDB, os.Getenv("CHECKLIST_MIGRATIONS_DIR")); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return dbstore.NewStore(sqliteDB)
}
