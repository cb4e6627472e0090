package handlers

import (
	"encoding/json"
	"net/http"

	"mediaqueue/internal/infra"
	"mediaqueue/internal/infra/credentials"
	"mediaqueue/internal/scheduler"
)

// App carries the dependencies shared by every HTTP handler.
type App struct {
	Scheduler    *scheduler.Scheduler
	Credentials  *credentials.Store
	CredentialDB *credentials.PGStore // nil when no database is configured
	Log          infra.Logger
}

func NewApp(sched *scheduler.Scheduler, creds *credentials.Store, credDB *credentials.PGStore, log infra.Logger) *App {
	return &App{Scheduler: sched, Credentials: creds, CredentialDB: credDB, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
