package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediaqueue/internal/providers"
)

type credentialPutRequest struct {
	APIKey string `json:"api_key"`
}

// CredentialsPut stores or replaces a provider API key. Supplying a fresh key
// lifts any quota halt recorded for that provider. An empty key removes the
// credential, which leaves the provider's pending jobs queued.
func (a *App) CredentialsPut(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if !providers.Known(provider) {
		a.error(w, http.StatusNotFound, "not_found", "unknown provider")
		return
	}

	var req credentialPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	a.Credentials.Set(provider, req.APIKey)
	if a.CredentialDB != nil && strings.TrimSpace(req.APIKey) != "" {
		if err := a.CredentialDB.Upsert(r.Context(), provider, req.APIKey); err != nil {
			a.Log.Error().Err(err).Str("provider", provider).Msg("credential upsert failed")
		}
	}

	a.json(w, http.StatusOK, map[string]any{
		"provider":   provider,
		"configured": req.APIKey != "",
	})
}

// CredentialsList reports which providers currently have a key configured.
// Key material is never returned.
func (a *App) CredentialsList(w http.ResponseWriter, r *http.Request) {
	configured := a.Credentials.Providers()
	items := make([]map[string]any, 0, len(providers.Names()))
	for _, name := range providers.Names() {
		has := false
		for _, p := range configured {
			if p == name {
				has = true
				break
			}
		}
		items = append(items, map[string]any{"provider": name, "configured": has})
	}
	a.json(w, http.StatusOK, map[string]any{"providers": items})
}
