package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/arencloud/argus/internal/store"

	"github.com/go-chi/chi/v5"
)

// registerInventory exposes the cached inventory read-only. The sync engine
// is the sole writer; these handlers never touch a provider API.
func (s *apiServer) registerInventory(r chi.Router) {
	r.Get("/providers", s.listProviders)
	r.Route("/providers/{provider}", func(r chi.Router) {
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/{accountId}", s.getAccount)
		r.Get("/resources", s.listResources)
		r.Get("/resources/export.csv", s.exportResourcesCSV)
	})
}

func (s *apiServer) listProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out := make([]map[string]any, 0)
	for _, name := range s.svc.Providers() {
		accts, err := s.store.ListAccounts(r.Context(), name, false)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		active := 0
		for _, a := range accts {
			if a.IsActive {
				active++
			}
		}
		item := map[string]any{"name": name, "accounts": len(accts), "activeAccounts": active}
		if rn, ok := s.runners[name]; ok {
			item["syncing"] = rn.Running()
		}
		out = append(out, item)
	}
	json.NewEncoder(w).Encode(out)
}

func (s *apiServer) listAccounts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	providerName := chi.URLParam(r, "provider")
	activeOnly := r.URL.Query().Get("active") == "true"
	accts, err := s.store.ListAccounts(r.Context(), providerName, activeOnly)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	json.NewEncoder(w).Encode(accts)
}

func (s *apiServer) getAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	acct, err := s.store.GetAccount(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "accountId"))
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	json.NewEncoder(w).Encode(acct)
}

func (s *apiServer) resourceFilter(r *http.Request) store.ResourceFilter {
	q := r.URL.Query()
	return store.ResourceFilter{
		AccountID:  q.Get("accountId"),
		Kind:       q.Get("kind"),
		ActiveOnly: q.Get("active") != "false", // tombstones hidden unless asked for
	}
}

func (s *apiServer) listResources(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	recs, err := s.store.ListResources(r.Context(), chi.URLParam(r, "provider"), s.resourceFilter(r))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"accountId":   rec.AccountID,
			"resourceRef": rec.ResourceRef,
			"kind":        rec.Kind,
			"label":       rec.Label,
			"isActive":    rec.IsActive,
			"lastSeenAt":  rec.LastSeenAt,
			"lastSyncAt":  rec.LastSyncAt,
			"lastError":   rec.LastError,
			"payload":     store.Payload(rec),
		})
	}
	json.NewEncoder(w).Encode(out)
}

func (s *apiServer) exportResourcesCSV(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	recs, err := s.store.ListResources(r.Context(), providerName, s.resourceFilter(r))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+providerName+`-resources.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"provider", "accountId", "resourceRef", "kind", "label", "active", "lastSeenAt", "lastError", "payload"})
	for _, rec := range recs {
		lastSeen := ""
		if rec.LastSeenAt != nil {
			lastSeen = rec.LastSeenAt.UTC().Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			rec.Provider,
			rec.AccountID,
			rec.ResourceRef,
			rec.Kind,
			rec.Label,
			strconv.FormatBool(rec.IsActive),
			lastSeen,
			rec.LastError,
			rec.Payload,
		})
	}
	cw.Flush()
}
