package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arencloud/argus/internal/jobs"
	"github.com/arencloud/argus/internal/syncer"

	"github.com/go-chi/chi/v5"
)

// registerSync exposes the manual sync triggers and job inspection. Triggering
// mutates provider load, so it needs editor or admin; reading jobs only needs
// a session.
func (s *apiServer) registerSync(r chi.Router) {
	r.With(requireEditorOrAdmin).Post("/providers/{provider}/sync", s.triggerSync)
	r.Get("/jobs", s.listJobs)
	r.Get("/jobs/{id}", s.getJob)
}

// triggerSync starts a tracked background pass for one provider. Returns 202
// with the job id; 409 when a pass for the provider is already running.
func (s *apiServer) triggerSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	name := chi.URLParam(r, "provider")
	runner, ok := s.runners[name]
	if !ok {
		http.Error(w, "unknown provider", 404)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	owner := ""
	if u := currentUser(r); u != nil {
		owner = u.Email
	}
	j, err := runner.RunJob(r.Context(), s.tracker, owner, force)
	if errors.Is(err, syncer.ErrBusy) || errors.Is(err, jobs.ErrConflict) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	s.logger.Info("sync job submitted", "provider", name, "job", j.ID, "owner", owner, "force", force)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobId": j.ID, "status": j.Status})
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	requester := ""
	if u := currentUser(r); u != nil {
		requester = u.Email
	}
	list := s.tracker.List(requester)
	if list == nil {
		list = []*jobs.Job{}
	}
	json.NewEncoder(w).Encode(list)
}

// getJob returns 404 both for unknown ids and for jobs the requester may not
// see, so job ids cannot be probed across users.
func (s *apiServer) getJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	requester := ""
	if u := currentUser(r); u != nil {
		requester = u.Email
	}
	j, ok := s.tracker.Poll(chi.URLParam(r, "id"), requester)
	if !ok {
		http.Error(w, "not found", 404)
		return
	}
	json.NewEncoder(w).Encode(j)
}
