package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/arencloud/argus/internal/db"
	"github.com/arencloud/argus/internal/jobs"
	"github.com/arencloud/argus/internal/logging"
	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/store"
	"github.com/arencloud/argus/internal/syncer"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

type apiServer struct {
	logger  logging.Logger
	store   *store.Store
	svc     *syncer.Service
	runners map[string]*syncer.Runner
	tracker *jobs.Tracker
}

var appStart = time.Now()
var totalRequests uint64
var total4xx uint64
var total5xx uint64
var bytesIn uint64
var bytesOut uint64
var totalDurationNs uint64

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := time.Since(appStart).Seconds()
	tr := atomic.LoadUint64(&totalRequests)
	dn := atomic.LoadUint64(&totalDurationNs)
	avgMs := 0.0
	if tr > 0 {
		avgMs = float64(dn) / float64(tr) / 1e6
	}
	json.NewEncoder(w).Encode(map[string]any{
		"uptimeSec":     uptime,
		"uptimeHuman":   (time.Duration(uptime) * time.Second).String(),
		"startedAt":     appStart.Format(time.RFC3339),
		"goroutines":    runtime.NumGoroutine(),
		"heapAlloc":     m.HeapAlloc,
		"heapSys":       m.HeapSys,
		"lastGCUnix":    m.LastGC,
		"gcNum":         m.NumGC,
		"totalRequests": tr,
		"total4xx":      atomic.LoadUint64(&total4xx),
		"total5xx":      atomic.LoadUint64(&total5xx),
		"bytesIn":       atomic.LoadUint64(&bytesIn),
		"bytesOut":      atomic.LoadUint64(&bytesOut),
		"avgDurationMs": avgMs,
	})
}

// logsRecent returns recent structured logs; sourced from DB to survive restarts.
func logsRecent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			limit = i
		}
	}
	var rows []models.LogEntry
	if err := db.DB.Order("time desc").Limit(limit).Find(&rows).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	// Decode fields JSON into maps to keep UI compatibility
	out := make([]map[string]any, 0, len(rows))
	for _, e := range rows {
		var f map[string]any
		if e.Fields != "" {
			_ = json.Unmarshal([]byte(e.Fields), &f)
		}
		out = append(out, map[string]any{"time": e.Time, "level": e.Level, "msg": e.Msg, "fields": f})
	}
	json.NewEncoder(w).Encode(out)
}

// logsDownload returns recent logs as NDJSON for easy download
func logsDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			limit = i
		}
	}
	enc := json.NewEncoder(w)
	for _, e := range logging.Recent(limit) {
		_ = enc.Encode(e)
	}
}

// logsGetLevel returns current log level
func logsGetLevel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"level": logging.GetLevel()})
}

// logsSetLevel updates global log level
func logsSetLevel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if in.Level == "" {
		http.Error(w, "level required", 400)
		return
	}
	logging.SetLevel(in.Level)
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "level": logging.GetLevel()})
}

// logsStream streams logs via Server-Sent Events
func logsStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", 500)
		return
	}
	// optional level filter
	qLevel := r.URL.Query().Get("level")
	write := func(e any) {
		b, _ := json.Marshal(e)
		w.Write([]byte("data: "))
		w.Write(b)
		w.Write([]byte("\n\n"))
		fl.Flush()
	}
	// send a small backlog first
	for _, e := range logging.Recent(50) {
		if qLevel == "" || e.Level == qLevel {
			write(e)
		}
	}
	ch, cancel := logging.Subscribe()
	defer cancel()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if qLevel == "" || e.Level == qLevel {
				write(e)
			}
		}
	}
}

func registerAPI(r chi.Router, s *apiServer) {
	registerAuth(r)
	// protected routes
	r.Group(func(pr chi.Router) {
		pr.Use(requireAuth)
		// observability (lightweight metrics), visible to any authenticated user
		pr.Get("/obs/metrics", metricsHandler)
		// logging endpoints
		pr.Get("/logs/recent", logsRecent)
		pr.Get("/logs/download", logsDownload)
		pr.Get("/logs/level", logsGetLevel)
		pr.Put("/logs/level", logsSetLevel)
		pr.Get("/logs/stream", logsStream)
		pr.Route("/users", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/", s.listUsers)
			r.Post("/", s.createUser)
			r.Put("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
		})
		s.registerInventory(pr)
		s.registerSync(pr)
	})
}

func (s *apiServer) listUsers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var users []models.User
	if err := db.DB.Find(&users).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	json.NewEncoder(w).Encode(users)
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (s *apiServer) createUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if in.Email == "" || !emailRe.MatchString(in.Email) {
		http.Error(w, "invalid email", 400)
		return
	}
	if len(in.Password) < 8 {
		http.Error(w, "password too short", 400)
		return
	}
	role := in.Role
	if role == "" {
		role = "viewer"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", 500)
		return
	}
	u := models.User{Email: in.Email, Password: string(hash), Role: role}
	if err := db.DB.Create(&u).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(u)
}

func (s *apiServer) updateUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", 400)
		return
	}
	var u models.User
	if err := db.DB.First(&u, id).Error; err != nil {
		http.Error(w, "not found", 404)
		return
	}
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if v, ok := in["email"].(string); ok {
		if v == "" || !emailRe.MatchString(v) {
			http.Error(w, "invalid email", 400)
			return
		}
		u.Email = v
	}
	if v, ok := in["password"].(string); ok {
		if len(v) < 8 {
			http.Error(w, "password too short", 400)
			return
		}
		hash, _ := bcrypt.GenerateFromPassword([]byte(v), bcrypt.DefaultCost)
		u.Password = string(hash)
		u.MustChangePassword = true
	}
	if v, ok := in["role"].(string); ok {
		u.Role = v
	}
	if err := db.DB.Save(&u).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	json.NewEncoder(w).Encode(u)
}

func (s *apiServer) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", 400)
		return
	}
	if err := db.DB.Delete(&models.User{}, id).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(204)
}
