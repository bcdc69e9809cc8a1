package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/arencloud/argus/internal/config"
	"github.com/arencloud/argus/internal/jobs"
	"github.com/arencloud/argus/internal/logging"
	"github.com/arencloud/argus/internal/store"
	"github.com/arencloud/argus/internal/syncer"
	"github.com/arencloud/argus/internal/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Note: no go:embed for assets; we serve from disk only.

type statusRecorder struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func (sr *statusRecorder) WriteHeader(statusCode int) {
	sr.code = statusCode
	sr.ResponseWriter.WriteHeader(statusCode)
}
func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

func Router(cfg *config.Config, logger logging.Logger, st *store.Store, svc *syncer.Service, runners map[string]*syncer.Runner, tracker *jobs.Tracker) http.Handler {
	s := &apiServer{logger: logger, store: st, svc: svc, runners: runners, tracker: tracker}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, AllowedHeaders: []string{"*"}}))
	// request counters + structured request log
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddUint64(&totalRequests, 1)
			if r.ContentLength > 0 {
				atomic.AddUint64(&bytesIn, uint64(r.ContentLength))
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: 200}
			next.ServeHTTP(rec, r)
			dur := time.Since(start)
			atomic.AddUint64(&bytesOut, uint64(rec.bytes))
			atomic.AddUint64(&totalDurationNs, uint64(dur))
			if rec.code >= 500 {
				atomic.AddUint64(&total5xx, 1)
			} else if rec.code >= 400 {
				atomic.AddUint64(&total4xx, 1)
			}
			user := ""
			if u := currentUser(r); u != nil {
				user = u.Email
			}
			logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.code,
				"durationMs", float64(dur)/1e6,
				"user", user,
				"bytesIn", r.ContentLength,
				"bytesOut", rec.bytes,
			)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name":"argus","version":"` + version.Version + `"}`))
		})
		r.Route("/v1", func(r chi.Router) {
			registerAPI(r, s)
		})
	})

	// Static from disk (no embed). If not found, serve index.html for SPA routing
	fs := http.FileServer(http.Dir(cfg.StaticDir))
	r.Handle("/*", spaHandler(cfg.StaticDir, fs, logger))
	return r
}

type spa struct {
	dir    string
	next   http.Handler
	logger logging.Logger
}

func spaHandler(dir string, next http.Handler, logger logging.Logger) http.Handler {
	return &spa{dir: dir, next: next, logger: logger}
}

func (s *spa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := filepath.Join(s.dir, r.URL.Path)
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		s.next.ServeHTTP(w, r)
		return
	}
	// fallback to index.html
	http.ServeFile(w, r, filepath.Join(s.dir, "index.html"))
}
