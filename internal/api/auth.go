package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/arencloud/argus/internal/db"
	"github.com/arencloud/argus/internal/models"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// very small in-memory session store, shared by concurrent request goroutines
var sessionsMu sync.Mutex
var sessions = make(map[string]uint) // sessionID -> userID
var secret = []byte("argus-dev-secret")

func putSession(sid string, uid uint) {
	sessionsMu.Lock()
	sessions[sid] = uid
	sessionsMu.Unlock()
}

func getSession(sid string) (uint, bool) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	uid, ok := sessions[sid]
	return uid, ok
}

func dropSession(sid string) {
	sessionsMu.Lock()
	delete(sessions, sid)
	sessionsMu.Unlock()
}

func sign(value string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func setSessionCookie(w http.ResponseWriter, sessionID string) {
	cookie := &http.Cookie{Name: "dsess", Value: sessionID + "." + sign(sessionID), Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode, Expires: time.Now().Add(24 * time.Hour)}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: "dsess", Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})
}

func currentUser(r *http.Request) *models.User {
	c, err := r.Cookie("dsess")
	if err != nil {
		return nil
	}
	parts := c.Value
	var sid, sig string
	for i := 0; i < len(parts); i++ {
		if parts[i] == '.' {
			sid = parts[:i]
			sig = parts[i+1:]
			break
		}
	}
	if sid == "" || sig == "" || sign(sid) != sig {
		return nil
	}
	uid, ok := getSession(sid)
	if !ok {
		return nil
	}
	var u models.User
	if err := db.DB.First(&u, uid).Error; err != nil {
		return nil
	}
	return &u
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u != nil {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if u == nil {
			http.Error(w, "unauthorized", 401)
			return
		}
		if u.Role != "admin" {
			http.Error(w, "forbidden", 403)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireEditorOrAdmin allows roles admin and editor; viewers are read-only
func requireEditorOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if u == nil {
			http.Error(w, "unauthorized", 401)
			return
		}
		if u.Role != "admin" && u.Role != "editor" {
			http.Error(w, "forbidden", 403)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func registerAuth(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", login)
		r.Post("/change-password", changePassword)
		r.Get("/me", me)
		r.Post("/logout", logout)
		// Bootstrap status (unauthenticated): whether default admin must change password
		r.Get("/bootstrap", authBootstrap)
	})
}

func login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct{ Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	var u models.User
	if err := db.DB.Where("email = ?", in.Email).First(&u).Error; err != nil {
		http.Error(w, "invalid credentials", 401)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.Password)) != nil {
		http.Error(w, "invalid credentials", 401)
		return
	}
	// create session
	sid := base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano) + in.Email))
	putSession(sid, u.ID)
	setSessionCookie(w, sid)
	json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "email": u.Email, "role": u.Role, "mustChangePassword": u.MustChangePassword})
}

func changePassword(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u := currentUser(r)
	if u == nil {
		http.Error(w, "unauthorized", 401)
		return
	}
	var in struct{ OldPassword, NewPassword string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if len(in.NewPassword) < 8 {
		http.Error(w, "password too short", 400)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.OldPassword)) != nil {
		http.Error(w, "invalid old password", 400)
		return
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	u.Password = string(hash)
	u.MustChangePassword = false
	if err := db.DB.Save(u).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func me(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u := currentUser(r)
	if u == nil {
		http.Error(w, "unauthorized", 401)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "email": u.Email, "role": u.Role, "mustChangePassword": u.MustChangePassword})
}

func logout(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("dsess")
	if err == nil {
		val := c.Value
		var sid string
		for i := 0; i < len(val); i++ {
			if val[i] == '.' {
				sid = val[:i]
				break
			}
		}
		if sid != "" {
			dropSession(sid)
		}
	}
	clearSessionCookie(w)
	w.WriteHeader(204)
}

// authBootstrap returns whether the default bootstrap admin still must change password.
// This allows the UI to conditionally show the temporary password notice on first run.
func authBootstrap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var u models.User
	show := db.DB.Where("email = ? AND must_change_password = ?", "admin@local", true).First(&u).Error == nil
	json.NewEncoder(w).Encode(map[string]any{"showTempNotice": show})
}
