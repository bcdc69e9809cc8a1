package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/sched"
)

func newTestClient(t *testing.T, api http.Handler) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.Handle("/", api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := provider.MonitorConfig{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "cid",
		ClientSecret: "csec",
	}
	return New(context.Background(), cfg, sched.NewLimiter(2, 0))
}

func TestListAccountsSingle(t *testing.T) {
	c := New(context.Background(), provider.MonitorConfig{BaseURL: "https://api.example.com"}, sched.NewLimiter(1, 0))
	accts, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accts) != 1 || accts[0].AccountID != "default" {
		t.Fatalf("unexpected accounts: %+v", accts)
	}
}

func TestListResourcesSendsBearer(t *testing.T) {
	var gotAuth string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"checks": []check{
			{ID: "c1", Name: "homepage", Status: "up"},
			{ID: "c2", Name: "api", Status: "down"},
		}})
	})
	c := newTestClient(t, api)
	refs, err := c.ListResources(context.Background(), models.Account{AccountID: "default"})
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(refs) != 2 || refs[0].Kind != KindCheck || refs[1].Label != "api" {
		t.Fatalf("unexpected refs: %+v", refs)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("want bearer token on API call, got %q", gotAuth)
	}
}

func TestGetResourceDetail(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checks/c1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(check{
			ID: "c1", Name: "homepage", Status: "up",
			Target: "https://example.com", UptimeRatio: 99.95, LastCheckAt: "2026-08-29T10:00:00Z",
		})
	})
	c := newTestClient(t, api)
	snap, err := c.GetResourceDetail(context.Background(), models.Account{AccountID: "default"}, provider.ResourceRef{Ref: "c1", Kind: KindCheck})
	if err != nil {
		t.Fatalf("GetResourceDetail: %v", err)
	}
	if snap.Payload["status"] != "up" || snap.Payload["uptimeRatio"] != 99.95 {
		t.Fatalf("unexpected payload: %+v", snap.Payload)
	}
}

func TestDetailNotFoundIsError(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, api)
	if _, err := c.GetResourceDetail(context.Background(), models.Account{AccountID: "default"}, provider.ResourceRef{Ref: "ghost"}); err == nil {
		t.Fatal("want error for missing check")
	}
}
