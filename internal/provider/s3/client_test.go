package s3

import (
	"context"
	"testing"
	"time"

	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/sched"
)

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		ssl    bool
		host   string
		secure bool
	}{
		{"minio.local:9000", false, "minio.local:9000", false},
		{"http://minio.local:9000", true, "minio.local:9000", false},
		{"https://s3.amazonaws.com", false, "s3.amazonaws.com", true},
		{"", true, "", true},
	}
	for _, c := range cases {
		h, sec := normalizeEndpoint(c.in, c.ssl)
		if h != c.host || sec != c.secure {
			t.Fatalf("normalizeEndpoint(%q,%v)=%q,%v want %q,%v", c.in, c.ssl, h, sec, c.host, c.secure)
		}
	}
}

func TestForcePathStyle(t *testing.T) {
	if !forcePathStyle("minio") {
		t.Fatal("minio should be path-style")
	}
	if !forcePathStyle("generic") {
		t.Fatal("generic should be path-style")
	}
	if !forcePathStyle("") {
		t.Fatal("unknown type should default to path-style")
	}
	if forcePathStyle("aws") {
		t.Fatal("aws should not force path-style")
	}
}

func TestListAccounts(t *testing.T) {
	c, err := New([]provider.S3Account{
		{ID: " Prod ", Endpoint: "minio.local:9000", AccessKey: "a", SecretKey: "s", Region: "east"},
		{ID: "backup", Name: "Backups", Endpoint: "minio2.local:9000", AccessKey: "a", SecretKey: "s"},
	}, sched.NewLimiter(2, time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	accts, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accts) != 2 {
		t.Fatalf("want 2 accounts, got %d", len(accts))
	}
	if accts[0].AccountID != "prod" || accts[0].DisplayName != " Prod " {
		t.Fatalf("unexpected first account: %+v", accts[0])
	}
	if accts[1].DisplayName != "Backups" || accts[1].Provider != ProviderName {
		t.Fatalf("unexpected second account: %+v", accts[1])
	}
}

func TestUnknownAccountRejected(t *testing.T) {
	c, err := New(nil, sched.NewLimiter(1, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ghost := models.Account{Provider: ProviderName, AccountID: "ghost"}
	if _, err := c.ListResources(context.Background(), ghost); err == nil {
		t.Fatal("want error for unknown account")
	}
}
