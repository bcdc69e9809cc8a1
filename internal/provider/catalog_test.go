package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return p
}

func TestLoadCatalogValid(t *testing.T) {
	p := writeCatalog(t, `{
	  "s3": [{"id":"prod","endpoint":"s3.amazonaws.com","accessKey":"AK","secretKey":"SK","region":"us-east-1","useSSL":true}],
	  "vsax": {"baseUrl":"https://vsa.example.com","username":"u","password":"p","groups":[{"id":"g1","name":"HQ"}]},
	  "monitor": {"baseUrl":"https://api.mon.example.com","tokenUrl":"https://auth.mon.example.com/token","clientId":"c","clientSecret":"s"}
	}`)
	c, err := LoadCatalog(p)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.S3) != 1 || c.S3[0].ID != "prod" {
		t.Fatalf("unexpected s3 accounts: %+v", c.S3)
	}
	if c.VSAx == nil || len(c.VSAx.Groups) != 1 {
		t.Fatalf("unexpected vsax: %+v", c.VSAx)
	}
	if c.Monitor == nil || c.Monitor.ClientID != "c" {
		t.Fatalf("unexpected monitor: %+v", c.Monitor)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{`, "malformed"},
		{"missing id", `{"s3":[{"endpoint":"e","accessKey":"a","secretKey":"s"}]}`, "id is required"},
		{"missing endpoint", `{"s3":[{"id":"x","accessKey":"a","secretKey":"s"}]}`, "endpoint is required"},
		{"missing creds", `{"s3":[{"id":"x","endpoint":"e"}]}`, "accessKey and secretKey"},
		{"duplicate id", `{"s3":[{"id":"X","endpoint":"e","accessKey":"a","secretKey":"s"},{"id":" x ","endpoint":"e","accessKey":"a","secretKey":"s"}]}`, "duplicate account id"},
		{"vsax no url", `{"vsax":{"username":"u","password":"p"}}`, "baseUrl is required"},
		{"monitor no secret", `{"monitor":{"baseUrl":"b","tokenUrl":"t","clientId":"c"}}`, "clientId and clientSecret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeCatalog(t, tc.body)
			_, err := LoadCatalog(p)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestNormalizeAccountID(t *testing.T) {
	if got := NormalizeAccountID("  Prod-A "); got != "prod-a" {
		t.Fatalf("NormalizeAccountID = %q", got)
	}
}
