package provider

import (
	"encoding/json"
	"fmt"
	"os"
)

// Catalog is the JSON configuration file declaring every provider account.
// It is re-read at each catalog refresh; the store mirrors it. Credentials
// live only here, never in the database.
type Catalog struct {
	S3      []S3Account    `json:"s3"`
	VSAx    *VSAxConfig    `json:"vsax"`
	Monitor *MonitorConfig `json:"monitor"`
}

type S3Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"` // aws|wasabi|minio|generic
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"useSSL"`
}

type VSAxConfig struct {
	BaseURL  string      `json:"baseUrl"`
	Username string      `json:"username"`
	Password string      `json:"password"`
	Groups   []VSAxGroup `json:"groups"`
}

type VSAxGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MonitorConfig struct {
	BaseURL      string `json:"baseUrl"`
	TokenURL     string `json:"tokenUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// LoadCatalog reads and validates the catalog file. Validation failures are
// configuration errors: they fail fast, before any network call, so operators
// can tell "misconfigured" apart from "remote unavailable".
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("catalog: malformed json: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := map[string]struct{}{}
	for i, a := range c.S3 {
		if a.ID == "" {
			return fmt.Errorf("catalog: s3[%d]: id is required", i)
		}
		id := NormalizeAccountID(a.ID)
		if _, dup := seen[id]; dup {
			return fmt.Errorf("catalog: s3: duplicate account id %q", id)
		}
		seen[id] = struct{}{}
		if a.Endpoint == "" {
			return fmt.Errorf("catalog: s3[%s]: endpoint is required", a.ID)
		}
		if a.AccessKey == "" || a.SecretKey == "" {
			return fmt.Errorf("catalog: s3[%s]: accessKey and secretKey are required", a.ID)
		}
	}
	if v := c.VSAx; v != nil {
		if v.BaseURL == "" {
			return fmt.Errorf("catalog: vsax: baseUrl is required")
		}
		if v.Username == "" || v.Password == "" {
			return fmt.Errorf("catalog: vsax: username and password are required")
		}
		for i, g := range v.Groups {
			if g.ID == "" {
				return fmt.Errorf("catalog: vsax.groups[%d]: id is required", i)
			}
		}
	}
	if m := c.Monitor; m != nil {
		if m.BaseURL == "" || m.TokenURL == "" {
			return fmt.Errorf("catalog: monitor: baseUrl and tokenUrl are required")
		}
		if m.ClientID == "" || m.ClientSecret == "" {
			return fmt.Errorf("catalog: monitor: clientId and clientSecret are required")
		}
	}
	return nil
}
