package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/sched"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	KindCheck = "check"

	ProviderName = "monitor"

	// The monitoring service has no tenant concept, so the whole service is
	// one account.
	accountID = "default"
)

// Client inventories uptime checks from the monitoring service. The API is
// OAuth2 client-credentials protected; the oauth2 transport caches and
// refreshes the token.
type Client struct {
	cfg   provider.MonitorConfig
	hc    *http.Client
	lim   *sched.Limiter
	retry sched.RetryPolicy
}

func New(ctx context.Context, cfg provider.MonitorConfig, lim *sched.Limiter) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	hc := cc.Client(ctx)
	hc.Timeout = 30 * time.Second
	return &Client{cfg: cfg, hc: hc, lim: lim, retry: sched.DefaultRetryPolicy()}
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return []models.Account{{
		Provider:    ProviderName,
		AccountID:   accountID,
		DisplayName: "Monitoring",
		Endpoint:    c.cfg.BaseURL,
	}}, nil
}

type check struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Target      string  `json:"target"`
	UptimeRatio float64 `json:"uptimeRatio"`
	LastCheckAt string  `json:"lastCheckAt"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := sched.Schedule(ctx, c.lim, func(ctx context.Context) (*http.Response, error) {
		return c.retry.DoRequest(ctx, c.hc, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+path, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			return req, nil
		})
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &sched.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("monitor: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) ListResources(ctx context.Context, acct models.Account) ([]provider.ResourceRef, error) {
	var resp struct {
		Checks []check `json:"checks"`
	}
	if err := c.get(ctx, "/v1/checks", &resp); err != nil {
		return nil, err
	}
	refs := make([]provider.ResourceRef, 0, len(resp.Checks))
	for _, ch := range resp.Checks {
		refs = append(refs, provider.ResourceRef{Ref: ch.ID, Kind: KindCheck, Label: ch.Name})
	}
	return refs, nil
}

func (c *Client) GetResourceDetail(ctx context.Context, acct models.Account, ref provider.ResourceRef) (provider.Snapshot, error) {
	var ch check
	if err := c.get(ctx, "/v1/checks/"+url.PathEscape(ref.Ref), &ch); err != nil {
		return provider.Snapshot{}, err
	}
	return provider.Snapshot{
		Ref: ref,
		Payload: map[string]any{
			"name":        ch.Name,
			"status":      ch.Status,
			"target":      ch.Target,
			"uptimeRatio": ch.UptimeRatio,
			"lastCheckAt": ch.LastCheckAt,
		},
	}, nil
}
