package vsax

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/sched"
)

const (
	KindDevice = "device"

	ProviderName = "vsax"
)

// Client inventories managed devices from a VSA X endpoint. Device groups map
// to accounts; devices map to resources. The API is paged JSON over Basic
// auth.
type Client struct {
	cfg      provider.VSAxConfig
	hc       *http.Client
	lim      *sched.Limiter
	retry    sched.RetryPolicy
	classify func(ip string) string
}

// Option tweaks client construction. Used for the IP classifier, which sites
// override when their address plan does not follow RFC 1918 conventions.
type Option func(*Client)

func WithClassifier(fn func(ip string) string) Option {
	return func(c *Client) { c.classify = fn }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func New(cfg provider.VSAxConfig, lim *sched.Limiter, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		hc:       &http.Client{Timeout: 30 * time.Second},
		lim:      lim,
		retry:    sched.DefaultRetryPolicy(),
		classify: ClassifyIP,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ClassifyIP is the default network-location heuristic: loopback and RFC 1918
// space count as internal, everything else as external.
func ClassifyIP(ip string) string {
	p := net.ParseIP(strings.TrimSpace(ip))
	if p == nil {
		return "unknown"
	}
	if p.IsLoopback() || p.IsPrivate() || p.IsLinkLocalUnicast() {
		return "internal"
	}
	return "external"
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	out := make([]models.Account, 0, len(c.cfg.Groups))
	for _, g := range c.cfg.Groups {
		name := g.Name
		if name == "" {
			name = g.ID
		}
		out = append(out, models.Account{
			Provider:    ProviderName,
			AccountID:   provider.NormalizeAccountID(g.ID),
			DisplayName: name,
			Endpoint:    c.cfg.BaseURL,
		})
	}
	return out, nil
}

type device struct {
	ID          string `json:"Identifier"`
	Name        string `json:"Name"`
	GroupID     string `json:"GroupId"`
	IPAddress   string `json:"IpAddress"`
	OS          string `json:"OperatingSystem"`
	AgentStatus string `json:"AgentStatus"`
	LastSeen    string `json:"LastSeenOnline"`
}

type deviceListResponse struct {
	Data []device `json:"Data"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := sched.Schedule(ctx, c.lim, func(ctx context.Context) (*http.Response, error) {
		return c.retry.DoRequest(ctx, c.hc, func(ctx context.Context) (*http.Request, error) {
			u := strings.TrimRight(c.cfg.BaseURL, "/") + path
			if len(q) > 0 {
				u += "?" + q.Encode()
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return nil, err
			}
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
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
		return fmt.Errorf("vsax: decode %s: %w", path, err)
	}
	return nil
}

const pageSize = 100

func (c *Client) ListResources(ctx context.Context, acct models.Account) ([]provider.ResourceRef, error) {
	var refs []provider.ResourceRef
	for skip := 0; ; skip += pageSize {
		q := url.Values{}
		q.Set("$filter", "GroupId eq '"+acct.AccountID+"'")
		q.Set("$top", fmt.Sprint(pageSize))
		q.Set("$skip", fmt.Sprint(skip))
		var page deviceListResponse
		if err := c.get(ctx, "/api/v3/devices", q, &page); err != nil {
			return nil, err
		}
		for _, d := range page.Data {
			refs = append(refs, provider.ResourceRef{Ref: d.ID, Kind: KindDevice, Label: d.Name})
		}
		if len(page.Data) < pageSize {
			return refs, nil
		}
	}
}

func (c *Client) GetResourceDetail(ctx context.Context, acct models.Account, ref provider.ResourceRef) (provider.Snapshot, error) {
	var resp struct {
		Data device `json:"Data"`
	}
	if err := c.get(ctx, "/api/v3/devices/"+url.PathEscape(ref.Ref), nil, &resp); err != nil {
		return provider.Snapshot{}, err
	}
	d := resp.Data
	return provider.Snapshot{
		Ref: ref,
		Payload: map[string]any{
			"name":        d.Name,
			"os":          d.OS,
			"agentStatus": d.AgentStatus,
			"ipAddress":   d.IPAddress,
			"network":     c.classify(d.IPAddress),
			"lastSeen":    d.LastSeen,
		},
	}, nil
}
