package s3

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/sched"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	KindBucket = "bucket"

	ProviderName = "s3"
)

// Client inventories buckets across every configured S3-compatible account.
// One minio client per account; all calls go through the shared limiter so a
// slow endpoint cannot starve the rest of a sync pass.
type Client struct {
	accounts []provider.S3Account
	clients  map[string]*minio.Client
	lim      *sched.Limiter
}

func New(accounts []provider.S3Account, lim *sched.Limiter) (*Client, error) {
	c := &Client{accounts: accounts, clients: map[string]*minio.Client{}, lim: lim}
	for _, a := range accounts {
		mc, err := newMinio(a)
		if err != nil {
			return nil, fmt.Errorf("s3 account %s: %w", a.ID, err)
		}
		c.clients[provider.NormalizeAccountID(a.ID)] = mc
	}
	return c, nil
}

func newMinio(a provider.S3Account) (*minio.Client, error) {
	endpoint, secure := normalizeEndpoint(a.Endpoint, a.UseSSL)
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(a.AccessKey, a.SecretKey, ""),
		Secure: secure,
		Region: a.Region,
	}
	if forcePathStyle(a.Type) {
		opts.BucketLookup = minio.BucketLookupPath
	}
	return minio.New(endpoint, opts)
}

func normalizeEndpoint(endpoint string, useSSL bool) (host string, secure bool) {
	secure = useSSL
	if endpoint == "" {
		return "", secure
	}
	// A scheme in the endpoint wins over the useSSL flag.
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if u, err := url.Parse(endpoint); err == nil {
			if u.Scheme == "https" {
				secure = true
			} else if u.Scheme == "http" {
				secure = false
			}
			return u.Host, secure
		}
	}
	return endpoint, secure
}

func forcePathStyle(accountType string) bool {
	// Path-style for non-AWS by default; AWS prefers virtual-hosted.
	t := strings.ToLower(strings.TrimSpace(accountType))
	return t == "minio" || t == "mcg" || t == "generic" || t == ""
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	out := make([]models.Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		out = append(out, models.Account{
			Provider:    ProviderName,
			AccountID:   provider.NormalizeAccountID(a.ID),
			DisplayName: name,
			Endpoint:    a.Endpoint,
			Region:      a.Region,
		})
	}
	return out, nil
}

func (c *Client) client(acct models.Account) (*minio.Client, error) {
	mc, ok := c.clients[acct.AccountID]
	if !ok {
		return nil, fmt.Errorf("s3: unknown account %q", acct.AccountID)
	}
	return mc, nil
}

func (c *Client) ListResources(ctx context.Context, acct models.Account) ([]provider.ResourceRef, error) {
	mc, err := c.client(acct)
	if err != nil {
		return nil, err
	}
	buckets, err := sched.Schedule(ctx, c.lim, func(ctx context.Context) ([]minio.BucketInfo, error) {
		return mc.ListBuckets(ctx)
	})
	if err != nil {
		return nil, err
	}
	refs := make([]provider.ResourceRef, 0, len(buckets))
	for _, b := range buckets {
		refs = append(refs, provider.ResourceRef{Ref: b.Name, Kind: KindBucket, Label: b.Name})
	}
	return refs, nil
}

// GetResourceDetail walks the bucket and aggregates object count and total
// size. Buckets with many objects make this the dominant cost of a sync pass,
// which is exactly what the limiter paces.
func (c *Client) GetResourceDetail(ctx context.Context, acct models.Account, ref provider.ResourceRef) (provider.Snapshot, error) {
	mc, err := c.client(acct)
	if err != nil {
		return provider.Snapshot{}, err
	}
	type usage struct {
		sizeBytes   int64
		objectCount int64
	}
	u, err := sched.Schedule(ctx, c.lim, func(ctx context.Context) (usage, error) {
		var u usage
		for obj := range mc.ListObjects(ctx, ref.Ref, minio.ListObjectsOptions{Recursive: true}) {
			if obj.Err != nil {
				return usage{}, obj.Err
			}
			u.sizeBytes += obj.Size
			u.objectCount++
		}
		return u, nil
	})
	if err != nil {
		return provider.Snapshot{}, err
	}
	return provider.Snapshot{
		Ref: ref,
		Payload: map[string]any{
			"sizeBytes":   u.sizeBytes,
			"objectCount": u.objectCount,
			"scannedAt":   time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// GetEnrichment adds bucket security posture: versioning status and whether a
// bucket policy is attached. Some backends do not implement these calls, so
// failures here must not discard the usage snapshot.
func (c *Client) GetEnrichment(ctx context.Context, acct models.Account, ref provider.ResourceRef) (map[string]any, error) {
	mc, err := c.client(acct)
	if err != nil {
		return nil, err
	}
	return sched.Schedule(ctx, c.lim, func(ctx context.Context) (map[string]any, error) {
		vc, err := mc.GetBucketVersioning(ctx, ref.Ref)
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"versioning": vc.Status,
		}
		if policy, err := mc.GetBucketPolicy(ctx, ref.Ref); err == nil {
			out["hasPolicy"] = policy != ""
		}
		return out, nil
	})
}
