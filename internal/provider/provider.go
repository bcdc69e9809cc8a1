package provider

import (
	"context"
	"strings"

	"github.com/arencloud/argus/internal/models"
)

// ResourceRef is the lightweight identity of one remote resource, returned by
// listing and handed back to fetch detail.
type ResourceRef struct {
	Ref   string
	Kind  string
	Label string
}

// Snapshot is one resource's fetched state. Payload keys depend on Kind.
type Snapshot struct {
	Ref     ResourceRef
	Payload map[string]any
}

// Client is what every provider integration exposes to the sync engine.
// ListAccounts reads configuration, not the network, and fails as a whole or
// not at all. ListResources may fail per account; GetResourceDetail may fail
// independently per resource.
type Client interface {
	Name() string
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListResources(ctx context.Context, acct models.Account) ([]ResourceRef, error)
	GetResourceDetail(ctx context.Context, acct models.Account, ref ResourceRef) (Snapshot, error)
}

// Enricher is implemented by providers with a secondary, more expensive call
// (security posture, extended metrics). Enrichment failures follow the same
// cache-preserving contract as detail failures.
type Enricher interface {
	GetEnrichment(ctx context.Context, acct models.Account, ref ResourceRef) (map[string]any, error)
}

// NormalizeAccountID produces the stable form account ids are keyed by.
func NormalizeAccountID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
