package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/arencloud/argus/internal/freshness"
	"github.com/arencloud/argus/internal/logging"
	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/pool"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/store"
)

// Result is the outcome of syncing one account. Scanned means the provider
// was actually contacted; a skipped account is never scanned.
type Result struct {
	AccountID     string `json:"accountId"`
	Scanned       bool   `json:"scanned"`
	Skipped       bool   `json:"skipped"`
	HadError      bool   `json:"hadError"`
	ResourceCount int    `json:"resourceCount"`
	ErrorCount    int    `json:"errorCount"`
}

// Orchestrator runs the list-fetch-reconcile cycle for one account at a time.
// It never deletes cached state on failure: a resource whose fetch failed
// keeps its last good payload, an account whose listing failed keeps all its
// records.
type Orchestrator struct {
	store               *store.Store
	policy              freshness.Policy
	rules               *freshness.Rules
	resourceConcurrency int
	log                 logging.Logger
}

func NewOrchestrator(st *store.Store, policy freshness.Policy, rules *freshness.Rules, resourceConcurrency int, log logging.Logger) *Orchestrator {
	if resourceConcurrency < 1 {
		resourceConcurrency = 1
	}
	return &Orchestrator{store: st, policy: policy, rules: rules, resourceConcurrency: resourceConcurrency, log: log}
}

func (o *Orchestrator) now() time.Time {
	if o.policy.Now != nil {
		return o.policy.Now()
	}
	return time.Now()
}

// SyncAccount refreshes one account's resources if due. The returned error is
// a whole-account failure (listing or persistence); per-resource failures are
// absorbed into Result.ErrorCount and the account still syncs.
func (o *Orchestrator) SyncAccount(ctx context.Context, client provider.Client, acct models.Account, force bool) (Result, error) {
	res := Result{AccountID: acct.AccountID}
	if !o.policy.NeedsSync(acct.LastSyncAt, force) && !o.needsBackfill(ctx, client.Name(), acct.AccountID) {
		res.Skipped = true
		return res, nil
	}
	res.Scanned = true

	refs, err := client.ListResources(ctx, acct)
	if err != nil {
		res.HadError = true
		msg := fmt.Sprintf("list resources: %v", err)
		if serr := o.store.SetAccountError(ctx, client.Name(), acct.AccountID, msg); serr != nil {
			o.log.Error("record account error", "provider", client.Name(), "account", acct.AccountID, "error", serr)
		}
		return res, fmt.Errorf("%s/%s: %s", client.Name(), acct.AccountID, msg)
	}

	enricher, _ := client.(provider.Enricher)
	outcomes := pool.Map(ctx, refs, o.resourceConcurrency, func(ctx context.Context, ref provider.ResourceRef) (store.ResourceUpdate, error) {
		return o.fetchOne(ctx, client, enricher, acct, ref)
	})

	updates := make([]store.ResourceUpdate, 0, len(outcomes))
	for i, out := range outcomes {
		if out.Err != nil {
			// Fetch failed entirely: preserve the cached payload, record why.
			updates = append(updates, store.ResourceUpdate{
				Ref:    refs[i].Ref,
				Kind:   refs[i].Kind,
				Label:  refs[i].Label,
				ErrMsg: out.Err.Error(),
			})
			res.ErrorCount++
			continue
		}
		if out.Value.ErrMsg != "" {
			res.ErrorCount++
		}
		updates = append(updates, out.Value)
	}
	res.ResourceCount = len(updates)
	res.HadError = res.ErrorCount > 0

	now := o.now()
	if err := o.store.Reconcile(ctx, client.Name(), acct.AccountID, updates, now); err != nil {
		res.HadError = true
		msg := fmt.Sprintf("reconcile: %v", err)
		if serr := o.store.SetAccountError(ctx, client.Name(), acct.AccountID, msg); serr != nil {
			o.log.Error("record account error", "provider", client.Name(), "account", acct.AccountID, "error", serr)
		}
		return res, fmt.Errorf("%s/%s: %s", client.Name(), acct.AccountID, msg)
	}

	lastErr := ""
	if res.ErrorCount > 0 {
		lastErr = fmt.Sprintf("%d of %d resources failed to refresh", res.ErrorCount, len(updates))
	}
	if err := o.store.SetAccountSync(ctx, client.Name(), acct.AccountID, now, lastErr); err != nil {
		res.HadError = true
		return res, fmt.Errorf("%s/%s: record sync: %w", client.Name(), acct.AccountID, err)
	}
	o.log.Info("account synced",
		"provider", client.Name(), "account", acct.AccountID,
		"resources", res.ResourceCount, "errors", res.ErrorCount)
	return res, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, client provider.Client, enricher provider.Enricher, acct models.Account, ref provider.ResourceRef) (store.ResourceUpdate, error) {
	snap, err := client.GetResourceDetail(ctx, acct, ref)
	if err != nil {
		return store.ResourceUpdate{}, err
	}
	u := store.ResourceUpdate{Ref: ref.Ref, Kind: ref.Kind, Label: ref.Label, Payload: snap.Payload}
	if u.Payload == nil {
		u.Payload = map[string]any{}
	}
	if enricher != nil {
		extra, err := enricher.GetEnrichment(ctx, acct, ref)
		if err != nil {
			// Keep the detail snapshot, carry over previously cached
			// enrichment fields, note the partial failure.
			u.ErrMsg = fmt.Sprintf("enrichment: %v", err)
			u.MergeCached = true
			return u, nil
		}
		for k, v := range extra {
			u.Payload[k] = v
		}
	}
	return u, nil
}

// needsBackfill reports whether any cached active record for the account has
// a payload missing a field the current schema expects. Fires a sync for an
// otherwise fresh account so schema additions propagate without waiting out
// the TTL.
func (o *Orchestrator) needsBackfill(ctx context.Context, providerName, accountID string) bool {
	if o.rules == nil {
		return false
	}
	recs, err := o.store.ListResources(ctx, providerName, store.ResourceFilter{AccountID: accountID, ActiveOnly: true})
	if err != nil {
		o.log.Error("backfill probe", "provider", providerName, "account", accountID, "error", err)
		return false
	}
	for _, rec := range recs {
		if o.rules.NeedsBackfill(rec.Kind, store.Payload(rec)) {
			return true
		}
	}
	return false
}
