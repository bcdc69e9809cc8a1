package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arencloud/argus/internal/models"

	"gorm.io/gorm"
)

// Store is the durable cache the sync engine converges into: one Account row
// per configured credential scope, one ResourceRecord row per remote resource.
// The sync engine is the only writer of sync fields; the HTTP API only reads.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// ResourceUpdate carries one resource's reconciliation outcome. A nil Payload
// means "preserve whatever payload is cached" (the cache-preserving error
// path); a non-empty ErrMsg is recorded either way. MergeCached marks a
// partial refresh: cached payload keys absent from Payload are carried over,
// so a failed secondary fetch never drops fields an earlier pass stored.
type ResourceUpdate struct {
	Ref         string
	Kind        string
	Label       string
	Payload     map[string]any
	MergeCached bool
	ErrMsg      string
}

// ResourceFilter narrows ListResources.
type ResourceFilter struct {
	AccountID  string
	Kind       string
	ActiveOnly bool
}

// UpsertAccounts mirrors the configured account list for a provider into the
// store: every listed account is upserted active, every stored account absent
// from the list is marked inactive, in one transaction. Configuration is the
// source of truth; sync stamps (LastSyncAt/LastError) are left untouched.
func (s *Store) UpsertAccounts(ctx context.Context, provider string, accts []models.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make([]string, 0, len(accts))
		for _, a := range accts {
			seen = append(seen, a.AccountID)
			var rec models.Account
			err := tx.Where("provider = ? AND account_id = ?", provider, a.AccountID).First(&rec).Error
			if err == nil {
				rec.DisplayName = a.DisplayName
				rec.Endpoint = a.Endpoint
				rec.Region = a.Region
				rec.IsActive = true
				if err := tx.Save(&rec).Error; err != nil {
					return err
				}
				continue
			}
			if err != gorm.ErrRecordNotFound {
				return err
			}
			rec = models.Account{
				Provider:    provider,
				AccountID:   a.AccountID,
				DisplayName: a.DisplayName,
				Endpoint:    a.Endpoint,
				Region:      a.Region,
				IsActive:    true,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		q := tx.Model(&models.Account{}).Where("provider = ?", provider)
		if len(seen) > 0 {
			q = q.Where("account_id NOT IN ?", seen)
		}
		return q.Update("is_active", false).Error
	})
}

func (s *Store) ListAccounts(ctx context.Context, provider string, activeOnly bool) ([]models.Account, error) {
	var out []models.Account
	q := s.db.WithContext(ctx).Where("provider = ?", provider)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("account_id asc").Find(&out).Error
	return out, err
}

func (s *Store) GetAccount(ctx context.Context, provider, accountID string) (*models.Account, error) {
	var a models.Account
	if err := s.db.WithContext(ctx).Where("provider = ? AND account_id = ?", provider, accountID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAccountSync stamps a completed pass: LastSyncAt always, LastError set
// when the pass had failures and cleared otherwise.
func (s *Store) SetAccountSync(ctx context.Context, provider, accountID string, at time.Time, lastErr string) error {
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("provider = ? AND account_id = ?", provider, accountID).
		Updates(map[string]any{"last_sync_at": at, "last_error": lastErr}).Error
}

// SetAccountError records a listing/catalog failure without touching
// LastSyncAt, so freshness still sees the last good pass.
func (s *Store) SetAccountError(ctx context.Context, provider, accountID, msg string) error {
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("provider = ? AND account_id = ?", provider, accountID).
		Update("last_error", msg).Error
}

func (s *Store) ListResources(ctx context.Context, provider string, f ResourceFilter) ([]models.ResourceRecord, error) {
	var out []models.ResourceRecord
	q := s.db.WithContext(ctx).Where("provider = ?", provider)
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("account_id asc, resource_ref asc").Find(&out).Error
	return out, err
}

// Reconcile applies one account pass atomically: every update is upserted
// (preserving the cached payload when Payload is nil), then every previously
// active record absent from the listing is tombstoned. Tombstones keep the
// row and its payload; nothing is ever deleted. A reader never observes a
// half-reconciled account.
func (s *Store) Reconcile(ctx context.Context, provider, accountID string, updates []ResourceUpdate, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make([]string, 0, len(updates))
		for _, u := range updates {
			seen = append(seen, u.Ref)
			if err := upsertResource(tx, provider, accountID, u, now); err != nil {
				return err
			}
		}
		q := tx.Model(&models.ResourceRecord{}).
			Where("provider = ? AND account_id = ? AND is_active = ?", provider, accountID, true)
		if len(seen) > 0 {
			q = q.Where("resource_ref NOT IN ?", seen)
		}
		return q.Update("is_active", false).Error
	})
}

func upsertResource(tx *gorm.DB, provider, accountID string, u ResourceUpdate, now time.Time) error {
	var rec models.ResourceRecord
	err := tx.Where("provider = ? AND account_id = ? AND resource_ref = ?", provider, accountID, u.Ref).First(&rec).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	if err == gorm.ErrRecordNotFound {
		rec = models.ResourceRecord{Provider: provider, AccountID: accountID, ResourceRef: u.Ref, Payload: "{}"}
	}
	if u.Kind != "" {
		rec.Kind = u.Kind
	}
	if u.Label != "" {
		rec.Label = u.Label
	}
	if u.Payload != nil {
		next := u.Payload
		if u.MergeCached && rec.Payload != "" {
			prev := map[string]any{}
			_ = json.Unmarshal([]byte(rec.Payload), &prev)
			for k, v := range prev {
				if _, ok := next[k]; !ok {
					next[k] = v
				}
			}
		}
		b, merr := json.Marshal(next)
		if merr != nil {
			return merr
		}
		rec.Payload = string(b)
	} else if rec.Payload == "" {
		// failed fetch with no prior cache: zero-value payload, error visible
		rec.Payload = "{}"
	}
	rec.IsActive = true
	rec.LastSeenAt = &now
	rec.LastSyncAt = &now
	rec.LastError = u.ErrMsg
	return tx.Save(&rec).Error
}

// Payload decodes a record's payload JSON; an empty payload decodes to an
// empty map rather than an error.
func Payload(rec models.ResourceRecord) map[string]any {
	out := map[string]any{}
	if rec.Payload != "" {
		_ = json.Unmarshal([]byte(rec.Payload), &out)
	}
	return out
}
