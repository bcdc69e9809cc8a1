package models

import (
	"time"
)

type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Email              string    `gorm:"uniqueIndex" json:"email"`
	Password           string    `json:"-"`
	Role               string    `json:"role"`
	MustChangePassword bool      `json:"mustChangePassword"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Account is a configured credential/endpoint scope for one provider: one AWS
// account, one Wasabi account, one VSAx device group. Credentials never land
// here; the catalog file is the source of truth and this row is its mirror.
// Unique per (Provider, AccountID).
type Account struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Provider    string     `gorm:"uniqueIndex:idx_provider_account;not null" json:"provider"`
	AccountID   string     `gorm:"uniqueIndex:idx_provider_account;not null" json:"accountId"`
	DisplayName string     `json:"displayName"`
	Endpoint    string     `json:"endpoint"`
	Region      string     `json:"region"`
	IsActive    bool       `json:"isActive"`
	LastSyncAt  *time.Time `json:"lastSyncAt"`
	LastError   string     `json:"lastError"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ResourceRecord is the cached snapshot of one remote resource (bucket,
// device, service) scoped to one Account. Payload is a JSON document whose
// shape depends on Kind. A failed detail fetch never nulls the payload: the
// previous value is kept and LastError carries the staleness signal.
// Unique per (Provider, AccountID, ResourceRef).
type ResourceRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Provider    string     `gorm:"uniqueIndex:idx_provider_resource;not null" json:"provider"`
	AccountID   string     `gorm:"uniqueIndex:idx_provider_resource;not null" json:"accountId"`
	ResourceRef string     `gorm:"uniqueIndex:idx_provider_resource;not null" json:"resourceRef"`
	Kind        string     `json:"kind"`
	Label       string     `json:"label"`
	Payload     string     `json:"payload"` // JSON string of snapshot fields
	IsActive    bool       `json:"isActive"`
	LastSeenAt  *time.Time `json:"lastSeenAt"`
	LastSyncAt  *time.Time `json:"lastSyncAt"`
	LastError   string     `json:"lastError"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Persistent observability models

type LogEntry struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	Time   time.Time `json:"time"`
	Level  string    `json:"level"`
	Msg    string    `json:"msg"`
	Fields string    `json:"fields"` // JSON string of fields
}
