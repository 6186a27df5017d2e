// Package domain defines the persistence models of the item ledger. Static
// entities (apps, item templates, the partition catalog) are mapped with GORM
// and AutoMigrated at startup. Inventory entries and ledger records live in
// time-bucketed partitions whose tables are created at runtime, so their row
// types carry no fixed table name and are always addressed through
// db.Table(partitionName).
package domain

import (
	"time"
)

// Template lifecycle states. Only StateNormal templates accept grants; the
// core flips StateNormal to StateExpired when a template's absolute expiry
// passes, everything else is administered externally.
const (
	StateNormal        = "normal"
	StateExpired       = "expired"
	StatePendingDelete = "pending_delete"
	StateDeleted       = "deleted"
)

// Partition types recorded in the catalog.
const (
	PartitionPlayerItems     = "PLAYER_ITEMS"
	PartitionItemRecords     = "ITEM_RECORDS"
	PartitionItemLimits      = "ITEM_LIMITS"
	PartitionItemTotalLimits = "ITEM_TOTAL_LIMITS"
)

// Catalog partition status. Partitions are never soft-disabled today; the
// status column exists so reconciliation can park a partition without
// dropping its catalog row.
const (
	PartitionStatusActive = "ACTIVE"
)

// Ledger record types. Grants are positive amounts, consumes and expires
// negative.
const (
	RecordGrant   = "GRANT"
	RecordConsume = "CONSUME"
	RecordExpire  = "EXPIRE"
)

// Inventory entry usability.
const (
	EntryUsable   = 1
	EntryUnusable = 0
)

// Owner identifies the tenant an operation acts for. Every partition, row
// and quota is scoped to one owner. AppID is the component used in physical
// partition names; MerchantID travels in every row.
type Owner struct {
	MerchantID string `json:"merchant_id"`
	AppID      string `json:"app_id"`
}

// App is the owning application of a tenant. Read-only to the core: the
// engine only consults Enabled before accepting a grant.
type App struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	MerchantID string    `json:"merchant_id" gorm:"type:varchar(64);not null;index:idx_apps_merchant"`
	AppID      string    `json:"app_id"      gorm:"type:varchar(64);not null;uniqueIndex:ux_apps_app_id"`
	Name       string    `json:"name"        gorm:"type:varchar(255);not null"`
	Enabled    bool      `json:"enabled"     gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for App.
func (App) TableName() string { return "apps" }

// ItemTemplate describes one grantable item kind and its quota/expiry policy.
// Read-only to the core except for the normal->expired lifecycle flip
// performed when ExpireDate passes.
//
// Quota and expiry fields are pointers: nil means "not configured".
//   - TotalLimit: lifetime cap on the summed amount a player may hold.
//   - DailyLimitMax: cap on the amount grantable per UTC day.
//   - ExpireDurationHours: relative expiry applied at grant time.
//   - ExpireDate: absolute expiry of the template and all its entries.
type ItemTemplate struct {
	ID                  string     `json:"id"           gorm:"type:varchar(64);primaryKey"`
	MerchantID          string     `json:"merchant_id"  gorm:"type:varchar(64);not null;index:idx_templates_owner,priority:1"`
	AppID               string     `json:"app_id"       gorm:"type:varchar(64);not null;index:idx_templates_owner,priority:2"`
	Name                string     `json:"name"         gorm:"type:varchar(255);not null"`
	Active              bool       `json:"active"       gorm:"not null;default:true"`
	State               string     `json:"state"        gorm:"type:varchar(16);not null;default:'normal';check:state IN ('normal','expired','pending_delete','deleted')"`
	TotalLimit          *int64     `json:"total_limit,omitempty"`
	DailyLimitMax       *int64     `json:"daily_limit_max,omitempty"`
	ExpireDurationHours *int64     `json:"expire_duration_hours,omitempty"`
	ExpireDate          *time.Time `json:"expire_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ItemTemplate.
func (ItemTemplate) TableName() string { return "item_templates" }

// PartitionMeta is one row of the partition catalog: the durable record that
// a physical partition table was provisioned. Catalog and physical schema are
// created in one transaction and may only diverge through operator
// intervention; the provisioner repairs such drift by replacing the row.
type PartitionMeta struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	PartitionType string    `json:"partition_type" gorm:"type:varchar(32);not null;index:idx_catalog_owner_type,priority:3"`
	MerchantID    string    `json:"merchant_id"    gorm:"type:varchar(64);not null;index:idx_catalog_owner_type,priority:1"`
	AppID         string    `json:"app_id"         gorm:"type:varchar(64);not null;index:idx_catalog_owner_type,priority:2"`
	TableName_    string    `json:"table_name"     gorm:"column:table_name;type:varchar(128);not null;uniqueIndex:ux_catalog_table"`
	BucketKey     string    `json:"bucket_key"     gorm:"type:varchar(16);not null"`
	Status        string    `json:"status"         gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for the partition catalog.
func (PartitionMeta) TableName() string { return "partition_catalog" }

// InventoryEntry is one holding of an item by a player. Lives in a monthly
// PLAYER_ITEMS partition. Every grant creates a new entry; entries are never
// merged, and an entry is deleted exactly when its amount reaches zero.
type InventoryEntry struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	MerchantID string     `json:"merchant_id" gorm:"type:varchar(64);not null"`
	AppID      string     `json:"app_id"      gorm:"type:varchar(64);not null"`
	PlayerID   string     `json:"player_id"   gorm:"type:varchar(64);not null"`
	ItemID     string     `json:"item_id"     gorm:"type:varchar(64);not null"`
	Amount     int64      `json:"amount"      gorm:"not null"`
	ObtainTime time.Time  `json:"obtain_time" gorm:"not null"`
	ExpireTime *time.Time `json:"expire_time,omitempty"`
	Status     int        `json:"status"      gorm:"not null;default:1"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Partition is the physical table the row was read from; populated by
	// the query fan-out, never persisted.
	Partition string `json:"-" gorm:"-"`
}

// Expired reports whether the entry's own expiry has passed at now.
func (e *InventoryEntry) Expired(now time.Time) bool {
	return e.ExpireTime != nil && !e.ExpireTime.After(now)
}

// LedgerRecord is one append-only balance-changing event. Lives in a daily
// ITEM_RECORDS partition. Amount is signed: positive for GRANT, negative for
// CONSUME and EXPIRE. BalanceAfter is the amount remaining on the specific
// inventory entry the event acted on, not a player-wide aggregate.
//
// IdempotencyKey is a first-class indexed column; uniqueness of a key is
// scoped to (owner, player, item) across the lifetime of ledger history.
type LedgerRecord struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	MerchantID     string    `json:"merchant_id"     gorm:"type:varchar(64);not null"`
	AppID          string    `json:"app_id"          gorm:"type:varchar(64);not null"`
	PlayerID       string    `json:"player_id"       gorm:"type:varchar(64);not null"`
	ItemID         string    `json:"item_id"         gorm:"type:varchar(64);not null"`
	EntryID        string    `json:"entry_id"        gorm:"type:char(36);not null"`
	Amount         int64     `json:"amount"          gorm:"not null"`
	RecordType     string    `json:"record_type"     gorm:"type:varchar(16);not null"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"type:varchar(128);not null"`
	Remark         string    `json:"remark"          gorm:"type:text"`
	BalanceAfter   int64     `json:"balance_after"   gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// DailyLimit is the per-day grant bookkeeping row kept in an ITEM_LIMITS
// partition: the summed GRANT amount for (player,item) on the partition's
// day. Maintained inside the Grant transaction; the authoritative daily
// quota check reads the ledger partition instead (see services.Grant).
type DailyLimit struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	PlayerID  string    `json:"player_id" gorm:"type:varchar(64);not null"`
	ItemID    string    `json:"item_id"   gorm:"type:varchar(64);not null"`
	Granted   int64     `json:"granted"   gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalLimit is the lifetime grant bookkeeping row kept in the owner's
// single ITEM_TOTAL_LIMITS partition. Same bookkeeping-only role as
// DailyLimit.
type TotalLimit struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	PlayerID     string    `json:"player_id"     gorm:"type:varchar(64);not null"`
	ItemID       string    `json:"item_id"       gorm:"type:varchar(64);not null"`
	TotalGranted int64     `json:"total_granted" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PlayerItem is the aggregated read model returned by the query service:
// an inventory entry plus the overlaid usability verdict.
type PlayerItem struct {
	InventoryEntry

	Usable bool `json:"usable"`
	// Reason explains a template-derived unusable verdict ("item inactive",
	// "item deleted", ...). Empty when Usable or when only the entry's own
	// expiry has passed.
	Reason string `json:"reason,omitempty"`
	// LastIdempotencyKey is the key of the newest ledger record touching
	// this item for the player. Best-effort; empty when resolution failed.
	LastIdempotencyKey string `json:"last_idempotency_key,omitempty"`
}
