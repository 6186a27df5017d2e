// Package repo implements the data persistence layer of the item ledger,
// backed by GORM. This file provides the append-only ledger-record
// operations against daily ITEM_RECORDS partitions: appends, the lifetime
// idempotency scan, the daily-quota sum, and the best-effort latest-key
// lookup used by export/audit consumers.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

// AppendRecord inserts one immutable ledger record into the given partition.
// ID and CreatedAt are filled in when unset.
func AppendRecord(ctx context.Context, tx *gorm.DB, table string, rec *domain.LedgerRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Table(table).Create(rec).Error
}

// FindByIdempotencyKey scans the given ledger partitions for a record with
// the exact idempotency key scoped to (owner, player, item). Returns
// (nil, nil) when no partition holds a match.
//
// A scan failure against a missing or dropped partition is treated as "no
// match", not an error: the write path stays available even when historical
// partitions have been removed by operators.
func FindByIdempotencyKey(ctx context.Context, db *gorm.DB, tables []string, owner domain.Owner, playerID, itemID, key string) (*domain.LedgerRecord, error) {
	for _, table := range tables {
		var rec domain.LedgerRecord
		err := db.WithContext(ctx).Table(table).
			Where("merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ? AND idempotency_key = ?",
				owner.MerchantID, owner.AppID, playerID, itemID, key).
			First(&rec).Error
		if err == nil {
			return &rec, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			// Missing partition or transient scan failure: skip.
			continue
		}
	}
	return nil, nil
}

// SumDailyGrants sums the positive GRANT amounts recorded for (player, item)
// in one daily ledger partition. Used by the daily-quota check; errors abort
// the caller.
func SumDailyGrants(ctx context.Context, db *gorm.DB, table string, owner domain.Owner, playerID, itemID string) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Table(table).
		Select("COALESCE(SUM(amount), 0)").
		Where("merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ? AND record_type = ? AND amount > 0",
			owner.MerchantID, owner.AppID, playerID, itemID, domain.RecordGrant).
		Scan(&sum).Error
	return sum, err
}

// LatestIdempotencyKey returns the key of the newest ledger record for
// (player, item), walking partitions newest bucket first and stopping at the
// first hit. Best-effort: any failure yields the empty string.
func LatestIdempotencyKey(ctx context.Context, db *gorm.DB, tablesNewestFirst []string, owner domain.Owner, playerID, itemID string) string {
	for _, table := range tablesNewestFirst {
		var rec domain.LedgerRecord
		err := db.WithContext(ctx).Table(table).
			Where("merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ? AND idempotency_key <> ''",
				owner.MerchantID, owner.AppID, playerID, itemID).
			Order("created_at desc").
			First(&rec).Error
		if err == nil {
			return rec.IdempotencyKey
		}
	}
	return ""
}

// CountRecords counts ledger records for (player, item) across partitions.
// Test and audit helper; scan failures propagate.
func CountRecords(ctx context.Context, db *gorm.DB, tables []string, owner domain.Owner, playerID, itemID string) (int64, error) {
	var total int64
	for _, table := range tables {
		var n int64
		err := db.WithContext(ctx).Table(table).
			Where("merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ?",
				owner.MerchantID, owner.AppID, playerID, itemID).
			Count(&n).Error
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
