// Package repo implements the data persistence layer of the item ledger,
// backed by GORM. This file maintains the quota bookkeeping partitions:
// the per-day ITEM_LIMITS rows and the per-owner ITEM_TOTAL_LIMITS rows.
// Both are written inside the Grant transaction; neither is the
// authoritative source for quota enforcement (the engine sums the ledger
// and inventory partitions instead).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AddDailyGranted bumps the granted-today bookkeeping row for (player, item)
// in the given daily limits partition, inserting it on first grant.
func AddDailyGranted(ctx context.Context, tx *gorm.DB, table, playerID, itemID string, amount int64) error {
	return addGranted(ctx, tx, table, "granted", playerID, itemID, amount)
}

// AddTotalGranted bumps the lifetime bookkeeping row for (player, item) in
// the owner's permanent limits partition, inserting it on first grant.
func AddTotalGranted(ctx context.Context, tx *gorm.DB, table, playerID, itemID string, amount int64) error {
	return addGranted(ctx, tx, table, "total_granted", playerID, itemID, amount)
}

func addGranted(ctx context.Context, tx *gorm.DB, table, column, playerID, itemID string, amount int64) error {
	now := time.Now().UTC()
	res := tx.WithContext(ctx).Table(table).
		Where("player_id = ? AND item_id = ?", playerID, itemID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	err := tx.WithContext(ctx).Table(table).Create(map[string]any{
		"id":         uuid.NewString(),
		"player_id":  playerID,
		"item_id":    itemID,
		column:       amount,
		"created_at": now,
		"updated_at": now,
	}).Error
	if err == nil {
		return nil
	}
	// Lost a first-insert race; fold into the winner's row.
	if isUniqueViolation(err) {
		return tx.WithContext(ctx).Table(table).
			Where("player_id = ? AND item_id = ?", playerID, itemID).
			Updates(map[string]any{
				column:       gorm.Expr(column+" + ?", amount),
				"updated_at": now,
			}).Error
	}
	return err
}

// isUniqueViolation detects unique-constraint failures across the dialects
// in play. glebarez/sqlite often returns plain-text errors.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate entry")
}
