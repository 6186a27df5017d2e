// Package repo implements the data persistence layer of the item ledger,
// backed by GORM. This file provides the inventory-entry operations that run
// against monthly PLAYER_ITEMS partitions. Every function takes the physical
// partition name(s) explicitly; routing decisions stay in the partition
// package and the service layer.
//
// Locking: the consume path must hold a row lock across its whole
// read-check-write sequence; it is the sole mechanism preventing two
// concurrent consumers from double-spending one entry. The lock clause is
// emitted only on dialects that support SELECT ... FOR UPDATE; on SQLite the
// single-writer transaction model gives the same guarantee.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

// forUpdate applies a FOR UPDATE row lock on dialects that understand it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// InsertEntry persists a new inventory entry into the given partition.
func InsertEntry(ctx context.Context, tx *gorm.DB, table string, e *domain.InventoryEntry) error {
	return tx.WithContext(ctx).Table(table).Create(e).Error
}

// SumEntryAmounts sums the live amounts held by (player, item) across the
// given inventory partitions. Used by the lifetime-quota check; a failure on
// any partition is an infrastructure error and aborts the caller.
func SumEntryAmounts(ctx context.Context, db *gorm.DB, tables []string, owner domain.Owner, playerID, itemID string) (int64, error) {
	var total int64
	for _, table := range tables {
		var sum int64
		err := db.WithContext(ctx).Table(table).
			Select("COALESCE(SUM(amount), 0)").
			Where("merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ?",
				owner.MerchantID, owner.AppID, playerID, itemID).
			Scan(&sum).Error
		if err != nil {
			return 0, err
		}
		total += sum
	}
	return total, nil
}

// LockEntryByID locks exactly the named entry, searching the given
// partitions oldest first. The entry must belong to (owner, player, item);
// anything else is ErrNotFound.
func LockEntryByID(ctx context.Context, tx *gorm.DB, tables []string, owner domain.Owner, playerID, itemID, entryID string) (*domain.InventoryEntry, error) {
	for _, table := range tables {
		var e domain.InventoryEntry
		err := forUpdate(tx.WithContext(ctx).Table(table)).
			Where("id = ? AND merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ?",
				entryID, owner.MerchantID, owner.AppID, playerID, itemID).
			First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e.Partition = table
		return &e, nil
	}
	return nil, ErrNotFound
}

// LockOldestEntry locks the single oldest (obtain_time ascending) entry with
// amount > 0 for (player, item), first-in-first-out. Partitions are visited
// oldest bucket first, so the first hit is the global oldest. Returns
// ErrNotFound when the player holds none of the item.
func LockOldestEntry(ctx context.Context, tx *gorm.DB, tables []string, owner domain.Owner, playerID, itemID string) (*domain.InventoryEntry, error) {
	for _, table := range tables {
		var e domain.InventoryEntry
		err := forUpdate(tx.WithContext(ctx).Table(table)).
			Where("merchant_id = ? AND app_id = ? AND player_id = ? AND item_id = ? AND amount > 0",
				owner.MerchantID, owner.AppID, playerID, itemID).
			Order("obtain_time asc").
			First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e.Partition = table
		return &e, nil
	}
	return nil, ErrNotFound
}

// UpdateEntryAmount writes the debited amount back to a locked entry.
func UpdateEntryAmount(ctx context.Context, tx *gorm.DB, table, entryID string, amount int64) error {
	return tx.WithContext(ctx).Table(table).
		Where("id = ?", entryID).
		Updates(map[string]any{"amount": amount, "updated_at": time.Now().UTC()}).Error
}

// DeleteEntry removes an entry row. Called exactly when a debit brings the
// amount to zero.
func DeleteEntry(ctx context.Context, tx *gorm.DB, table, entryID string) error {
	return tx.WithContext(ctx).Table(table).
		Where("id = ?", entryID).
		Delete(&domain.InventoryEntry{}).Error
}

// ZeroEntry zeroes an entry's amount and marks it unusable. The expire sweep
// keeps the row so reads can report the swept holding.
func ZeroEntry(ctx context.Context, tx *gorm.DB, table, entryID string) error {
	return tx.WithContext(ctx).Table(table).
		Where("id = ?", entryID).
		Updates(map[string]any{
			"amount":     0,
			"status":     domain.EntryUnusable,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListEntries reads all entries for a player across the given partitions,
// optionally filtered to one item, ordered oldest obtain_time first within
// each partition. Each returned entry carries the partition it came from.
func ListEntries(ctx context.Context, db *gorm.DB, tables []string, owner domain.Owner, playerID, itemID string) ([]domain.InventoryEntry, error) {
	var out []domain.InventoryEntry
	for _, table := range tables {
		q := db.WithContext(ctx).Table(table).
			Where("merchant_id = ? AND app_id = ? AND player_id = ?",
				owner.MerchantID, owner.AppID, playerID)
		if itemID != "" {
			q = q.Where("item_id = ?", itemID)
		}
		var rows []domain.InventoryEntry
		if err := q.Order("obtain_time asc").Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i].Partition = table
		}
		out = append(out, rows...)
	}
	return out, nil
}
