// Store: the provisioning side of the partition-routing layer. A Store
// guarantees that a named partition physically exists and matches its
// catalog entry before the engine writes into it, and repairs catalog /
// physical drift caused by operator intervention.
package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

// Store wraps the database handle with partition provisioning. It is safe
// for concurrent use; all state lives in the catalog table.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store over the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that route their own queries
// (repo functions take it explicitly).
func (s *Store) DB() *gorm.DB { return s.db }

// EnsureForWrite provisions every partition a mutating ledger operation at
// the given moment may touch for the owner: the monthly inventory partition,
// the daily ledger and daily-limit partitions, and the permanent
// lifetime-limit partition. The next day's ledger partition is provisioned
// as well, so a write straddling the UTC day rollover cannot fail on a
// missing partition. A zero at means "now".
func (s *Store) EnsureForWrite(ctx context.Context, owner domain.Owner, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := s.Ensure(ctx, owner, domain.PartitionPlayerItems, at); err != nil {
		return err
	}
	if _, err := s.Ensure(ctx, owner, domain.PartitionItemRecords, at); err != nil {
		return err
	}
	if _, err := s.Ensure(ctx, owner, domain.PartitionItemRecords, NextDay(at)); err != nil {
		return err
	}
	if _, err := s.Ensure(ctx, owner, domain.PartitionItemLimits, at); err != nil {
		return err
	}
	if _, err := s.Ensure(ctx, owner, domain.PartitionItemTotalLimits, at); err != nil {
		return err
	}
	return nil
}

// Ensure guarantees one partition of the given type exists for the owner at
// the given moment and returns its physical table name.
//
// Cases:
//   - no catalog row: create the physical table with its indexes and insert
//     the catalog row in one transaction;
//   - catalog row present and table present: nothing to do;
//   - catalog row present but table gone (drift): delete the stale row and
//     recreate both.
//
// A DDL failure is returned as-is and must abort the calling operation: the
// engine never writes into a partition whose existence was not durably
// confirmed.
func (s *Store) Ensure(ctx context.Context, owner domain.Owner, partitionType string, at time.Time) (string, error) {
	name, bucket := nameFor(owner.AppID, partitionType, at)

	meta, err := FindPartition(ctx, s.db, name)
	switch {
	case err == nil:
		if s.db.Migrator().HasTable(name) {
			return name, nil
		}
		// Catalog says the partition exists but the table is gone.
		log.Warn().
			Str("table", name).
			Str("partition_type", partitionType).
			Msg("partition drift detected, recreating")
		if err := DeletePartitionMeta(ctx, s.db, meta.TableName_); err != nil {
			return "", fmt.Errorf("delete stale catalog row for %s: %w", name, err)
		}
	case err == ErrNotFound:
		// fall through to creation
	default:
		return "", fmt.Errorf("catalog lookup for %s: %w", name, err)
	}

	if err := s.create(ctx, owner, partitionType, name, bucket); err != nil {
		return "", err
	}
	return name, nil
}

// Exists reports whether a partition is both catalogued and physically
// present. Read paths use it to skip candidates that were never provisioned.
func (s *Store) Exists(ctx context.Context, tableName string) bool {
	if _, err := FindPartition(ctx, s.db, tableName); err != nil {
		return false
	}
	return s.db.Migrator().HasTable(tableName)
}

// create runs the partition DDL and the catalog insert in one transaction so
// the two cannot diverge on a clean failure.
func (s *Store) create(ctx context.Context, owner domain.Owner, partitionType, name, bucket string) error {
	stmts, err := schemaFor(partitionType, name)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("create partition %s: %w", name, err)
			}
		}
		return createPartitionMeta(ctx, tx, owner, partitionType, name, bucket)
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("table", name).
		Str("partition_type", partitionType).
		Str("app_id", owner.AppID).
		Msg("partition provisioned")
	return nil
}

// nameFor maps (app, type, moment) to the deterministic table name and
// bucket key of the partition.
func nameFor(appID, partitionType string, at time.Time) (name, bucket string) {
	switch partitionType {
	case domain.PartitionPlayerItems:
		return PlayerItemsName(appID, at), MonthKey(at)
	case domain.PartitionItemRecords:
		return ItemRecordsName(appID, at), DayKey(at)
	case domain.PartitionItemLimits:
		return ItemLimitsName(appID, at), DayKey(at)
	case domain.PartitionItemTotalLimits:
		return ItemTotalLimitsName(appID), ""
	default:
		return "", ""
	}
}

// schemaFor returns the DDL for one partition type. Schemas are fixed:
// point lookup by player, filtering by (item, status), and range scans by
// time are all indexed.
func schemaFor(partitionType, name string) ([]string, error) {
	switch partitionType {
	case domain.PartitionPlayerItems:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id varchar(36) PRIMARY KEY,
				merchant_id varchar(64) NOT NULL,
				app_id varchar(64) NOT NULL,
				player_id varchar(64) NOT NULL,
				item_id varchar(64) NOT NULL,
				amount bigint NOT NULL,
				obtain_time datetime NOT NULL,
				expire_time datetime,
				status integer NOT NULL DEFAULT 1,
				created_at datetime,
				updated_at datetime
			)`, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_player ON %s (player_id)`, name, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_item_status ON %s (item_id, status)`, name, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_obtain ON %s (obtain_time)`, name, name),
		}, nil
	case domain.PartitionItemRecords:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id varchar(36) PRIMARY KEY,
				merchant_id varchar(64) NOT NULL,
				app_id varchar(64) NOT NULL,
				player_id varchar(64) NOT NULL,
				item_id varchar(64) NOT NULL,
				entry_id varchar(36) NOT NULL,
				amount bigint NOT NULL,
				record_type varchar(16) NOT NULL,
				idempotency_key varchar(128) NOT NULL,
				remark text,
				balance_after bigint NOT NULL,
				created_at datetime
			)`, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_player ON %s (player_id)`, name, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_idem ON %s (player_id, item_id, idempotency_key)`, name, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s (created_at)`, name, name),
		}, nil
	case domain.PartitionItemLimits:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id varchar(36) PRIMARY KEY,
				player_id varchar(64) NOT NULL,
				item_id varchar(64) NOT NULL,
				granted bigint NOT NULL DEFAULT 0,
				created_at datetime,
				updated_at datetime
			)`, name),
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS ux_%s_player_item ON %s (player_id, item_id)`, name, name),
		}, nil
	case domain.PartitionItemTotalLimits:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id varchar(36) PRIMARY KEY,
				player_id varchar(64) NOT NULL,
				item_id varchar(64) NOT NULL,
				total_granted bigint NOT NULL DEFAULT 0,
				created_at datetime,
				updated_at datetime
			)`, name),
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS ux_%s_player_item ON %s (player_id, item_id)`, name, name),
		}, nil
	default:
		return nil, fmt.Errorf("unknown partition type %q", partitionType)
	}
}
