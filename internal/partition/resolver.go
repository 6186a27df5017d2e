// Range resolver: maps a (owner, optional time window) pair to the list of
// partitions a query should read. Every candidate is filtered against the
// catalog so that queries never reference partitions that were never
// provisioned.
package partition

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

// Window is an inclusive [Start, End] query time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// ResolveInventory returns the inventory partition names to read for an
// owner, oldest bucket first.
//
// With no window the resolver enumerates every PLAYER_ITEMS partition ever
// catalogued for the owner. This full historical scan is intentional and
// asymmetric with the ledger default: a player's holdings may sit in any
// past month, while ledger reads default to the current day.
func ResolveInventory(ctx context.Context, db *gorm.DB, owner domain.Owner, window *Window) ([]string, error) {
	metas, err := ListPartitions(ctx, db, owner, domain.PartitionPlayerItems)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return physical(db, tableNames(metas)), nil
	}
	return physical(db, filterByBucket(metas, MonthKey(window.Start), MonthKey(window.End))), nil
}

// ResolveLedger returns the ledger partition names to read for an owner,
// oldest bucket first. With no window only the current day's partition is a
// candidate; with a window the resolver keeps every catalogued day bucket
// inside it.
func ResolveLedger(ctx context.Context, db *gorm.DB, owner domain.Owner, window *Window, now time.Time) ([]string, error) {
	metas, err := ListPartitions(ctx, db, owner, domain.PartitionItemRecords)
	if err != nil {
		return nil, err
	}
	if window == nil {
		today := DayKey(now)
		return physical(db, filterByBucket(metas, today, today)), nil
	}
	return physical(db, filterByBucket(metas, DayKey(window.Start), DayKey(window.End))), nil
}

// ResolveLedgerHistory returns every catalogued ledger partition for the
// owner. The idempotency scan uses it: key uniqueness is scoped to the
// lifetime of ledger history, not to any one bucket.
func ResolveLedgerHistory(ctx context.Context, db *gorm.DB, owner domain.Owner) ([]string, error) {
	metas, err := ListPartitions(ctx, db, owner, domain.PartitionItemRecords)
	if err != nil {
		return nil, err
	}
	return physical(db, tableNames(metas)), nil
}

// Reversed returns the names newest bucket first. Latest-record lookups walk
// partitions in this order and stop at the first hit.
func Reversed(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

// filterByBucket keeps partitions whose bucket key falls inside [from, to].
// Bucket keys are fixed-width digit strings, so string comparison is
// chronological comparison.
func filterByBucket(metas []domain.PartitionMeta, from, to string) []string {
	var out []string
	for _, m := range metas {
		if m.BucketKey >= from && m.BucketKey <= to {
			out = append(out, m.TableName_)
		}
	}
	return out
}

// physical drops candidates whose table is no longer physically present
// (operator drift not yet repaired by a write).
func physical(db *gorm.DB, names []string) []string {
	out := names[:0]
	for _, n := range names {
		if db.Migrator().HasTable(n) {
			out = append(out, n)
		}
	}
	return out
}

func tableNames(metas []domain.PartitionMeta) []string {
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.TableName_)
	}
	return out
}
