package partition

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

func TestResolveInventory_NoWindowScansAllMonths(t *testing.T) {
	db := newPartitionDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for _, m := range []time.Time{
		time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	} {
		if _, err := store.Ensure(ctx, testOwner(), domain.PartitionPlayerItems, m); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}

	names, err := ResolveInventory(ctx, db, testOwner(), nil)
	if err != nil {
		t.Fatalf("ResolveInventory: %v", err)
	}
	want := []string{
		"player_items_app1_202411",
		"player_items_app1_202501",
		"player_items_app1_202503",
	}
	if len(names) != len(want) {
		t.Fatalf("got %d partitions, want %d: %v", len(names), len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("position %d: %q, want %q", i, names[i], want[i])
		}
	}
}

func TestResolveInventory_WindowFiltersMonths(t *testing.T) {
	db := newPartitionDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for _, m := range []time.Time{
		time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	} {
		if _, err := store.Ensure(ctx, testOwner(), domain.PartitionPlayerItems, m); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}

	w := &Window{
		Start: time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	names, err := ResolveInventory(ctx, db, testOwner(), w)
	if err != nil {
		t.Fatalf("ResolveInventory: %v", err)
	}
	if len(names) != 1 || names[0] != "player_items_app1_202501" {
		t.Fatalf("window resolution wrong: %v", names)
	}
}

func TestResolveLedger_DefaultsToCurrentDay(t *testing.T) {
	db := newPartitionDB(t)
	store := NewStore(db)
	ctx := context.Background()

	today := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	for _, d := range []time.Time{today.AddDate(0, 0, -2), today.AddDate(0, 0, -1), today} {
		if _, err := store.Ensure(ctx, testOwner(), domain.PartitionItemRecords, d); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}

	names, err := ResolveLedger(ctx, db, testOwner(), nil, today)
	if err != nil {
		t.Fatalf("ResolveLedger: %v", err)
	}
	if len(names) != 1 || names[0] != "item_records_app1_20250615" {
		t.Fatalf("default resolution should be today only, got %v", names)
	}

	w := &Window{Start: today.AddDate(0, 0, -2), End: today}
	names, err = ResolveLedger(ctx, db, testOwner(), w, today)
	if err != nil {
		t.Fatalf("ResolveLedger window: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("window resolution should cover 3 days, got %v", names)
	}
}

func TestResolveLedgerHistory_AllDaysOldestFirst(t *testing.T) {
	db := newPartitionDB(t)
	store := NewStore(db)
	ctx := context.Background()

	days := []time.Time{
		time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range days {
		if _, err := store.Ensure(ctx, testOwner(), domain.PartitionItemRecords, d); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}

	names, err := ResolveLedgerHistory(ctx, db, testOwner())
	if err != nil {
		t.Fatalf("ResolveLedgerHistory: %v", err)
	}
	want := []string{
		"item_records_app1_20250613",
		"item_records_app1_20250614",
		"item_records_app1_20250615",
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("position %d: %q, want %q", i, names[i], want[i])
		}
	}

	rev := Reversed(names)
	if rev[0] != want[2] || rev[2] != want[0] {
		t.Fatalf("Reversed wrong: %v", rev)
	}
	// Reversed must not mutate its input.
	if names[0] != want[0] {
		t.Fatalf("Reversed mutated input: %v", names)
	}
}

func TestResolve_SkipsPhysicallyMissingTables(t *testing.T) {
	db := newPartitionDB(t)
	store := NewStore(db)
	ctx := context.Background()

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.Ensure(ctx, testOwner(), domain.PartitionPlayerItems, jan); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	dropped, err := store.Ensure(ctx, testOwner(), domain.PartitionPlayerItems, mar)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := db.Exec("DROP TABLE " + dropped).Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	names, err := ResolveInventory(ctx, db, testOwner(), nil)
	if err != nil {
		t.Fatalf("ResolveInventory: %v", err)
	}
	if len(names) != 1 || names[0] != "player_items_app1_202501" {
		t.Fatalf("dropped table should be skipped, got %v", names)
	}
}
