package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-item-ledger/internal/domain"
	"github.com/tbourn/go-item-ledger/internal/partition"
)

// newRepoDB opens a throwaway SQLite database, optionally migrating the
// given static models. Shared by every test file in this package.
func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// provisionPartition creates one physical partition through the real store
// and returns its table name.
func provisionPartition(t *testing.T, db *gorm.DB, owner domain.Owner, partitionType string, at time.Time) string {
	t.Helper()
	name, err := partition.NewStore(db).Ensure(context.Background(), owner, partitionType, at)
	if err != nil {
		t.Fatalf("provision %s partition: %v", partitionType, err)
	}
	return name
}

func repoOwner() domain.Owner {
	return domain.Owner{MerchantID: "m1", AppID: "app1"}
}

func TestOpenSQLite_CreatesAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"apps", "item_templates", "partition_catalog"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("static table %q missing after migration", table)
		}
	}
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does", "not", "exist", "ledger.db")
	if _, err := OpenSQLite(path); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}
