// Catalog access: free functions over (ctx, *gorm.DB), matching the thin
// repository approach used everywhere else in this codebase. No business
// logic here; drift repair lives in the Store.
package partition

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

// ErrNotFound is returned when a requested catalog row does not exist.
// It aliases gorm.ErrRecordNotFound for consistency with the repo package.
var ErrNotFound = gorm.ErrRecordNotFound

// FindPartition fetches the catalog row for a physical table name, or
// ErrNotFound.
func FindPartition(ctx context.Context, db *gorm.DB, tableName string) (*domain.PartitionMeta, error) {
	var meta domain.PartitionMeta
	err := db.WithContext(ctx).
		Where("table_name = ?", tableName).
		First(&meta).Error
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListPartitions returns every catalogued partition of one type for an owner,
// ordered by bucket key ascending (oldest bucket first). Bucket keys are
// fixed-width digit strings, so lexical order is chronological order.
func ListPartitions(ctx context.Context, db *gorm.DB, owner domain.Owner, partitionType string) ([]domain.PartitionMeta, error) {
	var out []domain.PartitionMeta
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND app_id = ? AND partition_type = ? AND status = ?",
			owner.MerchantID, owner.AppID, partitionType, domain.PartitionStatusActive).
		Order("bucket_key asc").
		Find(&out).Error
	return out, err
}

// DeletePartitionMeta removes a catalog row by physical table name. Used only
// by the Store's drift-repair path.
func DeletePartitionMeta(ctx context.Context, db *gorm.DB, tableName string) error {
	return db.WithContext(ctx).
		Where("table_name = ?", tableName).
		Delete(&domain.PartitionMeta{}).Error
}

// createPartitionMeta inserts the catalog row for a freshly created physical
// partition. Callers run it inside the same transaction as the DDL.
func createPartitionMeta(ctx context.Context, tx *gorm.DB, owner domain.Owner, partitionType, tableName, bucketKey string) error {
	meta := &domain.PartitionMeta{
		ID:            uuid.NewString(),
		PartitionType: partitionType,
		MerchantID:    owner.MerchantID,
		AppID:         owner.AppID,
		TableName_:    tableName,
		BucketKey:     bucketKey,
		Status:        domain.PartitionStatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(meta).Error
}
