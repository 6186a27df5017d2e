// Package repo implements the data persistence layer of the item ledger,
// backed by GORM. This file provides lookups for the two read-only
// collaborator entities the core consumes (apps and item templates) plus
// the single template write the core owns: the normal->expired lifecycle
// flip for templates whose absolute expiry has passed.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for convenience and consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetApp fetches the owning application for an owner pair, or ErrNotFound.
func GetApp(ctx context.Context, db *gorm.DB, owner domain.Owner) (*domain.App, error) {
	var app domain.App
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND app_id = ?", owner.MerchantID, owner.AppID).
		First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// GetTemplate fetches one item template scoped to its owner, or ErrNotFound.
func GetTemplate(ctx context.Context, db *gorm.DB, owner domain.Owner, itemID string) (*domain.ItemTemplate, error) {
	var tpl domain.ItemTemplate
	err := db.WithContext(ctx).
		Where("id = ? AND merchant_id = ? AND app_id = ?", itemID, owner.MerchantID, owner.AppID).
		First(&tpl).Error
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListTemplates returns the owner's templates for the given item ids, keyed
// by id. Missing ids are simply absent from the map.
func ListTemplates(ctx context.Context, db *gorm.DB, owner domain.Owner, itemIDs []string) (map[string]*domain.ItemTemplate, error) {
	out := make(map[string]*domain.ItemTemplate, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	var tpls []domain.ItemTemplate
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND app_id = ? AND id IN ?", owner.MerchantID, owner.AppID, itemIDs).
		Find(&tpls).Error
	if err != nil {
		return nil, err
	}
	for i := range tpls {
		out[tpls[i].ID] = &tpls[i]
	}
	return out, nil
}

// ExpireOverdueTemplates flips every still-normal template of the owner
// whose absolute expire_date has passed to the expired state, so reads later
// in the same transaction see consistent lifecycle state. Returns the number
// of templates flipped.
func ExpireOverdueTemplates(ctx context.Context, db *gorm.DB, owner domain.Owner, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ItemTemplate{}).
		Where("merchant_id = ? AND app_id = ? AND state = ? AND expire_date IS NOT NULL AND expire_date <= ?",
			owner.MerchantID, owner.AppID, domain.StateNormal, now).
		Update("state", domain.StateExpired)
	return res.RowsAffected, res.Error
}
