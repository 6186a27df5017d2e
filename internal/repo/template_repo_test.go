package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-item-ledger/internal/domain"
)

func seedApp(t *testing.T, db *gorm.DB, owner domain.Owner, enabled bool) {
	t.Helper()
	app := &domain.App{
		ID:         "a-" + owner.AppID,
		MerchantID: owner.MerchantID,
		AppID:      owner.AppID,
		Name:       "test app",
		Enabled:    enabled,
	}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("seed app: %v", err)
	}
}

func TestGetApp(t *testing.T) {
	db := newRepoDB(t, &domain.App{})
	owner := repoOwner()
	seedApp(t, db, owner, true)

	app, err := GetApp(context.Background(), db, owner)
	if err != nil {
		t.Fatalf("GetApp: %v", err)
	}
	if app.AppID != owner.AppID || !app.Enabled {
		t.Fatalf("unexpected app: %+v", app)
	}

	_, err = GetApp(context.Background(), db, domain.Owner{MerchantID: "m1", AppID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTemplate_ScopedToOwner(t *testing.T) {
	db := newRepoDB(t, &domain.ItemTemplate{})
	owner := repoOwner()

	tpl := &domain.ItemTemplate{
		ID:         "sword",
		MerchantID: owner.MerchantID,
		AppID:      owner.AppID,
		Name:       "Sword",
		Active:     true,
		State:      domain.StateNormal,
	}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	got, err := GetTemplate(context.Background(), db, owner, "sword")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.Name != "Sword" {
		t.Fatalf("unexpected template: %+v", got)
	}

	// Same id under a different owner must not leak.
	_, err = GetTemplate(context.Background(), db, domain.Owner{MerchantID: "m2", AppID: "app2"}, "sword")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across owners, got %v", err)
	}
}

func TestListTemplates_MissingIDsAbsent(t *testing.T) {
	db := newRepoDB(t, &domain.ItemTemplate{})
	owner := repoOwner()

	for _, id := range []string{"sword", "shield"} {
		tpl := &domain.ItemTemplate{
			ID: id, MerchantID: owner.MerchantID, AppID: owner.AppID,
			Name: id, Active: true, State: domain.StateNormal,
		}
		if err := db.Create(tpl).Error; err != nil {
			t.Fatalf("seed template: %v", err)
		}
	}

	got, err := ListTemplates(context.Background(), db, owner, []string{"sword", "potion"})
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(got) != 1 || got["sword"] == nil {
		t.Fatalf("unexpected map: %+v", got)
	}
	if _, ok := got["potion"]; ok {
		t.Fatalf("missing id should be absent from the map")
	}

	empty, err := ListTemplates(context.Background(), db, owner, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty id list: map=%v err=%v", empty, err)
	}
}

func TestExpireOverdueTemplates_FlipsOnlyOverdueNormal(t *testing.T) {
	db := newRepoDB(t, &domain.ItemTemplate{})
	owner := repoOwner()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	seed := []domain.ItemTemplate{
		{ID: "overdue", State: domain.StateNormal, ExpireDate: &past},
		{ID: "future", State: domain.StateNormal, ExpireDate: &future},
		{ID: "no-expiry", State: domain.StateNormal},
		{ID: "deleted", State: domain.StateDeleted, ExpireDate: &past},
	}
	for i := range seed {
		seed[i].MerchantID = owner.MerchantID
		seed[i].AppID = owner.AppID
		seed[i].Name = seed[i].ID
		seed[i].Active = true
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed template: %v", err)
		}
	}

	flipped, err := ExpireOverdueTemplates(context.Background(), db, owner, now)
	if err != nil {
		t.Fatalf("ExpireOverdueTemplates: %v", err)
	}
	if flipped != 1 {
		t.Fatalf("flipped = %d, want 1", flipped)
	}

	wantStates := map[string]string{
		"overdue":   domain.StateExpired,
		"future":    domain.StateNormal,
		"no-expiry": domain.StateNormal,
		"deleted":   domain.StateDeleted,
	}
	for id, want := range wantStates {
		var tpl domain.ItemTemplate
		if err := db.First(&tpl, "id = ?", id).Error; err != nil {
			t.Fatalf("load %q: %v", id, err)
		}
		if tpl.State != want {
			t.Fatalf("template %q state = %q, want %q", id, tpl.State, want)
		}
	}
}
