// Package services – QueryService
//
// This file implements the cross-partition query aggregator. It resolves
// which inventory partitions a (player, time-range) query must read, fans
// out, and overlays computed status on the raw rows: the entry's own expiry,
// template-derived overrides, and an in-line expire sweep so callers never
// observe a usable row whose owning template has in fact expired.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-item-ledger/internal/domain"
	"github.com/tbourn/go-item-ledger/internal/partition"
	"github.com/tbourn/go-item-ledger/internal/repo"
)

// Unusable-reason strings attached by the template overlay.
const (
	ReasonTemplateMissing  = "item template missing"
	ReasonTemplateInactive = "item inactive"
	ReasonTemplateDeleted  = "item deleted"
	ReasonTemplateExpired  = "item expired"
)

// QueryService aggregates player inventory across partitions.
type QueryService struct {
	// DB is the GORM handle used for reads.
	DB *gorm.DB
	// Engine runs the opportunistic expire sweep on rows the overlay finds
	// under an expired template.
	Engine *LedgerService
}

// NewQueryService constructs a QueryService sharing the engine's handle.
func NewQueryService(engine *LedgerService) *QueryService {
	return &QueryService{DB: engine.DB, Engine: engine}
}

// GetPlayerItems returns the player's inventory for an owner, optionally
// restricted to a time window and/or a single item.
//
// With no window every catalogued inventory partition is read (full
// historical scan); with a window only the month buckets inside it are.
// Rows under a template whose absolute expiry has passed are swept (zeroed
// and marked unusable) before being returned; if the sweep itself fails the
// rows are still reported unusable with amount 0, and the failure is logged.
// The latest idempotency key per item is resolved best-effort and never
// fails the query.
func (s *QueryService) GetPlayerItems(ctx context.Context, owner domain.Owner, playerID string, window *partition.Window, itemID string) ([]domain.PlayerItem, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "GetPlayerItems",
		trace.WithAttributes(
			attribute.String("app.id", owner.AppID),
			attribute.String("player.id", playerID),
		),
	)
	defer span.End()

	if owner.MerchantID == "" || owner.AppID == "" {
		return nil, ErrMissingOwner
	}
	if playerID == "" {
		return nil, ErrMissingPlayer
	}
	now := s.Engine.Now()

	tables, err := partition.ResolveInventory(ctx, s.DB, owner, window)
	if err != nil {
		return nil, err
	}
	entries, err := repo.ListEntries(ctx, s.DB, tables, owner, playerID, itemID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []domain.PlayerItem{}, nil
	}

	tpls, err := repo.ListTemplates(ctx, s.DB, owner, distinctItemIDs(entries))
	if err != nil {
		return nil, err
	}

	// Sweep rows whose owning template has expired, so persisted state
	// catches up with what this read is about to report.
	if _, serr := s.Engine.ExpireSweep(ctx, owner, entries, now); serr != nil {
		log.Warn().Err(serr).
			Str("app_id", owner.AppID).
			Str("player_id", playerID).
			Msg("opportunistic expire sweep failed")
	}

	items := make([]domain.PlayerItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, overlay(e, tpls[e.ItemID], now))
	}

	s.attachLatestKeys(ctx, owner, playerID, items)
	return items, nil
}

// overlay computes the usability verdict for one entry:
//  1. the entry's own expire time;
//  2. template-derived overrides (inactive, deleted, template expiry), which
//     force the entry unusable and attach a reason;
//  3. the in-memory expire-sweep effect: a template past its absolute expiry
//     zeroes the reported amount even if the persisted sweep failed.
func overlay(e domain.InventoryEntry, tpl *domain.ItemTemplate, now time.Time) domain.PlayerItem {
	item := domain.PlayerItem{InventoryEntry: e}
	item.Usable = e.Status == domain.EntryUsable && !e.Expired(now) && e.Amount > 0

	switch {
	case tpl == nil:
		item.Usable = false
		item.Reason = ReasonTemplateMissing
	case tpl.ExpireDate != nil && !tpl.ExpireDate.After(now):
		// Sweep effect, applied in memory regardless of whether the
		// persisted sweep succeeded.
		item.Usable = false
		item.Reason = ReasonTemplateExpired
		item.Amount = 0
		item.Status = domain.EntryUnusable
	case tpl.State == domain.StateDeleted || tpl.State == domain.StatePendingDelete:
		item.Usable = false
		item.Reason = ReasonTemplateDeleted
	case tpl.State == domain.StateExpired:
		item.Usable = false
		item.Reason = ReasonTemplateExpired
	case !tpl.Active:
		item.Usable = false
		item.Reason = ReasonTemplateInactive
	}
	return item
}

// attachLatestKeys resolves, best-effort, the newest idempotency key
// recorded against each distinct item in the result set. Failures leave the
// field empty.
func (s *QueryService) attachLatestKeys(ctx context.Context, owner domain.Owner, playerID string, items []domain.PlayerItem) {
	history, err := partition.ResolveLedgerHistory(ctx, s.DB, owner)
	if err != nil {
		log.Warn().Err(err).Str("app_id", owner.AppID).Msg("latest-key resolution skipped")
		return
	}
	newestFirst := partition.Reversed(history)

	keys := make(map[string]string)
	for i := range items {
		itemID := items[i].ItemID
		key, ok := keys[itemID]
		if !ok {
			key = repo.LatestIdempotencyKey(ctx, s.DB, newestFirst, owner, playerID, itemID)
			keys[itemID] = key
		}
		items[i].LastIdempotencyKey = key
	}
}
