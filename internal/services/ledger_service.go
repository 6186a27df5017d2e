// Package services – LedgerService
//
// This file implements the ledger operations engine: idempotent Grant,
// idempotent Consume, and the opportunistic ExpireSweep. Every mutating
// operation validates its input, performs the idempotency scan as an
// unlocked read, and then runs all business checks and writes inside exactly
// one transaction, so a rejection never leaves partial state behind.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// owner/player/item identifiers. Outcomes feed the ledger_operations_total
// counter.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-item-ledger/internal/domain"
	"github.com/tbourn/go-item-ledger/internal/partition"
	"github.com/tbourn/go-item-ledger/internal/repo"
)

// LedgerService executes grant, consume, and expire operations against
// provisioned partitions.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store provisions partitions before any write.
	Store *partition.Store

	// Now supplies the current time; overridable in tests. Defaults to
	// time.Now in UTC.
	Now func() time.Time
}

// NewLedgerService constructs a LedgerService over the given handle and
// partition store.
func NewLedgerService(db *gorm.DB, store *partition.Store) *LedgerService {
	return &LedgerService{
		DB:    db,
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// GrantResult reports the outcome of a Grant call. On an idempotent replay
// Replayed is true, Record is the previously written ledger record, and
// Entry is nil: no new rows were created.
type GrantResult struct {
	Entry    *domain.InventoryEntry
	Record   *domain.LedgerRecord
	Replayed bool
}

// ConsumeResult reports the outcome of a Consume call. BalanceAfter is the
// amount remaining on the debited entry (0 means the entry row was deleted).
type ConsumeResult struct {
	EntryID      string
	BalanceAfter int64
	Record       *domain.LedgerRecord
	Replayed     bool
}

// Grant creates a new inventory entry for (player, item) and appends the
// matching GRANT ledger record, enforcing app status, template lifecycle,
// and daily/lifetime quotas. Repeated calls with the same idempotency key
// succeed without writing anything.
func (s *LedgerService) Grant(ctx context.Context, owner domain.Owner, playerID, itemID string, amount int64, remark, idempotencyKey string) (res *GrantResult, err error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Grant",
		trace.WithAttributes(
			attribute.String("app.id", owner.AppID),
			attribute.String("player.id", playerID),
			attribute.String("item.id", itemID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()
	defer func() { observe("grant", err, res != nil && res.Replayed) }()

	if err = validateMutation(owner, playerID, itemID, amount, idempotencyKey); err != nil {
		return nil, err
	}
	now := s.Now()

	if err = s.Store.EnsureForWrite(ctx, owner, now); err != nil {
		return nil, fmt.Errorf("ensure partitions: %w", err)
	}

	// Idempotency: unlocked scan over the whole ledger history. Two
	// concurrent first attempts with the same key can both pass here; that
	// race is an accepted limitation of the lifetime-scan design.
	if prior, scanErr := s.findPrior(ctx, owner, playerID, itemID, idempotencyKey); scanErr != nil {
		return nil, scanErr
	} else if prior != nil {
		return &GrantResult{Record: prior, Replayed: true}, nil
	}

	invTable := partition.PlayerItemsName(owner.AppID, now)
	ledgerTable := partition.ItemRecordsName(owner.AppID, now)
	limitsTable := partition.ItemLimitsName(owner.AppID, now)
	totalTable := partition.ItemTotalLimitsName(owner.AppID)

	// Flip overdue templates before the main transaction so the lifecycle
	// state persists even when the grant itself is rejected.
	if _, terr := repo.ExpireOverdueTemplates(ctx, s.DB, owner, now); terr != nil {
		return nil, terr
	}

	var entry *domain.InventoryEntry
	var record *domain.LedgerRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		app, aerr := repo.GetApp(ctx, tx, owner)
		if errors.Is(aerr, repo.ErrNotFound) {
			return ErrAppNotFound
		}
		if aerr != nil {
			return aerr
		}
		if !app.Enabled {
			return ErrAppDisabled
		}

		tpl, terr := repo.GetTemplate(ctx, tx, owner, itemID)
		if errors.Is(terr, repo.ErrNotFound) {
			return ErrTemplateNotFound
		}
		if terr != nil {
			return terr
		}
		if lerr := grantableState(tpl); lerr != nil {
			return lerr
		}

		if tpl.TotalLimit != nil {
			invTables, rerr := partition.ResolveInventory(ctx, tx, owner, nil)
			if rerr != nil {
				return rerr
			}
			held, serr := repo.SumEntryAmounts(ctx, tx, invTables, owner, playerID, itemID)
			if serr != nil {
				return serr
			}
			if held+amount > *tpl.TotalLimit {
				return &QuotaExceededError{Scope: QuotaLifetime, Granted: held, Requested: amount, Limit: *tpl.TotalLimit}
			}
		}

		if tpl.DailyLimitMax != nil {
			granted, serr := repo.SumDailyGrants(ctx, tx, ledgerTable, owner, playerID, itemID)
			if serr != nil {
				return serr
			}
			if granted+amount > *tpl.DailyLimitMax {
				return &QuotaExceededError{Scope: QuotaDaily, Granted: granted, Requested: amount, Limit: *tpl.DailyLimitMax}
			}
		}

		expiry := effectiveExpiry(tpl, now)
		status := domain.EntryUsable
		if expiry != nil && !expiry.After(now) {
			// Computed expiry already in the past: insert the entry as
			// immediately unusable rather than rejecting the grant.
			status = domain.EntryUnusable
		}

		entry = &domain.InventoryEntry{
			ID:         uuid.NewString(),
			MerchantID: owner.MerchantID,
			AppID:      owner.AppID,
			PlayerID:   playerID,
			ItemID:     itemID,
			Amount:     amount,
			ObtainTime: now,
			ExpireTime: expiry,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
			Partition:  invTable,
		}
		if ierr := repo.InsertEntry(ctx, tx, invTable, entry); ierr != nil {
			return ierr
		}

		record = &domain.LedgerRecord{
			MerchantID:     owner.MerchantID,
			AppID:          owner.AppID,
			PlayerID:       playerID,
			ItemID:         itemID,
			EntryID:        entry.ID,
			Amount:         amount,
			RecordType:     domain.RecordGrant,
			IdempotencyKey: idempotencyKey,
			Remark:         remark,
			BalanceAfter:   entry.Amount,
			CreatedAt:      now,
		}
		if rerr := repo.AppendRecord(ctx, tx, ledgerTable, record); rerr != nil {
			return rerr
		}

		// Quota bookkeeping rows; not consulted by the checks above.
		if berr := repo.AddDailyGranted(ctx, tx, limitsTable, playerID, itemID, amount); berr != nil {
			return berr
		}
		return repo.AddTotalGranted(ctx, tx, totalTable, playerID, itemID, amount)
	})
	if err != nil {
		return nil, err
	}
	res = &GrantResult{Entry: entry, Record: record}
	return res, nil
}

// Consume debits amount from one inventory entry of (player, item) and
// appends the matching CONSUME ledger record. With no explicit entry id the
// oldest-obtained entry with a positive amount is debited (FIFO). The entry
// row lock is held for the whole read-check-write sequence.
func (s *LedgerService) Consume(ctx context.Context, owner domain.Owner, playerID, itemID string, amount int64, entryID, remark, idempotencyKey string) (res *ConsumeResult, err error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Consume",
		trace.WithAttributes(
			attribute.String("app.id", owner.AppID),
			attribute.String("player.id", playerID),
			attribute.String("item.id", itemID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()
	defer func() { observe("consume", err, res != nil && res.Replayed) }()

	if err = validateMutation(owner, playerID, itemID, amount, idempotencyKey); err != nil {
		return nil, err
	}
	now := s.Now()

	if err = s.Store.EnsureForWrite(ctx, owner, now); err != nil {
		return nil, fmt.Errorf("ensure partitions: %w", err)
	}

	if prior, scanErr := s.findPrior(ctx, owner, playerID, itemID, idempotencyKey); scanErr != nil {
		return nil, scanErr
	} else if prior != nil {
		return &ConsumeResult{
			EntryID:      prior.EntryID,
			BalanceAfter: prior.BalanceAfter,
			Record:       prior,
			Replayed:     true,
		}, nil
	}

	ledgerTable := partition.ItemRecordsName(owner.AppID, now)

	var record *domain.LedgerRecord
	var debited *domain.InventoryEntry
	var remainder int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tpl, terr := repo.GetTemplate(ctx, tx, owner, itemID)
		if errors.Is(terr, repo.ErrNotFound) {
			return ErrTemplateNotFound
		}
		if terr != nil {
			return terr
		}
		if lerr := consumableState(tpl); lerr != nil {
			return lerr
		}

		invTables, rerr := partition.ResolveInventory(ctx, tx, owner, nil)
		if rerr != nil {
			return rerr
		}

		var lerr error
		if entryID != "" {
			debited, lerr = repo.LockEntryByID(ctx, tx, invTables, owner, playerID, itemID, entryID)
			if errors.Is(lerr, repo.ErrNotFound) {
				return ErrEntryNotFound
			}
		} else {
			debited, lerr = repo.LockOldestEntry(ctx, tx, invTables, owner, playerID, itemID)
			if errors.Is(lerr, repo.ErrNotFound) {
				return ErrNoItemHeld
			}
		}
		if lerr != nil {
			return lerr
		}

		if debited.Expired(now) {
			return ErrEntryExpired
		}
		if debited.Amount < amount {
			return &InsufficientBalanceError{Have: debited.Amount, Want: amount}
		}

		remainder = debited.Amount - amount
		if remainder == 0 {
			if derr := repo.DeleteEntry(ctx, tx, debited.Partition, debited.ID); derr != nil {
				return derr
			}
		} else {
			if uerr := repo.UpdateEntryAmount(ctx, tx, debited.Partition, debited.ID, remainder); uerr != nil {
				return uerr
			}
		}

		record = &domain.LedgerRecord{
			MerchantID:     owner.MerchantID,
			AppID:          owner.AppID,
			PlayerID:       playerID,
			ItemID:         itemID,
			EntryID:        debited.ID,
			Amount:         -amount,
			RecordType:     domain.RecordConsume,
			IdempotencyKey: idempotencyKey,
			Remark:         remark,
			BalanceAfter:   remainder,
			CreatedAt:      now,
		}
		return repo.AppendRecord(ctx, tx, ledgerTable, record)
	})
	if err != nil {
		return nil, err
	}
	res = &ConsumeResult{EntryID: debited.ID, BalanceAfter: remainder, Record: record}
	return res, nil
}

// ExpireSweep zeroes every given entry whose owning template has passed its
// absolute expiry, marks it unusable, and appends an EXPIRE ledger record
// per entry. The batch is all-or-nothing: it runs in one transaction and a
// failure rolls back every zeroing. Invoked opportunistically from reads,
// never on a schedule, so a failed batch is simply retried by the next read.
//
// Returns the number of entries swept.
func (s *LedgerService) ExpireSweep(ctx context.Context, owner domain.Owner, entries []domain.InventoryEntry, now time.Time) (swept int, err error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "ExpireSweep",
		trace.WithAttributes(attribute.String("app.id", owner.AppID)),
	)
	defer span.End()
	defer func() { observe("expire_sweep", err, false) }()

	targets, err := s.sweepTargets(ctx, owner, entries, now)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	ledgerTable, err := s.Store.Ensure(ctx, owner, domain.PartitionItemRecords, now)
	if err != nil {
		return 0, fmt.Errorf("ensure ledger partition: %w", err)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range targets {
			if zerr := repo.ZeroEntry(ctx, tx, e.Partition, e.ID); zerr != nil {
				return zerr
			}
			rec := &domain.LedgerRecord{
				MerchantID:   e.MerchantID,
				AppID:        e.AppID,
				PlayerID:     e.PlayerID,
				ItemID:       e.ItemID,
				EntryID:      e.ID,
				Amount:       -e.Amount,
				RecordType:   domain.RecordExpire,
				Remark:       "expired by template",
				BalanceAfter: 0,
				CreatedAt:    now,
			}
			if rerr := repo.AppendRecord(ctx, tx, ledgerTable, rec); rerr != nil {
				return rerr
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	sweptEntries.Add(float64(len(targets)))
	return len(targets), nil
}

// sweepTargets filters entries down to those whose owning template has
// passed its absolute expiry and which still hold a positive amount.
func (s *LedgerService) sweepTargets(ctx context.Context, owner domain.Owner, entries []domain.InventoryEntry, now time.Time) ([]domain.InventoryEntry, error) {
	ids := distinctItemIDs(entries)
	if len(ids) == 0 {
		return nil, nil
	}
	tpls, err := repo.ListTemplates(ctx, s.DB, owner, ids)
	if err != nil {
		return nil, err
	}
	var out []domain.InventoryEntry
	for _, e := range entries {
		if e.Amount <= 0 || e.Partition == "" {
			continue
		}
		tpl := tpls[e.ItemID]
		if tpl == nil || tpl.ExpireDate == nil || tpl.ExpireDate.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// findPrior runs the lifetime idempotency scan. The underlying partition
// scan swallows per-partition failures; only resolving the partition list
// itself can fail here.
func (s *LedgerService) findPrior(ctx context.Context, owner domain.Owner, playerID, itemID, key string) (*domain.LedgerRecord, error) {
	history, err := partition.ResolveLedgerHistory(ctx, s.DB, owner)
	if err != nil {
		return nil, err
	}
	return repo.FindByIdempotencyKey(ctx, s.DB, history, owner, playerID, itemID, key)
}

// grantableState rejects templates a grant may not target: inactive flag, or
// a lifecycle state other than normal.
func grantableState(tpl *domain.ItemTemplate) error {
	if !tpl.Active {
		return ErrTemplateInactive
	}
	switch tpl.State {
	case domain.StateNormal:
		return nil
	case domain.StateExpired:
		return ErrTemplateExpired
	default:
		return ErrTemplateDeleted
	}
}

// consumableState rejects templates a consume may not target. Same rules as
// grantableState today; kept separate so the two paths can diverge without
// touching each other.
func consumableState(tpl *domain.ItemTemplate) error {
	if !tpl.Active {
		return ErrTemplateInactive
	}
	switch tpl.State {
	case domain.StateNormal:
		return nil
	case domain.StateExpired:
		return ErrTemplateExpired
	default:
		return ErrTemplateDeleted
	}
}

// effectiveExpiry computes the entry expiry at grant time: the minimum of
// now + relative duration and the template's absolute expire date, over
// whichever are configured. Nil when neither is set.
func effectiveExpiry(tpl *domain.ItemTemplate, now time.Time) *time.Time {
	var candidates []time.Time
	if tpl.ExpireDurationHours != nil {
		candidates = append(candidates, now.Add(time.Duration(*tpl.ExpireDurationHours)*time.Hour))
	}
	if tpl.ExpireDate != nil {
		candidates = append(candidates, tpl.ExpireDate.UTC())
	}
	if len(candidates) == 0 {
		return nil
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(min) {
			min = c
		}
	}
	return &min
}

// validateMutation checks the shared preconditions of Grant and Consume.
func validateMutation(owner domain.Owner, playerID, itemID string, amount int64, key string) error {
	if owner.MerchantID == "" || owner.AppID == "" {
		return ErrMissingOwner
	}
	if playerID == "" {
		return ErrMissingPlayer
	}
	if itemID == "" {
		return ErrMissingItem
	}
	if amount <= 0 {
		return ErrAmountNotPositive
	}
	if key == "" {
		return ErrMissingIdempotencyKey
	}
	return nil
}

// distinctItemIDs returns the unique item ids of a batch, in first-seen order.
func distinctItemIDs(entries []domain.InventoryEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.ItemID]; ok {
			continue
		}
		seen[e.ItemID] = struct{}{}
		out = append(out, e.ItemID)
	}
	return out
}
