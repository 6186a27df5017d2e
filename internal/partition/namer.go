// Package partition implements the partition-routing layer of the ledger:
// a pure naming scheme for time-bucketed physical tables, the persistent
// catalog of provisioned partitions, the provisioning store that keeps the
// catalog and the physical schema in agreement, and the range resolver that
// maps a query window to the set of partitions worth reading.
package partition

import (
	"fmt"
	"time"
)

// Bucket granularities. Inventory partitions bucket by UTC year-month,
// ledger and daily-limit partitions by UTC year-day, and the lifetime-limit
// partition has no time component at all (one per owner, permanent).
const (
	GranularityMonth = "month"
	GranularityDay   = "day"
	GranularityNone  = "none"
)

// unixMillisThreshold separates second-resolution from millisecond-resolution
// unix timestamps. Values at or above it (2001-09-09 in milliseconds) are
// treated as milliseconds; anything plausible in seconds stays far below it.
const unixMillisThreshold = 1_000_000_000_000

// NormalizeUnix converts a caller-supplied unix timestamp, in seconds or
// milliseconds, to a UTC time. Non-positive input yields the zero time.
func NormalizeUnix(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	if ts >= unixMillisThreshold {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// MonthKey formats t as the yyyymm bucket key, in UTC.
func MonthKey(t time.Time) string { return t.UTC().Format("200601") }

// DayKey formats t as the yyyymmdd bucket key, in UTC.
func DayKey(t time.Time) string { return t.UTC().Format("20060102") }

// PlayerItemsName returns the monthly inventory partition name for an app at t.
func PlayerItemsName(appID string, t time.Time) string {
	return fmt.Sprintf("player_items_%s_%s", appID, MonthKey(t))
}

// ItemRecordsName returns the daily ledger partition name for an app at t.
func ItemRecordsName(appID string, t time.Time) string {
	return fmt.Sprintf("item_records_%s_%s", appID, DayKey(t))
}

// ItemLimitsName returns the daily quota-bookkeeping partition name for an
// app at t.
func ItemLimitsName(appID string, t time.Time) string {
	return fmt.Sprintf("item_limits_%s_%s", appID, DayKey(t))
}

// ItemTotalLimitsName returns the app's permanent lifetime-quota partition
// name. It carries no time bucket.
func ItemTotalLimitsName(appID string) string {
	return fmt.Sprintf("item_total_limits_%s", appID)
}

// NextDay advances t by one calendar day.
func NextDay(t time.Time) time.Time { return t.UTC().AddDate(0, 0, 1) }

// NextMonth advances t to the same instant one calendar month later.
func NextMonth(t time.Time) time.Time { return t.UTC().AddDate(0, 1, 0) }
