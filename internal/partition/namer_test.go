package partition

import (
	"testing"
	"time"
)

func TestNormalizeUnix_Seconds(t *testing.T) {
	got := NormalizeUnix(1735732800) // 2025-01-01T12:00:00Z
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NormalizeUnix(seconds) = %v, want %v", got, want)
	}
}

func TestNormalizeUnix_Millis(t *testing.T) {
	got := NormalizeUnix(1735732800500)
	want := time.Date(2025, 1, 1, 12, 0, 0, int(500*time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NormalizeUnix(millis) = %v, want %v", got, want)
	}
}

func TestNormalizeUnix_NonPositive(t *testing.T) {
	if !NormalizeUnix(0).IsZero() {
		t.Fatalf("NormalizeUnix(0) should be zero time")
	}
	if !NormalizeUnix(-5).IsZero() {
		t.Fatalf("NormalizeUnix(-5) should be zero time")
	}
}

func TestBucketKeys_UTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("minus5", -5*3600)
	at := time.Date(2025, 3, 31, 23, 30, 0, 0, loc)

	if got := MonthKey(at); got != "202504" {
		t.Fatalf("MonthKey = %q, want 202504", got)
	}
	if got := DayKey(at); got != "20250401" {
		t.Fatalf("DayKey = %q, want 20250401", got)
	}
}

func TestPartitionNames_Deterministic(t *testing.T) {
	at := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	if a, b := PlayerItemsName("app1", at), PlayerItemsName("app1", at); a != b {
		t.Fatalf("same inputs produced different names: %q vs %q", a, b)
	}
	if got := PlayerItemsName("app1", at); got != "player_items_app1_202506" {
		t.Fatalf("PlayerItemsName = %q", got)
	}
	if got := ItemRecordsName("app1", at); got != "item_records_app1_20250615" {
		t.Fatalf("ItemRecordsName = %q", got)
	}
	if got := ItemLimitsName("app1", at); got != "item_limits_app1_20250615" {
		t.Fatalf("ItemLimitsName = %q", got)
	}
	if got := ItemTotalLimitsName("app1"); got != "item_total_limits_app1" {
		t.Fatalf("ItemTotalLimitsName = %q", got)
	}
}

func TestPlayerItemsName_MonthBoundary(t *testing.T) {
	lastOfJan := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	firstOfFeb := lastOfJan.Add(time.Second)

	jan := PlayerItemsName("app1", lastOfJan)
	feb := PlayerItemsName("app1", firstOfFeb)
	if jan == feb {
		t.Fatalf("adjacent months map to the same partition: %q", jan)
	}
}

func TestNextDayNextMonth(t *testing.T) {
	at := time.Date(2025, 12, 31, 10, 0, 0, 0, time.UTC)

	if got := DayKey(NextDay(at)); got != "20260101" {
		t.Fatalf("NextDay crossed year wrong: %q", got)
	}
	if got := MonthKey(NextMonth(at)); got != "202601" {
		t.Fatalf("NextMonth crossed year wrong: %q", got)
	}
}
