package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "pomon.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCycleRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := Cycle{
		StartedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		TruckCount:     12,
		AncillaryCount: 4,
		NewAlerts:      1,
	}
	second := Cycle{
		StartedAt: time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC),
		Error:     "API fetch error: PO status 500",
	}
	if err := db.RecordCycle(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordCycle(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListRecentCycles(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(got))
	}
	// Newest first.
	if got[0].Error != second.Error || !got[0].StartedAt.Equal(second.StartedAt) {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	if got[1].TruckCount != 12 || got[1].AncillaryCount != 4 || got[1].NewAlerts != 1 || got[1].Error != "" {
		t.Errorf("unexpected second row: %+v", got[1])
	}
}

func TestAlertRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := AlertRecord{
		EmittedAt:      time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
		PONumber:       "123",
		CreatedDate:    "2024-05-02",
		AncillaryTotal: 6,
		PalletsIn:      5,
		Diff:           1,
	}
	if err := db.RecordAlert(ctx, a); err != nil {
		t.Fatal(err)
	}
	// Missing created date stores as NULL and reads back empty.
	b := a
	b.PONumber = "456"
	b.CreatedDate = ""
	if err := db.RecordAlert(ctx, b); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListRecentAlerts(ctx, 0) // default limit
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	if got[0].PONumber != "456" || got[0].CreatedDate != "" {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	if got[1].PONumber != "123" || got[1].Diff != 1 || !got[1].EmittedAt.Equal(a.EmittedAt) {
		t.Errorf("unexpected second row: %+v", got[1])
	}
}

func TestListLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c := Cycle{StartedAt: time.Now().UTC(), TruckCount: i}
		if err := db.RecordCycle(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.ListRecentCycles(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 cycles, got %d", len(got))
	}
	if got[0].TruckCount != 4 {
		t.Errorf("expected newest cycle first, got %+v", got[0])
	}
}

func TestEmptyListsAreNotNil(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cycles, err := db.ListRecentCycles(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if cycles == nil {
		t.Error("ListRecentCycles must return an empty slice, not nil")
	}
	alerts, err := db.ListRecentAlerts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if alerts == nil {
		t.Error("ListRecentAlerts must return an empty slice, not nil")
	}
}
