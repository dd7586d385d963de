package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"drop-match-api/internal/models"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	dbPath := "./test_" + uuid.New().String() + ".db"
	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func TestListDueDrops_SubsecondNow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

	drop := models.Drop{
		ID:                   uuid.New().String(),
		Title:                "Boundary Drop",
		StartTime:            start,
		RegistrationDeadline: start.Add(-2 * time.Hour),
		Location:             "downtown",
		PriceRange:           models.PriceModerate,
		MaxParticipants:      10,
		Status:               models.DropUpcoming,
	}
	if err := db.UpsertDrop(ctx, drop); err != nil {
		t.Fatalf("Failed to upsert drop: %v", err)
	}

	// Exactly at the start instant.
	due, err := db.ListDueDrops(ctx, start)
	if err != nil {
		t.Fatalf("ListDueDrops failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("Expected drop due at its start instant, got %d drops", len(due))
	}

	// Half a second into the start second. The stored TEXT timestamps must
	// compare chronologically even when now carries a fractional second.
	due, err = db.ListDueDrops(ctx, start.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("ListDueDrops failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("Expected drop due within its start second, got %d drops", len(due))
	}

	// Before the start it stays invisible.
	due, err = db.ListDueDrops(ctx, start.Add(-time.Second))
	if err != nil {
		t.Fatalf("ListDueDrops failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("Expected no due drops before start, got %d", len(due))
	}
}

func TestListActiveRegistrations_OrderedByRegistration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	dropID := uuid.New().String()
	base := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	// Inserted out of order; reads must come back in registration order.
	ids := []string{uuid.New().String(), uuid.New().String(), uuid.New().String()}
	for i, offset := range []int{2, 0, 1} {
		err := db.CreateRegistration(ctx, models.Registration{
			DropID:       dropID,
			UserID:       ids[i],
			Status:       models.RegistrationActive,
			RegisteredAt: base.Add(time.Duration(offset) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Failed to create registration: %v", err)
		}
	}

	regs, err := db.ListActiveRegistrations(ctx, dropID)
	if err != nil {
		t.Fatalf("ListActiveRegistrations failed: %v", err)
	}
	if len(regs) != 3 {
		t.Fatalf("Expected 3 registrations, got %d", len(regs))
	}
	want := []string{ids[1], ids[2], ids[0]}
	for i, reg := range regs {
		if reg.UserID != want[i] {
			t.Fatalf("Registration %d out of order: got %s, want %s", i, reg.UserID, want[i])
		}
	}
}
