package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-response/internal/models"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T, clock clockwork.Clock) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:", WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	return db
}

func setupTestBolt(t *testing.T, clock clockwork.Clock) *BoltDB {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "reports.db"), WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create test bolt db: %v", err)
	}
	return db
}

// backends runs fn against every store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store, clock *clockwork.FakeClock)) {
	t.Run("sqlite", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		db := setupTestDB(t, clock)
		defer db.Close()
		fn(t, db, clock)
	})
	t.Run("bolt", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		db := setupTestBolt(t, clock)
		defer db.Close()
		fn(t, db, clock)
	})
}

func TestStore_BayAreaRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store, _ *clockwork.FakeClock) {
		ctx := context.Background()
		report := &models.Report{
			Location:     "Bay Area",
			DisasterType: models.CategoryEarthquake,
			Severity:     models.SeverityHigh,
			Lat:          37.7749,
			Lon:          -122.4194,
		}

		id, err := s.Append(ctx, report)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if report.ID != id {
			t.Errorf("expected report.ID to be set to %s, got %s", id, report.ID)
		}

		all, err := s.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("expected 1 report, got %d", len(all))
		}

		got := all[0]
		if got.ID != id {
			t.Errorf("expected id %s, got %s", id, got.ID)
		}
		if got.Location != "Bay Area" || got.DisasterType != models.CategoryEarthquake || got.Severity != models.SeverityHigh {
			t.Errorf("unexpected report fields: %+v", got)
		}
		if got.Lat != 37.7749 || got.Lon != -122.4194 {
			t.Errorf("expected 37.7749,-122.4194, got %v,%v", got.Lat, got.Lon)
		}
		if !got.CreatedAt.Equal(epoch) {
			t.Errorf("expected createdAt %v, got %v", epoch, got.CreatedAt)
		}
	})
}

func TestStore_ListAllInsertionOrder(t *testing.T) {
	backends(t, func(t *testing.T, s Store, clock *clockwork.FakeClock) {
		ctx := context.Background()

		var ids []string
		for _, loc := range []string{"first", "second", "third"} {
			id, err := s.Append(ctx, &models.Report{
				Location:     loc,
				DisasterType: models.CategoryFlood,
				Severity:     models.SeverityLow,
			})
			if err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			ids = append(ids, id)
			clock.Advance(time.Second)
		}

		all, err := s.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 reports, got %d", len(all))
		}
		for i, r := range all {
			if r.ID != ids[i] {
				t.Errorf("position %d: expected %s, got %s", i, ids[i], r.ID)
			}
		}
	})
}

func TestStore_EmptyList(t *testing.T) {
	backends(t, func(t *testing.T, s Store, _ *clockwork.FakeClock) {
		all, err := s.ListAll(context.Background())
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if all == nil || len(all) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", all)
		}
	})
}

func TestStore_DuplicateReportsAccepted(t *testing.T) {
	backends(t, func(t *testing.T, s Store, _ *clockwork.FakeClock) {
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			if _, err := s.Append(ctx, &models.Report{Location: "same", DisasterType: models.CategoryFire, Severity: models.SeverityMedium}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}

		all, _ := s.ListAll(ctx)
		if len(all) != 2 {
			t.Errorf("expected 2 reports, got %d", len(all))
		}
		if all[0].ID == all[1].ID {
			t.Error("expected distinct ids")
		}
	})
}

func TestStore_ConcurrentAppend(t *testing.T) {
	backends(t, func(t *testing.T, s Store, _ *clockwork.FakeClock) {
		ctx := context.Background()
		var wg sync.WaitGroup

		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Append(ctx, &models.Report{DisasterType: models.CategoryOther, Severity: models.SeverityLow}); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}()
		}
		wg.Wait()

		all, err := s.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(all) != 25 {
			t.Errorf("expected 25 reports, got %d", len(all))
		}
	})
}

func TestStore_SubscriptionIdempotent(t *testing.T) {
	backends(t, func(t *testing.T, s Store, _ *clockwork.FakeClock) {
		ctx := context.Background()

		created, err := s.AddSubscription(ctx, &models.Subscription{Phone: "+14155551234"})
		if err != nil {
			t.Fatalf("AddSubscription failed: %v", err)
		}
		if !created {
			t.Error("expected first subscription to be created")
		}

		created, err = s.AddSubscription(ctx, &models.Subscription{Phone: "+14155551234"})
		if err != nil {
			t.Fatalf("AddSubscription failed: %v", err)
		}
		if created {
			t.Error("expected duplicate subscription not to be created")
		}

		if _, err := s.AddSubscription(ctx, &models.Subscription{Phone: "+442071838750"}); err != nil {
			t.Fatalf("AddSubscription failed: %v", err)
		}

		subs, err := s.ListSubscriptions(ctx)
		if err != nil {
			t.Fatalf("ListSubscriptions failed: %v", err)
		}
		if len(subs) != 2 {
			t.Errorf("expected 2 subscriptions, got %d", len(subs))
		}
		for _, sub := range subs {
			if !sub.CreatedAt.Equal(epoch) {
				t.Errorf("expected createdAt %v, got %v", epoch, sub.CreatedAt)
			}
		}
	})
}

func TestStore_ClosedStoreReturnsPersistenceError(t *testing.T) {
	backends(t, func(t *testing.T, s Store, _ *clockwork.FakeClock) {
		ctx := context.Background()
		s.Close()

		_, err := s.Append(ctx, &models.Report{DisasterType: models.CategoryFire, Severity: models.SeverityLow})
		var pe *models.PersistenceError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PersistenceError from Append, got %v", err)
		}
		if pe.Op != "append" {
			t.Errorf("expected op append, got %s", pe.Op)
		}

		if err := s.Ping(ctx); !errors.As(err, &pe) {
			t.Errorf("expected PersistenceError from Ping, got %v", err)
		}
	})
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "dsn"); err == nil {
		t.Error("expected error for unknown driver")
	}
}
