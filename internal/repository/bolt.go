package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"github.com/mr1hm/disaster-response/internal/models"
)

var (
	bucketReports       = []byte("reports")
	bucketSubscriptions = []byte("subscriptions")
)

// BoltDB stores reports under big-endian sequence keys so that a cursor
// walks them in insertion order.
type BoltDB struct {
	db    *bolt.DB
	clock clockwork.Clock
}

func NewBoltDB(path string, opts ...Option) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReports, bucketSubscriptions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltDB{db: db, clock: buildOptions(opts).clock}, nil
}

func (s *BoltDB) Append(ctx context.Context, r *models.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", persistenceError("append", err)
	}

	id := uuid.NewString()
	createdAt := s.clock.Now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		stored := *r
		stored.ID = id
		stored.CreatedAt = createdAt
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return "", persistenceError("append", err)
	}

	r.ID = id
	r.CreatedAt = createdAt
	return id, nil
}

func (s *BoltDB) ListAll(ctx context.Context) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("list", err)
	}

	reports := []models.Report{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(_, v []byte) error {
			var r models.Report
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			reports = append(reports, r)
			return nil
		})
	})
	if err != nil {
		return nil, persistenceError("list", err)
	}
	return reports, nil
}

func (s *BoltDB) AddSubscription(ctx context.Context, sub *models.Subscription) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, persistenceError("subscribe", err)
	}

	created := false
	now := s.clock.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions)
		key := []byte(sub.Phone)
		if b.Get(key) != nil {
			return nil
		}
		data, err := json.Marshal(models.Subscription{Phone: sub.Phone, CreatedAt: now})
		if err != nil {
			return err
		}
		created = true
		return b.Put(key, data)
	})
	if err != nil {
		return false, persistenceError("subscribe", err)
	}
	if created {
		sub.CreatedAt = now
	}
	return created, nil
}

func (s *BoltDB) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("list subscriptions", err)
	}

	subs := []models.Subscription{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).ForEach(func(_, v []byte) error {
			var sub models.Subscription
			if err := json.Unmarshal(v, &sub); err != nil {
				return err
			}
			subs = append(subs, sub)
			return nil
		})
	})
	if err != nil {
		return nil, persistenceError("list subscriptions", err)
	}
	return subs, nil
}

// Ping fails once the database has been closed.
func (s *BoltDB) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return persistenceError("ping", err)
	}
	if err := s.db.View(func(*bolt.Tx) error { return nil }); err != nil {
		return persistenceError("ping", err)
	}
	return nil
}

func (s *BoltDB) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
