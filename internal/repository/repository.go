package repository

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-response/internal/models"
)

// ReportRepository is the append-only report log. Append assigns ID and
// CreatedAt; ListAll returns reports in insertion order.
type ReportRepository interface {
	Append(ctx context.Context, r *models.Report) (string, error)
	ListAll(ctx context.Context) ([]models.Report, error)
}

// SubscriptionRepository stores alert subscribers. AddSubscription reports
// false when the phone number was already subscribed.
type SubscriptionRepository interface {
	AddSubscription(ctx context.Context, s *models.Subscription) (bool, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is what the server wires against; both backends implement it.
type Store interface {
	ReportRepository
	SubscriptionRepository
	Pinger
	Close() error
}

type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock sets the clock used for CreatedAt timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open selects a backend by driver name.
func Open(driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteDB(dsn, opts...)
	case "bolt":
		return NewBoltDB(dsn, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}

func persistenceError(op string, err error) error {
	return &models.PersistenceError{Op: op, Err: err}
}
