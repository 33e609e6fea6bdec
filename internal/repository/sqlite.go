package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/mr1hm/disaster-response/internal/models"
)

type SQLiteDB struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLiteDB(path string, opts ...Option) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db:    db,
		clock: buildOptions(opts).clock,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			location TEXT NOT NULL,
			disaster_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			phone TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Append(ctx context.Context, r *models.Report) (string, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = s.clock.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, location, disaster_type, severity, lat, lon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Location, string(r.DisasterType), string(r.Severity), r.Lat, r.Lon, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		r.ID = ""
		return "", persistenceError("append", err)
	}
	return r.ID, nil
}

func (s *SQLiteDB) ListAll(ctx context.Context) ([]models.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location, disaster_type, severity, lat, lon, created_at
		FROM reports ORDER BY seq`)
	if err != nil {
		return nil, persistenceError("list", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var (
			r         models.Report
			category  string
			severity  string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Location, &category, &severity, &r.Lat, &r.Lon, &createdAt); err != nil {
			return nil, persistenceError("list", err)
		}
		r.DisasterType = models.Category(category)
		r.Severity = models.Severity(severity)
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list", err)
	}
	return reports, nil
}

func (s *SQLiteDB) AddSubscription(ctx context.Context, sub *models.Subscription) (bool, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (phone, created_at) VALUES (?, ?)`,
		sub.Phone, now.UnixNano(),
	)
	if err != nil {
		return false, persistenceError("subscribe", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistenceError("subscribe", err)
	}
	if n > 0 {
		sub.CreatedAt = now
	}
	return n > 0, nil
}

func (s *SQLiteDB) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phone, created_at FROM subscriptions ORDER BY created_at, phone`)
	if err != nil {
		return nil, persistenceError("list subscriptions", err)
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		var (
			sub       models.Subscription
			createdAt int64
		)
		if err := rows.Scan(&sub.Phone, &createdAt); err != nil {
			return nil, persistenceError("list subscriptions", err)
		}
		sub.CreatedAt = time.Unix(0, createdAt).UTC()
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list subscriptions", err)
	}
	return subs, nil
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistenceError("ping", err)
	}
	return nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
