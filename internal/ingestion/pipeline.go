// Package ingestion accepts hazard reports: validate, persist, then fan out
// to live viewers, mirrors and SMS subscribers.
package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/disaster-response/internal/hub"
	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/observability"
	"github.com/mr1hm/disaster-response/internal/repository"
)

const (
	mirrorTimeout = 5 * time.Second

	// maxMirrorsInFlight bounds background mirror writes. Beyond it a
	// report is not mirrored rather than holding up the submitter.
	maxMirrorsInFlight = 64
)

type Broadcaster interface {
	Publish(ctx context.Context, r models.Report) hub.PublishResult
}

// Mirror is a best-effort secondary publisher such as a Kafka topic.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, r models.Report) error
}

type Labeler interface {
	Label(ctx context.Context, lat, lon float64) string
}

type Notifier interface {
	NotifySubscribers(ctx context.Context, r models.Report) (int, error)
}

type Pipeline struct {
	reports     repository.ReportRepository
	broadcaster Broadcaster
	mirrors     []Mirror
	labeler     Labeler
	notifier    Notifier
	metrics     *observability.Metrics

	mirroring errgroup.Group
}

type Option func(*Pipeline)

func WithMirror(m Mirror) Option {
	return func(p *Pipeline) {
		p.mirrors = append(p.mirrors, m)
	}
}

func WithLabeler(l Labeler) Option {
	return func(p *Pipeline) {
		p.labeler = l
	}
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func NewPipeline(reports repository.ReportRepository, broadcaster Broadcaster, opts ...Option) *Pipeline {
	p := &Pipeline{
		reports:     reports,
		broadcaster: broadcaster,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.mirroring.SetLimit(maxMirrorsInFlight)
	return p
}

// Close waits for background mirror writes to finish. Call it before
// closing the mirrors themselves.
func (p *Pipeline) Close() {
	_ = p.mirroring.Wait()
}

// Submit validates and stores a report, then publishes it. Nothing is
// stored or published when validation fails, and nothing is published when
// the store write fails. Publish failures are logged; the report is still
// considered ingested. Mirrors are written in the background.
func (p *Pipeline) Submit(ctx context.Context, in models.ReportInput) (models.Report, error) {
	report, err := in.Validate()
	if err != nil {
		p.count("validation_error")
		return models.Report{}, err
	}

	if report.Location == "" {
		report.Location = p.label(ctx, report.Lat, report.Lon)
	}

	if _, err := p.reports.Append(ctx, &report); err != nil {
		p.count("persistence_error")
		var pe *models.PersistenceError
		if !errors.As(err, &pe) {
			err = &models.PersistenceError{Op: "append", Err: err}
		}
		slog.Error("error storing report", "error", err)
		return models.Report{}, err
	}
	p.count("stored")

	// The report is durable; fan-out must not be cut short by the caller
	// going away.
	fanoutCtx := context.WithoutCancel(ctx)

	res := p.broadcaster.Publish(fanoutCtx, report)
	if res.Failed > 0 {
		p.publishError("hub")
	}

	for _, m := range p.mirrors {
		started := p.mirroring.TryGo(func() error {
			mctx, cancel := context.WithTimeout(fanoutCtx, mirrorTimeout)
			defer cancel()
			if err := m.Mirror(mctx, report); err != nil {
				p.publishError(m.Name())
				slog.Warn("mirror publish failed", "mirror", m.Name(), "report_id", report.ID, "error", err)
			}
			return nil
		})
		if !started {
			p.publishError(m.Name())
			slog.Warn("mirror backlog full, report not mirrored", "mirror", m.Name(), "report_id", report.ID)
		}
	}

	if report.Severity == models.SeverityHigh && p.notifier != nil {
		if _, err := p.notifier.NotifySubscribers(fanoutCtx, report); err != nil {
			p.publishError("alerts")
			slog.Warn("subscriber alerts failed", "report_id", report.ID, "error", err)
		}
	}

	slog.Info("disaster reported",
		"id", report.ID,
		"type", report.DisasterType,
		"severity", report.Severity,
		"location", report.Location,
		"delivered", res.Delivered,
		"failed", res.Failed,
	)
	return report, nil
}

func (p *Pipeline) label(ctx context.Context, lat, lon float64) string {
	if p.labeler == nil {
		return models.UnknownCity
	}
	return p.labeler.Label(ctx, lat, lon)
}

func (p *Pipeline) count(outcome string) {
	if p.metrics != nil {
		p.metrics.ReportsIngested.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) publishError(publisher string) {
	if p.metrics != nil {
		p.metrics.PublishErrors.WithLabelValues(publisher).Inc()
	}
}
