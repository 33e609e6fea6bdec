package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/observability"
	"github.com/mr1hm/disaster-response/internal/worker"
)

var ErrNotConfigured = errors.New("sms alerts are not configured")

type job struct {
	phone   string
	message string
}

// Dispatcher sends single alerts synchronously and subscriber fan-out
// through a bounded worker pool.
type Dispatcher struct {
	sender   Sender
	registry *Registry
	pool     *worker.Pool[job]
	metrics  *observability.Metrics
}

// NewDispatcher accepts a nil sender; every send then fails with
// ErrNotConfigured.
func NewDispatcher(sender Sender, registry *Registry, workers, bufferSize int, metrics *observability.Metrics) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		registry: registry,
		metrics:  metrics,
	}
	d.pool = worker.NewPool("alerts", workers, bufferSize, d.process)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop waits for queued alerts to be sent.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

func (d *Dispatcher) Enabled() bool {
	return d.sender != nil
}

// SendAlert validates the number and sends one SMS. An empty message is
// replaced with the default alert text.
func (d *Dispatcher) SendAlert(ctx context.Context, phone, message string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	if d.sender == nil {
		return ErrNotConfigured
	}
	if message == "" {
		message = models.DefaultAlertMessage
	}
	return d.send(ctx, phone, message)
}

// NotifySubscribers queues one alert per subscriber and returns how many
// were queued. Alerts that do not fit in the queue are dropped.
func (d *Dispatcher) NotifySubscribers(ctx context.Context, r models.Report) (int, error) {
	if d.sender == nil {
		return 0, nil
	}

	subs, err := d.registry.Subscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	message := alertMessage(r)
	queued := 0
	for _, s := range subs {
		if !d.pool.TrySubmit(job{phone: s.Phone, message: message}) {
			d.count("dropped")
			slog.Warn("alert queue full, dropping alert", "report_id", r.ID)
			continue
		}
		queued++
	}
	slog.Info("subscriber alerts queued", "report_id", r.ID, "queued", queued, "subscribers", len(subs))
	return queued, nil
}

func (d *Dispatcher) process(ctx context.Context, j job) error {
	return d.send(ctx, j.phone, j.message)
}

func (d *Dispatcher) send(ctx context.Context, phone, message string) error {
	if err := d.sender.Send(ctx, phone, message); err != nil {
		d.count("error")
		return fmt.Errorf("send alert: %w", err)
	}
	d.count("sent")
	return nil
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.AlertsSent.WithLabelValues(outcome).Inc()
	}
}

func alertMessage(r models.Report) string {
	loc := r.Location
	if loc == "" {
		loc = models.UnknownCity
	}
	return fmt.Sprintf("🚨 Disaster Alert! %s (%s severity) reported near %s. Stay safe!", r.DisasterType, r.Severity, loc)
}
