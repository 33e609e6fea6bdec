package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/disaster-response/internal/models"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var bayAreaReport = models.Report{
	ID:           "6f1c2b1e-0000-4000-8000-000000000001",
	Location:     "Bay Area",
	DisasterType: models.CategoryEarthquake,
	Severity:     models.SeverityHigh,
	Lat:          37.7749,
	Lon:          -122.4194,
	CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(bayAreaReport)
	require.NoError(t, err)

	assert.Equal(t, []byte(bayAreaReport.ID), msg.Key)
	assert.JSONEq(t, `{
		"id":"6f1c2b1e-0000-4000-8000-000000000001",
		"location":"Bay Area",
		"disasterType":"Earthquake",
		"severity":"High",
		"lat":37.7749,
		"lon":-122.4194,
		"createdAt":"2025-03-01T12:00:00Z"
	}`, string(msg.Value))

	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, []byte("new_disaster"), msg.Headers[0].Value)
	assert.Equal(t, []byte("Earthquake"), msg.Headers[1].Value)
	assert.Equal(t, []byte("High"), msg.Headers[2].Value)
	assert.Equal(t, []byte("2025-03-01T12:00:00Z"), msg.Headers[3].Value)
}

func TestKafkaMirror_Mirror(t *testing.T) {
	w := &fakeWriter{}
	m := &KafkaMirror{writer: w}

	require.NoError(t, m.Mirror(context.Background(), bayAreaReport))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte(bayAreaReport.ID), w.msgs[0].Key)

	require.NoError(t, m.Close())
	assert.True(t, w.closed)
	assert.Equal(t, "kafka", m.Name())
}

func TestKafkaMirror_WriteError(t *testing.T) {
	m := &KafkaMirror{writer: &fakeWriter{err: errors.New("broker unavailable")}}

	err := m.Mirror(context.Background(), bayAreaReport)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Contains(t, err.Error(), bayAreaReport.ID)
}
