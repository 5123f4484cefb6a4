package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vendora"

// Metrics holds all Vendora metric instruments.
type Metrics struct {
	EventsAppended  metric.Int64Counter
	AppendConflicts metric.Int64Counter
	CommandRetries  metric.Int64Counter
	EventsProjected metric.Int64Counter
	EventsReplayed  metric.Int64Counter
	AppendDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsAppended, err = meter.Int64Counter("vendora.events.appended",
		metric.WithDescription("Number of events durably appended"))
	if err != nil {
		return nil, err
	}

	m.AppendConflicts, err = meter.Int64Counter("vendora.events.conflicts",
		metric.WithDescription("Number of appends rejected by the concurrency check"))
	if err != nil {
		return nil, err
	}

	m.CommandRetries, err = meter.Int64Counter("vendora.commands.retries",
		metric.WithDescription("Number of command retries after a conflict"))
	if err != nil {
		return nil, err
	}

	m.EventsProjected, err = meter.Int64Counter("vendora.events.projected",
		metric.WithDescription("Number of events handed to projectors"))
	if err != nil {
		return nil, err
	}

	m.EventsReplayed, err = meter.Int64Counter("vendora.events.replayed",
		metric.WithDescription("Number of events examined during replays"))
	if err != nil {
		return nil, err
	}

	m.AppendDuration, err = meter.Float64Histogram("vendora.append.duration_seconds",
		metric.WithDescription("Event append duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
