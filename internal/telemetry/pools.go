package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/lian/internal/database"
)

const meterName = "github.com/BaSui01/lian/internal/telemetry"

// PoolStatsFunc returns a snapshot of every logical database pool.
type PoolStatsFunc func() []database.PoolStats

// ObservePools registers asynchronous gauges that report idle and in-use
// connections per logical database on every collection.
func ObservePools(mp metric.MeterProvider, stats PoolStatsFunc) (metric.Registration, error) {
	meter := mp.Meter(meterName)

	idle, err := meter.Int64ObservableGauge("db.client.connections.idle",
		metric.WithDescription("Idle pooled connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create idle gauge: %w", err)
	}
	used, err := meter.Int64ObservableGauge("db.client.connections.used",
		metric.WithDescription("Checked-out pooled connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create used gauge: %w", err)
	}
	limit, err := meter.Int64ObservableGauge("db.client.connections.max",
		metric.WithDescription("Maximum pooled connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create max gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, s := range stats() {
			attrs := metric.WithAttributes(attribute.String("db.name", s.Database))
			o.ObserveInt64(idle, int64(s.Idle), attrs)
			o.ObserveInt64(used, int64(s.InUse), attrs)
			o.ObserveInt64(limit, int64(s.Max), attrs)
		}
		return nil
	}, idle, used, limit)
	if err != nil {
		return nil, fmt.Errorf("register pool callback: %w", err)
	}
	return reg, nil
}
