package scan

import (
	"context"
	"time"

	"github.com/DocKV/dockv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Metrics defines the telemetry operations of the scan path. All metrics
// are optional; implementations can safely be no-op.
type Metrics interface {
	telemetry.ComponentMetrics

	// RecordSeek records one ceiling-bounded seek and whether it found
	// a candidate entry.
	RecordSeek(ctx context.Context, duration time.Duration, found bool)

	// RecordResolve records the outcome of one intent resolution:
	// visible, invisible, or retry.
	RecordResolve(ctx context.Context, outcome string)

	// RecordRow records one assembled row.
	RecordRow(ctx context.Context, duration time.Duration)

	// RecordDocSkipped records a document skipped without producing a
	// row, with the reason (deleted, empty).
	RecordDocSkipped(ctx context.Context, reason string)
}

// Resolve outcomes and skip reasons.
const (
	OutcomeVisible   = "visible"
	OutcomeInvisible = "invisible"
	OutcomeRetry     = "retry"

	SkipDeleted = "deleted"
	SkipEmpty   = "empty"
)

// scanMetrics implements Metrics on the telemetry interface.
type scanMetrics struct {
	tel telemetry.Telemetry
}

// NewMetrics creates a scan metrics implementation. If tel is nil,
// returns a no-op implementation.
func NewMetrics(tel telemetry.Telemetry) Metrics {
	if tel == nil {
		return &noopMetrics{}
	}
	return &scanMetrics{tel: tel}
}

// NewNoopMetrics creates a no-op scan metrics implementation.
func NewNoopMetrics() Metrics {
	return &noopMetrics{}
}

func (m *scanMetrics) RecordSeek(ctx context.Context, duration time.Duration, found bool) {
	m.tel.RecordHistogram(ctx, "dockv.scan.seek.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeSeek),
		attribute.Bool("found", found),
	)
	m.tel.RecordCounter(ctx, "dockv.scan.operations.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeSeek),
	)
}

func (m *scanMetrics) RecordResolve(ctx context.Context, outcome string) {
	m.tel.RecordCounter(ctx, "dockv.scan.intent_resolutions.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeResolve),
		attribute.String(telemetry.AttrStatus, outcome),
	)
}

func (m *scanMetrics) RecordRow(ctx context.Context, duration time.Duration) {
	m.tel.RecordHistogram(ctx, "dockv.scan.row.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeScan),
	)
	m.tel.RecordCounter(ctx, "dockv.scan.rows.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
	)
}

func (m *scanMetrics) RecordDocSkipped(ctx context.Context, reason string) {
	m.tel.RecordCounter(ctx, "dockv.scan.documents_skipped.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
		attribute.String(telemetry.AttrReason, reason),
	)
}

// Close implements ComponentMetrics.
func (m *scanMetrics) Close() error {
	return nil
}

// noopMetrics is the disabled implementation.
type noopMetrics struct{}

func (n *noopMetrics) RecordSeek(ctx context.Context, duration time.Duration, found bool) {}

func (n *noopMetrics) RecordResolve(ctx context.Context, outcome string) {}

func (n *noopMetrics) RecordRow(ctx context.Context, duration time.Duration) {}

func (n *noopMetrics) RecordDocSkipped(ctx context.Context, reason string) {}

func (n *noopMetrics) Close() error { return nil }
