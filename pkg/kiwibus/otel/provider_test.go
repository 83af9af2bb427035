package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsarna/kiwibus/pkg/kiwibus/o11y"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestProvider(t *testing.T) {
	p := NewProviderFrom(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider(), "kiwibus-test", "0.0.1")
	ctx := context.Background()

	t.Run("instruments are usable", func(t *testing.T) {
		assert.NotPanics(t, func() {
			p.Counter("requests").Add(ctx, 1, o11y.Label{Key: "code", Value: "200"})
			p.Histogram("latency").Record(ctx, 0.25)
			p.Gauge("state").Set(ctx, 1)
		})
	})

	t.Run("span lifecycle", func(t *testing.T) {
		spanCtx, span := p.StartSpan(ctx, "eventbus.send")
		assert.NotNil(t, spanCtx)
		assert.NotPanics(t, func() {
			span.SetAttributes(o11y.Label{Key: "address", Value: "deviceservice"})
			span.SetStatus(o11y.SpanStatusError, "timed out")
			span.End()
		})
	})

	t.Run("gauge tracks last value per label set", func(t *testing.T) {
		g := p.Gauge("open_connections").(*otelGauge)
		g.Set(ctx, 3, o11y.Label{Key: "bus", Value: "a"})
		g.Set(ctx, 1, o11y.Label{Key: "bus", Value: "b"})
		g.Set(ctx, 2, o11y.Label{Key: "bus", Value: "a"})

		assert.Equal(t, 2.0, g.last["bus=a;"])
		assert.Equal(t, 1.0, g.last["bus=b;"])
	})
}

func TestLabelKey(t *testing.T) {
	assert.Equal(t, "", labelKey(nil))
	assert.Equal(t, "a=1;b=2;", labelKey([]o11y.Label{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}))
}
