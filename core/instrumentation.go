package convai

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-convai/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	inboundEvents, _ = meter.Int64Counter("convai.inbound.events",
		metric.WithDescription("Inbound protocol events by type"),
		metric.WithUnit("{event}"),
	)
	clientToolDuration, _ = meter.Float64Histogram("convai.client_tool.duration",
		metric.WithDescription("Duration of client tool executions"),
		metric.WithUnit("ms"),
	)
)
