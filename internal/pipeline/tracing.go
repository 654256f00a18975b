package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ts-vision-core/pipeline")

// startStageSpan opens a span named "pipeline.<stage>" tagged with the
// owning camera, following the other examples' "component::stage" span
// naming convention adapted to otel's dotted-segment style.
func startStageSpan(ctx context.Context, cameraID, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline."+stage,
		trace.WithAttributes(attribute.String("camera.id", cameraID)))
}
