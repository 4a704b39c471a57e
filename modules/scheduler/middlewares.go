package scheduler

import (
	"context"

	"github.com/Deepreo/kronos/core"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Deepreo/kronos/scheduler"

// TracingMiddleware starts a span per execution. A nil provider uses the global one.
func TracingMiddleware(tp trace.TracerProvider) core.SchedulerMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			name := "job"
			var attrs []attribute.KeyValue
			if exec, ok := core.ExecutionFromContext(ctx); ok {
				name = "job " + exec.Job
				attrs = append(attrs,
					attribute.String("kronos.job", exec.Job),
					attribute.String("kronos.group", exec.Group),
					attribute.String("kronos.execution_id", exec.ID),
					attribute.Bool("kronos.forced", exec.Forced),
				)
			}

			ctx, span := tracer.Start(ctx, name,
				trace.WithAttributes(attrs...),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			err := next(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

// APMMiddleware reports every execution as an Elastic APM transaction of type
// "scheduled". A nil tracer uses apm.DefaultTracer().
func APMMiddleware(tracer *apm.Tracer) core.SchedulerMiddleware {
	return func(next core.JobFunc) core.JobFunc {
		return func(ctx context.Context) error {
			t := tracer
			if t == nil {
				t = apm.DefaultTracer()
			}

			name := "job"
			exec, ok := core.ExecutionFromContext(ctx)
			if ok {
				name = exec.Job
			}
			tx := t.StartTransaction(name, "scheduled")
			defer tx.End()
			if ok {
				tx.Context.SetLabel("group", exec.Group)
				tx.Context.SetLabel("execution_id", exec.ID)
				tx.Context.SetLabel("forced", exec.Forced)
			}
			ctx = apm.ContextWithTransaction(ctx, tx)

			err := next(ctx)
			if err != nil {
				e := t.NewError(err)
				e.SetTransaction(tx)
				e.Send()
				tx.Result = "failure"
				return err
			}
			tx.Result = "success"
			return nil
		}
	}
}
