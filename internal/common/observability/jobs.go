package observability

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

// Instrument wraps a job handler with a span and the jobs.processed and
// jobs.duration instruments.
func (o *Observability) Instrument(taskType string, next worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		ctx, span := o.StartSpan(context.Background(), taskType,
			attribute.String("task_type", taskType),
			attribute.Int64("job_key", job.Key),
			attribute.Int64("process_instance_key", job.ProcessInstanceKey),
		)
		start := time.Now()
		defer func() {
			status := "handled"
			if r := recover(); r != nil {
				status = "panicked"
				span.SetAttributes(attribute.String("panic", panicText(r)))
				o.finish(ctx, taskType, start, status)
				span.End()
				panic(r)
			}
			o.finish(ctx, taskType, start, status)
			span.End()
		}()

		next(client, job)
	}
}

func (o *Observability) finish(ctx context.Context, taskType string, start time.Time, status string) {
	o.RecordJobProcessed(ctx, taskType, status)
	o.RecordJobDuration(ctx, taskType, time.Since(start), status)
}

func panicText(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "non-error panic"
}
