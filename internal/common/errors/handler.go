// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler fails or throws Zeebe jobs from a classified error.
type ErrorHandler struct {
	logger Logger
	throws map[string]bool
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// NewErrorHandler builds a handler that throws BPMN errors only for the given BPMN codes.
// Every other terminal error fails the job with zero retries.
func NewErrorHandler(logger Logger, throwCodes ...string) *ErrorHandler {
	throws := make(map[string]bool, len(throwCodes))
	for _, c := range throwCodes {
		throws[c] = true
	}
	return &ErrorHandler{logger: logger, throws: throws}
}

// Decide reports how a job error is resolved: "retry", "throw" or "fail".
func (h *ErrorHandler) Decide(job entities.Job, bpmnErr *BPMNError) string {
	switch {
	case bpmnErr.Retries > 0 && job.Retries > 0:
		return "retry"
	case h.throws[bpmnErr.Code]:
		return "throw"
	default:
		return "fail"
	}
}

// HandleJobError fails the job with retries when the code allows it, throws a BPMN error for
// configured codes and otherwise fails the job for good.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	switch h.Decide(job, bpmnErr) {
	case "retry":
		h.failJob(ctx, client, job, bpmnErr, RetriesFor(job, bpmnErr))
	case "throw":
		h.throwBPMNError(ctx, client, job, bpmnErr)
	default:
		h.failJob(ctx, client, job, bpmnErr, 0)
	}
}

// FailureMessage is the job error message: the BPMN code followed by the details.
func FailureMessage(bpmnErr *BPMNError) string {
	if bpmnErr.Details == "" {
		return bpmnErr.Code + ": " + bpmnErr.Message
	}
	return bpmnErr.Code + ": " + bpmnErr.Message + ": " + bpmnErr.Details
}

// Normalize returns the StandardError in err's chain, or wraps err as INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), false, err)
}

// RetriesFor caps the recommended retry count by what the job has left.
func RetriesFor(job entities.Job, bpmnErr *BPMNError) int32 {
	retries := int32(bpmnErr.Retries)
	if job.Retries > 0 && job.Retries-1 < retries {
		retries = job.Retries - 1
	}
	if retries < 0 {
		retries = 0
	}
	return retries
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int32) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(FailureMessage(bpmnErr))

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
