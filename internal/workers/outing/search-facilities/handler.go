// internal/workers/outing/search-facilities/handler.go
package searchfacilities

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/common/metrics"
	"outing-workers/internal/common/validation"
	"outing-workers/internal/models"
	"outing-workers/internal/outing"
	"outing-workers/internal/retrieval"
)

const (
	TaskType = "search-facilities"
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Service interface {
	SearchFacilities(ctx context.Context, req outing.SearchRequest) (outing.SearchResponse, error)
}

type Handler struct {
	config    *Config
	service   Service
	validator *validation.Validator
	errors    *apperrors.ErrorHandler
	logger    Logger
}

func NewHandler(config *Config, service Service, schemas validation.SchemaSource, log Logger) *Handler {
	l := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:    config,
		service:   service,
		validator: validation.ForTask(schemas, TaskType, inputSchema),
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	done := metrics.ForTask(TaskType).Start()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job.Variables)
	if err == nil {
		var output *Output
		if output, err = h.execute(ctx, input); err == nil {
			h.completeJob(client, job, output)
			done("")
			return
		}
	}

	done(string(apperrors.CodeOf(err)))
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	if res := h.validator.ValidateJSON(variables); !res.Valid {
		return nil, apperrors.NewMalformedInputError(res.Summary())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewMalformedInputError(err.Error())
	}
	return &input, nil
}

// execute answers an unreachable index with a completed job carrying success=false,
// so the workflow can apologize instead of retrying.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	resp, err := h.service.SearchFacilities(ctx, outing.SearchRequest{
		QueryText:      input.QueryText,
		ConversationID: input.ConversationID,
		Location:       input.Location,
		IndoorOutdoor:  models.ParseIndoorOutdoor(input.IndoorOutdoor),
		ResultCount:    input.ResultCount,
		ChildAge:       input.ChildAge,
		ExcludedNames:  input.ExcludedNames,
	})
	if err != nil && resp.Outcome != retrieval.OutcomeConnectionError {
		return nil, err
	}
	if err != nil {
		h.logger.Warn("facility index unavailable, answering without results", map[string]interface{}{
			"conversationId": input.ConversationID,
			"errorCode":      string(apperrors.CodeOf(err)),
		})
	}

	output := &Output{
		Success:    resp.Success,
		Count:      resp.Count,
		Facilities: resp.Facilities,
		Source:     resp.Source,
		Outcome:    resp.Outcome,
		Relaxed:    resp.Relaxed,
		SearchID:   resp.SearchID,
		Message:    resp.Message,
	}
	if output.Facilities == nil {
		output.Facilities = []models.Facility{}
	}

	h.logger.Info("search completed", map[string]interface{}{
		"conversationId": input.ConversationID,
		"source":         string(output.Source),
		"count":          output.Count,
		"outcome":        string(output.Outcome),
	})
	return output, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
