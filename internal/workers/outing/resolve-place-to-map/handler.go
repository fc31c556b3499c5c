// internal/workers/outing/resolve-place-to-map/handler.go
package resolveplace

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/common/metrics"
	"outing-workers/internal/common/validation"
	"outing-workers/internal/geocode"
)

const (
	TaskType = "resolve-place-to-map"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Service interface {
	ResolvePlaceToMap(ctx context.Context, conversationID, placeText string) geocode.PlaceResult
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
	if err != nil {
		done(string(apperrors.CodeOf(err)))
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, h.execute(ctx, input))
	done("")
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	if res := h.validator.ValidateJSON(variables); !res.Valid {
		return nil, apperrors.NewMalformedInputError(res.Summary())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewMalformedInputError(err.Error())
	}
	if strings.TrimSpace(input.PlaceText) == "" {
		return nil, apperrors.NewMalformedInputError("placeText is blank")
	}
	return &input, nil
}

// execute always yields a map link: a miss degrades to a Kakao map search link.
func (h *Handler) execute(ctx context.Context, input *Input) *Output {
	res := h.service.ResolvePlaceToMap(ctx, input.ConversationID, input.PlaceText)

	fields := map[string]interface{}{
		"placeText": input.PlaceText,
		"attempts":  res.Attempts,
	}
	if res.Success {
		fields["matchedQuery"] = res.Matched
		h.logger.Info("place resolved", fields)
	} else {
		h.logger.Warn("place not resolved, returning search link", fields)
	}

	return &Output{
		Success:  res.Success,
		Name:     res.Name,
		Address:  res.Address,
		Lat:      res.Lat,
		Lng:      res.Lng,
		MapLink:  res.MapLink,
		PlaceURL: res.PlaceURL,
		Attempts: res.Attempts,
		Message:  res.Message,
	}
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

func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	return h.execute(ctx, input)
}
