// internal/workers/outing/clear-conversation/handler.go
package clearconversation

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/common/metrics"
	"outing-workers/internal/common/validation"
)

const (
	TaskType = "clear-conversation"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Service interface {
	ClearConversation(conversationID string) (bool, error)
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

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.handle(job.Variables)
	if err != nil {
		done(string(apperrors.CodeOf(err)))
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete command", map[string]interface{}{"error": err.Error()})
	}
	done("")
}

func (h *Handler) handle(variables string) (*Output, error) {
	if res := h.validator.ValidateJSON(variables); !res.Valid {
		return nil, apperrors.NewMalformedInputError(res.Summary())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewMalformedInputError(err.Error())
	}
	return h.execute(&input)
}

func (h *Handler) execute(input *Input) (*Output, error) {
	cleared, err := h.service.ClearConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}
	h.logger.Info("conversation cleared", map[string]interface{}{
		"conversationId": input.ConversationID,
		"cleared":        cleared,
	})
	return &Output{ConversationID: input.ConversationID, Cleared: cleared}, nil
}

func (h *Handler) Execute(input *Input) (*Output, error) {
	return h.execute(input)
}
