package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"go.uber.org/zap"
)

const (
	COMMAND_RESULT_TOPIC    = "command/result"
	COMMAND_STATUS_OK       = "ok"
	COMMAND_STATUS_SENT     = "sent"
	COMMAND_STATUS_REJECTED = "rejected"
	COMMAND_STATUS_ERROR    = "error"
)

type CommandResultPayload struct {
	Id         string    `json:"id"`
	Command    string    `json:"command"`
	Status     string    `json:"status"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// CommandResultReporter publishes the outcome of queued commands.
type CommandResultReporter struct {
	Publisher      port.Publisher
	VerifyChecksum bool
	Logger         *zap.Logger
}

func (r *CommandResultReporter) Report(result voltronic.PendingResult) bool {
	payload := NewCommandResultPayload(result, r.VerifyChecksum)
	data, err := json.Marshal(payload)
	if err != nil {
		r.Logger.Error("command_results: encode", zap.String("id", payload.Id), zap.Error(err))
		return false
	}
	if !r.Publisher.Publish(map[string]string{COMMAND_RESULT_TOPIC: string(data)}) {
		r.Logger.Warn("command_results: publisher did not accept result",
			zap.String("id", payload.Id), zap.String("command", payload.Command))
		return false
	}
	r.Logger.Debug("command_results: published", zap.String("id", payload.Id), zap.String("status", payload.Status))
	return true
}

func NewCommandResultPayload(result voltronic.PendingResult, verifyChecksum bool) CommandResultPayload {
	payload := CommandResultPayload{
		Id:         result.Id,
		Command:    result.Command,
		EnqueuedAt: result.EnqueuedAt,
	}
	switch {
	case result.Error != nil:
		payload.Status = COMMAND_STATUS_ERROR
		payload.Error = result.Error.Error()
	case result.Response == nil || !result.Response.HasData():
		payload.Status = COMMAND_STATUS_SENT
	default:
		response, err := voltronic.ParseResponse(result.Response.Data, verifyChecksum)
		switch {
		case errors.Is(err, voltronic.ErrCommandRejected):
			payload.Status = COMMAND_STATUS_REJECTED
		case err != nil:
			payload.Status = COMMAND_STATUS_ERROR
			payload.Error = err.Error()
		default:
			payload.Status = COMMAND_STATUS_OK
			payload.Response = response
		}
	}
	return payload
}
