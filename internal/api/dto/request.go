package dto

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/contentpilot-ai/contentpilot/internal/domain/services"
)

// maxBodyBytes caps request bodies; schedule payloads are small.
const maxBodyBytes = 1 << 20

// Decode reads and closes the JSON request body into dst.
func Decode(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	return json.Unmarshal(body, dst)
}

// Schedules

type CreateScheduleRequest struct {
	services.ScheduleInput
}

type UpdateScheduleRequest struct {
	services.ScheduleInput
}

type CreateScheduleBatchRequest struct {
	Schedules []services.ScheduleInput `json:"schedules" validate:"required,min=1,max=31,dive"`
}

// Dispatch

// DispatchWebhookRequest is the body of a publisher-signed dispatch webhook.
type DispatchWebhookRequest struct {
	ScheduleID string `json:"schedule_id" validate:"required,uuid"`
}
