package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/api/dto"
	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/generation"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/circuitbreaker"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/validator"
	"github.com/contentpilot-ai/contentpilot/internal/webhook"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"

	// Signed timestamps older than this are replays.
	signatureTolerance = 5 * time.Minute

	maxWebhookBody = 64 << 10
)

type dispatcher interface {
	Dispatch(ctx context.Context, scheduleID uuid.UUID, trigger string) (*dispatch.Outcome, error)
	RunDue(ctx context.Context) (*dispatch.Summary, error)
}

type idempotencyChecker interface {
	CheckIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DispatchHandler is the webhook trigger path: the schedule publisher fires a
// signed POST when a schedule's delay elapses. The signature is verified
// against the raw body before anything else happens.
type DispatchHandler struct {
	runner      dispatcher
	verifier    *webhook.SignatureVerifier
	idempotency idempotencyChecker
}

func NewDispatchHandler(runner dispatcher, verifier *webhook.SignatureVerifier, idempotency idempotencyChecker) *DispatchHandler {
	return &DispatchHandler{
		runner:      runner,
		verifier:    verifier,
		idempotency: idempotency,
	}
}

func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	r.Body.Close()
	if err != nil {
		dto.BadRequest(w, "failed to read request body")
		return
	}

	if !h.verified(body, r.Header.Get(signatureHeader), r.Header.Get(timestampHeader)) {
		log.Warn().
			Str("remote_addr", r.RemoteAddr).
			Msg("Dispatch webhook rejected, bad signature")
		dto.Unauthorized(w, "invalid signature")
		return
	}

	var req dto.DispatchWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	scheduleID, err := uuid.Parse(req.ScheduleID)
	if err != nil {
		dto.BadRequest(w, "invalid schedule id")
		return
	}

	if key := r.Header.Get("X-Idempotency-Key"); key != "" && h.idempotency != nil {
		fresh, err := h.idempotency.CheckIdempotency(r.Context(), key, time.Hour)
		if err == nil && !fresh {
			dto.OK(w, map[string]interface{}{
				"schedule_id": scheduleID.String(),
				"duplicate":   true,
			})
			return
		}
	}

	outcome, err := h.runner.Dispatch(r.Context(), scheduleID, models.TriggerWebhook)
	if err != nil {
		handleDispatchError(w, err)
		return
	}

	resp := dto.DispatchResponse{
		ScheduleID:       outcome.ScheduleID.String(),
		JobID:            outcome.JobID,
		CreditsRemaining: outcome.CreditsRemaining,
		ExecutionTimeMs:  time.Since(started).Milliseconds(),
	}
	if outcome.NextRun != nil {
		ts := outcome.NextRun.Unix()
		resp.NextRunAt = &ts
	}
	if outcome.NextMessageID != nil {
		resp.NextMessageID = *outcome.NextMessageID
	}

	dto.OK(w, resp)
}

func (h *DispatchHandler) verified(body []byte, signature, timestamp string) bool {
	if signature == "" {
		return false
	}
	if timestamp != "" {
		return h.verifier.VerifyWithTimestamp(body, timestamp, signature, signatureTolerance)
	}
	return h.verifier.Verify(body, signature)
}

// Execute is the polling trigger path: sweep everything due and report the
// per-schedule results.
func (h *DispatchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunDue(r.Context())
	if err != nil {
		dto.InternalServerError(w, "polling pass failed")
		return
	}

	resp := dto.CronResponse{
		Executed:   summary.Executed,
		Successful: summary.Successful,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Results:    make([]dto.CronResult, 0, len(summary.Results)),
	}
	for _, res := range summary.Results {
		resp.Results = append(resp.Results, dto.CronResult{
			ScheduleID: res.ScheduleID.String(),
			Success:    res.Success,
			Skipped:    res.Skipped,
			Error:      res.Error,
			JobID:      res.JobID,
		})
	}

	dto.OK(w, resp)
}

func handleDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		dto.NotFound(w, "schedule")
	case errors.Is(err, dispatch.ErrCreditsExhausted):
		dto.PaymentRequired(w, "credit balance exhausted")
	case errors.Is(err, dispatch.ErrClaimLost):
		dto.Conflict(w, "schedule already claimed by another dispatcher")
	case errors.Is(err, dispatch.ErrScheduleInactive):
		dto.Conflict(w, "schedule is not active")
	case errors.Is(err, dispatch.ErrScheduleNotArmed):
		dto.Conflict(w, "schedule has no next run time")
	case errors.Is(err, generation.ErrUpstreamUnavailable),
		errors.Is(err, circuitbreaker.ErrCircuitOpen):
		dto.ServiceUnavailable(w, "generation service unavailable")
	default:
		dto.InternalServerError(w, "dispatch failed")
	}
}
