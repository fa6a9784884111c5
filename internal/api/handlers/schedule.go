package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contentpilot-ai/contentpilot/internal/api/dto"
	"github.com/contentpilot-ai/contentpilot/internal/api/middleware"
	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/domain/repositories"
	"github.com/contentpilot-ai/contentpilot/internal/domain/services"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/validator"
	"github.com/contentpilot-ai/contentpilot/internal/recurrence"
)

type ScheduleHandler struct {
	scheduleSvc *services.ScheduleService
}

func NewScheduleHandler(scheduleSvc *services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		dto.Unauthorized(w, "authentication required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	schedules, total, err := h.scheduleSvc.List(r.Context(), ownerID, opts)
	if err != nil {
		dto.InternalServerError(w, "failed to list schedules")
		return
	}

	response := make([]dto.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		response = append(response, toScheduleResponse(&schedules[i]))
	}

	totalPages := int(total) / opts.Limit
	if int(total)%opts.Limit > 0 {
		totalPages++
	}

	dto.JSONWithMeta(w, http.StatusOK, response, &dto.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		dto.Unauthorized(w, "authentication required")
		return
	}

	var req dto.CreateScheduleRequest
	if err := dto.Decode(r, &req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(req.ScheduleInput); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	schedule, err := h.scheduleSvc.Create(r.Context(), ownerID, req.ScheduleInput)
	if err != nil {
		handleScheduleError(w, err)
		return
	}

	dto.Created(w, toScheduleResponse(schedule))
}

// CreateBatch creates up to a month of schedules in one call. The batch is
// all-or-nothing: any invalid entry or duplicate run date rejects the whole
// request before a single row is written.
func (h *ScheduleHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		dto.Unauthorized(w, "authentication required")
		return
	}

	var req dto.CreateScheduleBatchRequest
	if err := dto.Decode(r, &req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	schedules, err := h.scheduleSvc.CreateBatch(r.Context(), ownerID, req.Schedules)
	if err != nil {
		handleScheduleError(w, err)
		return
	}

	response := make([]dto.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		response = append(response, toScheduleResponse(&schedules[i]))
	}
	dto.Created(w, response)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, scheduleID, ok := ownerAndSchedule(w, r)
	if !ok {
		return
	}

	schedule, err := h.scheduleSvc.Get(r.Context(), ownerID, scheduleID)
	if err != nil {
		handleScheduleError(w, err)
		return
	}
	dto.OK(w, toScheduleResponse(schedule))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, scheduleID, ok := ownerAndSchedule(w, r)
	if !ok {
		return
	}

	var req dto.UpdateScheduleRequest
	if err := dto.Decode(r, &req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(req.ScheduleInput); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	schedule, err := h.scheduleSvc.Update(r.Context(), ownerID, scheduleID, req.ScheduleInput)
	if err != nil {
		handleScheduleError(w, err)
		return
	}
	dto.OK(w, toScheduleResponse(schedule))
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, scheduleID, ok := ownerAndSchedule(w, r)
	if !ok {
		return
	}

	if err := h.scheduleSvc.Delete(r.Context(), ownerID, scheduleID); err != nil {
		handleScheduleError(w, err)
		return
	}
	dto.NoContent(w)
}

func (h *ScheduleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	ownerID, scheduleID, ok := ownerAndSchedule(w, r)
	if !ok {
		return
	}

	if err := h.scheduleSvc.Pause(r.Context(), ownerID, scheduleID); err != nil {
		handleScheduleError(w, err)
		return
	}
	dto.OK(w, map[string]bool{"paused": true})
}

func (h *ScheduleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ownerID, scheduleID, ok := ownerAndSchedule(w, r)
	if !ok {
		return
	}

	schedule, err := h.scheduleSvc.Resume(r.Context(), ownerID, scheduleID)
	if err != nil {
		handleScheduleError(w, err)
		return
	}
	dto.OK(w, toScheduleResponse(schedule))
}

func (h *ScheduleHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID, scheduleID, ok := ownerAndSchedule(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	entries, total, err := h.scheduleSvc.History(r.Context(), ownerID, scheduleID, opts)
	if err != nil {
		handleScheduleError(w, err)
		return
	}

	response := make([]dto.GenerationLogResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, dto.GenerationLogResponse{
			ID:         e.ID.String(),
			ScheduleID: e.ScheduleID.String(),
			Status:     e.Status,
			Message:    e.Message,
			ContentKey: e.ContentKey,
			Trigger:    e.Trigger,
			DurationMs: e.DurationMs,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt.Unix(),
		})
	}

	dto.JSONWithMeta(w, http.StatusOK, response, &dto.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

func ownerAndSchedule(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		dto.Unauthorized(w, "authentication required")
		return uuid.Nil, uuid.Nil, false
	}

	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		dto.BadRequest(w, "invalid schedule id")
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, scheduleID, true
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrScheduleNotFound):
		dto.NotFound(w, "schedule")
	case errors.Is(err, services.ErrNotOwner):
		dto.Forbidden(w, "schedule belongs to another owner")
	case errors.Is(err, services.ErrScheduleLimitReached):
		dto.Forbidden(w, err.Error())
	case errors.Is(err, services.ErrDuplicateRunDate):
		dto.Conflict(w, err.Error())
	case errors.Is(err, recurrence.ErrUnknownFrequency),
		errors.Is(err, recurrence.ErrInvalidTimeOfDay),
		errors.Is(err, recurrence.ErrInvalidDayOfWeek),
		errors.Is(err, recurrence.ErrInvalidDayOfMonth),
		errors.Is(err, recurrence.ErrMissingCronExpr):
		dto.BadRequest(w, err.Error())
	default:
		dto.InternalServerError(w, "an unexpected error occurred")
	}
}

func toScheduleResponse(s *models.Schedule) dto.ScheduleResponse {
	var nextRunAt, lastRunAt *int64
	if s.NextRunAt != nil {
		ts := s.NextRunAt.Unix()
		nextRunAt = &ts
	}
	if s.LastRunAt != nil {
		ts := s.LastRunAt.Unix()
		lastRunAt = &ts
	}

	return dto.ScheduleResponse{
		ID:             s.ID.String(),
		WebsiteURL:     s.WebsiteURL,
		Frequency:      s.Frequency,
		DayOfWeek:      s.DayOfWeek,
		DayOfMonth:     s.DayOfMonth,
		TimeOfDay:      s.TimeOfDay,
		CronExpression: s.CronExpression,
		Timezone:       s.Timezone,
		Topics:         s.Topics,
		IsActive:       s.IsActive,
		NextRunAt:      nextRunAt,
		LastRunAt:      lastRunAt,
		LastError:      s.LastError,
		StatusMessage:  s.StatusMessage,
		SuccessCount:   s.SuccessCount,
		FailureCount:   s.FailureCount,
		CreatedAt:      s.CreatedAt.Unix(),
	}
}
