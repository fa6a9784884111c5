package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/contentpilot-ai/contentpilot/internal/pkg/validator"
)

// Error codes for consistent API responses
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodePaymentRequired = "PAYMENT_REQUIRED"
	ErrCodeInternalServer  = "INTERNAL_SERVER_ERROR"
	ErrCodeTooManyRequest  = "TOO_MANY_REQUESTS"
	ErrCodeServiceUnavail  = "SERVICE_UNAVAILABLE"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource conflict")
	ErrInvalidInput = errors.New("invalid input")
)

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *ErrorData  `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type ErrorData struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func getRequestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

func errorWithCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    code,
			Message: message,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

func ErrorResponse(w http.ResponseWriter, status int, message string) {
	errorWithCode(w, status, statusToErrorCode(status), message)
}

func ValidationErrorResponse(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    ErrCodeValidation,
			Message: "Validation failed",
			Details: validator.FormatErrors(err),
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func BadRequest(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func NotFound(w http.ResponseWriter, resource string) {
	errorWithCode(w, http.StatusNotFound, ErrCodeNotFound, resource+" not found")
}

func Conflict(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusConflict, ErrCodeConflict, message)
}

// PaymentRequired is the credit exhaustion response: the schedule publisher
// treats a 402 as "stop firing until the balance is topped up".
func PaymentRequired(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusPaymentRequired, ErrCodePaymentRequired, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusTooManyRequests, ErrCodeTooManyRequest, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusInternalServerError, ErrCodeInternalServer, message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusServiceUnavailable, ErrCodeServiceUnavail, message)
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusPaymentRequired:
		return ErrCodePaymentRequired
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequest
	case http.StatusInternalServerError:
		return ErrCodeInternalServer
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavail
	default:
		return http.StatusText(status)
	}
}

// Schedule responses

type ScheduleResponse struct {
	ID             string   `json:"id"`
	WebsiteURL     string   `json:"website_url"`
	Frequency      string   `json:"frequency"`
	DayOfWeek      *int     `json:"day_of_week,omitempty"`
	DayOfMonth     *int     `json:"day_of_month,omitempty"`
	TimeOfDay      string   `json:"time_of_day"`
	CronExpression *string  `json:"cron_expression,omitempty"`
	Timezone       string   `json:"timezone"`
	Topics         []string `json:"topics,omitempty"`
	IsActive       bool     `json:"is_active"`
	NextRunAt      *int64   `json:"next_run_at,omitempty"`
	LastRunAt      *int64   `json:"last_run_at,omitempty"`
	LastError      *string  `json:"last_error,omitempty"`
	StatusMessage  *string  `json:"status_message,omitempty"`
	SuccessCount   int      `json:"success_count"`
	FailureCount   int      `json:"failure_count"`
	CreatedAt      int64    `json:"created_at"`
}

type GenerationLogResponse struct {
	ID         string                 `json:"id"`
	ScheduleID string                 `json:"schedule_id"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	ContentKey *string                `json:"content_key,omitempty"`
	Trigger    string                 `json:"trigger"`
	DurationMs int                    `json:"duration_ms"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
}

// DispatchResponse answers the webhook trigger path.
type DispatchResponse struct {
	ScheduleID       string `json:"schedule_id"`
	JobID            string `json:"job_id"`
	NextRunAt        *int64 `json:"next_run_at,omitempty"`
	NextMessageID    string `json:"next_message_id,omitempty"`
	CreditsRemaining int    `json:"credits_remaining"`
	ExecutionTimeMs  int64  `json:"execution_time_ms"`
}

// CronResponse answers the polling trigger path with per-schedule results.
type CronResponse struct {
	Executed   int          `json:"executed"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Results    []CronResult `json:"results"`
}

type CronResult struct {
	ScheduleID string `json:"schedule_id"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	JobID      string `json:"job_id,omitempty"`
}

type PlanResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	PriceMonthly   int     `json:"price_monthly"`
	MonthlyCredits int     `json:"monthly_credits"`
	SchedulesLimit int     `json:"schedules_limit"`
}

type SubscriptionResponse struct {
	PlanID             string `json:"plan_id"`
	Status             string `json:"status"`
	CreditsAvailable   int    `json:"credits_available"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}
