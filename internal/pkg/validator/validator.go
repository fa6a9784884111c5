package validator

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	cronlib "github.com/robfig/cron/v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("time_of_day", validateTimeOfDay)
	validate.RegisterValidation("frequency", validateFrequency)
	validate.RegisterValidation("cron", validateCron)
}

func Get() *validator.Validate {
	return validate
}

func Validate(s interface{}) error {
	return validate.Struct(s)
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func FormatErrors(err error) []ValidationError {
	var result []ValidationError

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Field: "", Message: err.Error()}}
	}

	for _, fieldErr := range validationErrors {
		result = append(result, ValidationError{
			Field:   strings.ToLower(fieldErr.Field()),
			Message: messageFor(fieldErr),
		})
	}
	return result
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "time_of_day":
		return "must be HH:MM"
	case "frequency":
		return "must be one of daily, weekly, monthly, once, cron"
	case "cron":
		return "must be a valid cron expression"
	default:
		return "is invalid"
	}
}

// Custom validators

func validateTimeOfDay(fl validator.FieldLevel) bool {
	parts := strings.SplitN(fl.Field().String(), ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return false
	}
	return true
}

func validateFrequency(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "daily", "weekly", "monthly", "once", "cron":
		return true
	}
	return false
}

// cronParser accepts the same five-field expressions the recurrence
// calculator parses, so the tag never admits an expression the scheduler
// later rejects.
var cronParser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)

func validateCron(fl validator.FieldLevel) bool {
	_, err := cronParser.Parse(fl.Field().String())
	return err == nil
}
