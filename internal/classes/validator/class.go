package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gymbook/pkg/logger"
	"gymbook/pkg/model"
	"gymbook/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
)

var (
	timeRegex = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type ClassValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewClassValidator(log *logger.Logger) *ClassValidator {
	v := validator.New()

	if err := v.RegisterValidation("valid_time_range", validateTimeOfDay); err != nil {
		log.Fatal("Failed to register 'valid_time_range' validator", "error", err)
	}
	if err := v.RegisterValidation("class_type", validateClassType); err != nil {
		log.Fatal("Failed to register 'class_type' validator", "error", err)
	}

	log.Info("Class validator initialized successfully")

	return &ClassValidator{
		validate: v,
		logger:   log,
	}
}

func validateTimeOfDay(fl validator.FieldLevel) bool {
	return timeRegex.MatchString(fl.Field().String())
}

func validateClassType(fl validator.FieldLevel) bool {
	switch sanitizer.NormalizeClassType(fl.Field().String()) {
	case model.ClassTypeFunctional, model.ClassTypePilates, model.ClassTypeZumba:
		return true
	}
	return false
}

func (v *ClassValidator) Validate(class *model.Class) error {
	if err := v.validate.Struct(class); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if class.SeatsAvailable > class.Capacity {
		return ValidationErrors{
			ValidationError{
				Field:   "SeatsAvailable",
				Message: fmt.Sprintf("seats_available (%d) exceeds capacity (%d)", class.SeatsAvailable, class.Capacity),
			},
		}
	}

	if class.SeatsAvailable+len(class.Enrolled) != class.Capacity {
		return ValidationErrors{
			ValidationError{
				Field:   "SeatsAvailable",
				Message: fmt.Sprintf("seats_available (%d) plus enrolled (%d) must equal capacity (%d)", class.SeatsAvailable, len(class.Enrolled), class.Capacity),
			},
		}
	}

	return nil
}

func (v *ClassValidator) ValidateUpdate(update *model.ClassUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	return nil
}

func (v *ClassValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "class_type":
			message = fmt.Sprintf("%s must be one of: functional, pilates, zumba", err.Field())
		case "valid_time_range":
			message = fmt.Sprintf("%s must be in HH:MM format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
