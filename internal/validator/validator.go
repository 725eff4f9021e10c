package validator

import (
	"reflect"
	"strings"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator combines struct tag validation with worksheet content rules.
type Validator struct {
	structValidator  *validator.Validate
	contentValidator *ContentValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:  structValidator,
		contentValidator: NewContentValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if errs := ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// Validate performs struct validation and, for worksheet content, the content rules.
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		return err
	}

	switch c := s.(type) {
	case *models.WorksheetContent:
		if errs := v.contentValidator.ValidateContent(c); len(errs) > 0 {
			return errs
		}
	case *models.Problem:
		if err := v.contentValidator.ValidateProblem(c); err != nil {
			return err
		}
	}

	return nil
}

// Content returns the content validator
func (v *Validator) Content() *ContentValidator {
	return v.contentValidator
}

func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("subject", validateSubject)
	validate.RegisterValidation("worksheet_status", validateWorksheetStatus)
	validate.RegisterValidation("job_kind", validateJobKind)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateSubject(fl validator.FieldLevel) bool {
	return models.Subject(fl.Field().String()).Valid()
}

func validateWorksheetStatus(fl validator.FieldLevel) bool {
	switch models.WorksheetStatus(fl.Field().String()) {
	case models.WorksheetAssigned, models.WorksheetInProgress, models.WorksheetCompleted, models.WorksheetSubmitted:
		return true
	}
	return false
}

func validateJobKind(fl validator.FieldLevel) bool {
	return models.JobKind(fl.Field().String()).Valid()
}
