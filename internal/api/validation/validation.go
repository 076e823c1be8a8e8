// Package validation provides request decoding, validation and custom validators.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// ErrInvalidBody is returned by DecodeJSON for malformed or unexpected request bodies.
var ErrInvalidBody = errors.New("invalid request body")

var (
	// validate and decoder are package-level singletons that are safe for concurrent
	// read-only access (validate.Struct() and decoder.Decode() are thread-safe).
	// All registrations MUST happen in init() only, as those methods are NOT thread-safe.
	validate *validator.Validate
	decoder  *form.Decoder
)

func init() {
	validate = validator.New()
	decoder = form.NewDecoder()

	// Report fields by their wire name (camelCase) rather than the Go field name.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}

			if name != "" {
				return name
			}
		}

		return field.Name
	})

	if err := validate.RegisterValidation("technology_category", validateTechnologyCategory); err != nil {
		slog.Error("Failed to register technology_category validator", "error", err)
	}

	if err := validate.RegisterValidation("document_class", validateDocumentClass); err != nil {
		slog.Error("Failed to register document_class validator", "error", err)
	}

	if err := validate.RegisterValidation("no_null_bytes", validateNoNullBytes); err != nil {
		slog.Error("Failed to register no_null_bytes validator", "error", err)
	}

	decoder.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		if len(vals) == 0 || vals[0] == "" {
			return models.TechnologyCategory(""), nil
		}

		c, err := models.ParseTechnologyCategory(vals[0])
		if err != nil {
			return nil, fmt.Errorf("invalid category: %w", err)
		}

		return c, nil
	}, models.TechnologyCategory(""))
}

// ValidateStruct validates a struct using go-playground/validator.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// fieldErrors keeps the validator's per-field errors behind a readable message.
type fieldErrors struct {
	msg    string
	fields validator.ValidationErrors
}

func (e *fieldErrors) Error() string { return e.msg }

func (e *fieldErrors) Unwrap() error { return e.fields }

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, formatFieldError(fieldError))
		}

		return &fieldErrors{
			msg:    "validation failed: " + strings.Join(messages, "; "),
			fields: validationErrors,
		}
	}

	return fmt.Errorf("validate: %w", err)
}

// formatFieldError formats a single field validation error.
func formatFieldError(fieldError validator.FieldError) string {
	field := fieldError.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fieldError.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fieldError.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fieldError.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fieldError.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldError.Param())
	case "technology_category":
		return field + " must be one of: " + categoryList()
	case "document_class":
		return field + " must be one of: narrative, pws_sow, qasp, government_review, cpars, other"
	case "uuid":
		return field + " must be a valid UUID"
	case "no_null_bytes":
		return field + " must not contain NULL bytes"
	case "dive":
		return field + " contains an invalid entry"
	default:
		return field + " is invalid"
	}
}

func categoryList() string {
	cats := models.AllCategories()
	names := make([]string, len(cats))

	for i, c := range cats {
		names[i] = string(c)
	}

	return strings.Join(names, ", ")
}

// GetValidationErrorDetails extracts field-level error details from validation errors.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var details []response.ErrorDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			details = append(details, response.ErrorDetail{
				Location: fieldError.Field(),
				Message:  formatFieldError(fieldError),
				Value:    fieldError.Value(),
			})
		}
	}

	return details
}

// RespondValidationError writes a validation error response with RFC 7807 Problem Details.
func RespondValidationError(w http.ResponseWriter, err error) {
	response.RespondProblem(w, &response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	})
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidBody)
	}

	return nil
}

// DecodeAndValidateJSON decodes the body and validates the result in one step.
func DecodeAndValidateJSON(r *http.Request, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return err
	}

	return ValidateStruct(dst)
}

// DecodeQueryParams decodes URL query parameters into a struct.
func DecodeQueryParams(r *http.Request, dst any) error {
	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("failed to decode query parameters: %w", err)
	}

	return nil
}

// ValidateAndDecodeQueryParams decodes and validates query parameters in one step.
func ValidateAndDecodeQueryParams(r *http.Request, dst any) error {
	if err := DecodeQueryParams(r, dst); err != nil {
		return err
	}

	return ValidateStruct(dst)
}

// validateTechnologyCategory accepts TechnologyCategory values and plain strings naming a known category.
func validateTechnologyCategory(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}

	_, err := models.ParseTechnologyCategory(field.String())

	return err == nil
}

// validateDocumentClass accepts any spelling ParseDocumentClass understands.
func validateDocumentClass(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}

	_, err := models.ParseDocumentClass(field.String())

	return err == nil
}

// validateNoNullBytes checks that a string field does not contain NULL bytes.
// Handles both string and *string types.
func validateNoNullBytes(fl validator.FieldLevel) bool {
	field := fl.Field()

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}

		field = field.Elem()
	}

	if field.Kind() != reflect.String {
		return true
	}

	return !strings.Contains(field.String(), "\x00")
}
