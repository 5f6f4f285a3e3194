package tools

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/apierr"
)

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	amountPattern   = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	revisionPattern = regexp.MustCompile(`^\d+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "isodate", datePattern)
	mustRegister(v, "amount", amountPattern)
	mustRegister(v, "revision", revisionPattern)
	if err := v.RegisterValidation("account_type", func(fl validator.FieldLevel) bool {
		return slices.Contains(accounting.AccountTypes, fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

// bind decodes the tool arguments into dst and validates them. Failures are
// Validation errors listing every offending field.
func bind(req mcp.CallToolRequest, dst any) error {
	if err := req.BindArguments(dst); err != nil {
		return apierr.Validation("Validation failed: "+err.Error(), nil)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// FieldError is one entry of a validation failure's details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.Validation("Validation failed: "+err.Error(), nil)
	}
	details := make([]FieldError, 0, len(verrs))
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		d := FieldError{Field: fieldPath(fe), Message: validationMessage(fe)}
		details = append(details, d)
		parts = append(parts, d.Field+": "+d.Message)
	}
	return apierr.Validation("Validation failed: "+strings.Join(parts, ", "), details)
}

func validationField(field, msg string) error {
	return apierr.Validation("Validation failed: "+field+": "+msg, []FieldError{{Field: field, Message: msg}})
}

// fieldPath drops the struct name from the namespace: "lines[0].amount".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "account_type":
		return "must be one of: " + strings.Join(accounting.AccountTypes, ", ")
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "amount":
		return "must be a non-negative decimal amount with at most two decimals"
	case "revision":
		return "must be a numeric revision number"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " item(s)"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must contain at most " + fe.Param() + " item(s)"
		}
		return "must be at most " + fe.Param()
	case "startswith":
		return "must start with " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}
