package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report the JSON name so clients see the field they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// RequestChecker is implemented by requests with rules that struct tags cannot express.
// Check runs after tag validation.
type RequestChecker interface {
	Check() error
}

// FieldError is an error that names the offending request field. Errors implementing it
// are reported as CodeInvalidParameter.
type FieldError interface {
	error
	FieldName() string
}

// ReadAndValidateRequest binds the body (or query), applies `default` tags, validates
// `validate` tags and finally calls Check when req implements RequestChecker.
// It returns nil or a []ValidationError ready for BadRequestResponse.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	if rc, ok := req.(RequestChecker); ok {
		if err := rc.Check(); err != nil {
			return toValidationErrors(err)
		}
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		out := make([]ValidationError, 0, len(fields))
		for _, fe := range fields {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fieldPath(fe),
				Message: tagMessage(fe),
				Params:  tagParams(fe),
			})
		}
		return out
	}

	var fe FieldError
	if errors.As(err, &fe) {
		return []ValidationError{{Code: CodeInvalidParameter, Field: fe.FieldName(), Message: fe.Error()}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: CodeBadRequest, Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: CodeBadRequest, Message: err.Error()}}
}

// fieldPath drops the root struct name: "bars[3].high" rather than "EvaluateRequest.bars[3].high".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func tagMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s must be %s %s", field, comparisons[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

var comparisons = map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}

func tagParams(fe validator.FieldError) map[string]interface{} {
	var p map[string]interface{}
	switch fe.Tag() {
	case "min", "gte":
		p = map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		p = map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		p = map[string]interface{}{"bound": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	default:
		return nil
	}
	switch fe.Kind() {
	case reflect.Int, reflect.Int64, reflect.Float64:
		p["value"] = fe.Value()
	}
	return p
}
