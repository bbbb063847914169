package http

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(wireName)
	return v
}

// wireName reports a field by the name the client used for it.
func wireName(f reflect.StructField) string {
	for _, tag := range []string{"query", "param", "json"} {
		if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// ReadAndValidateRequest fills req from `default` tags, then binds path and
// query params over them and validates the result. Defaults go first so an
// explicit zero from the client survives. A nil result means req is usable.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	if err := c.Bind(req); err != nil {
		return bindingErrors(c, req, err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

// bindingErrors turns a failed bind into ERR_MALFORMED, naming the param
// whose raw value could not be converted when it can be found.
func bindingErrors(c echo.Context, req interface{}, err error) []ValidationError {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		field := paramWithValue(c, req, numErr.Num)
		msg := fmt.Sprintf("%q is not a number", numErr.Num)
		if field != "" {
			msg = fmt.Sprintf("%s must be a number, got %q", field, numErr.Num)
		}
		return []ValidationError{{
			Code:    "ERR_MALFORMED",
			Field:   field,
			Message: msg,
			Params:  map[string]interface{}{"value": numErr.Num},
		}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{
			Code:    "ERR_MALFORMED",
			Message: fmt.Sprintf("%v", he.Message),
		}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// paramWithValue returns the query or path param of req whose raw value is raw.
func paramWithValue(c echo.Context, req interface{}, raw string) string {
	t := reflect.TypeOf(req)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return ""
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if name := f.Tag.Get("query"); name != "" && c.QueryParam(name) == raw {
			return name
		}
		if name := f.Tag.Get("param"); name != "" && c.Param(name) == raw {
			return name
		}
	}
	return ""
}

func validationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Params:  errorParams(fe),
		})
	}
	return out
}

func errorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func errorParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "lte":
		return map[string]interface{}{"max": fe.Param()}
	}
	return nil
}
