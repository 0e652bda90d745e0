// Package validation checks decoded request payloads against struct-tag rules and
// reports failures as per-field messages.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// ErrorMessage is the top-level message of every validation failure.
const ErrorMessage = "Validation failed"

// maxBodyBytes bounds how much of a request body is decoded.
const maxBodyBytes = 1 << 20

// Error carries per-field and form-level messages.
type Error struct {
	Fields map[string][]string `json:"fieldErrors"`
	Form   []string            `json:"formErrors"`
}

func (e *Error) Error() string {
	if e == nil {
		return ErrorMessage
	}
	parts := make([]string, 0, len(e.Fields)+len(e.Form))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	parts = append(parts, e.Form...)
	if len(parts) == 0 {
		return ErrorMessage
	}
	return ErrorMessage + ": " + strings.Join(parts, "; ")
}

// FieldErrors returns the per-field messages.
func (e *Error) FieldErrors() map[string][]string {
	if e == nil || e.Fields == nil {
		return map[string][]string{}
	}
	return e.Fields
}

// FormErrors returns messages not tied to a single field.
func (e *Error) FormErrors() []string {
	if e == nil || e.Form == nil {
		return []string{}
	}
	return e.Form
}

// HTTPStatus reports 400 for every validation failure.
func (e *Error) HTTPStatus() int { return http.StatusBadRequest }

// Details is the flattened shape rendered in error responses.
func (e *Error) Details() map[string]any {
	return map[string]any{
		"fieldErrors": e.FieldErrors(),
		"formErrors":  e.FormErrors(),
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(fieldName)
	})
	return validate
}

// fieldName reports json names for body shapes and query names for query shapes.
func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "query"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// Struct validates v and returns an *Error describing every failed rule.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return &Error{Fields: map[string][]string{}, Form: []string{"Expected an object"}}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: map[string][]string{}, Form: []string{err.Error()}}
	}

	out := &Error{Fields: make(map[string][]string, len(fieldErrs)), Form: []string{}}
	for _, fe := range fieldErrs {
		name := fieldPath(fe)
		out.Fields[name] = append(out.Fields[name], message(fe))
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "url", "http_url":
		return "Invalid url"
	case "uuid", "uuid4":
		return "Invalid uuid"
	case "oneof":
		return fmt.Sprintf("Invalid enum value. Expected one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("String must contain at least %s character(s)", fe.Param())
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("Must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("Number must be greater than or equal to %s", fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("String must contain at most %s character(s)", fe.Param())
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("Must contain at most %s item(s)", fe.Param())
		}
		return fmt.Sprintf("Number must be less than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("Number must be greater than %s", fe.Param())
	case "lt":
		return fmt.Sprintf("Number must be less than %s", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s long", fe.Param())
	default:
		return fmt.Sprintf("Failed %s validation", fe.Tag())
	}
}

// DecodeBody reads JSON into a T. Unparseable or empty bodies yield the zero value
// so the shape's rules decide whether that is acceptable.
func DecodeBody[T any](r io.Reader) (T, error) {
	var out T
	if r == nil {
		return out, Struct(&out)
	}

	var decoded T
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&decoded); err == nil {
		out = decoded
	}
	return out, Struct(&out)
}

// DecodeQuery maps the first value of each query key onto T, coercing numeric and
// boolean strings. Fields use `query` tags.
func DecodeQuery[T any](values url.Values) (T, error) {
	var out T

	flat := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		flat[key] = vals[0]
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "query",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return out, err
	}

	if err := decoder.Decode(flat); err != nil {
		return out, coercionError(err)
	}
	return out, Struct(&out)
}

// coercionError turns mapstructure's "'limit' cannot parse ..." lines into field errors.
func coercionError(err error) error {
	out := &Error{Fields: map[string][]string{}, Form: []string{}}

	for _, line := range strings.Split(err.Error(), "\n") {
		field := quotedField(line)
		if field == "" {
			continue
		}
		out.Fields[field] = append(out.Fields[field], "Invalid value")
	}
	if len(out.Fields) == 0 {
		out.Form = append(out.Form, "Invalid query string")
	}
	return out
}

func quotedField(msg string) string {
	start := strings.Index(msg, "'")
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], "'")
	if end <= 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
