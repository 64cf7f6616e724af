// Package validation checks inbound request values with
// go-playground/validator before they reach the compute backend.
//
// Algorithm names end up as a path segment of the compute backend URL, so
// they are limited to MaxAlgorithmNameLen characters of [A-Za-z0-9_] via the
// custom "algorithm" tag.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxAlgorithmNameLen bounds the algorithm path segment.
const MaxAlgorithmNameLen = 50

// algorithmRules is the full rule set applied to an algorithm name.
const algorithmRules = "required,max=50,algorithm"

var algorithmPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error is returned when a value fails validation. It lists every failed field.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Details renders the failed fields for the error envelope.
func (e *Error) Details() []map[string]string {
	out := make([]map[string]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = map[string]string{"field": f.Field, "tag": f.Tag, "message": f.Message}
	}
	return out
}

// Validator returns the singleton validator with the custom tags registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		// RegisterValidation only fails on an empty tag or nil func.
		_ = validate.RegisterValidation("algorithm", func(fl validator.FieldLevel) bool {
			return algorithmPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return convert(Validator().Struct(s), "")
}

// AlgorithmName validates a bare algorithm name, e.g. a URL path parameter.
func AlgorithmName(name string) error {
	return convert(Validator().Var(name, algorithmRules), "algorithm")
}

func convert(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	out := &Error{Fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		name := fe.Field()
		if name == "" {
			name = field
		}
		out.Fields[i] = FieldError{
			Field:   name,
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(name, fe.Tag(), fe.Param()),
		}
	}
	return out
}

func message(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "algorithm":
		return fmt.Sprintf("%s may only contain letters, digits and underscores", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}

// jsonFieldName reports fields by their JSON name so messages match the request body.
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
