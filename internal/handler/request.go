package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so messages match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs its validate tags.
// The returned error is safe to show to the client.
func decode(r *http.Request, dst any) error {
	err := render.DecodeJSON(r.Body, dst)
	if err != nil {
		return errors.New("request body must be valid JSON")
	}

	err = validate.Struct(dst)
	if err != nil {
		return validationMessage(err)
	}

	return nil
}

func validationMessage(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return errors.New("invalid request")
	}

	var msgs []string
	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", e.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid URL", e.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid email", e.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s characters", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", e.Field()))
		}
	}

	return errors.New(strings.Join(msgs, ", "))
}
