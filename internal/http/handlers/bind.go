package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body into out, answering 400 itself on failure.
// Request DTOs are flat, so a field is reported under its json tag name.
func BindJSON(ctx *gin.Context, out any) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err, out))
		return false
	}
	return true
}

func bindErrorDetails(err error, out any) gin.H {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, FieldError{
				Field:   jsonFieldName(out, fe.StructField()),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	if errors.Is(err, io.EOF) {
		return gin.H{"json": "empty_body"}
	}

	// Field already holds the json key
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return gin.H{
			"json":  "invalid_json_type",
			"field": typeErr.Field,
			"fields": []FieldError{{
				Field:   typeErr.Field,
				Rule:    "type",
				Message: fmt.Sprintf("must be of type %s", typeErr.Type),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

func jsonFieldName(out any, structField string) string {
	t := reflect.TypeOf(out)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return structField
	}

	sf, ok := t.FieldByName(structField)
	if !ok {
		return structField
	}

	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return structField
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + param
	case "uuid":
		return "must be a valid UUID"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
