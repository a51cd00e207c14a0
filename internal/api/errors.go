package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/celerix-dev/celerix-todo/internal/tasks"
	"github.com/celerix-dev/celerix-todo/internal/token"
	"github.com/celerix-dev/celerix-todo/internal/users"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// fail maps a service error to a response. Anything unrecognised is a 500.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound):
		respond(c, http.StatusNotFound, "user not found, do you want to create an account?", nil)
	case errors.Is(err, users.ErrAlreadyExists):
		respond(c, http.StatusConflict, "user already exists", nil)
	case errors.Is(err, tasks.ErrForbidden):
		respond(c, http.StatusForbidden, "you do not have permission to access this task", nil)
	case errors.Is(err, token.ErrExpired):
		respond(c, http.StatusUnauthorized, "token expired", nil)
	case errors.Is(err, token.ErrInvalid):
		respond(c, http.StatusUnauthorized, "invalid token", nil)
	default:
		h.internal(c, err)
	}
}

func (h *Handler) internal(c *gin.Context, err error) {
	if h.Logger != nil {
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
	}
	msg := "internal error"
	if h.Development {
		msg = err.Error()
	}
	respond(c, http.StatusInternalServerError, msg, nil)
}

func respond(c *gin.Context, status int, message string, details []FieldError) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Details: details,
	})
}

func badRequest(c *gin.Context, message string, details []FieldError) {
	respond(c, http.StatusBadRequest, message, details)
}

// validationDetails turns a binding error into per-field messages.
func validationDetails(err error) []FieldError {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]FieldError, 0, len(ve))
		for _, fe := range ve {
			out = append(out, FieldError{Field: fe.Field(), Message: ruleMessage(fe)})
		}
		return out
	}

	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return []FieldError{{Field: te.Field, Message: "must be a " + te.Type.String()}}
	}

	if errors.Is(err, io.EOF) {
		return []FieldError{{Field: "body", Message: "request body is required"}}
	}
	return []FieldError{{Field: "body", Message: "malformed JSON"}}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

var registerFieldNames sync.Once

// useJSONFieldNames makes validator report fields by their JSON name.
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}
