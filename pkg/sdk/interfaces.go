package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

var (
	// ErrNoToken is returned by authenticated calls made before a token is set.
	ErrNoToken = errors.New("not logged in")
	// ErrNotFound matches any *APIError with a 404 status.
	ErrNotFound = errors.New("not found")
	// ErrForbidden matches any *APIError with a 403 status.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized matches any *APIError with a 401 status.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []FieldError
}

// FieldError describes one field rejected by server-side validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Is lets callers test status classes with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// --- Functional Interfaces ---

// HealthChecker probes the server.
type HealthChecker interface {
	Health(ctx context.Context) (schema.Health, error)
}

// Authenticator logs users in and registers them.
type Authenticator interface {
	Login(ctx context.Context, email string) (schema.LoginResponse, error)
	CreateUser(ctx context.Context, email string) (schema.LoginResponse, error)
}

// TaskReader lists the caller's tasks.
type TaskReader interface {
	ListTasks(ctx context.Context, limit int) ([]schema.Task, error)
}

// TaskWriter mutates the caller's tasks.
type TaskWriter interface {
	CreateTask(ctx context.Context, title, description string) (schema.Task, error)
	UpdateTask(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// TodoAPI is the full REST surface.
type TodoAPI interface {
	HealthChecker
	Authenticator
	TaskReader
	TaskWriter
}

var _ TodoAPI = (*Client)(nil)
