// Package api exposes the user directory and task service over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-todo/internal/tasks"
	"github.com/celerix-dev/celerix-todo/internal/token"
	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

// Prefix is the versioned path prefix of every route.
const Prefix = "/api/v1"

// UserDirectory logs users in and registers new ones.
type UserDirectory interface {
	Login(ctx context.Context, email string) (schema.LoginResponse, error)
	CreateUser(ctx context.Context, email string) (schema.LoginResponse, error)
}

// TaskService is the owner-scoped task store.
type TaskService interface {
	ListByOwner(ctx context.Context, userID string, limit int) ([]schema.Task, error)
	Create(ctx context.Context, userID, title, description string) (schema.Task, error)
	Update(ctx context.Context, taskID, userID string, patch schema.TaskPatch) (schema.Task, bool, error)
	Delete(ctx context.Context, taskID, userID string) (bool, error)
}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(tok string) (token.Assertion, error)
}

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Users   UserDirectory
	Tasks   TaskService
	Tokens  TokenVerifier
	Logger  *log.Logger
	Version string
	// Development exposes internal error messages in 500 responses.
	Development bool
	Now         func() time.Time
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type createTaskRequest struct {
	Title       string  `json:"title" binding:"required,min=3,max=80"`
	Description *string `json:"description" binding:"omitnil,max=200"`
}

type updateTaskRequest struct {
	Title       *string `json:"title" binding:"omitnil,min=3,max=80"`
	Description *string `json:"description" binding:"omitnil,max=200"`
	Completed   *bool   `json:"completed"`
}

func (h *Handler) Health(c *gin.Context) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	c.JSON(http.StatusOK, schema.Health{
		Status:    "ok",
		Message:   "TODO API is running",
		Timestamp: schema.Timestamp(now()),
		Version:   h.Version,
	})
}

func (h *Handler) Login(c *gin.Context) {
	email, ok := h.bindEmail(c)
	if !ok {
		return
	}
	resp, err := h.Users.Login(c.Request.Context(), email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateUser(c *gin.Context) {
	email, ok := h.bindEmail(c)
	if !ok {
		return
	}
	resp, err := h.Users.CreateUser(c.Request.Context(), email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListTasks(c *gin.Context) {
	id := MustIdentity(c)

	limit := tasks.DefaultLimit
	if raw, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			badRequest(c, "invalid query", []FieldError{{Field: "limit", Message: "must be an integer"}})
			return
		}
		limit = n
	}

	list, err := h.Tasks.ListByOwner(c.Request.Context(), id.Subject, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []schema.Task{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateTask(c *gin.Context) {
	id := MustIdentity(c)

	var input createTaskRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid data", validationDetails(err))
		return
	}
	description := ""
	if input.Description != nil {
		description = *input.Description
	}

	task, err := h.Tasks.Create(c.Request.Context(), id.Subject, input.Title, description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	id := MustIdentity(c)

	var input updateTaskRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid data", validationDetails(err))
		return
	}

	task, found, err := h.Tasks.Update(c.Request.Context(), c.Param("id"), id.Subject, schema.TaskPatch{
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		respond(c, http.StatusNotFound, "task not found", nil)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	id := MustIdentity(c)

	deleted, err := h.Tasks.Delete(c.Request.Context(), c.Param("id"), id.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		respond(c, http.StatusNotFound, "task not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// bindEmail validates an {email} body and returns the lowercased address.
func (h *Handler) bindEmail(c *gin.Context) (string, bool) {
	var input emailRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid email", validationDetails(err))
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(input.Email)), true
}
