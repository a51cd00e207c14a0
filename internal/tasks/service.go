// Package tasks implements per-owner task CRUD. Every mutation passes through
// a single ownership gate.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-todo/internal/engine"
	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

// Collection is the store collection holding tasks.
const Collection = "tasks"

// DefaultLimit is the list size used when the caller gives none.
const DefaultLimit = 50

// ErrForbidden is returned when the caller does not own the task.
var ErrForbidden = errors.New("not the owner of this task")

// Ownership is the outcome of the ownership gate.
type Ownership int

const (
	// Missing means no task has the requested id.
	Missing Ownership = iota
	// Owned means the task exists and belongs to the caller.
	Owned
	// NotOwned means the task exists and belongs to someone else.
	NotOwned
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case NotOwned:
		return "not-owned"
	default:
		return "missing"
	}
}

// Store is the subset of the document store used by the service.
type Store interface {
	engine.DocReader
	engine.DocWriter
	engine.Querier
}

// Service manages tasks scoped to their owners.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService returns a task service backed by store. A nil clock uses time.Now.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// ListByOwner returns userID's tasks, newest first, truncated to limit.
// A limit of zero or less returns every task.
func (s *Service) ListByOwner(ctx context.Context, userID string, limit int) ([]schema.Task, error) {
	q := engine.Where("userId", userID)
	q.OrderBy = "createdAt"
	q.Desc = true
	q.Limit = limit

	docs, err := s.store.Query(ctx, Collection, q)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return engine.DecodeAll[schema.Task](docs)
}

// Gate fetches taskID and classifies it against userID.
func (s *Service) Gate(ctx context.Context, taskID, userID string) (schema.Task, Ownership, error) {
	doc, err := s.store.Get(ctx, Collection, taskID)
	if errors.Is(err, engine.ErrNotFound) {
		return schema.Task{}, Missing, nil
	}
	if err != nil {
		return schema.Task{}, Missing, fmt.Errorf("get task: %w", err)
	}

	task, err := engine.Decode[schema.Task](doc)
	if err != nil {
		return schema.Task{}, Missing, err
	}
	if task.UserID != userID {
		return schema.Task{}, NotOwned, nil
	}
	return task, Owned, nil
}

// GetVerifyingOwnership returns the task and true when userID owns it. A
// missing task yields false with a nil error; a task owned by someone else
// yields ErrForbidden.
func (s *Service) GetVerifyingOwnership(ctx context.Context, taskID, userID string) (schema.Task, bool, error) {
	task, o, err := s.Gate(ctx, taskID, userID)
	if err != nil {
		return schema.Task{}, false, err
	}
	switch o {
	case Missing:
		return schema.Task{}, false, nil
	case NotOwned:
		return schema.Task{}, false, ErrForbidden
	}
	return task, true, nil
}

// Create stores a new incomplete task owned by userID.
func (s *Service) Create(ctx context.Context, userID, title, description string) (schema.Task, error) {
	task := schema.Task{
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   schema.Timestamp(s.now()),
		Completed:   false,
	}
	data, err := engine.Encode(task)
	if err != nil {
		return schema.Task{}, err
	}

	doc, err := s.store.Insert(ctx, Collection, data)
	if err != nil {
		return schema.Task{}, fmt.Errorf("insert task: %w", err)
	}
	task.ID = doc.ID
	return task, nil
}

// Update applies the non-nil fields of patch and returns the stored result.
// The owner field is never written. The boolean is false when the task does
// not exist.
func (s *Service) Update(ctx context.Context, taskID, userID string, patch schema.TaskPatch) (schema.Task, bool, error) {
	if _, found, err := s.GetVerifyingOwnership(ctx, taskID, userID); err != nil || !found {
		return schema.Task{}, false, err
	}

	fields := make(map[string]any, 3)
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Completed != nil {
		fields["completed"] = *patch.Completed
	}

	if len(fields) > 0 {
		err := s.store.Update(ctx, Collection, taskID, fields)
		if errors.Is(err, engine.ErrNotFound) {
			return schema.Task{}, false, nil
		}
		if err != nil {
			return schema.Task{}, false, fmt.Errorf("update task: %w", err)
		}
	}

	// Re-read so the caller sees the store's authoritative state.
	doc, err := s.store.Get(ctx, Collection, taskID)
	if errors.Is(err, engine.ErrNotFound) {
		return schema.Task{}, false, nil
	}
	if err != nil {
		return schema.Task{}, false, fmt.Errorf("get task: %w", err)
	}
	task, err := engine.Decode[schema.Task](doc)
	if err != nil {
		return schema.Task{}, false, err
	}
	return task, true, nil
}

// Delete removes the task. It returns false when the task did not exist and
// ErrForbidden when userID is not its owner.
func (s *Service) Delete(ctx context.Context, taskID, userID string) (bool, error) {
	if _, found, err := s.GetVerifyingOwnership(ctx, taskID, userID); err != nil || !found {
		return false, err
	}

	err := s.store.Delete(ctx, Collection, taskID)
	if errors.Is(err, engine.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return true, nil
}
