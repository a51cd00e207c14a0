// Package users maps emails to user records and issues login tokens.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-todo/internal/engine"
	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

// Collection is the store collection holding user records.
const Collection = "users"

var (
	// ErrNotFound is returned when no user has the requested email or id.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists is returned when creating a user whose email is taken.
	ErrAlreadyExists = errors.New("user already exists")
)

// TokenIssuer signs identity tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// Store is the subset of the document store used by the directory.
type Store interface {
	engine.DocReader
	engine.DocWriter
	engine.Querier
	engine.Indexer
}

// Service is the user directory.
type Service struct {
	store  Store
	tokens TokenIssuer
	now    func() time.Time
}

// NewService declares the unique email index on store and returns a
// directory. A nil clock uses time.Now.
func NewService(ctx context.Context, store Store, tokens TokenIssuer, now func() time.Time) (*Service, error) {
	if err := store.EnsureUnique(ctx, Collection, "email"); err != nil {
		return nil, fmt.Errorf("ensure unique email index: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, tokens: tokens, now: now}, nil
}

// Login issues a token for the user registered under email. It returns
// ErrNotFound when no such user exists; accounts are never created here.
func (s *Service) Login(ctx context.Context, email string) (schema.LoginResponse, error) {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return schema.LoginResponse{}, err
	}
	return s.respond(user)
}

// CreateUser registers email and issues a token for the new user. It returns
// ErrAlreadyExists when the email is taken, including when a concurrent
// creation wins the race and the store's unique index rejects this insert.
func (s *Service) CreateUser(ctx context.Context, email string) (schema.LoginResponse, error) {
	_, err := s.findByEmail(ctx, email)
	switch {
	case err == nil:
		return schema.LoginResponse{}, ErrAlreadyExists
	case !errors.Is(err, ErrNotFound):
		return schema.LoginResponse{}, err
	}

	user := schema.User{Email: email, CreatedAt: schema.Timestamp(s.now())}
	data, err := engine.Encode(user)
	if err != nil {
		return schema.LoginResponse{}, err
	}

	doc, err := s.store.Insert(ctx, Collection, data)
	if errors.Is(err, engine.ErrDuplicate) {
		return schema.LoginResponse{}, ErrAlreadyExists
	}
	if err != nil {
		return schema.LoginResponse{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = doc.ID

	return s.respond(user)
}

// GetByID returns the user with id or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (schema.User, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, engine.ErrNotFound) {
		return schema.User{}, ErrNotFound
	}
	if err != nil {
		return schema.User{}, fmt.Errorf("get user: %w", err)
	}
	return engine.Decode[schema.User](doc)
}

func (s *Service) findByEmail(ctx context.Context, email string) (schema.User, error) {
	q := engine.Where("email", email)
	q.Limit = 1
	docs, err := s.store.Query(ctx, Collection, q)
	if err != nil {
		return schema.User{}, fmt.Errorf("find user by email: %w", err)
	}
	if len(docs) == 0 {
		return schema.User{}, ErrNotFound
	}
	return engine.Decode[schema.User](docs[0])
}

func (s *Service) respond(user schema.User) (schema.LoginResponse, error) {
	tok, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return schema.LoginResponse{}, err
	}
	return schema.LoginResponse{Token: tok, User: user}, nil
}
