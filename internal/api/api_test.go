package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-todo/internal/engine"
	"github.com/celerix-dev/celerix-todo/internal/tasks"
	"github.com/celerix-dev/celerix-todo/internal/token"
	"github.com/celerix-dev/celerix-todo/internal/users"
	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

type testEnv struct {
	router *gin.Engine
	h      *Handler
	issuer *token.Issuer
}

func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := stepClock()
	store := engine.NewMemStore(nil, nil)
	iss, err := token.NewIssuer([]byte("test-secret"), nil)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	userSvc, err := users.NewService(context.Background(), store, iss, clock)
	if err != nil {
		t.Fatalf("users.NewService failed: %v", err)
	}

	h := &Handler{
		Users:   userSvc,
		Tasks:   tasks.NewService(store, clock),
		Tokens:  iss,
		Version: "1.0.0",
	}
	r := NewRouter(h, Options{
		AllowedOrigins: []string{"http://localhost:4200"},
		Logger:         log.New(io.Discard),
	})
	return &testEnv{router: r, h: h, issuer: iss}
}

func (e *testEnv) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req, _ := http.NewRequest(method, Prefix+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) signup(t *testing.T, email string) schema.LoginResponse {
	t.Helper()
	w := e.do("POST", "/users", "", map[string]string{"email": email})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d: %s", email, w.Code, w.Body)
	}
	var resp schema.LoginResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("response is not an error body: %s", w.Body)
	}
	return e
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var h schema.Health
	json.Unmarshal(w.Body.Bytes(), &h)
	if h.Status != "ok" || h.Version != "1.0.0" || h.Timestamp == "" || h.Message == "" {
		t.Errorf("Unexpected health body: %+v", h)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected security headers")
	}
}

func TestUserScenario(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("POST", "/users/login", "", map[string]string{"email": "nonexistent@x.com"})
	if w.Code != http.StatusNotFound {
		t.Errorf("login unknown: expected 404, got %d", w.Code)
	}

	created := env.signup(t, "A@X.com")
	if created.User.Email != "a@x.com" {
		t.Errorf("Expected lowercased email, got %s", created.User.Email)
	}
	if created.Token == "" || created.User.ID == "" || created.User.CreatedAt == "" {
		t.Errorf("Incomplete login response: %+v", created)
	}

	w = env.do("POST", "/users", "", map[string]string{"email": "a@x.com"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate signup: expected 409, got %d", w.Code)
	}

	w = env.do("POST", "/users/login", "", map[string]string{"email": "a@x.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	var resp schema.LoginResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.User != created.User {
		t.Errorf("Expected %+v, got %+v", created.User, resp.User)
	}
}

func TestInvalidEmail(t *testing.T) {
	env := setupTestRouter(t)

	for _, body := range []any{
		map[string]string{"email": "not-an-email"},
		map[string]string{},
		"invalid",
		map[string]int{"email": 5},
	} {
		for _, path := range []string{"/users", "/users/login"} {
			w := env.do("POST", path, "", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s %v: expected 400, got %d", path, body, w.Code)
				continue
			}
			if e := decodeError(t, w); len(e.Details) == 0 {
				t.Errorf("%s %v: expected field details", path, body)
			}
		}
	}

	w := env.do("POST", "/users", "", map[string]string{"email": "nope"})
	e := decodeError(t, w)
	if e.Details[0].Field != "email" {
		t.Errorf("Expected json field name, got %q", e.Details[0].Field)
	}
}

func TestTaskScenario(t *testing.T) {
	env := setupTestRouter(t)
	owner := env.signup(t, "a@x.com")
	other := env.signup(t, "b@x.com")

	w := env.do("POST", "/tasks", owner.Token, map[string]string{"title": "Buy milk"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body)
	}
	var task schema.Task
	json.Unmarshal(w.Body.Bytes(), &task)
	if task.Completed || task.Description != "" || task.Title != "Buy milk" || task.UserID != owner.User.ID {
		t.Errorf("Unexpected task: %+v", task)
	}
	if !strings.Contains(w.Body.String(), `"description":""`) {
		t.Errorf("Expected empty description in body, got %s", w.Body)
	}

	w = env.do("PATCH", "/tasks/"+task.ID, owner.Token, map[string]bool{"completed": true})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", w.Code, w.Body)
	}
	var patched schema.Task
	json.Unmarshal(w.Body.Bytes(), &patched)
	if !patched.Completed || patched.Title != "Buy milk" {
		t.Errorf("Unexpected patched task: %+v", patched)
	}

	w = env.do("PATCH", "/tasks/"+task.ID, other.Token, map[string]string{"title": "Stolen"})
	if w.Code != http.StatusForbidden {
		t.Errorf("patch as other: expected 403, got %d", w.Code)
	}

	w = env.do("DELETE", "/tasks/"+task.ID, other.Token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("delete as other: expected 403, got %d", w.Code)
	}

	w = env.do("DELETE", "/tasks/"+task.ID, owner.Token, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete as owner: expected 204, got %d", w.Code)
	}

	w = env.do("DELETE", "/tasks/"+task.ID, owner.Token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}

	w = env.do("PATCH", "/tasks/"+task.ID, owner.Token, map[string]bool{"completed": false})
	if w.Code != http.StatusNotFound {
		t.Errorf("patch deleted: expected 404, got %d", w.Code)
	}

	w = env.do("GET", "/tasks", owner.Token, nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("list: expected empty array, got %d %s", w.Code, w.Body)
	}
}

func TestListTasks(t *testing.T) {
	env := setupTestRouter(t)
	alice := env.signup(t, "alice@x.com")
	bob := env.signup(t, "bob@x.com")

	for _, title := range []string{"first", "second", "third"} {
		env.do("POST", "/tasks", alice.Token, map[string]string{"title": title})
	}
	env.do("POST", "/tasks", bob.Token, map[string]string{"title": "bob's"})

	tests := []struct {
		query string
		code  int
		want  []string
	}{
		{"", http.StatusOK, []string{"third", "second", "first"}},
		{"?limit=2", http.StatusOK, []string{"third", "second"}},
		{"?limit=0", http.StatusOK, []string{"third", "second", "first"}},
		{"?limit=-1", http.StatusOK, []string{"third", "second", "first"}},
		{"?limit=abc", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do("GET", "/tasks"+tt.query, alice.Token, nil)
			if w.Code != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, w.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var list []schema.Task
			json.Unmarshal(w.Body.Bytes(), &list)
			if len(list) != len(tt.want) {
				t.Fatalf("Expected %d tasks, got %d", len(tt.want), len(list))
			}
			for i, task := range list {
				if task.Title != tt.want[i] || task.UserID != alice.User.ID {
					t.Errorf("position %d: unexpected task %+v", i, task)
				}
			}
		})
	}
}

func TestTaskValidation(t *testing.T) {
	env := setupTestRouter(t)
	u := env.signup(t, "a@x.com")

	w := env.do("POST", "/tasks", u.Token, map[string]string{"title": "ok title"})
	var task schema.Task
	json.Unmarshal(w.Body.Bytes(), &task)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		field  string
	}{
		{"missing title", "POST", "/tasks", map[string]string{"description": "x"}, "title"},
		{"short title", "POST", "/tasks", map[string]string{"title": "ab"}, "title"},
		{"long title", "POST", "/tasks", map[string]string{"title": strings.Repeat("a", 81)}, "title"},
		{"long description", "POST", "/tasks", map[string]string{"title": "abc", "description": strings.Repeat("a", 201)}, "description"},
		{"patch empty title", "PATCH", "/tasks/" + task.ID, map[string]string{"title": ""}, "title"},
		{"patch long description", "PATCH", "/tasks/" + task.ID, map[string]string{"description": strings.Repeat("a", 201)}, "description"},
		{"patch wrong type", "PATCH", "/tasks/" + task.ID, map[string]string{"completed": "yes"}, "completed"},
		{"malformed", "POST", "/tasks", "{", "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, u.Token, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body)
			}
			e := decodeError(t, w)
			if len(e.Details) == 0 || e.Details[0].Field != tt.field {
				t.Errorf("Expected detail for %s, got %+v", tt.field, e.Details)
			}
		})
	}

	w = env.do("POST", "/tasks", u.Token, map[string]string{"title": strings.Repeat("é", 80), "description": strings.Repeat("ü", 200)})
	if w.Code != http.StatusCreated {
		t.Errorf("Expected lengths to count characters, got %d: %s", w.Code, w.Body)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestRouter(t)
	u := env.signup(t, "a@x.com")

	past := func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	oldIssuer, _ := token.NewIssuer([]byte("test-secret"), past)
	expired, _ := oldIssuer.Issue(u.User.ID, u.User.Email)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "authentication token required"},
		{"wrong scheme", "Basic abc", "invalid token format, use: Bearer <token>"},
		{"no token", "Bearer ", "invalid token format, use: Bearer <token>"},
		{"extra parts", "Bearer a b", "invalid token format, use: Bearer <token>"},
		{"garbage", "Bearer garbage", "invalid token"},
		{"expired", "Bearer " + expired, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", Prefix+"/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("Expected 401, got %d", w.Code)
			}
			if e := decodeError(t, w); e.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, e.Message)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("OPTIONS", Prefix+"/tasks", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected preflight 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:4200" {
		t.Errorf("Expected allowed origin echoed, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req, _ = http.NewRequest("GET", Prefix+"/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Unexpected CORS header for a foreign origin")
	}
}

func TestNoRoute(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Error != "Not Found" {
		t.Errorf("Unexpected body: %+v", e)
	}
}

// brokenTasks fails every call with a store error.
type brokenTasks struct{ err error }

func (b brokenTasks) ListByOwner(context.Context, string, int) ([]schema.Task, error) {
	return nil, b.err
}
func (b brokenTasks) Create(context.Context, string, string, string) (schema.Task, error) {
	return schema.Task{}, b.err
}
func (b brokenTasks) Update(context.Context, string, string, schema.TaskPatch) (schema.Task, bool, error) {
	return schema.Task{}, false, b.err
}
func (b brokenTasks) Delete(context.Context, string, string) (bool, error) { return false, b.err }

func TestInternalErrors(t *testing.T) {
	env := setupTestRouter(t)
	u := env.signup(t, "a@x.com")
	env.h.Tasks = brokenTasks{err: errors.New("connection refused")}

	w := env.do("GET", "/tasks", u.Token, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Message != "internal error" {
		t.Errorf("Expected elided message, got %q", e.Message)
	}

	env.h.Development = true
	w = env.do("DELETE", "/tasks/x", u.Token, nil)
	if e := decodeError(t, w); e.Message != "connection refused" {
		t.Errorf("Expected error message in development, got %q", e.Message)
	}
}
