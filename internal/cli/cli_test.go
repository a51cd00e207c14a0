package cli_test

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-todo/internal/api"
	"github.com/celerix-dev/celerix-todo/internal/cli"
	"github.com/celerix-dev/celerix-todo/internal/engine"
	"github.com/celerix-dev/celerix-todo/internal/tasks"
	"github.com/celerix-dev/celerix-todo/internal/token"
	"github.com/celerix-dev/celerix-todo/internal/users"
)

// setup starts an API server and points todoctl at it with a private config dir.
func setup(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := engine.NewMemStore(nil, nil)
	iss, _ := token.NewIssuer([]byte("cli-secret"), nil)
	userSvc, err := users.NewService(context.Background(), store, iss, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := &api.Handler{Users: userSvc, Tasks: tasks.NewService(store, nil), Tokens: iss, Version: "1.0.0"}
	srv := httptest.NewServer(api.NewRouter(h, api.Options{Logger: log.New(io.Discard)}))
	t.Cleanup(srv.Close)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("TODO_API_URL", srv.URL+api.Prefix)
	t.Setenv("TODO_TOKEN", "")
	return xdg
}

func run(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = cli.Run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

var idPattern = regexp.MustCompile(`created (\S+)`)

func TestWorkflow(t *testing.T) {
	xdg := setup(t)

	if out, _, code := run(t, "health"); code != cli.Success || !strings.HasPrefix(out, "ok:") {
		t.Fatalf("health: code %d, out %q", code, out)
	}

	if _, stderr, code := run(t, "list"); code != cli.AuthError || !strings.Contains(stderr, "not logged in") {
		t.Errorf("list before login: code %d, stderr %q", code, stderr)
	}

	if _, stderr, code := run(t, "login", "a@x.com"); code != cli.UserError || !strings.Contains(stderr, "create an account") {
		t.Errorf("login unknown: code %d, stderr %q", code, stderr)
	}

	out, _, code := run(t, "signup", "a@x.com")
	if code != cli.Success || out != "logged in as a@x.com\n" {
		t.Fatalf("signup: code %d, out %q", code, out)
	}
	info, err := os.Stat(filepath.Join(xdg, "todoctl", "token"))
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("Expected token file with 0600, got %v %v", info, err)
	}

	out, _, code = run(t, "add", "Buy milk", "--description", "2 litres")
	m := idPattern.FindStringSubmatch(out)
	if code != cli.Success || m == nil {
		t.Fatalf("add: code %d, out %q", code, out)
	}
	id := m[1]

	if _, _, code := run(t, "done", id); code != cli.Success {
		t.Errorf("done: code %d", code)
	}
	out, _, _ = run(t, "list")
	if out != "[x] "+id+"  Buy milk\n    2 litres\n" {
		t.Errorf("Unexpected list output: %q", out)
	}

	run(t, "undo", id)
	out, _, code = run(t, "edit", id, "--title", "Buy oat milk")
	if code != cli.Success || !strings.HasPrefix(out, "[ ] "+id+"  Buy oat milk") {
		t.Errorf("edit: code %d, out %q", code, out)
	}

	if _, stderr, code := run(t, "add", "ab"); code != cli.UserError || !strings.Contains(stderr, "title:") {
		t.Errorf("add short title: code %d, stderr %q", code, stderr)
	}

	if out, _, code := run(t, "-q", "rm", id); code != cli.Success || out != "" {
		t.Errorf("quiet rm: code %d, out %q", code, out)
	}
	if _, _, code := run(t, "rm", id); code != cli.UserError {
		t.Errorf("rm missing: expected %d, got %d", cli.UserError, code)
	}
	if out, _, _ := run(t, "list"); out != "no tasks\n" {
		t.Errorf("Expected empty list, got %q", out)
	}

	if _, _, code := run(t, "logout"); code != cli.Success {
		t.Errorf("logout: code %d", code)
	}
	if _, _, code := run(t, "list"); code != cli.AuthError {
		t.Errorf("list after logout: expected %d, got %d", cli.AuthError, code)
	}
}

func TestOtherUsersTaskIsForbidden(t *testing.T) {
	setup(t)
	run(t, "signup", "a@x.com")
	out, _, _ := run(t, "add", "private task")
	id := idPattern.FindStringSubmatch(out)[1]

	run(t, "signup", "b@x.com")
	_, stderr, code := run(t, "done", id)
	if code != cli.UserError || !strings.Contains(stderr, "permission") {
		t.Errorf("Expected forbidden, got code %d, stderr %q", code, stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	setup(t)
	run(t, "signup", "a@x.com")

	tests := [][]string{
		{"add"},
		{"done"},
		{"rm", "a", "b"},
		{"edit", "some-id"},
		{"list", "--limit", "abc"},
		{"frobnicate"},
	}
	for _, args := range tests {
		if _, _, code := run(t, args...); code != cli.UserError {
			t.Errorf("%v: expected %d, got %d", args, cli.UserError, code)
		}
	}
}

func TestTokenFromEnv(t *testing.T) {
	setup(t)
	t.Setenv("TODO_TOKEN", "garbage")
	if _, _, code := run(t, "list"); code != cli.AuthError {
		t.Errorf("Expected %d for a bad token, got %d", cli.AuthError, code)
	}
}
