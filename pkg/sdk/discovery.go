package sdk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AppName is the configuration directory name.
	AppName = "todoctl"
	// TokenFile holds the saved bearer token.
	TokenFile = "token"
)

// DefaultConfigDir returns $XDG_CONFIG_HOME/todoctl, or $HOME/.config/todoctl.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Credentials persists the bearer token between invocations.
type Credentials struct {
	Dir string
}

func (c Credentials) path() string {
	return filepath.Join(c.Dir, TokenFile)
}

// Load returns the saved token, or "" when none is saved.
func (c Credentials) Load() (string, error) {
	data, err := os.ReadFile(c.path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token with owner-only permissions.
func (c Credentials) Save(tok string) error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(tok+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, c.path())
}

// Clear removes the saved token. A missing token is not an error.
func (c Credentials) Clear() error {
	err := os.Remove(c.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// FromEnv builds a client from TODO_API_URL and a token taken from TODO_TOKEN,
// falling back to the one saved in creds.
func FromEnv(creds Credentials, opts ...Option) (*Client, error) {
	tok := os.Getenv("TODO_TOKEN")
	if tok == "" {
		var err error
		if tok, err = creds.Load(); err != nil {
			return nil, err
		}
	}
	c := New(os.Getenv("TODO_API_URL"), opts...)
	if tok != "" {
		c.SetToken(tok)
	}
	return c, nil
}
