package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// executableCandidates are looked up on PATH when no executable is configured.
var executableCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// ErrExecutableNotFound is returned when no Chrome binary can be located.
var ErrExecutableNotFound = errors.New("no chrome or chromium executable found")

// ResolveExecutable expands a configured path, or searches PATH for a known
// Chrome binary when configured is empty.
func ResolveExecutable(configured string) (string, error) {
	if configured != "" {
		path, err := homedir.Expand(configured)
		if err != nil {
			return "", fmt.Errorf("expand executable path %q: %w", configured, err)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("browser executable %q: %w", path, err)
		}
		return path, nil
	}
	for _, name := range executableCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrExecutableNotFound
}

// Scratch owns the per-session user data directories under one root.
type Scratch struct {
	root string
}

// NewScratch creates the scratch root, expanding a leading "~".
func NewScratch(root string) (*Scratch, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "netprobe")
	}
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("expand scratch dir %q: %w", root, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{root: expanded}, nil
}

// Root returns the absolute scratch root.
func (s *Scratch) Root() string { return s.root }

// Acquire creates a fresh directory for sessionID.
func (s *Scratch) Acquire(sessionID string) (string, error) {
	dir, err := s.dir(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session scratch dir: %w", err)
	}
	return dir, nil
}

// Release removes everything the session left behind. Releasing a session
// that never acquired a directory is not an error.
func (s *Scratch) Release(sessionID string) error {
	dir, err := s.dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove session scratch dir: %w", err)
	}
	return nil
}

func (s *Scratch) dir(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}
