// Package vcs synchronizes application sources from git repositories by
// driving the git command line.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// Locator identifies a branch of a remote repository. An empty Branch means
// the remote's default branch.
type Locator struct {
	URL    string
	Branch string
}

func (l Locator) ref() string {
	if l.Branch == "" {
		return "HEAD"
	}
	return l.Branch
}

// Git runs git subcommands non-interactively.
type Git struct {
	binary string
	logger *slog.Logger
}

// NewGit creates a Git runner. An empty binary means "git" on PATH.
func NewGit(binary string, logger *slog.Logger) *Git {
	if binary == "" {
		binary = "git"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Git{binary: binary, logger: logger.With("component", "vcs")}
}

// Sync makes dir an exact checkout of the locator and returns the checked
// out commit. A missing checkout is cloned shallowly; an existing one is
// fetched and hard reset, discarding local changes.
func (g *Git) Sync(ctx context.Context, loc Locator, dir string) (string, error) {
	if strings.TrimSpace(loc.URL) == "" {
		return "", fmt.Errorf("%w: repository URL cannot be empty", domain.ErrValidation)
	}
	if dir == "" {
		return "", fmt.Errorf("%w: checkout directory cannot be empty", domain.ErrValidation)
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		if err := g.update(ctx, loc, dir); err != nil {
			return "", err
		}
	} else {
		if err := g.clone(ctx, loc, dir); err != nil {
			return "", err
		}
	}

	commit, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	g.logger.Info("source synced", "url", loc.URL, "branch", loc.Branch, "commit", commit)
	return commit, nil
}

func (g *Git) clone(ctx context.Context, loc Locator, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: clear checkout dir: %v", domain.ErrExternalTool, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("%w: create checkout parent: %v", domain.ErrExternalTool, err)
	}

	args := []string{"clone", "--depth", "1"}
	if loc.Branch != "" {
		args = append(args, "--branch", loc.Branch)
	}
	args = append(args, loc.URL, dir)
	_, err := g.run(ctx, "", args...)
	return err
}

func (g *Git) update(ctx context.Context, loc Locator, dir string) error {
	steps := [][]string{
		{"remote", "set-url", "origin", loc.URL},
		{"fetch", "--depth", "1", "origin", loc.ref()},
		{"reset", "--hard", "FETCH_HEAD"},
		{"clean", "-fd"},
	}
	for _, args := range steps {
		if _, err := g.run(ctx, dir, args...); err != nil {
			return err
		}
	}
	return nil
}

// RemoteHead returns the commit the remote branch currently points at.
func (g *Git) RemoteHead(ctx context.Context, loc Locator) (string, error) {
	ref := loc.ref()
	if loc.Branch != "" {
		ref = "refs/heads/" + loc.Branch
	}
	out, err := g.run(ctx, "", "ls-remote", loc.URL, ref)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: ref %s not found on %s", domain.ErrExternalTool, ref, loc.URL)
	}
	return fields[0], nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: git %s: %v: %s", domain.ErrExternalTool, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
