// Package vcs retrieves the changed-file list that drives attribution,
// either from a local git checkout or from the GitHub API.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// gitTimeout bounds every git subprocess invocation.
const gitTimeout = 30 * time.Second

// GitRoot returns the top-level directory of the repository containing dir.
func GitRoot(ctx context.Context, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git rev-parse timed out after %s", gitTimeout)
		}
		return "", errors.New("not a git repository; run difftrace from within a git repo")
	}
	return strings.TrimSpace(string(out)), nil
}

// ChangedFiles lists files changed between baseRef and HEAD, as paths
// relative to repoRoot.
func ChangedFiles(ctx context.Context, baseRef, repoRoot string) ([]string, error) {
	if strings.TrimSpace(baseRef) == "" {
		return nil, errors.New("base ref must not be empty")
	}
	if strings.ContainsRune(baseRef, 0) {
		return nil, errors.New("base ref must not contain null bytes")
	}

	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", baseRef+"...HEAD")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("git diff timed out after %s", gitTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, classifyDiffError(baseRef, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git diff: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// classifyDiffError turns the common git diff failures into actionable
// messages; everything else surfaces the raw stderr.
func classifyDiffError(baseRef, stderr string) error {
	if strings.Contains(stderr, "unknown revision") || strings.Contains(stderr, "not a git repository") {
		msg := fmt.Sprintf("could not resolve ref %q: does the branch exist? Try 'git fetch' or pass --base with a valid ref", baseRef)
		if strings.Contains(stderr, "unknown revision") {
			msg += " (in CI, checkout with fetch-depth: 0)"
		}
		return errors.New(msg)
	}
	return fmt.Errorf("git diff failed: %s", stderr)
}

// Relativize converts git-root-relative paths to workspace-root-relative
// paths. Files outside the workspace subtree are dropped; a change to the
// workspace directory entry itself becomes ".".
func Relativize(files []string, gitRoot, workspaceRoot string) []string {
	rel, err := filepath.Rel(gitRoot, workspaceRoot)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return files
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil
	}

	prefix := rel + "/"
	var result []string
	for _, f := range files {
		switch {
		case strings.HasPrefix(f, prefix):
			result = append(result, f[len(prefix):])
		case f == rel:
			result = append(result, ".")
		}
	}
	return result
}
