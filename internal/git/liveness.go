package git

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// WorktreeExists reports whether path is still a checked-out worktree. A
// missing directory, or one without a .git entry, is gone. Unexpected errors
// count as present so nothing is declared archived on a hunch.
func WorktreeExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return !errors.Is(err, os.ErrNotExist) && err != nil
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}

	_, err = gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{EnableDotGitCommonDir: true})
	return !errors.Is(err, gogit.ErrRepositoryNotExists)
}

// FindGitRoot finds the repository root at or above startDir. A .git file
// (linked worktree) counts as a root.
func FindGitRoot(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}

	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil {
			if info.IsDir() {
				return dir, true
			}
			if content, err := os.ReadFile(gitDir); err == nil && strings.HasPrefix(string(content), "gitdir: ") {
				return dir, true
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
