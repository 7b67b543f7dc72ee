package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/vanpelt/codexlens/internal/cache"
)

// ErrNoRemote is returned when a repository has no usable origin URL
var ErrNoRemote = errors.New("no origin remote")

// git@github.com:owner/repo.git
var scpLikeURL = regexp.MustCompile(`^[\w.-]+@[\w.-]+:(.+)$`)

// ProjectResolver derives a project name for a session from its repository
// URL, falling back to the origin remote of the repository containing cwd and
// finally to the directory name. Results are cached per (cwd, url).
type ProjectResolver struct {
	cache *cache.LRU[string]
}

// NewProjectResolver returns a resolver with its own cache
func NewProjectResolver(cfg cache.Config) *ProjectResolver {
	return &ProjectResolver{cache: cache.NewLRU[string](cfg)}
}

// Resolve returns the project name, or "" when nothing is known
func (r *ProjectResolver) Resolve(cwd, repoURL string) string {
	key := cwd + "\x00" + repoURL
	if name, ok := r.cache.Get(key); ok {
		return name
	}

	name := NameFromURL(repoURL)
	if name == "" && cwd != "" {
		name = r.fromWorkingDir(cwd)
	}
	r.cache.Set(key, name)
	return name
}

// Close releases the cache
func (r *ProjectResolver) Close() error {
	return r.cache.Close()
}

func (r *ProjectResolver) fromWorkingDir(cwd string) string {
	repo, err := gogit.PlainOpenWithOptions(cwd, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return filepath.Base(filepath.Clean(cwd))
	}

	if url, err := RemoteURL(repo); err == nil {
		if name := NameFromURL(url); name != "" {
			return name
		}
	}
	if root, ok := FindGitRoot(cwd); ok {
		return filepath.Base(root)
	}
	return filepath.Base(filepath.Clean(cwd))
}

// RemoteURL returns the first URL of the origin remote
func RemoteURL(repo *gogit.Repository) (string, error) {
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRemote, err)
	}
	if len(remote.Config().URLs) == 0 {
		return "", ErrNoRemote
	}
	return remote.Config().URLs[0], nil
}

// NameFromURL returns the repository name of a remote URL:
// https://github.com/owner/repo.git, git@github.com:owner/repo and local
// paths all yield "repo".
func NameFromURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if m := scpLikeURL.FindStringSubmatch(url); m != nil && !strings.Contains(url, "://") {
		url = m[1]
	}
	if idx := strings.Index(url, "://"); idx >= 0 {
		url = url[idx+3:]
		if slash := strings.IndexByte(url, '/'); slash >= 0 {
			url = url[slash:]
		} else {
			return ""
		}
	}

	url = strings.TrimRight(strings.ReplaceAll(url, `\`, "/"), "/")
	name := url[strings.LastIndexByte(url, '/')+1:]
	return strings.TrimSuffix(name, ".git")
}
