package git

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"
)

// TestRepository is an in-memory repository for tests
type TestRepository struct {
	repo *gogit.Repository
	fs   billy.Filesystem
}

// NewTestRepository creates an empty in-memory repository
func NewTestRepository() (*TestRepository, error) {
	fs := memfs.New()
	repo, err := gogit.Init(memory.NewStorage(), fs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize test repository: %w", err)
	}
	return &TestRepository{repo: repo, fs: fs}, nil
}

// Repository returns the underlying go-git repository
func (tr *TestRepository) Repository() *gogit.Repository {
	return tr.repo
}

// Filesystem returns the in-memory worktree
func (tr *TestRepository) Filesystem() billy.Filesystem {
	return tr.fs
}

// AddRemote registers a remote with a single URL
func (tr *TestRepository) AddRemote(name, url string) error {
	_, err := tr.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		return fmt.Errorf("failed to create remote %s: %w", name, err)
	}
	return nil
}
