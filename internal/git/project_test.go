package git

import (
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanpelt/codexlens/internal/cache"
)

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/openai/codex.git", "codex"},
		{"https://github.com/openai/codex", "codex"},
		{"https://github.com/openai/codex/", "codex"},
		{"git@github.com:openai/codex.git", "codex"},
		{"ssh://git@github.com/openai/codex.git", "codex"},
		{"/srv/git/tools.git", "tools"},
		{"https://example.com", ""},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, NameFromURL(tt.url))
		})
	}
}

func TestRemoteURL_InMemory(t *testing.T) {
	tr, err := NewTestRepository()
	require.NoError(t, err)

	_, err = RemoteURL(tr.Repository())
	assert.ErrorIs(t, err, ErrNoRemote)

	require.NoError(t, tr.AddRemote("origin", "git@github.com:acme/widgets.git"))
	url, err := RemoteURL(tr.Repository())
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:acme/widgets.git", url)
	assert.Equal(t, "widgets", NameFromURL(url))
}

func TestProjectResolver_Resolve(t *testing.T) {
	r := NewProjectResolver(cache.DefaultConfig())
	defer r.Close()

	t.Run("repository url wins", func(t *testing.T) {
		assert.Equal(t, "codex", r.Resolve("/nowhere/else", "https://github.com/openai/codex.git"))
	})

	t.Run("origin remote of cwd", func(t *testing.T) {
		dir := t.TempDir()
		repo, err := gogit.PlainInit(dir, false)
		require.NoError(t, err)
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"https://github.com/acme/rockets.git"}})
		require.NoError(t, err)

		sub := filepath.Join(dir, "pkg", "inner")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		assert.Equal(t, "rockets", r.Resolve(sub, ""))
	})

	t.Run("repository without remote uses its root", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "local-only")
		_, err := gogit.PlainInit(dir, false)
		require.NoError(t, err)

		sub := filepath.Join(dir, "src")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		assert.Equal(t, "local-only", r.Resolve(sub, ""))
	})

	t.Run("plain directory uses basename", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "scratch")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		assert.Equal(t, "scratch", r.Resolve(dir, ""))
	})

	t.Run("nothing known", func(t *testing.T) {
		assert.Equal(t, "", r.Resolve("", ""))
	})
}

func TestProjectResolver_Caches(t *testing.T) {
	r := NewProjectResolver(cache.DefaultConfig())
	defer r.Close()

	dir := filepath.Join(t.TempDir(), "cached")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	assert.Equal(t, "cached", r.Resolve(dir, ""))

	// A repository created later is not noticed until the entry expires
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"https://github.com/acme/late.git"}})
	require.NoError(t, err)
	assert.Equal(t, "cached", r.Resolve(dir, ""))
}

func TestWorktreeExists(t *testing.T) {
	root := t.TempDir()

	repoDir := filepath.Join(root, "repo")
	_, err := gogit.PlainInit(repoDir, false)
	require.NoError(t, err)
	assert.True(t, WorktreeExists(repoDir))

	plain := filepath.Join(root, "plain")
	require.NoError(t, os.MkdirAll(plain, 0o755))
	assert.False(t, WorktreeExists(plain))

	assert.False(t, WorktreeExists(filepath.Join(root, "missing")))

	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.False(t, WorktreeExists(file))
}

func TestFindGitRoot(t *testing.T) {
	root := t.TempDir()
	repoDir := filepath.Join(root, "repo")
	_, err := gogit.PlainInit(repoDir, false)
	require.NoError(t, err)

	nested := filepath.Join(repoDir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok := FindGitRoot(nested)
	require.True(t, ok)
	want, _ := filepath.EvalSymlinks(repoDir)
	gotResolved, _ := filepath.EvalSymlinks(got)
	assert.Equal(t, want, gotResolved)

	linked := filepath.Join(root, "linked")
	require.NoError(t, os.MkdirAll(linked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(linked, ".git"), []byte("gitdir: /elsewhere/.git/worktrees/linked\n"), 0o644))
	got, ok = FindGitRoot(linked)
	require.True(t, ok)
	assert.Equal(t, "linked", filepath.Base(got))
}
