package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vanpelt/codexlens/internal/cache"
	"github.com/vanpelt/codexlens/internal/config"
	"github.com/vanpelt/codexlens/internal/git"
	"github.com/vanpelt/codexlens/internal/ingest"
	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/store"
)

// app bundles what every command needs
type app struct {
	cfg      *config.Config
	store    *store.Store
	projects *git.ProjectResolver
	runner   *ingest.Runner
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	logger.Debugf("opened database %s", cfg.DatabasePath)

	projects := git.NewProjectResolver(cache.DefaultConfig())
	return &app{
		cfg:      cfg,
		store:    st,
		projects: projects,
		runner:   ingest.NewRunner(st, cfg, projects),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.projects.Close(), a.store.Close())
}
