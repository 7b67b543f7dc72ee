package ingest

import (
	"context"

	"github.com/vanpelt/codexlens/internal/models"
)

// reconcile infers an archived event for every worktree whose latest known
// action is not archival but whose directory is gone. The key is derived from
// the state it supersedes, so repeated runs infer it once.
func (r *Runner) reconcile(ctx context.Context, sum *Summary) {
	states, err := r.store.LatestWorktreeStates(ctx)
	if err != nil {
		sum.addError("", 0, err)
		return
	}

	ts := r.now().UnixMilli()
	for _, st := range states {
		if st.Action == models.WorktreeArchived || r.worktreeExists(st.Path) {
			continue
		}

		path := st.Path
		ev := &models.WorktreeEvent{
			Ts:           max(ts, st.Ts),
			Action:       models.WorktreeArchived,
			WorktreePath: &path,
			Status:       models.EventStatusInferred,
			DedupKey: r.keys.Key("reconcile", 0, map[string]any{
				"path":   path,
				"lastTs": st.Ts,
				"action": models.WorktreeArchived,
			}),
		}
		ev.ID = ev.DedupKey

		inserted, err := r.store.InsertIfAbsent(ctx, ev)
		if err != nil {
			sum.addError(path, 0, err)
			continue
		}
		if inserted {
			sum.RowsInserted++
			sum.Inserted[models.KindWorktree]++
		}
	}
}
