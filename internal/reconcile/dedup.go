package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
)

// Dedup collapses active rows sharing (user, task, tier) to the most
// recently updated one and dismisses the rest as duplicates. Any count
// above zero means an upsert race slipped through and is logged as such.
func (w *Sweeper) Dedup(ctx context.Context) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, w.batchTimeout)
	defer cancel()

	active, err := w.store.AllActive(cctx)
	if err != nil {
		return 0, fmt.Errorf("loading active notifications: %w", err)
	}

	ids := Duplicates(active)
	if len(ids) == 0 {
		return 0, nil
	}

	count, err := w.store.DismissIDs(cctx, ids, model.ReasonDuplicate)
	if err != nil {
		return 0, fmt.Errorf("dismissing duplicates: %w", err)
	}
	w.logger.Warn("duplicate active notifications dismissed", "count", count)
	return count, nil
}

// Duplicates returns the ids of every active row that is not the newest
// of its (user, task, tier) group, in a stable order.
func Duplicates(ns []model.Notification) []string {
	type groupKey struct {
		userID string
		taskID string
		tier   model.Tier
	}

	keep := make(map[groupKey]model.Notification)
	for _, n := range ns {
		if n.Dismissed {
			continue
		}
		k := groupKey{n.UserID, n.TaskID, n.Tier}
		if cur, ok := keep[k]; !ok || store.Newer(n, cur) {
			keep[k] = n
		}
	}

	var ids []string
	for _, n := range ns {
		if n.Dismissed {
			continue
		}
		if keep[groupKey{n.UserID, n.TaskID, n.Tier}].ID != n.ID {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
