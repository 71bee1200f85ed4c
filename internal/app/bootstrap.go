package app

import (
	"context"

	"github.com/rs/zerolog"

	"postbot/internal/schedule"
	"postbot/internal/storage"
)

// recoverJobs rebuilds the in-memory schedule from durable state after a
// restart. Every active non-instant post is re-registered in its owner's
// timezone; a post that fails to load is skipped with a warning so one bad row
// cannot block the rest. Returns the number of posts registered.
func recoverJobs(ctx context.Context, store *storage.Store, reg *schedule.Registry, log zerolog.Logger) (int, error) {
	ids, err := store.ActivePostIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		p, err := store.Post(ctx, id)
		if err != nil {
			log.Warn().Int64("post", id).Err(err).Msg("skipping unloadable post")
			continue
		}
		reg.Register(p, store.Timezone(ctx, p.OwnerID))
		n++
	}
	return n, nil
}
