// Package engage records participation and reaction votes with the
// one-vote-per-user invariants enforced on top of the store's uniqueness
// constraints.
package engage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"postbot/internal/storage"
)

// Outcome describes what a reaction click did.
type Outcome string

const (
	ReactionAdded   Outcome = "added"
	ReactionChanged Outcome = "changed"
	ReactionRemoved Outcome = "removed"
)

type Tracker struct {
	store *storage.Store
	log   zerolog.Logger
}

func NewTracker(store *storage.Store, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// Participate records a one-time opt-in. The first click for a (post, user)
// pair returns joined=true; repeats return joined=false so the caller can
// tell the voter they already joined.
func (t *Tracker) Participate(ctx context.Context, postID, userID int64, username string) (joined bool, err error) {
	joined, err = t.store.AddParticipant(ctx, postID, userID, username)
	if err != nil {
		return false, fmt.Errorf("participate post %d: %w", postID, err)
	}
	return joined, nil
}

func (t *Tracker) CountParticipants(ctx context.Context, postID int64) (int, error) {
	return t.store.CountParticipants(ctx, postID)
}

// React applies a single-choice vote:
//
//	no existing vote            -> insert, added
//	existing vote, other button -> retract old, insert new, changed
//	existing vote, same button  -> retract, removed (toggle off)
//
// At most one button per (post, user) stays active. Two concurrent first
// clicks by the same user race on the insert; the loser's insert is absorbed
// by the triple's uniqueness constraint.
func (t *Tracker) React(ctx context.Context, postID int64, buttonID string, userID int64, username string) (Outcome, error) {
	current, err := t.store.UserReaction(ctx, postID, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if _, err := t.store.AddReaction(ctx, postID, buttonID, userID, username); err != nil {
			return "", fmt.Errorf("react post %d: %w", postID, err)
		}
		return ReactionAdded, nil
	case err != nil:
		return "", fmt.Errorf("react post %d: %w", postID, err)
	}

	if current == buttonID {
		if _, err := t.store.RemoveReaction(ctx, postID, buttonID, userID); err != nil {
			return "", fmt.Errorf("react post %d: %w", postID, err)
		}
		return ReactionRemoved, nil
	}

	if _, err := t.store.RemoveReaction(ctx, postID, current, userID); err != nil {
		return "", fmt.Errorf("react post %d: %w", postID, err)
	}
	if _, err := t.store.AddReaction(ctx, postID, buttonID, userID, username); err != nil {
		return "", fmt.Errorf("react post %d: %w", postID, err)
	}
	return ReactionChanged, nil
}

// Counts returns the post's current per-button vote counts, always from
// committed rows, never a cache.
func (t *Tracker) Counts(ctx context.Context, postID int64) (map[string]int, error) {
	return t.store.ReactionCounts(ctx, postID)
}
