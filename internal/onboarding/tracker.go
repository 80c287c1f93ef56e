// Package onboarding tracks a one-time notice per non-admin user, backed by
// the flat user-flag record.
package onboarding

import (
	"context"
	"sync"

	"github.com/m3rciful/relaybot/core/logger"
	"log/slog"
)

// Flag values persisted in the user record.
const (
	FlagPending  = "pending"
	FlagNotified = "notified"
)

// Store is the persistence surface the tracker needs for the user record.
type Store interface {
	LoadUserFlags(ctx context.Context) (map[int64]string, error)
	SaveUserFlags(ctx context.Context, flags map[int64]string) error
}

// Tracker owns the user-id to onboarding-flag map. Admin ids never enter the
// map; the isAdmin predicate guards insertion.
type Tracker struct {
	mu      sync.Mutex
	flags   map[int64]string
	store   Store
	isAdmin func(int64) bool
}

// NewTracker loads the durable user map and returns a tracker owning it.
// Unknown flag values in the record are normalized to pending so a damaged
// flag can only cause one extra notice, never a lost user.
func NewTracker(ctx context.Context, store Store, isAdmin func(int64) bool) (*Tracker, error) {
	flags, err := store.LoadUserFlags(ctx)
	if err != nil {
		return nil, err
	}
	for id, flag := range flags {
		if flag != FlagPending && flag != FlagNotified {
			logger.Warn(ctx, "relay", "onboard.unknown_flag",
				slog.Int64("user_id", id),
				slog.String("payload", logger.SanitizeLimit(flag, 32)),
			)
			flags[id] = FlagPending
		}
	}
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Tracker{flags: flags, store: store, isAdmin: isAdmin}, nil
}

// Tracked reports whether the user is present in the map.
func (t *Tracker) Tracked(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.flags[userID]
	return ok
}

// EnsureTracked inserts the user with a pending notice on first contact.
// Admins and already-tracked users are a no-op.
func (t *Tracker) EnsureTracked(ctx context.Context, userID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.flags[userID]; ok {
		return nil
	}
	if t.isAdmin(userID) {
		return nil
	}
	t.flags[userID] = FlagPending
	err := t.store.SaveUserFlags(ctx, t.flags)
	logger.Info(ctx, "relay", "onboard.tracked",
		slog.Int64("user_id", userID),
		slog.String("status", statusOf(err)),
	)
	return err
}

// ConsumePendingNotice flips a pending flag to notified and reports whether
// the caller must send the one-time notice. The flip is persisted before the
// method returns true, so a crash after the flip can only lose the notice,
// never repeat it.
func (t *Tracker) ConsumePendingNotice(ctx context.Context, userID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flags[userID] != FlagPending {
		return false, nil
	}
	t.flags[userID] = FlagNotified
	if err := t.store.SaveUserFlags(ctx, t.flags); err != nil {
		// Revert the flip: without a durable flip the notice is not sent,
		// so the user gets it on a later message instead.
		t.flags[userID] = FlagPending
		return false, err
	}
	logger.Info(ctx, "relay", "onboard.notice_consumed",
		slog.Int64("user_id", userID),
	)
	return true, nil
}

func statusOf(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
