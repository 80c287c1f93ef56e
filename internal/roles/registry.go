// Package roles owns the authoritative in-memory admin set, backed by the
// flat admin-id record. All mutations run under a single lock covering the
// full read-modify-persist sequence.
package roles

import (
	"context"
	"sort"
	"sync"

	"github.com/m3rciful/relaybot/core/logger"
	"log/slog"
)

// Store is the persistence surface the registry needs for the admin record.
type Store interface {
	LoadAdminIDs(ctx context.Context) (map[int64]struct{}, error)
	SaveAdminIDs(ctx context.Context, ids map[int64]struct{}) error
}

// Registry tracks which user ids are admins.
type Registry struct {
	mu     sync.RWMutex
	admins map[int64]struct{}
	store  Store
}

// NewRegistry loads the durable admin set and returns a registry owning it.
func NewRegistry(ctx context.Context, store Store) (*Registry, error) {
	admins, err := store.LoadAdminIDs(ctx)
	if err != nil {
		return nil, err
	}
	return &Registry{admins: admins, store: store}, nil
}

// Promote adds the user to the admin set. It reports whether the set changed
// and persists the new set when it did. The in-memory change is kept even if
// persistence fails; the caller decides how to surface the error.
func (r *Registry) Promote(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.admins[userID]; ok {
		return false, nil
	}
	r.admins[userID] = struct{}{}
	err := r.store.SaveAdminIDs(ctx, r.admins)
	logger.Info(ctx, "relay", "admin.promote",
		slog.Int64("user_id", userID),
		slog.Int("admins", len(r.admins)),
		slog.String("status", statusOf(err)),
	)
	return true, err
}

// Demote removes the user from the admin set. It reports whether the user was
// an admin before the call and persists the new set when membership changed.
func (r *Registry) Demote(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.admins[userID]; !ok {
		return false, nil
	}
	delete(r.admins, userID)
	err := r.store.SaveAdminIDs(ctx, r.admins)
	logger.Info(ctx, "relay", "admin.demote",
		slog.Int64("user_id", userID),
		slog.Int("admins", len(r.admins)),
		slog.String("status", statusOf(err)),
	)
	return true, err
}

// IsAdmin reports current admin membership.
func (r *Registry) IsAdmin(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[userID]
	return ok
}

// Snapshot returns a sorted copy of the admin set. Sorting keeps fan-out
// order reproducible within a process run.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.admins))
	for id := range r.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func statusOf(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
