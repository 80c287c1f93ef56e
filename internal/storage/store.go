// Package storage persists the relay state as two independent flat records:
// an admin-id list (one decimal id per line) and a user-id to onboarding-flag
// association ("id: flag" per line). Every save is a full atomic rewrite via
// a temp file rename, so a crash mid-write never corrupts durable state.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/core/logger"
	"log/slog"
)

// FileStore reads and writes the two relay records under a single directory.
type FileStore struct {
	adminsPath string
	usersPath  string
}

// Open prepares the storage directory and returns a FileStore bound to the
// configured record files. Missing records are not an error; they read as
// empty collections on first run.
func Open(cfg coreconfig.StorageConfig) (*FileStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("storage: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", cfg.Dir, err)
	}
	return &FileStore{
		adminsPath: filepath.Join(cfg.Dir, cfg.AdminsFile),
		usersPath:  filepath.Join(cfg.Dir, cfg.UsersFile),
	}, nil
}

// AdminsPath returns the location of the admin-id record.
func (s *FileStore) AdminsPath() string { return s.adminsPath }

// UsersPath returns the location of the user-flag record.
func (s *FileStore) UsersPath() string { return s.usersPath }

// LoadAdminIDs reads the admin-id record. Malformed lines are skipped with a
// warning; an absent file yields an empty set.
func (s *FileStore) LoadAdminIDs(ctx context.Context) (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	skipped, err := s.scanLines(ctx, s.adminsPath, func(line string) bool {
		id, perr := strconv.ParseInt(line, 10, 64)
		if perr != nil {
			return false
		}
		ids[id] = struct{}{}
		return true
	})
	if err != nil {
		return nil, err
	}
	s.logLoaded(ctx, s.adminsPath, len(ids), skipped)
	return ids, nil
}

// SaveAdminIDs replaces the admin-id record with the provided set.
func (s *FileStore) SaveAdminIDs(ctx context.Context, ids map[int64]struct{}) error {
	sorted := make([]int64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	for _, id := range sorted {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}
	return s.writeAtomic(ctx, s.adminsPath, b.String(), len(sorted))
}

// LoadUserFlags reads the user-flag record. Lines that do not parse as
// "id: flag" are skipped; an absent file yields an empty map.
func (s *FileStore) LoadUserFlags(ctx context.Context) (map[int64]string, error) {
	flags := make(map[int64]string)
	skipped, err := s.scanLines(ctx, s.usersPath, func(line string) bool {
		idPart, flagPart, ok := strings.Cut(line, ":")
		if !ok {
			return false
		}
		id, perr := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if perr != nil {
			return false
		}
		flag := strings.TrimSpace(flagPart)
		if flag == "" {
			return false
		}
		flags[id] = flag
		return true
	})
	if err != nil {
		return nil, err
	}
	s.logLoaded(ctx, s.usersPath, len(flags), skipped)
	return flags, nil
}

// SaveUserFlags replaces the user-flag record with the provided map.
func (s *FileStore) SaveUserFlags(ctx context.Context, flags map[int64]string) error {
	sorted := make([]int64, 0, len(flags))
	for id := range flags {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	for _, id := range sorted {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteString(": ")
		b.WriteString(flags[id])
		b.WriteByte('\n')
	}
	return s.writeAtomic(ctx, s.usersPath, b.String(), len(sorted))
}

// scanLines invokes parse for every non-empty line and counts rejected ones.
func (s *FileStore) scanLines(ctx context.Context, path string, parse func(string) bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer f.Close()

	skipped := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !parse(line) {
			skipped++
			logger.Warn(ctx, "store", "load.skip_line",
				slog.String("path", path),
				slog.String("payload", logger.SanitizeLimit(line, 64)),
			)
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return skipped, nil
}

// writeAtomic writes the full content to a temp file and renames it over the
// record, so readers observe either the old or the new content, never a mix.
func (s *FileStore) writeAtomic(ctx context.Context, path, content string, entries int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		logger.Error(ctx, "store", "save.fail",
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Error(ctx, "store", "save.fail",
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	logger.Debug(ctx, "store", "save.ok",
		slog.String("path", path),
		slog.Int("entries", entries),
	)
	return nil
}

func (s *FileStore) logLoaded(ctx context.Context, path string, entries, skipped int) {
	attrs := []slog.Attr{
		slog.String("path", path),
		slog.Int("entries", entries),
	}
	if skipped > 0 {
		attrs = append(attrs, slog.Int("lines_skipped", skipped))
	}
	logger.Info(ctx, "store", "load.ok", attrs...)
}
