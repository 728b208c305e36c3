package jsonfile

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/room"
)

// RoomStore implements room.Store using one JSON file per conversation.
type RoomStore struct {
	dir   string
	clock func() time.Time
	locks keyLocks
}

var _ room.Store = (*RoomStore)(nil)

// NewRoomStore creates a new room summary store at the given directory.
func NewRoomStore(dir string) *RoomStore {
	return &RoomStore{
		dir:   dir,
		clock: time.Now,
	}
}

// WithClock replaces the clock used for CreatedAt and UpdatedAt.
func (s *RoomStore) WithClock(clock func() time.Time) *RoomStore {
	s.clock = clock
	return s
}

func (s *RoomStore) path(key convo.Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}

func (s *RoomStore) lockPath(key convo.Key) string {
	return s.path(key) + ".lock"
}

// Get returns the summary for key. Returns convo.ErrNotFound if not found.
func (s *RoomStore) Get(ctx context.Context, key convo.Key) (room.Summary, error) {
	if err := ctx.Err(); err != nil {
		return room.Summary{}, err
	}

	mu := s.locks.get(string(key))
	mu.RLock()
	defer mu.RUnlock()

	var (
		summary room.Summary
		found   bool
	)
	err := withFileLock(s.lockPath(key), syscall.LOCK_SH, func() error {
		var err error
		found, err = readJSON(s.path(key), &summary)
		return err
	})
	if err != nil {
		return room.Summary{}, err
	}
	if !found {
		return room.Summary{}, convo.ErrNotFound
	}

	return summary, nil
}

// MergePatch applies p under the key's exclusive lock, creating the summary
// when it does not exist yet.
func (s *RoomStore) MergePatch(ctx context.Context, key convo.Key, p room.Patch) (room.Summary, error) {
	if err := ctx.Err(); err != nil {
		return room.Summary{}, err
	}

	mu := s.locks.get(string(key))
	mu.Lock()
	defer mu.Unlock()

	var result room.Summary
	err := withFileLock(s.lockPath(key), syscall.LOCK_EX, func() error {
		now := s.clock().UTC()

		var current room.Summary
		found, err := readJSON(s.path(key), &current)
		if err != nil {
			return err
		}
		if !found {
			current = room.New(key, now)
		}

		next, changed, err := room.Apply(current, p, now)
		if err != nil {
			return err
		}

		if !found && !changed {
			// Creation alone is a mutation subscribers must observe.
			next.Version++
			changed = true
		}

		result = next
		if !changed {
			return nil
		}
		return writeJSON(s.path(key), next)
	})
	if err != nil {
		return room.Summary{}, err
	}

	return result, nil
}

// List returns all summaries sorted by key.
func (s *RoomStore) List(ctx context.Context) ([]room.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys, err := listKeys(s.dir)
	if err != nil {
		return nil, err
	}

	summaries := make([]room.Summary, 0, len(keys))
	for _, key := range keys {
		summary, err := s.Get(ctx, key)
		if errors.Is(err, convo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	slices.SortFunc(summaries, func(a, b room.Summary) int {
		return strings.Compare(string(a.Key), string(b.Key))
	})
	return summaries, nil
}
