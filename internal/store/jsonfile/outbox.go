package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hay-kot/parley/internal/notify"
)

const (
	defaultMaxNotifications = 1000
	outboxFilename          = "outbox.jsonl"
)

// OutboxStore implements notify.Dispatcher by appending notifications to a
// JSONL file. Consumers take entries with Drain. The file is bounded: once it
// holds maxNotifications entries the oldest undrained ones are dropped.
type OutboxStore struct {
	dir              string
	maxNotifications int
	mu               sync.Mutex
}

var _ notify.Dispatcher = (*OutboxStore)(nil)

// NewOutboxStore creates a new outbox at the given directory.
func NewOutboxStore(dir string) *OutboxStore {
	return &OutboxStore{
		dir:              dir,
		maxNotifications: defaultMaxNotifications,
	}
}

// WithMaxNotifications sets the maximum number of notifications to retain.
func (s *OutboxStore) WithMaxNotifications(max int) *OutboxStore {
	s.maxNotifications = max
	return s
}

func (s *OutboxStore) filePath() string {
	return filepath.Join(s.dir, outboxFilename)
}

func (s *OutboxStore) lockPath() string {
	return s.filePath() + ".lock"
}

// Dispatch records the notification in the outbox.
func (s *OutboxStore) Dispatch(ctx context.Context, n notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.lockPath(), syscall.LOCK_EX, func() error {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.QueuedAt.IsZero() {
			n.QueuedAt = time.Now().UTC()
		}

		pending, err := s.readUnsafe()
		if err != nil {
			return err
		}

		pending = append(pending, n)

		// Enforce retention limit
		if len(pending) > s.maxNotifications {
			pending = pending[len(pending)-s.maxNotifications:]
		}

		return s.writeUnsafe(pending)
	})
}

// List returns queued notifications, newest first.
// Limit of 0 returns all notifications.
func (s *OutboxStore) List(limit int) ([]notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []notify.Notification
	err := withFileLock(s.lockPath(), syscall.LOCK_SH, func() error {
		pending, err := s.readUnsafe()
		if err != nil {
			return err
		}

		for i := len(pending) - 1; i >= 0; i-- {
			result = append(result, pending[i])
			if limit > 0 && len(result) >= limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// Drain removes and returns up to limit notifications, oldest first.
// Limit of 0 drains the whole outbox.
func (s *OutboxStore) Drain(ctx context.Context, limit int) ([]notify.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var taken []notify.Notification
	err := withFileLock(s.lockPath(), syscall.LOCK_EX, func() error {
		pending, err := s.readUnsafe()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		n := len(pending)
		if limit > 0 && limit < n {
			n = limit
		}
		taken = pending[:n:n]

		return s.writeUnsafe(pending[n:])
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// readUnsafe reads all notifications from the file.
// Caller must hold lock.
func (s *OutboxStore) readUnsafe() ([]notify.Notification, error) {
	f, err := os.Open(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, persistErr("open outbox", err)
	}
	defer f.Close() //nolint:errcheck

	var pending []notify.Notification
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var n notify.Notification
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			// Skip malformed lines
			continue
		}
		pending = append(pending, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, persistErr("read outbox", err)
	}

	return pending, nil
}

// writeUnsafe writes all notifications to the file.
// Caller must hold lock.
func (s *OutboxStore) writeUnsafe(pending []notify.Notification) error {
	tmpPath := s.filePath() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return persistErr("create temp file", err)
	}

	enc := json.NewEncoder(f)
	for _, n := range pending {
		if err := enc.Encode(n); err != nil {
			f.Close() //nolint:errcheck
			_ = os.Remove(tmpPath)
			return fmt.Errorf("write notification: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return persistErr("close temp file", err)
	}

	if err := os.Rename(tmpPath, s.filePath()); err != nil {
		_ = os.Remove(tmpPath)
		return persistErr("rename temp file", err)
	}

	return nil
}
