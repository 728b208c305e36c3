package jsonfile

import (
	"context"
	"path/filepath"
	"slices"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
)

// MsgStore implements messaging.Store using one JSON file per conversation.
type MsgStore struct {
	dir   string
	clock messaging.Clock
	locks keyLocks
}

var _ messaging.Store = (*MsgStore)(nil)

// NewMsgStore creates a new message store at the given directory.
// The dir should be the full path to the conversations directory
// (e.g., $XDG_DATA_HOME/parley/conversations).
func NewMsgStore(dir string) *MsgStore {
	return &MsgStore{
		dir:   dir,
		clock: time.Now,
	}
}

// WithClock replaces the server clock used to stamp messages.
func (s *MsgStore) WithClock(clock messaging.Clock) *MsgStore {
	s.clock = clock
	return s
}

func (s *MsgStore) logPath(key convo.Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}

func (s *MsgStore) lockPath(key convo.Key) string {
	return s.logPath(key) + ".lock"
}

// Append stamps and persists a message at the end of the conversation log.
func (s *MsgStore) Append(ctx context.Context, key convo.Key, sender convo.ParticipantID, body string) (messaging.Message, error) {
	if err := ctx.Err(); err != nil {
		return messaging.Message{}, err
	}

	mu := s.locks.get(string(key))
	mu.Lock()
	defer mu.Unlock()

	var msg messaging.Message
	err := withFileLock(s.lockPath(key), syscall.LOCK_EX, func() error {
		log, err := s.loadLog(key)
		if err != nil {
			return err
		}

		msg = messaging.Message{
			ID:       uuid.NewString(),
			Key:      key,
			SenderID: sender,
			Body:     body,
			SentAt:   messaging.NextSentAt(s.clock().UTC(), log.LastSentAt),
			Seq:      log.LastSeq + 1,
		}

		log.Messages = append(log.Messages, msg)
		log.LastSeq = msg.Seq
		log.LastSentAt = msg.SentAt

		return writeJSON(s.logPath(key), log)
	})
	if err != nil {
		return messaging.Message{}, err
	}

	return msg, nil
}

// Load returns messages after afterSeq in log order.
func (s *MsgStore) Load(ctx context.Context, key convo.Key, afterSeq uint64) ([]messaging.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu := s.locks.get(string(key))
	mu.RLock()
	defer mu.RUnlock()

	var messages []messaging.Message
	err := withFileLock(s.lockPath(key), syscall.LOCK_SH, func() error {
		log, err := s.loadLog(key)
		if err != nil {
			return err
		}

		i := sort.Search(len(log.Messages), func(i int) bool {
			return log.Messages[i].Seq > afterSeq
		})
		messages = slices.Clone(log.Messages[i:])
		return nil
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// Keys returns all conversation keys with a log file.
func (s *MsgStore) Keys(ctx context.Context) ([]convo.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys, err := listKeys(s.dir)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

// loadLog reads a conversation file from disk.
// Returns an empty log if the file doesn't exist.
func (s *MsgStore) loadLog(key convo.Key) (messaging.Log, error) {
	var log messaging.Log
	found, err := readJSON(s.logPath(key), &log)
	if err != nil {
		return messaging.Log{}, err
	}
	if !found {
		return messaging.Log{Key: key}, nil
	}
	return log, nil
}
