// Package jsonfile provides JSON file-backed conversation stores.
//
// Every conversation lives in its own file guarded by an in-process mutex and
// an flock on a sibling ".lock" file, so writers in other processes (the CLI
// and a running server, for example) serialize on the same key without any
// lock spanning conversations.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/hay-kot/parley/internal/core/convo"
)

// keyLocks hands out one RWMutex per key.
type keyLocks struct {
	m sync.Map // string -> *sync.RWMutex
}

func (l *keyLocks) get(key string) *sync.RWMutex {
	v, _ := l.m.LoadOrStore(key, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

// withFileLock acquires a file lock on lockPath, executes fn, then releases the lock.
func withFileLock(lockPath string, lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return persistErr("create lock directory", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return persistErr("open lock file", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return persistErr("acquire file lock", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// readJSON decodes path into v. found is false when the file does not exist
// or is empty.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, persistErr("read "+filepath.Base(path), err)
	}

	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, persistErr("parse "+filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON writes v to path atomically.
// Uses write-to-temp-then-rename to prevent corruption from interrupted writes.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return persistErr("create directory", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return persistErr("marshal "+filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return persistErr("write temp file", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best effort cleanup
		return persistErr("rename temp file", err)
	}
	return nil
}

// listKeys returns the conversation keys with a ".json" file in dir.
func listKeys(dir string) ([]convo.Key, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, persistErr("read directory", err)
	}

	var keys []convo.Key
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok {
			continue
		}
		key, err := convo.ParseKey(name)
		if err != nil {
			continue // not a conversation file
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", convo.ErrPersistence, op, err)
}
