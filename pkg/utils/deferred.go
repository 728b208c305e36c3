// Package utils holds small helpers shared by the parley binary.
package utils

import (
	"io"
	"sync"
)

// DeferredWriter buffers writes until Flush. The chat UI owns the terminal
// while it runs, so log events are held back and printed after it exits.
// Each Write is kept as one entry so structured log events stay intact.
type DeferredWriter struct {
	mu      sync.Mutex
	entries [][]byte
}

// Write records a copy of p.
func (d *DeferredWriter) Write(p []byte) (int, error) {
	entry := make([]byte, len(p))
	copy(entry, p)

	d.mu.Lock()
	d.entries = append(d.entries, entry)
	d.mu.Unlock()

	return len(p), nil
}

// Len returns the number of buffered entries.
func (d *DeferredWriter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Flush writes every buffered entry to w in order and clears the buffer.
func (d *DeferredWriter) Flush(w io.Writer) error {
	d.mu.Lock()
	entries := d.entries
	d.entries = nil
	d.mu.Unlock()

	for _, entry := range entries {
		if _, err := w.Write(entry); err != nil {
			return err
		}
	}
	return nil
}
