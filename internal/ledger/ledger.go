// Package ledger tracks which conversation sources the Pipeline
// Orchestrator has already processed, so a rerun over the same directory
// is idempotent (spec.md §4.H: "ledger check: already processed & mtime
// unchanged?").
//
// Persisted as the literal on-disk format spec.md §6 names:
// processed_sources.ledger, an append-only text file with one
// "<source-id>|<mtime>" line per record. Grounded on
// cmd/tapes/start/start.go's O_APPEND log file handle — opened once and
// written to line by line, never rewritten wholesale.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Ledger is an append-only, file-backed record of processed sources. A
// later line for a given source-id supersedes an earlier one in the
// in-memory view; the file on disk is never rewritten, only appended to.
type Ledger struct {
	path string

	mu      sync.Mutex
	file    *os.File
	entries map[string]int64 // source-id -> mod_time (unix millis)
}

// Open loads (or creates) the ledger at path, replaying its lines into
// memory, then keeps the file open for append.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: make(map[string]int64)}

	if err := l.loadLocked(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	l.file = f

	return l, nil
}

func (l *Ledger) loadLocked() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: reading %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sourceID, rawMTime, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		mtime, err := strconv.ParseInt(rawMTime, 10, 64)
		if err != nil {
			continue
		}
		// A later line for the same source-id wins: reprocessing a
		// changed source appends a fresh record rather than rewriting
		// its previous one.
		l.entries[sourceID] = mtime
	}
	return scanner.Err()
}

// Processed reports whether sourceID has already been processed at
// exactly modTimeMillis, per spec.md §4.H's "already processed & mtime
// unchanged?" check. A changed mtime means the source should be
// reprocessed even though its ID is already present.
func (l *Ledger) Processed(sourceID string, modTimeMillis int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	mtime, ok := l.entries[sourceID]
	return ok && mtime == modTimeMillis
}

// Record appends a "<source-id>|<mtime>" line and updates the in-memory
// view. It does not get called on pipeline failure (spec.md §4.H: "any
// stage error → Failed (ledger NOT updated; retried next run)").
func (l *Ledger) Record(sourceID string, modTimeMillis int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s|%d\n", sourceID, modTimeMillis)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("ledger: appending: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("ledger: syncing: %w", err)
	}

	l.entries[sourceID] = modTimeMillis
	return nil
}

// Count returns the number of distinct processed sources.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close releases the underlying file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
