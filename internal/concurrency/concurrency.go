// Package concurrency implements the Concurrency Gate (spec.md §4.K):
// cross-process singleton locks backed by a JSON record with PID liveness
// and a staleness TTL, plus a RAM preflight for heavy stages.
//
// Grounded on pkg/start/manager.go's Flock-guarded, atomic
// temp-file-then-rename JSON state save, and cmd/tapes/start/start.go's
// processAlive PID-liveness probe (os.FindProcess + Signal(0)) — extended
// with the staleness-TTL comparison spec.md §4.K requires beyond the
// teacher's plain Flock exclusivity.
package concurrency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Record is the lock's on-disk shape, per spec.md §4.K.
type Record struct {
	PID           int    `json:"pid"`
	AcquiredAtMS  int64  `json:"acquired_at_epoch_ms"`
	Owner         string `json:"owner"`
}

// Gate guards one well-known lock path.
type Gate struct {
	path     string
	staleTTL time.Duration
}

// NewGate builds a Gate. staleTTL should be 5-10 minutes depending on the
// caller (hook vs. worker), per spec.md §4.K.
func NewGate(path string, staleTTL time.Duration) *Gate {
	return &Gate{path: path, staleTTL: staleTTL}
}

// ErrHeld is returned by Acquire when another live, non-stale owner holds
// the lock; the caller may exit cleanly or wait, per spec.md §4.K step 4.
var ErrHeld = errors.New("concurrency: lock is held by a live, non-stale owner")

// Acquire implements spec.md §4.K's four-step protocol and returns a
// Handle the caller must Release on every exit path.
func (g *Gate) Acquire(owner string) (*Handle, error) {
	existing, err := readRecord(g.path)
	if err != nil {
		return nil, fmt.Errorf("concurrency: reading lock: %w", err)
	}

	if existing != nil {
		age := time.Since(time.UnixMilli(existing.AcquiredAtMS))
		if age <= g.staleTTL && processAlive(existing.PID) {
			return nil, ErrHeld
		}
	}

	record := Record{PID: os.Getpid(), AcquiredAtMS: time.Now().UnixMilli(), Owner: owner}
	if err := writeRecord(g.path, record); err != nil {
		return nil, fmt.Errorf("concurrency: writing lock: %w", err)
	}
	return &Handle{path: g.path}, nil
}

// Handle represents a held lock. Release MUST be called on every exit
// path (success, error, signal), per spec.md §4.K.
type Handle struct {
	path string
}

// Release removes the lock record.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("concurrency: releasing lock: %w", err)
	}
	return nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		// A corrupt lock record is treated as no record: whoever wrote it
		// is gone or the write was interrupted, so it cannot be a live
		// owner.
		return nil, nil
	}
	return &r, nil
}

func writeRecord(path string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "lock-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// processAlive reports whether pid names a live process, per
// cmd/tapes/start/start.go's liveness probe.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// FreeMemoryMB reports free system memory in megabytes, read from
// /proc/meminfo's MemAvailable line. It is Linux-specific, matching the
// deployment target implied by spec.md §4.K's RAM preflight.
func FreeMemoryMB() (int, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, fmt.Errorf("concurrency: reading /proc/meminfo: %w", err)
	}
	var kb int
	if _, err := fmt.Sscanf(extractMemAvailableLine(string(data)), "MemAvailable: %d kB", &kb); err != nil {
		return 0, fmt.Errorf("concurrency: parsing /proc/meminfo: %w", err)
	}
	return kb / 1024, nil
}

func extractMemAvailableLine(meminfo string) string {
	for _, line := range splitLines(meminfo) {
		if len(line) >= len("MemAvailable:") && line[:len("MemAvailable:")] == "MemAvailable:" {
			return line
		}
	}
	return ""
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// CheckRAM implements spec.md §4.K's RAM preflight: below minFreeMB,
// callers should log and abort (no-op) rather than proceed.
func CheckRAM(minFreeMB int) (ok bool, freeMB int, err error) {
	freeMB, err = FreeMemoryMB()
	if err != nil {
		return false, 0, err
	}
	return freeMB >= minFreeMB, freeMB, nil
}
