package concurrency

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireNoRecordSucceeds(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(filepath.Join(dir, "lock.json"), 5*time.Minute)

	h, err := g.Acquire("worker-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireFailsWhenHeldByLiveNonStaleOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock.json")
	g := NewGate(path, 5*time.Minute)

	h1, err := g.Acquire("worker-1")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer h1.Release()

	// Our own process is always "alive", so a second acquire against a
	// fresh, non-stale record (written by this same process) must fail.
	if _, err := g.Acquire("worker-2"); err != ErrHeld {
		t.Errorf("second Acquire error = %v, want ErrHeld", err)
	}
}

func TestAcquireSucceedsWhenRecordIsStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock.json")

	stale := Record{PID: os.Getpid(), AcquiredAtMS: time.Now().Add(-time.Hour).UnixMilli(), Owner: "worker-1"}
	if err := writeRecord(path, stale); err != nil {
		t.Fatal(err)
	}

	g := NewGate(path, 5*time.Minute)
	h, err := g.Acquire("worker-2")
	if err != nil {
		t.Fatalf("expected stale record to be overwritten, got: %v", err)
	}
	h.Release()
}

func TestAcquireSucceedsWhenOwnerPIDNotAlive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock.json")

	// PID 999999 is very unlikely to be alive in any test environment.
	dead := Record{PID: 999999, AcquiredAtMS: time.Now().UnixMilli(), Owner: "worker-1"}
	if err := writeRecord(path, dead); err != nil {
		t.Fatal(err)
	}

	g := NewGate(path, 5*time.Minute)
	h, err := g.Acquire("worker-2")
	if err != nil {
		t.Fatalf("expected dead-owner record to be overwritten, got: %v", err)
	}
	h.Release()
}

func TestReleaseOnMissingFileIsNoop(t *testing.T) {
	h := &Handle{path: filepath.Join(t.TempDir(), "never-existed.json")}
	if err := h.Release(); err != nil {
		t.Errorf("Release on missing file should be a no-op, got: %v", err)
	}
}
