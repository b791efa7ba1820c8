// Package dotdir locates the .mnemo/ state directory: the fact store
// database, the processed-source ledger, and the concurrency gate's lock
// file all live under whatever path Target resolves.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the mnemo directory.
	dirName = ".mnemo"

	// factStoreFile, ledgerFile, and lockFile are the fixed filenames
	// spec.md §9's "Persisted state on disk" section names for the fact
	// store database, the processed-source ledger, and the pipeline's
	// concurrency-gate lock file, each rooted under Target's directory.
	factStoreFile = "facts.db"
	ledgerFile    = "processed_sources.ledger"
	lockFile      = "pipeline.lock"

	// aggregateDir is where `mnemo memory aggregate` writes digest.json,
	// the daily log, the weekly snapshot, and the rolling topic files.
	aggregateDir = "aggregate"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .mnemo/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.mnemo/ dir
//  3. Home ~/.mnemo/ dir
//  4. If none found, attempt to create ~/.mnemo/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating mnemo directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// FactStorePath resolves the fact store database path under Target(overrideDir).
func (m *Manager) FactStorePath(overrideDir string) (string, error) {
	return m.filePath(overrideDir, factStoreFile)
}

// LedgerPath resolves the processed-sources ledger path under Target(overrideDir).
func (m *Manager) LedgerPath(overrideDir string) (string, error) {
	return m.filePath(overrideDir, ledgerFile)
}

// LockPath resolves the pipeline concurrency-gate lock file path under
// Target(overrideDir).
func (m *Manager) LockPath(overrideDir string) (string, error) {
	return m.filePath(overrideDir, lockFile)
}

// AggregatePath resolves the directory `mnemo memory aggregate` writes
// digest/daily/weekly/rolling output under, given Target(overrideDir).
func (m *Manager) AggregatePath(overrideDir string) (string, error) {
	return m.filePath(overrideDir, aggregateDir)
}

func (m *Manager) filePath(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// localDirExists checks whether a .mnemo/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
