// Package errs defines the error taxonomy shared across the consolidation
// pipeline. Every stage classifies its failures into one of these five
// categories so callers can branch on category with errors.As instead of
// string matching.
package errs

import "fmt"

// TransientExternal wraps a failure of an external dependency (LLM,
// embedding provider, lock contention) that is expected to succeed on
// retry. It is never fatal to the host process.
type TransientExternal struct {
	Op  string
	Err error
}

func (e *TransientExternal) Error() string {
	return fmt.Sprintf("transient external failure in %s: %v", e.Op, e.Err)
}

func (e *TransientExternal) Unwrap() error { return e.Err }

// DataMalformed wraps input that could not be decoded or validated
// (undecodable transcript, non-array extractor output, invalid fact
// schema). The offending item is dropped; the ledger still advances so a
// permanently corrupt input does not loop forever.
type DataMalformed struct {
	Op  string
	Err error
}

func (e *DataMalformed) Error() string {
	return fmt.Sprintf("malformed data in %s: %v", e.Op, e.Err)
}

func (e *DataMalformed) Unwrap() error { return e.Err }

// StoreIntegrity wraps a violation of the fact store's invariants, such as
// more than one active row for a key surviving a crash. Recovery preserves
// history and keeps the most recent start_time as active.
type StoreIntegrity struct {
	Op  string
	Err error
}

func (e *StoreIntegrity) Error() string {
	return fmt.Sprintf("store integrity violation in %s: %v", e.Op, e.Err)
}

func (e *StoreIntegrity) Unwrap() error { return e.Err }

// ResourceExhausted wraps a resource preflight failure (RAM below floor,
// too many queued sessions). The caller aborts gracefully.
type ResourceExhausted struct {
	Op  string
	Err error
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("resource exhausted in %s: %v", e.Op, e.Err)
}

func (e *ResourceExhausted) Unwrap() error { return e.Err }

// UsageError wraps a caller mistake (bad CLI flag, missing argument).
type UsageError struct {
	Op  string
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage error in %s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }
