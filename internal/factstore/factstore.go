// Package factstore is the durable, temporally-versioned fact store of
// spec.md §4.F: keys are dotted strings, values are opaque text, and every
// upsert either closes the active row and opens a new one or is a no-op.
//
// The default backend is grounded on two teacher files stitched together
// into a single connection. An upsert's history-row and FTS-index mutations
// share one transaction; the vector index is not part of it and is written
// afterwards by a separate SetEmbedding call. A superseded row's embedding
// stays in fact_embeddings; ActiveEmbeddings reads only active rows.
//   - pkg/merkle/sqlite.go for the raw database/sql + mattn/go-sqlite3
//     table/transaction shape (INSERT OR IGNORE dedup pattern, NullString
//     handling, scanNodes-style row scanning).
//   - pkg/vector/sqlitevec/sqlitevec.go for the sqlite-vec vec0 virtual
//     table setup and float32<->blob (de)serialization.
//
// The FTS5 external-content-table-with-sync-triggers pattern is grounded
// on other_examples/jalfarocode-engram's observations_fts schema and its
// sanitizeFTS query-quoting helper (used by internal/search, not here).
package factstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/errs"
	"github.com/memoryforge/mnemo/internal/keygrammar"
)

// Fact is the unit of memory, per spec.md §3.
type Fact struct {
	RowID     int64
	Key       string
	Value     string
	Source    string
	StartTime time.Time
	EndTime   *time.Time // nil ⇒ active
	Embedding []float32  // nil ⇒ not yet embedded
}

// Active reports whether the fact currently holds (end_time = ∅).
func (f Fact) Active() bool { return f.EndTime == nil }

// UpsertResult describes what an Upsert call actually did.
type UpsertResult string

const (
	ResultCreated  UpsertResult = "created"
	ResultSkipped  UpsertResult = "skipped"
	ResultSuperseded UpsertResult = "superseded"
)

// Store is the durable versioned fact store.
type Store struct {
	db         *sql.DB
	logger     *zap.Logger
	dimensions uint
}

// Config configures the SQLite-backed store.
type Config struct {
	// Path is the SQLite database file path, or ":memory:".
	Path string
	// Dimensions is the fixed embedding vector width. Per spec.md §9's
	// open question, this is a single value supplied by the embedding
	// provider and stored once; mismatched embeddings are rejected at
	// SetEmbedding time.
	Dimensions uint
}

// Open opens (creating if necessary) the fact store at cfg.Path and runs
// migrations.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	sqlite_vec.Auto()

	if cfg.Path == "" {
		return nil, fmt.Errorf("factstore: path is required")
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("factstore: dimensions must be configured")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("factstore: opening database: %w", err)
	}
	// A single shared connection avoids SQLITE_BUSY across the
	// history+FTS+vec0 transaction; the store serializes writers anyway
	// per spec.md §9 ("in-process, prefer a single writer per store handle").
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, dimensions: cfg.Dimensions}
	if err := s.migrate(cfg.Dimensions); err != nil {
		db.Close()
		return nil, fmt.Errorf("factstore: migrating: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(dimensions uint) error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		source TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_facts_key ON facts(key);
	CREATE INDEX IF NOT EXISTS idx_facts_key_active ON facts(key) WHERE end_time IS NULL;

	CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
		key, value,
		content='facts', content_rowid='id'
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	createVec := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS fact_embeddings USING vec0(embedding float[%d])`, dimensions)
	if _, err := s.db.Exec(createVec); err != nil {
		return err
	}

	// FTS sync triggers, only fired for active rows; on supersession the
	// closing UPDATE removes the row from the index (spec.md §3 invariant
	// 5), the new INSERT re-adds it.
	triggers := `
	CREATE TRIGGER IF NOT EXISTS facts_ai AFTER INSERT ON facts
	WHEN new.end_time IS NULL BEGIN
		INSERT INTO facts_fts(rowid, key, value) VALUES (new.id, new.key, new.value);
	END;
	CREATE TRIGGER IF NOT EXISTS facts_au_close AFTER UPDATE OF end_time ON facts
	WHEN old.end_time IS NULL AND new.end_time IS NOT NULL BEGIN
		INSERT INTO facts_fts(facts_fts, rowid, key, value) VALUES ('delete', old.id, old.key, old.value);
	END;
	`
	_, err := s.db.Exec(triggers)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert implements spec.md §4.F: if the active row for fact.Key already
// has the same value, it is a no-op (ResultSkipped). Otherwise the active
// row (if any) is closed at fact.StartTime and the new row is inserted,
// wrapped in a single transaction covering the history row and the FTS
// index (the vector index is populated lazily via SetEmbedding).
func (s *Store) Upsert(ctx context.Context, fact Fact) (UpsertResult, int64, error) {
	key := keygrammar.Normalize(fact.Key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, &errs.TransientExternal{Op: "factstore.Upsert", Err: err}
	}
	defer tx.Rollback()

	active, err := activeRowTx(ctx, tx, key)
	if err != nil {
		return "", 0, &errs.TransientExternal{Op: "factstore.Upsert", Err: err}
	}

	if active != nil && active.Value == fact.Value {
		return ResultSkipped, active.RowID, nil
	}

	result := ResultCreated
	if active != nil {
		// spec.md §4.D/§9: a zero-length [start,start) interval — a new
		// value at the exact same instant as the row it supersedes — is
		// acceptable and must not be rejected; only going backwards in time
		// is a store-integrity violation.
		if fact.StartTime.Before(active.StartTime) {
			return "", 0, &errs.StoreIntegrity{Op: "factstore.Upsert", Err: fmt.Errorf("start_time %s precedes active row's %s for key %s", fact.StartTime, active.StartTime, key)}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE facts SET end_time = ? WHERE id = ?`, fact.StartTime.UnixMilli(), active.RowID); err != nil {
			return "", 0, &errs.TransientExternal{Op: "factstore.Upsert", Err: err}
		}
		result = ResultSuperseded
	}

	var endTime any
	if fact.EndTime != nil {
		endTime = fact.EndTime.UnixMilli()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO facts (key, value, source, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
		key, fact.Value, fact.Source, fact.StartTime.UnixMilli(), endTime)
	if err != nil {
		return "", 0, &errs.TransientExternal{Op: "factstore.Upsert", Err: err}
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return "", 0, &errs.TransientExternal{Op: "factstore.Upsert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return "", 0, &errs.TransientExternal{Op: "factstore.Upsert", Err: err}
	}

	return result, newID, nil
}

// ApplyMerge writes fact under targetKey instead of fact.Key, per spec.md
// §4.F ("same as upsert but writes under target_key").
func (s *Store) ApplyMerge(ctx context.Context, targetKey string, fact Fact) (UpsertResult, int64, error) {
	fact.Key = targetKey
	return s.Upsert(ctx, fact)
}

type activeRow struct {
	RowID     int64
	Value     string
	StartTime time.Time
}

func activeRowTx(ctx context.Context, tx *sql.Tx, key string) (*activeRow, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, value, start_time FROM facts WHERE key = ? AND end_time IS NULL`, key)
	var r activeRow
	var startMillis int64
	err := row.Scan(&r.RowID, &r.Value, &startMillis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartTime = time.UnixMilli(startMillis).UTC()
	return &r, nil
}

// Active returns the active fact for key, or nil if none exists.
func (s *Store) Active(ctx context.Context, key string) (*Fact, error) {
	key = keygrammar.Normalize(key)
	row := s.db.QueryRowContext(ctx, `SELECT id, key, value, source, start_time FROM facts WHERE key = ? AND end_time IS NULL`, key)
	return scanOptionalFact(row)
}

// ActivePrefix returns all active facts whose key starts with prefix.
func (s *Store) ActivePrefix(ctx context.Context, prefix string) ([]Fact, error) {
	prefix = keygrammar.Normalize(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, source, start_time FROM facts WHERE end_time IS NULL AND (key = ? OR key LIKE ?) ORDER BY key`,
		prefix, prefix+".%")
	if err != nil {
		return nil, &errs.TransientExternal{Op: "factstore.ActivePrefix", Err: err}
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ActiveAll returns every active fact, ordered by most recent start_time
// first (used when Hybrid Search has no query, per spec.md §4.G).
func (s *Store) ActiveAll(ctx context.Context) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, source, start_time FROM facts WHERE end_time IS NULL ORDER BY start_time DESC`)
	if err != nil {
		return nil, &errs.TransientExternal{Op: "factstore.ActiveAll", Err: err}
	}
	defer rows.Close()
	return scanFacts(rows)
}

// History returns every historical row (active and superseded) for key,
// oldest first.
func (s *Store) History(ctx context.Context, key string) ([]Fact, error) {
	key = keygrammar.Normalize(key)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, source, start_time, end_time FROM facts WHERE key = ? ORDER BY start_time ASC`, key)
	if err != nil {
		return nil, &errs.TransientExternal{Op: "factstore.History", Err: err}
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		var startMillis int64
		var endMillis sql.NullInt64
		if err := rows.Scan(&f.RowID, &f.Key, &f.Value, &f.Source, &startMillis, &endMillis); err != nil {
			return nil, &errs.TransientExternal{Op: "factstore.History", Err: err}
		}
		f.StartTime = time.UnixMilli(startMillis).UTC()
		if endMillis.Valid {
			t := time.UnixMilli(endMillis.Int64).UTC()
			f.EndTime = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete sets end_time = now() on the active row for key (spec.md §4.F);
// it never removes history.
func (s *Store) Delete(ctx context.Context, key string) error {
	key = keygrammar.Normalize(key)
	res, err := s.db.ExecContext(ctx, `UPDATE facts SET end_time = ? WHERE key = ? AND end_time IS NULL`, time.Now().UTC().UnixMilli(), key)
	if err != nil {
		return &errs.TransientExternal{Op: "factstore.Delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errs.DataMalformed{Op: "factstore.Delete", Err: fmt.Errorf("no active fact for key %s", key)}
	}
	return nil
}

// SetEmbedding attaches an embedding vector to rowID. Per spec.md §4.F it
// is only permitted while the row is still active; the vector's dimension
// must match the store's configured width.
func (s *Store) SetEmbedding(ctx context.Context, rowID int64, embedding []float32) error {
	if uint(len(embedding)) != s.dimensions {
		return &errs.DataMalformed{Op: "factstore.SetEmbedding", Err: fmt.Errorf("embedding has %d dims, store expects %d", len(embedding), s.dimensions)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.TransientExternal{Op: "factstore.SetEmbedding", Err: err}
	}
	defer tx.Rollback()

	var endTime sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT end_time FROM facts WHERE id = ?`, rowID).Scan(&endTime); err != nil {
		if err == sql.ErrNoRows {
			return &errs.DataMalformed{Op: "factstore.SetEmbedding", Err: fmt.Errorf("row %d not found", rowID)}
		}
		return &errs.TransientExternal{Op: "factstore.SetEmbedding", Err: err}
	}
	if endTime.Valid {
		return &errs.DataMalformed{Op: "factstore.SetEmbedding", Err: fmt.Errorf("row %d is no longer active", rowID)}
	}

	// vec0 tables don't support UPDATE; delete-then-insert under the same
	// rowid, mirroring pkg/vector/sqlitevec.go's Add() pattern. The fact's
	// own row id doubles as the vec0 rowid, so no separate mapping table
	// is needed.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fact_embeddings WHERE rowid = ?`, rowID); err != nil {
		return &errs.TransientExternal{Op: "factstore.SetEmbedding", Err: err}
	}

	blob := serializeFloat32(embedding)
	if _, err := tx.ExecContext(ctx, `INSERT INTO fact_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, blob); err != nil {
		return &errs.TransientExternal{Op: "factstore.SetEmbedding", Err: err}
	}

	return tx.Commit()
}

// ActiveEmbeddings returns every active fact that has an embedding, for
// the Hybrid Search brute-cosine path (spec.md §4.F: "acceptable up to
// ~100k facts").
func (s *Store) ActiveEmbeddings(ctx context.Context) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.key, f.value, f.source, f.start_time, e.embedding
		FROM facts f
		JOIN fact_embeddings e ON e.rowid = f.id
		WHERE f.end_time IS NULL
	`)
	if err != nil {
		return nil, &errs.TransientExternal{Op: "factstore.ActiveEmbeddings", Err: err}
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		var startMillis int64
		var blob []byte
		if err := rows.Scan(&f.RowID, &f.Key, &f.Value, &f.Source, &startMillis, &blob); err != nil {
			return nil, &errs.TransientExternal{Op: "factstore.ActiveEmbeddings", Err: err}
		}
		f.StartTime = time.UnixMilli(startMillis).UTC()
		f.Embedding = deserializeFloat32(blob)
		out = append(out, f)
	}
	return out, rows.Err()
}

// SearchFTS runs a BM25 query against the active set, returning up to
// limit rows with their raw bm25 rank (more negative = better match, per
// SQLite FTS5 convention). Query terms are quoted by the caller
// (internal/search owns quoteFTSQuery, grounded on the same pattern).
func (s *Store) SearchFTS(ctx context.Context, ftsQuery string, limit int) ([]Fact, []float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.key, f.value, f.source, f.start_time, bm25(facts_fts)
		FROM facts_fts
		JOIN facts f ON f.id = facts_fts.rowid
		WHERE facts_fts MATCH ? AND f.end_time IS NULL
		ORDER BY bm25(facts_fts)
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, nil, &errs.TransientExternal{Op: "factstore.SearchFTS", Err: err}
	}
	defer rows.Close()

	var facts []Fact
	var scores []float64
	for rows.Next() {
		var f Fact
		var startMillis int64
		var score float64
		if err := rows.Scan(&f.RowID, &f.Key, &f.Value, &f.Source, &startMillis, &score); err != nil {
			return nil, nil, &errs.TransientExternal{Op: "factstore.SearchFTS", Err: err}
		}
		f.StartTime = time.UnixMilli(startMillis).UTC()
		facts = append(facts, f)
		scores = append(scores, score)
	}
	return facts, scores, rows.Err()
}

// Reconcile implements the crash-recovery routine of spec.md §4.F/§7
// (StoreIntegrity): for each key with more than one open row, keep the
// lexicographically latest start_time as active and close the others at
// that start_time.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM facts WHERE end_time IS NULL GROUP BY key HAVING COUNT(*) > 1`)
	if err != nil {
		return 0, &errs.TransientExternal{Op: "factstore.Reconcile", Err: err}
	}
	var dirtyKeys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return 0, &errs.TransientExternal{Op: "factstore.Reconcile", Err: err}
		}
		dirtyKeys = append(dirtyKeys, k)
	}
	rows.Close()

	fixed := 0
	for _, key := range dirtyKeys {
		if err := s.reconcileKey(ctx, key); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

func (s *Store) reconcileKey(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.TransientExternal{Op: "factstore.reconcileKey", Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, start_time FROM facts WHERE key = ? AND end_time IS NULL ORDER BY start_time DESC`, key)
	if err != nil {
		return &errs.TransientExternal{Op: "factstore.reconcileKey", Err: err}
	}
	type open struct {
		id    int64
		start int64
	}
	var opens []open
	for rows.Next() {
		var o open
		if err := rows.Scan(&o.id, &o.start); err != nil {
			rows.Close()
			return &errs.TransientExternal{Op: "factstore.reconcileKey", Err: err}
		}
		opens = append(opens, o)
	}
	rows.Close()

	if len(opens) < 2 {
		return tx.Commit()
	}

	winner := opens[0] // latest start_time, due to ORDER BY DESC
	for _, o := range opens[1:] {
		if _, err := tx.ExecContext(ctx, `UPDATE facts SET end_time = ? WHERE id = ?`, winner.start, o.id); err != nil {
			return &errs.StoreIntegrity{Op: "factstore.reconcileKey", Err: err}
		}
	}
	return tx.Commit()
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var out []Fact
	for rows.Next() {
		f, err := scanFactRow(rows)
		if err != nil {
			return nil, &errs.TransientExternal{Op: "factstore.scanFacts", Err: err}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFactRow(rows *sql.Rows) (Fact, error) {
	var f Fact
	var startMillis int64
	if err := rows.Scan(&f.RowID, &f.Key, &f.Value, &f.Source, &startMillis); err != nil {
		return Fact{}, err
	}
	f.StartTime = time.UnixMilli(startMillis).UTC()
	return f, nil
}

func scanOptionalFact(row *sql.Row) (*Fact, error) {
	var f Fact
	var startMillis int64
	err := row.Scan(&f.RowID, &f.Key, &f.Value, &f.Source, &startMillis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.TransientExternal{Op: "factstore.scanOptionalFact", Err: err}
	}
	f.StartTime = time.UnixMilli(startMillis).UTC()
	return &f, nil
}

// serializeFloat32 encodes a float32 vector as a little-endian byte blob,
// the wire format sqlite-vec's vec0 module expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func deserializeFloat32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

