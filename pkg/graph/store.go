package graph

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/actorflow/pkg/errors"
)

// Store keeps a property graph in DuckDB using two relational tables:
// node (events, task instances, entity nodes) and rel (typed relationships).
type Store struct {
	db   *sql.DB
	path string

	nextNode atomic.Int64
	nextRel  atomic.Int64
}

// StoreConfig configures the graph store.
type StoreConfig struct {
	// Path is the database file path ("" or ":memory:" for in-memory).
	Path string

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// Threads limits DuckDB worker threads (0 = DuckDB default).
	Threads int
}

// OpenStore opens (or creates) the graph store at path.
func OpenStore(path string) (*Store, error) {
	return OpenStoreWithConfig(StoreConfig{Path: path})
}

// OpenStoreWithConfig opens a store with custom configuration.
func OpenStoreWithConfig(cfg StoreConfig) (*Store, error) {
	dsn := cfg.Path
	if dsn == ":memory:" {
		dsn = ""
	}
	if cfg.ReadOnly && dsn != "" {
		dsn += "?access_mode=read_only"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeGraphInit, "failed to open DuckDB").
			WithContext("path", cfg.Path)
	}

	s := &Store{db: db, path: cfg.Path}

	if cfg.Threads > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads=%d", cfg.Threads)); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.CodeGraphInit, "failed to configure DuckDB")
		}
	}

	if !cfg.ReadOnly {
		if err := s.initSchema(); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.CodeGraphInit, "failed to initialize schema")
		}
	}

	if err := s.loadCounters(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeGraphInit, "failed to read id counters")
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS node (
			id          BIGINT PRIMARY KEY,
			kind        VARCHAR NOT NULL,
			activity    VARCHAR,
			lifecycle   VARCHAR,
			ts          TIMESTAMP,
			start_time  TIMESTAMP,
			end_time    TIMESTAMP,
			sys_id      VARCHAR
		);

		-- rel carries no index: actor_behavior is updated in place
		CREATE TABLE IF NOT EXISTS rel (
			id              BIGINT NOT NULL,
			type            VARCHAR NOT NULL,
			src             BIGINT NOT NULL,
			dst             BIGINT NOT NULL,
			actor_behavior  VARCHAR
		);

		CREATE INDEX IF NOT EXISTS idx_node_kind ON node(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) loadCounters() error {
	var maxNode, maxRel int64
	if err := s.db.QueryRow("SELECT COALESCE(MAX(id), 0) FROM node").Scan(&maxNode); err != nil {
		return err
	}
	if err := s.db.QueryRow("SELECT COALESCE(MAX(id), 0) FROM rel").Scan(&maxRel); err != nil {
		return err
	}
	s.nextNode.Store(maxNode)
	s.nextRel.Store(maxRel)
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Query execution ---

// Execute implements Executor. Failures are wrapped as QueryExecutionFailure.
func (s *Store) Execute(ctx context.Context, q Query) ([]Row, error) {
	stmt, args, err := q.Render()
	if err != nil {
		return nil, err
	}

	if q.Write {
		res, err := s.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, errors.QueryFailed(q.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = -1
		}
		return []Row{{"affected": n}}, nil
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.QueryFailed(q.Name, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, errors.QueryFailed(q.Name, err)
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// --- Write helpers ---

// Event is an event node.
type Event struct {
	Activity  string
	Lifecycle string
	Timestamp time.Time
}

// AddEvent inserts an event node and returns its id.
func (s *Store) AddEvent(ctx context.Context, e Event) (int64, error) {
	id := s.nextNode.Add(1)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO node (id, kind, activity, lifecycle, ts) VALUES (?, ?, ?, ?, ?)",
		id, KindEvent, e.Activity, nullString(e.Lifecycle), e.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

// AddTaskInstance inserts a task-instance node spanning [start, end].
func (s *Store) AddTaskInstance(ctx context.Context, start, end time.Time) (int64, error) {
	id := s.nextNode.Add(1)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO node (id, kind, start_time, end_time) VALUES (?, ?, ?, ?)",
		id, KindTaskInstance, start, end,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task instance: %w", err)
	}
	return id, nil
}

// AddEntity inserts an entity node of the given type (e.g. "Resource").
func (s *Store) AddEntity(ctx context.Context, nodeType, sysID string) (int64, error) {
	id := s.nextNode.Add(1)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO node (id, kind, sys_id) VALUES (?, ?, ?)",
		id, nodeType, sysID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s node: %w", nodeType, err)
	}
	return id, nil
}

// Relate inserts a relationship src-[relType]->dst and returns its id.
func (s *Store) Relate(ctx context.Context, relType string, src, dst int64) (int64, error) {
	id := s.nextRel.Add(1)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rel (id, type, src, dst) VALUES (?, ?, ?, ?)",
		id, relType, src, dst,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s relationship: %w", relType, err)
	}
	return id, nil
}

// --- Read helpers ---

// DirectlyFollows returns every relationship of the given DF type.
func (s *Store) DirectlyFollows(ctx context.Context, dfType string) ([]DirectlyFollowsEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, src, dst, actor_behavior FROM rel WHERE type = ? ORDER BY id",
		dfType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []DirectlyFollowsEdge
	for rows.Next() {
		var e DirectlyFollowsEdge
		var behavior sql.NullString
		if err := rows.Scan(&e.id, &e.relType, &e.source, &e.target, &behavior); err != nil {
			return nil, err
		}
		e.behavior = behavior.String
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// LabelDistribution counts DF relationships of dfType per actor_behavior.
// Unlabeled relationships are counted under "".
func (s *Store) LabelDistribution(ctx context.Context, dfType string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT COALESCE(actor_behavior, ''), COUNT(*) FROM rel WHERE type = ? GROUP BY 1",
		dfType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := make(map[string]int64)
	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		dist[label] = n
	}
	return dist, rows.Err()
}

// Stats summarizes the graph contents.
type Stats struct {
	Nodes         map[string]int64
	Relationships map[string]int64
}

// Stats returns node counts per kind and relationship counts per type.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		Nodes:         make(map[string]int64),
		Relationships: make(map[string]int64),
	}

	if err := s.countInto(ctx, "SELECT kind, COUNT(*) FROM node GROUP BY kind", st.Nodes); err != nil {
		return nil, err
	}
	if err := s.countInto(ctx, "SELECT type, COUNT(*) FROM rel GROUP BY type", st.Relationships); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) countInto(ctx context.Context, query string, dst map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		dst[k] = n
	}
	return rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Executor = (*Store)(nil)
