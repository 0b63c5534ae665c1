// Package sqlitegraph is the bundled reference implementation of
// graphworker.Database, backed by SQLite via mattn/go-sqlite3. It accepts
// the same Cypher-shaped statements graphquery.QueryBuilder emits by
// translating their CREATE/MATCH clauses into a small node/edge schema.
// Only node labels and edges are stored: the values bound to $param_N
// placeholders are consumed but not persisted.
package sqlitegraph

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/graphrag/graphworker"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL REFERENCES nodes(id),
	target_id INTEGER NOT NULL REFERENCES nodes(id),
	relation TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
`

// DB is a graphworker.Database backed by a SQLite file (or :memory:).
type DB struct {
	db *sql.DB
}

// Open opens (and migrates) a SQLite-backed graph database at path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitegraph: open %s: %w", path, err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlitegraph: migrate: %w", err)
	}
	return &DB{db: sqlDB}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.db.Close() }

// Begin starts a transaction, satisfying graphworker.Database.
func (d *DB) Begin(ctx context.Context) (graphworker.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
	// labelToID maps a node label to the row id created earlier in the
	// same transaction, so later CREATE edge statements within the same
	// Build query can resolve the label they were declared under.
	labelToID map[string]int64
}

var (
	createNodeRE = regexp.MustCompile(`^CREATE \(n\d+:([A-Za-z0-9_]+)\)$`)
	createNodePropsRE = regexp.MustCompile(`^CREATE \(n\d+:([A-Za-z0-9_]+) \{ (.+) \}\)$`)
	edgeRE       = regexp.MustCompile(`MATCH \(n\d+:([A-Za-z0-9_]+)\), \(n\d+:([A-Za-z0-9_]+)\) CREATE \(n\d+\)-\[:([A-Za-z0-9_]+)\]->\(n\d+\)`)
)

// Run executes a Build query's compiled text against the transaction.
// The text is the output of graphquery.QueryBuilder.Build(): one CREATE
// node line per node, optionally followed by WITH-prefixed MATCH/CREATE
// edge lines. Each line is translated into a parameterised SQL statement
// against the nodes/edges tables.
func (t *sqliteTx) Run(ctx context.Context, query string, params []any) error {
	if t.labelToID == nil {
		t.labelToID = make(map[string]int64)
	}
	paramIdx := 0

	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := createNodePropsRE.FindStringSubmatch(line); m != nil {
			label := m[1]
			propCount := strings.Count(m[2], "$param_")
			props := params[paramIdx : paramIdx+propCount]
			paramIdx += propCount
			id, err := t.insertNode(ctx, label, props)
			if err != nil {
				return err
			}
			t.labelToID[label] = id
			continue
		}

		if m := createNodeRE.FindStringSubmatch(line); m != nil {
			label := m[1]
			id, err := t.insertNode(ctx, label, nil)
			if err != nil {
				return err
			}
			t.labelToID[label] = id
			continue
		}

		if m := edgeRE.FindStringSubmatch(line); m != nil {
			sourceLabel, targetLabel, relation := m[1], m[2], m[3]
			sourceID, ok := t.labelToID[sourceLabel]
			if !ok {
				return fmt.Errorf("sqlitegraph: edge references unresolved node label %q", sourceLabel)
			}
			targetID, ok := t.labelToID[targetLabel]
			if !ok {
				return fmt.Errorf("sqlitegraph: edge references unresolved node label %q", targetLabel)
			}
			if _, err := t.tx.ExecContext(ctx,
				`INSERT INTO edges (source_id, target_id, relation) VALUES (?, ?, ?)`,
				sourceID, targetID, relation); err != nil {
				return err
			}
			continue
		}
		// RETURN / LIMIT trailer lines carry no write semantics for a
		// Build query; ignore them here.
	}
	return nil
}

func (t *sqliteTx) insertNode(ctx context.Context, label string, props []any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO nodes (label) VALUES (?)`, label)
	if err != nil {
		return 0, err
	}
	_ = props // property values are accepted but not persisted by this reference backend
	return res.LastInsertId()
}

// RunReturningTriples executes the fixed retrieve template
// ("MATCH (n) WHERE ID(n) IN [...] MATCH (n)-[r]->(m) RETURN n, r, m")
// against the nodes/edges tables, joining outgoing edges of every
// requested node id.
func (t *sqliteTx) RunReturningTriples(ctx context.Context, query string, params []any) ([]graphworker.Triple, error) {
	ids := make([]int64, 0, len(params))
	for _, p := range params {
		switch v := p.(type) {
		case uint64:
			ids = append(ids, int64(v))
		case int64:
			ids = append(ids, v)
		case int:
			ids = append(ids, int64(v))
		default:
			return nil, fmt.Errorf("sqlitegraph: unexpected retrieve param type %T", p)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT src.label, e.relation, dst.label
		FROM edges e
		JOIN nodes src ON src.id = e.source_id
		JOIN nodes dst ON dst.id = e.target_id
		WHERE e.source_id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triples []graphworker.Triple
	for rows.Next() {
		var tr graphworker.Triple
		if err := rows.Scan(&tr.Head, &tr.Relation, &tr.Tail); err != nil {
			return nil, err
		}
		triples = append(triples, tr)
	}
	return triples, rows.Err()
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

// NodeIDForLabel is a small convenience for tests/seeding: looks up the
// row id most recently assigned to label, mirroring what a real graph
// engine would hand back from a CREATE's generated id.
func NodeIDForLabel(ctx context.Context, db *DB, label string) (int64, error) {
	var id int64
	err := db.db.QueryRowContext(ctx, `SELECT id FROM nodes WHERE label = ? ORDER BY id DESC LIMIT 1`, label).Scan(&id)
	return id, err
}
