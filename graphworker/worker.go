// Package graphworker owns the graph database connection and runs build
// and retrieve queries against it, one at a time, under an exclusive
// writer lock.
package graphworker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/graphrag/graphquery"
)

// Database is the opaque transactional graph executor this package drives.
// A concrete implementation only needs to translate $param_N placeholders
// into whatever its backend expects and expose row-level access to
// triples; see sqlitegraph for the bundled reference implementation.
type Database interface {
	// Begin starts a transaction. The returned Tx must be committed or
	// rolled back by the caller.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single graph-database transaction.
type Tx interface {
	// Run executes a query with positional parameters bound to $param_N
	// placeholders in declaration order.
	Run(ctx context.Context, query string, params []any) error

	// RunReturningTriples executes a retrieve-shaped query and returns
	// every (head, relation, tail) row it yields.
	RunReturningTriples(ctx context.Context, query string, params []any) ([]Triple, error)

	Commit() error
	Rollback() error
}

// Triple is a single head/relation/tail row streamed back by a Retrieve
// query.
type Triple struct {
	Head     string `json:"head"`
	Relation string `json:"relation"`
	Tail     string `json:"tail"`
}

// GraphWriteError wraps a failure that occurred while executing a Build
// query.
type GraphWriteError struct{ Cause error }

func (e *GraphWriteError) Error() string { return fmt.Sprintf("graphworker: write failed: %v", e.Cause) }
func (e *GraphWriteError) Unwrap() error { return e.Cause }

// GraphRetrieveError wraps a failure that occurred while executing a
// Retrieve query.
type GraphRetrieveError struct{ Cause error }

func (e *GraphRetrieveError) Error() string {
	return fmt.Sprintf("graphworker: retrieve failed: %v", e.Cause)
}
func (e *GraphRetrieveError) Unwrap() error { return e.Cause }

// Query is the tagged union of messages the worker accepts on its inbound
// channel: exactly one of BuildQuery or RetrieveQuery is set.
type Query struct {
	Build    *BuildQuery
	Retrieve *RetrieveQuery
}

// BuildQuery carries a compiled CREATE-style query text and its parameters.
// Reply is a private one-shot channel the worker uses to report success or
// failure back to whoever submitted the query; it is not part of the
// worker's public wire protocol, only a hand-off detail between this
// package and its caller, and lets the caller await the write the way the
// dispatcher's ingest path needs to.
type BuildQuery struct {
	Text    string
	Params  []any
	Reply   chan error
}

// RetrieveQuery carries the node ids to fetch the neighborhood of. Results
// are streamed onto the worker's shared relations_out channel, not a
// per-query channel: callers serialize access to that channel's single
// receiver with a mutex rather than handing each request its own reply pipe.
type RetrieveQuery struct {
	NodeIDs []uint64
}

// Envelope is one message on the relations_out channel: either a triple or
// (with Done set) the end-of-batch marker that lets a collating reader
// know a Retrieve's results are exhausted.
type Envelope struct {
	Triple Triple
	Done   bool
}

// Worker consumes Query messages from In until the channel is closed,
// executing each one against db under an exclusive writer lock (acquired
// implicitly by only ever having one goroutine run this loop).
type Worker struct {
	db           Database
	in           <-chan Query
	relationsOut chan<- Envelope
}

// New returns a Worker reading queries from in, running them against db,
// and streaming Retrieve results onto relationsOut.
func New(db Database, in <-chan Query, relationsOut chan<- Envelope) *Worker {
	return &Worker{db: db, in: in, relationsOut: relationsOut}
}

// Run processes messages until In is closed, logging and continuing past
// per-message errors per the propagation policy: only channel closure
// terminates the worker.
func (w *Worker) Run(ctx context.Context) {
	for q := range w.in {
		switch {
		case q.Build != nil:
			w.handleBuild(ctx, q.Build)
		case q.Retrieve != nil:
			w.handleRetrieve(ctx, q.Retrieve)
		default:
			slog.Warn("graphworker: received empty query message")
		}
	}
}

func (w *Worker) handleBuild(ctx context.Context, q *BuildQuery) {
	err := w.runBuild(ctx, q)
	if err != nil {
		slog.Error("graphworker: build query failed", "error", err)
	}
	if q.Reply != nil {
		q.Reply <- err
	}
}

func (w *Worker) runBuild(ctx context.Context, q *BuildQuery) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return &GraphWriteError{Cause: err}
	}
	if err := tx.Run(ctx, q.Text, q.Params); err != nil {
		tx.Rollback()
		return &GraphWriteError{Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &GraphWriteError{Cause: err}
	}
	return nil
}

func (w *Worker) handleRetrieve(ctx context.Context, q *RetrieveQuery) {
	if err := w.runRetrieve(ctx, q); err != nil {
		slog.Error("graphworker: retrieve query failed", "error", err)
	}
	// The end-of-batch marker is sent regardless of error so a collating
	// reader never blocks forever on a failed retrieve.
	send(ctx, w.relationsOut, Envelope{Done: true})
}

func (w *Worker) runRetrieve(ctx context.Context, q *RetrieveQuery) error {
	text, params := retrieveTemplate(q.NodeIDs)

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return &GraphRetrieveError{Cause: err}
	}

	triples, err := tx.RunReturningTriples(ctx, text, params)
	if err != nil {
		tx.Rollback()
		return &GraphRetrieveError{Cause: err}
	}

	for _, t := range triples {
		send(ctx, w.relationsOut, Envelope{Triple: t})
	}

	if err := tx.Commit(); err != nil {
		return &GraphRetrieveError{Cause: err}
	}
	return nil
}

func retrieveTemplate(ids []uint64) (string, []any) {
	return graphquery.BuildRetrieve(ids)
}

// send pushes a single envelope, logging and moving on if the worker's
// context is cancelled before the mutex-guarded reader on the other end
// takes it. That context is the worker's own, not the HTTP request's.
func send(ctx context.Context, out chan<- Envelope, env Envelope) {
	select {
	case out <- env:
	case <-ctx.Done():
		slog.Warn("graphworker: dropping relation, receiver context done")
	}
}
