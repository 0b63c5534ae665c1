package embedworker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

// Encoder is the opaque sentence-embedding model. It is satisfied by
// llm.Provider.Embed (the same chat/embed abstraction used for the
// dispatcher's grounding prompts), since this system treats both the LLM
// client and the embedding model as external collaborators named by
// interface only.
type Encoder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelError wraps an encoder failure.
type ModelError struct{ Cause error }

func (e *ModelError) Error() string { return fmt.Sprintf("embedworker: model error: %v", e.Cause) }
func (e *ModelError) Unwrap() error { return e.Cause }

// EmbeddingOut is one message on the embedding_out channel: a vector.
// ChunkID is left zero by every operation the worker performs.
type EmbeddingOut struct {
	ChunkID uint32
	Vector  []float32
}

// Worker owns the vector index and the encoder, and runs on a dedicated
// OS thread (via runtime.LockOSThread) so a blocking encoder call never
// steals an OS thread away from the rest of the scheduler's goroutines,
// even though the Go scheduler itself would tolerate a plain goroutine here.
type Worker struct {
	encoder Encoder
	index   *VectorIndex

	in          <-chan Message
	embeddingOut chan<- EmbeddingOut
	indexOut    chan<- uint32
}

// New returns a Worker reading messages from in and writing results to
// embeddingOut / indexOut.
func New(encoder Encoder, in <-chan Message, embeddingOut chan<- EmbeddingOut, indexOut chan<- uint32) *Worker {
	return &Worker{
		encoder:      encoder,
		index:        NewVectorIndex(),
		in:           in,
		embeddingOut: embeddingOut,
		indexOut:     indexOut,
	}
}

// Run processes messages until a stop message arrives or In is closed.
// Callers should invoke Run in its own goroutine; it pins that goroutine
// to its OS thread for its entire lifetime.
func (w *Worker) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for msg := range w.in {
		switch msg.Kind {
		case KindChunkText:
			w.handleChunkText(ctx, msg.ChunkText)
		case KindProcessChunk:
			w.handleProcessChunk(ctx, msg.ProcessChunk)
		case KindSend:
			w.handleSend(ctx, msg.Send)
		case KindGetChunkID:
			w.handleGetChunkID(ctx, msg.GetChunkID)
		case KindReset:
			w.handleReset()
		case KindStop:
			return
		default:
			slog.Warn("embedworker: received message with unknown kind", "kind", msg.Kind)
		}
	}
}

func (w *Worker) encodeOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := w.encoder.Embed(ctx, []string{text})
	if err != nil {
		return nil, &ModelError{Cause: err}
	}
	if len(vecs) == 0 {
		return nil, &ModelError{Cause: fmt.Errorf("encoder returned no vectors")}
	}
	return vecs[0], nil
}

func (w *Worker) handleChunkText(ctx context.Context, p ChunkTextPayload) {
	vec, err := w.encodeOne(ctx, p.Text)
	if err == nil {
		err = w.index.Append(p.ID, vec)
	}
	if err != nil {
		slog.Error("embedworker: chunk_text failed", "error", err)
	}
	if p.Ack != nil {
		p.Ack <- err
	}
}

func (w *Worker) handleProcessChunk(ctx context.Context, text string) {
	vec, err := w.encodeOne(ctx, text)
	if err != nil {
		slog.Error("embedworker: process_chunk encode failed", "error", err)
		return
	}
	w.embeddingOut <- EmbeddingOut{Vector: vec}
}

func (w *Worker) handleSend(ctx context.Context, p SendPayload) {
	results, err := w.index.TopKVectors(p.QueryVec, int(p.K))
	if err != nil {
		slog.Error("embedworker: send failed", "error", err)
		return
	}
	for _, vec := range results {
		w.embeddingOut <- EmbeddingOut{Vector: vec}
	}
}

func (w *Worker) handleGetChunkID(ctx context.Context, p GetChunkIDPayload) {
	vec, err := w.encodeOne(ctx, p.Text)
	if err != nil {
		slog.Error("embedworker: get_chunk_id encode failed", "error", err)
		return
	}
	ids, err := w.index.TopKChunkIDs(vec, int(p.K))
	if err != nil {
		slog.Error("embedworker: get_chunk_id search failed", "error", err)
		return
	}
	for _, id := range ids {
		w.indexOut <- id
	}
}

func (w *Worker) handleReset() {
	for _, vec := range w.index.Drain() {
		w.embeddingOut <- EmbeddingOut{Vector: vec}
	}
}
