package embedworker

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeEncoder maps each text deterministically to a unit vector so distinct
// inputs produce distinguishable, comparable embeddings.
type fakeEncoder struct {
	err error
}

func (f *fakeEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, Dimension)
		v[int(text[0])%Dimension] = 1
		out[i] = v
	}
	return out, nil
}

func recvOrTimeout[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func newTestWorker(encoder Encoder) (*Worker, chan Message, chan EmbeddingOut, chan uint32) {
	in := make(chan Message, 8)
	embeddingOut := make(chan EmbeddingOut, 8)
	indexOut := make(chan uint32, 8)
	return New(encoder, in, embeddingOut, indexOut), in, embeddingOut, indexOut
}

func TestRunProcessChunkEmitsEmbedding(t *testing.T) {
	w, in, embeddingOut, _ := newTestWorker(&fakeEncoder{})
	go w.Run(context.Background())
	defer func() { in <- Message{Kind: KindStop} }()

	in <- Message{Kind: KindProcessChunk, ProcessChunk: "a"}
	out := recvOrTimeout(t, embeddingOut, "process_chunk result")
	if out.Vector[int('a')%Dimension] != 1 {
		t.Errorf("unexpected embedding for process_chunk: %v", out.Vector)
	}
}

func TestRunChunkTextAcksSuccess(t *testing.T) {
	w, in, _, _ := newTestWorker(&fakeEncoder{})
	go w.Run(context.Background())
	defer func() { in <- Message{Kind: KindStop} }()

	ack := make(chan error, 1)
	in <- Message{Kind: KindChunkText, ChunkText: ChunkTextPayload{ID: 1, Text: "alice", Ack: ack}}
	if err := recvOrTimeout(t, ack, "chunk_text ack"); err != nil {
		t.Errorf("ack = %v, want nil", err)
	}
}

func TestRunChunkTextAcksEncoderFailure(t *testing.T) {
	w, in, _, _ := newTestWorker(&fakeEncoder{err: errors.New("boom")})
	go w.Run(context.Background())
	defer func() { in <- Message{Kind: KindStop} }()

	ack := make(chan error, 1)
	in <- Message{Kind: KindChunkText, ChunkText: ChunkTextPayload{ID: 1, Text: "alice", Ack: ack}}
	err := recvOrTimeout(t, ack, "chunk_text ack")
	if err == nil {
		t.Fatal("expected ack error, got nil")
	}
	var me *ModelError
	if !errors.As(err, &me) {
		t.Errorf("ack error = %v (%T), want *ModelError", err, err)
	}
}

func TestRunSendReturnsTopKVectorsMatchingQuery(t *testing.T) {
	w, in, embeddingOut, _ := newTestWorker(&fakeEncoder{})
	go w.Run(context.Background())
	defer func() { in <- Message{Kind: KindStop} }()

	for _, id := range []uint32{1, 2, 3} {
		ack := make(chan error, 1)
		in <- Message{Kind: KindChunkText, ChunkText: ChunkTextPayload{ID: id, Text: "a", Ack: ack}}
		if err := recvOrTimeout(t, ack, "chunk_text ack"); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}

	query := make([]float32, Dimension)
	query[int('a')%Dimension] = 1
	in <- Message{Kind: KindSend, Send: SendPayload{K: 2, QueryVec: query}}

	first := recvOrTimeout(t, embeddingOut, "first send result")
	second := recvOrTimeout(t, embeddingOut, "second send result")
	if first.Vector[int('a')%Dimension] != 1 || second.Vector[int('a')%Dimension] != 1 {
		t.Errorf("expected both results to match query direction, got %v and %v", first, second)
	}
}

func TestRunGetChunkIDReturnsMatchingID(t *testing.T) {
	w, in, _, indexOut := newTestWorker(&fakeEncoder{})
	go w.Run(context.Background())
	defer func() { in <- Message{Kind: KindStop} }()

	ack := make(chan error, 1)
	in <- Message{Kind: KindChunkText, ChunkText: ChunkTextPayload{ID: 42, Text: "z", Ack: ack}}
	if err := recvOrTimeout(t, ack, "chunk_text ack"); err != nil {
		t.Fatalf("ack: %v", err)
	}

	in <- Message{Kind: KindGetChunkID, GetChunkID: GetChunkIDPayload{Text: "z", K: 1}}
	id := recvOrTimeout(t, indexOut, "get_chunk_id result")
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestRunResetDrainsInInsertionOrder(t *testing.T) {
	w, in, embeddingOut, _ := newTestWorker(&fakeEncoder{})
	go w.Run(context.Background())
	defer func() { in <- Message{Kind: KindStop} }()

	texts := []string{"a", "b", "c"}
	for i, text := range texts {
		ack := make(chan error, 1)
		in <- Message{Kind: KindChunkText, ChunkText: ChunkTextPayload{ID: uint32(i), Text: text, Ack: ack}}
		if err := recvOrTimeout(t, ack, "chunk_text ack"); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}

	in <- Message{Kind: KindReset}
	for _, text := range texts {
		out := recvOrTimeout(t, embeddingOut, "reset drain result")
		if out.Vector[int(text[0])%Dimension] != 1 {
			t.Errorf("drained vector does not match expected direction for %q: %v", text, out.Vector)
		}
	}

	// Index is empty post-reset: a send against it must produce no results.
	in <- Message{Kind: KindSend, Send: SendPayload{K: 5, QueryVec: make([]float32, Dimension)}}
	select {
	case out := <-embeddingOut:
		t.Errorf("expected no results after reset, got %v", out)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunStopExitsCleanly(t *testing.T) {
	w, in, _, _ := newTestWorker(&fakeEncoder{})
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	in <- Message{Kind: KindStop}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stop message")
	}
}

func TestRunExitsWhenInChannelClosed(t *testing.T) {
	w, in, _, _ := newTestWorker(&fakeEncoder{})
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	close(in)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input channel closed")
	}
}
