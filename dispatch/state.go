// Package dispatch implements the request dispatcher: the HTTP routes,
// per-request fan-out to the embedding and graph workers, response
// collation, and the request-id correlation counter.
package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/brunobiangulo/graphrag/embedworker"
	"github.com/brunobiangulo/graphrag/graphworker"
	"github.com/brunobiangulo/graphrag/llm"
)

// State is the process-wide shared state the dispatcher's handlers close
// over: the five channels connecting it to the embedding and graph
// workers, the receiver-side mutexes serialising reads off the three
// outbound channels, and the request-id counter.
type State struct {
	ChatLLM llm.Provider

	TextIn         chan<- embedworker.Message
	EmbeddingOut   <-chan embedworker.EmbeddingOut
	IndexOut       <-chan uint32
	GraphIn        chan<- graphworker.Query
	RelationsOut   <-chan graphworker.Envelope

	// embeddingOutMu, indexOutMu and relationsOutMu guard reads off
	// EmbeddingOut/IndexOut/RelationsOut so concurrent requests never
	// interleave each other's replies. Each
	// channel has exactly one receiver at a time; this is an accepted
	// bottleneck, not a bug to fix with per-request channels.
	embeddingOutMu sync.Mutex
	indexOutMu     sync.Mutex
	relationsOutMu sync.Mutex

	// requestCounter is incremented only after both branches of an
	// ingest succeed; it correlates, it does not uniquely identify.
	requestCounter uint32
}

// NewState wires a State around the given channel endpoints.
func NewState(
	chatLLM llm.Provider,
	textIn chan<- embedworker.Message,
	embeddingOut <-chan embedworker.EmbeddingOut,
	indexOut <-chan uint32,
	graphIn chan<- graphworker.Query,
	relationsOut <-chan graphworker.Envelope,
) *State {
	return &State{
		ChatLLM:      chatLLM,
		TextIn:       textIn,
		EmbeddingOut: embeddingOut,
		IndexOut:     indexOut,
		GraphIn:      graphIn,
		RelationsOut: relationsOut,
	}
}

// currentRequestID reads the counter without incrementing it.
func (s *State) currentRequestID() uint32 {
	return atomic.LoadUint32(&s.requestCounter)
}

// completeRequest increments the counter after a request's branches have
// both succeeded.
func (s *State) completeRequest() {
	atomic.AddUint32(&s.requestCounter, 1)
}

// drainEmbeddings reads exactly n messages off EmbeddingOut under the
// receiver mutex.
func (s *State) drainEmbeddings(n int) []embedworker.EmbeddingOut {
	s.embeddingOutMu.Lock()
	defer s.embeddingOutMu.Unlock()
	out := make([]embedworker.EmbeddingOut, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, <-s.EmbeddingOut)
	}
	return out
}

// drainIndex reads exactly n chunk ids off IndexOut under the receiver
// mutex.
func (s *State) drainIndex(n int) []uint32 {
	s.indexOutMu.Lock()
	defer s.indexOutMu.Unlock()
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, <-s.IndexOut)
	}
	return out
}

// collateRelations reads envelopes off RelationsOut under the receiver
// mutex until the end-of-batch marker arrives, returning every triple seen.
func (s *State) collateRelations() []graphworker.Triple {
	s.relationsOutMu.Lock()
	defer s.relationsOutMu.Unlock()
	var triples []graphworker.Triple
	for {
		env := <-s.RelationsOut
		if env.Done {
			return triples
		}
		triples = append(triples, env.Triple)
	}
}
