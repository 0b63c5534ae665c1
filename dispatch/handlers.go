package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/brunobiangulo/graphrag/embedworker"
	"github.com/brunobiangulo/graphrag/graphquery"
	"github.com/brunobiangulo/graphrag/graphworker"
	"github.com/brunobiangulo/graphrag/kg"
	"github.com/brunobiangulo/graphrag/llm"
)

// Handler wraps a State and exposes the four HTTP endpoints as methods
// suitable for http.ServeMux.HandleFunc.
type Handler struct {
	state *State
}

// NewHandler returns a Handler bound to state.
func NewHandler(state *State) *Handler {
	return &Handler{state: state}
}

// ProcessChunkRequest is the ingest endpoint's request body.
type ProcessChunkRequest struct {
	Chunk       string  `json:"chunk"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature,omitempty"`
	TopK        float64 `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// ProcessChunkResponse is the ingest endpoint's response body.
type ProcessChunkResponse struct {
	IsSuccess    bool    `json:"is_success"`
	Hash         [32]byte `json:"hash"`
	ErrorMessage *string `json:"error_message"`
}

// HandleIngest implements POST / — the primary ingestion path.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ProcessChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInternalError(w, "decoding request body", err)
		return
	}

	requestID := h.state.currentRequestID()

	embedDone := make(chan error, 1)
	h.state.TextIn <- embedworker.Message{
		Kind: embedworker.KindChunkText,
		ChunkText: embedworker.ChunkTextPayload{
			ID:   requestID,
			Text: req.Chunk,
			Ack:  embedDone,
		},
	}

	graphDone := make(chan error, 1)
	go h.runGraphBranch(ctx, req, requestID, graphDone)

	embedErr := <-embedDone
	graphErr := <-graphDone

	if embedErr != nil {
		writeInternalError(w, "embedding branch failed", embedErr)
		return
	}
	if graphErr != nil {
		writeInternalError(w, "graph branch failed", graphErr)
		return
	}

	h.state.completeRequest()
	writeJSON(w, http.StatusOK, ProcessChunkResponse{IsSuccess: true})
}

// runGraphBranch performs the LLM-extraction-and-graph-write half of
// ingest, reporting nil on graphDone when no <kg> block was present (per
// scenario 2: that is not itself a failure, it simply skips the write).
func (h *Handler) runGraphBranch(ctx context.Context, req ProcessChunkRequest, requestID uint32, done chan<- error) {
	resp, err := h.state.ChatLLM.Chat(ctx, llm.ChatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Messages: []llm.Message{
			{Role: "system", Content: ingestionSystemPrompt},
			{Role: "user", Content: ingestionPrompt(req.Chunk)},
		},
	})
	if err != nil {
		done <- err
		return
	}

	block, ok := extractKGBlock(resp.Content)
	if !ok {
		done <- nil
		return
	}

	graph, err := kg.Parse(block)
	if err != nil {
		done <- err
		return
	}

	builder, err := kg.LowerToBuilder(graph, []graphquery.Property{{Key: "query_id", Value: requestID}})
	if err != nil {
		done <- err
		return
	}

	text, params := builder.Build()
	reply := make(chan error, 1)
	h.state.GraphIn <- graphworker.Query{Build: &graphworker.BuildQuery{Text: text, Params: params, Reply: reply}}
	done <- <-reply
}

// RetrieveKnowledgeRequest is the retrieve_knowledge endpoint's body.
type RetrieveKnowledgeRequest struct {
	NodeIndices []uint64 `json:"node_indices"`
}

// RetrieveKnowledgeResponse is the retrieve_knowledge endpoint's body.
type RetrieveKnowledgeResponse struct {
	KnowledgeGraphData any     `json:"knowledge_graph_data"`
	IsSuccess          bool    `json:"is_success"`
	ErrorMessage       *string `json:"error_message"`
}

// HandleRetrieveKnowledge implements GET /retrieve_knowledge.
func (h *Handler) HandleRetrieveKnowledge(w http.ResponseWriter, r *http.Request) {
	var req RetrieveKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInternalError(w, "decoding request body", err)
		return
	}

	h.state.GraphIn <- graphworker.Query{Retrieve: &graphworker.RetrieveQuery{NodeIDs: req.NodeIndices}}
	triples := h.state.collateRelations()

	writeJSON(w, http.StatusOK, RetrieveKnowledgeResponse{
		KnowledgeGraphData: triples,
		IsSuccess:          true,
	})
}

// RelatedKnowledgeRequest is the related_knowledge endpoint's body.
type RelatedKnowledgeRequest struct {
	Chunk      string `json:"chunk"`
	NumQueries uint32 `json:"num_queries,omitempty"`
}

// RelatedKnowledgeResponse is the related_knowledge endpoint's body.
type RelatedKnowledgeResponse struct {
	KnowledgeGraphData struct {
		KnowledgeGraphChunks []uint32 `json:"knowledge_graph_chunks"`
	} `json:"knowledge_graph_data"`
	IsSuccess    bool    `json:"is_success"`
	ErrorMessage *string `json:"error_message"`
}

// HandleRelatedKnowledge implements GET /related_knowledge.
func (h *Handler) HandleRelatedKnowledge(w http.ResponseWriter, r *http.Request) {
	var req RelatedKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInternalError(w, "decoding request body", err)
		return
	}
	numQueries := req.NumQueries
	if numQueries == 0 {
		numQueries = 1
	}

	h.state.TextIn <- embedworker.Message{
		Kind: embedworker.KindGetChunkID,
		GetChunkID: embedworker.GetChunkIDPayload{
			Text: req.Chunk,
			K:    numQueries,
		},
	}

	ids := h.state.drainIndex(int(numQueries))

	var resp RelatedKnowledgeResponse
	resp.IsSuccess = true
	resp.KnowledgeGraphData.KnowledgeGraphChunks = ids
	writeJSON(w, http.StatusOK, resp)
}

// EnhancedLlmRequest is the enhanced_knowledge endpoint's body.
type EnhancedLlmRequest struct {
	Prompt      string  `json:"prompt"`
	NumQueries  uint32  `json:"num_queries,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature,omitempty"`
}

// EnhancedLlmResponse is the enhanced_knowledge endpoint's body.
type EnhancedLlmResponse struct {
	Response     *string `json:"response"`
	IsSuccess    bool    `json:"is_success"`
	ErrorMessage *string `json:"error_message"`
}

// HandleEnhancedKnowledge implements GET /enhanced_knowledge.
func (h *Handler) HandleEnhancedKnowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EnhancedLlmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInternalError(w, "decoding request body", err)
		return
	}
	numQueries := req.NumQueries
	if numQueries == 0 {
		numQueries = 1
	}

	h.state.TextIn <- embedworker.Message{
		Kind: embedworker.KindGetChunkID,
		GetChunkID: embedworker.GetChunkIDPayload{
			Text: req.Prompt,
			K:    numQueries,
		},
	}
	ids := h.state.drainIndex(int(numQueries))

	nodeIDs := make([]uint64, len(ids))
	for i, id := range ids {
		nodeIDs[i] = uint64(id)
	}

	h.state.GraphIn <- graphworker.Query{Retrieve: &graphworker.RetrieveQuery{NodeIDs: nodeIDs}}
	triples := h.state.collateRelations()

	resp, err := h.state.ChatLLM.Chat(ctx, llm.ChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages: []llm.Message{
			{Role: "system", Content: ingestionSystemPrompt},
			{Role: "user", Content: enhancedPrompt(req.Prompt, triples)},
		},
	})
	if err != nil {
		writeInternalError(w, "enhanced_knowledge LLM call failed", err)
		return
	}

	content := resp.Content
	writeJSON(w, http.StatusOK, EnhancedLlmResponse{Response: &content, IsSuccess: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeInternalError logs the cause and returns the single InternalError
// umbrella HTTP 500 response the dispatcher maps every error to — richer
// error codes are a deliberate non-goal.
func writeInternalError(w http.ResponseWriter, context string, err error) {
	slog.Error("dispatch: request failed", "context", context, "error", err)
	w.WriteHeader(http.StatusInternalServerError)
}
