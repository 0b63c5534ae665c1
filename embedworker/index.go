package embedworker

import (
	"fmt"
	"math"
	"sort"
)

// Dimension is the length every embedding vector must have, matching the
// default sentence-embedding model.
const Dimension = 384

// DimensionMismatchError reports a query vector whose length isn't Dimension.
type DimensionMismatchError struct {
	Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedworker: dimension mismatch: got %d, want %d", e.Got, Dimension)
}

// entry is one (chunk_id, vector) pair, kept in insertion order.
type entry struct {
	chunkID uint32
	vector  []float32
}

// VectorIndex is an insertion-ordered, linear-scan vector store. It is the
// sole owner of the vectors it holds and is not safe for concurrent use —
// callers (the embedding worker) serialise access to it themselves.
//
// A linear scan is O(N*384) per query; this is documented as the
// correctness-first baseline. A k-d-tree or HNSW replacement is a later
// optimisation behind the same interface.
type VectorIndex struct {
	entries []entry
}

// NewVectorIndex returns an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Append adds (chunkID, vec) to the index. vec must have length Dimension.
func (idx *VectorIndex) Append(chunkID uint32, vec []float32) error {
	if len(vec) != Dimension {
		return &DimensionMismatchError{Got: len(vec)}
	}
	idx.entries = append(idx.entries, entry{chunkID: chunkID, vector: vec})
	return nil
}

// Len reports the number of stored vectors.
func (idx *VectorIndex) Len() int { return len(idx.entries) }

// Drain removes and returns every stored vector in insertion order,
// leaving the index empty.
func (idx *VectorIndex) Drain() [][]float32 {
	out := make([][]float32, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.vector
	}
	idx.entries = nil
	return out
}

// scored pairs an entry with its similarity to a query, plus its original
// insertion index so ties can be broken in ascending insertion order.
type scored struct {
	entry entry
	score float32
	pos   int
}

// topK returns the top min(k, N) entries by cosine similarity to query,
// highest first, ties broken by ascending insertion order.
func (idx *VectorIndex) topK(query []float32, k int) ([]scored, error) {
	if len(query) != Dimension {
		return nil, &DimensionMismatchError{Got: len(query)}
	}
	cands := make([]scored, len(idx.entries))
	for i, e := range idx.entries {
		cands[i] = scored{entry: e, score: cosineSimilarity(query, e.vector), pos: i}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].pos < cands[j].pos
	})
	if k < len(cands) {
		cands = cands[:k]
	}
	return cands, nil
}

// TopKVectors returns the top-k stored vectors by similarity to query.
func (idx *VectorIndex) TopKVectors(query []float32, k int) ([][]float32, error) {
	cands, err := idx.topK(query, k)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(cands))
	for i, c := range cands {
		out[i] = c.entry.vector
	}
	return out, nil
}

// TopKChunkIDs returns the chunk ids of the top-k stored vectors by
// similarity to query.
func (idx *VectorIndex) TopKChunkIDs(query []float32, k int) ([]uint32, error) {
	cands, err := idx.topK(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(cands))
	for i, c := range cands {
		out[i] = c.entry.chunkID
	}
	return out, nil
}

// cosineSimilarity computes Σ a_i·b_i / (‖a‖·‖b‖). Both vectors must have
// the same length; callers here always pass equal-length 384-vectors.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
