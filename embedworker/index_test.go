package embedworker

import (
	"math"
	"testing"
)

func unitVector(at int) []float32 {
	v := make([]float32, Dimension)
	v[at] = 1
	return v
}

func TestAppendRejectsWrongDimension(t *testing.T) {
	idx := NewVectorIndex()
	err := idx.Append(1, make([]float32, Dimension-1))
	if err == nil {
		t.Fatal("expected DimensionMismatchError, got nil")
	}
	var de *DimensionMismatchError
	if de, _ = err.(*DimensionMismatchError); de == nil {
		t.Fatalf("error = %v (%T), want *DimensionMismatchError", err, err)
	}
	if de.Got != Dimension-1 {
		t.Errorf("Got = %d, want %d", de.Got, Dimension-1)
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	v := unitVector(0)
	got := cosineSimilarity(v, v)
	if math.Abs(float64(got)-1.0) > 1e-5 {
		t.Errorf("cosineSimilarity(v, v) = %v, want ~1.0", got)
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := unitVector(0)
	b := unitVector(1)
	ab := cosineSimilarity(a, b)
	ba := cosineSimilarity(b, a)
	if math.Abs(float64(ab)-float64(ba)) > 1e-5 {
		t.Errorf("cosineSimilarity not symmetric: a·b=%v b·a=%v", ab, ba)
	}
	if math.Abs(float64(ab)-0) > 1e-5 {
		t.Errorf("orthogonal unit vectors should score ~0, got %v", ab)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	zero := make([]float32, Dimension)
	v := unitVector(0)
	if got := cosineSimilarity(zero, v); got != 0 {
		t.Errorf("cosineSimilarity(zero, v) = %v, want 0", got)
	}
}

func TestTopKReturnsMinKAndN(t *testing.T) {
	idx := NewVectorIndex()
	for i := 0; i < 3; i++ {
		if err := idx.Append(uint32(i), unitVector(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	ids, err := idx.TopKChunkIDs(unitVector(0), 10)
	if err != nil {
		t.Fatalf("TopKChunkIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3 (min(k, N))", len(ids))
	}

	ids, err = idx.TopKChunkIDs(unitVector(0), 2)
	if err != nil {
		t.Fatalf("TopKChunkIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}
}

func TestTopKOrderedBySimilarityDescending(t *testing.T) {
	idx := NewVectorIndex()
	// Chunk 0 is an exact match for the query; chunk 1 is orthogonal.
	query := unitVector(0)
	_ = idx.Append(1, unitVector(1))
	_ = idx.Append(0, query)

	ids, err := idx.TopKChunkIDs(query, 2)
	if err != nil {
		t.Fatalf("TopKChunkIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Errorf("ids = %v, want [0 1] (best match first)", ids)
	}
}

func TestTopKTiesBrokenByInsertionOrder(t *testing.T) {
	idx := NewVectorIndex()
	query := unitVector(0)
	// Both entries are identical to the query, so they tie on score;
	// the earlier-inserted chunk id must come first.
	_ = idx.Append(5, query)
	_ = idx.Append(9, query)

	ids, err := idx.TopKChunkIDs(query, 2)
	if err != nil {
		t.Fatalf("TopKChunkIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 9 {
		t.Errorf("ids = %v, want [5 9] (insertion order on tie)", ids)
	}
}

func TestTopKRejectsWrongDimensionQuery(t *testing.T) {
	idx := NewVectorIndex()
	_ = idx.Append(0, unitVector(0))

	_, err := idx.TopKVectors(make([]float32, 10), 1)
	if err == nil {
		t.Fatal("expected DimensionMismatchError, got nil")
	}
}

func TestDrainEmptiesIndexInInsertionOrder(t *testing.T) {
	idx := NewVectorIndex()
	vecs := [][]float32{unitVector(0), unitVector(1), unitVector(2)}
	for i, v := range vecs {
		if err := idx.Append(uint32(i), v); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	drained := idx.Drain()
	if len(drained) != 3 {
		t.Fatalf("len(drained) = %d, want 3", len(drained))
	}
	for i, v := range vecs {
		if drained[i][i] != v[i] {
			t.Errorf("drained[%d] does not match inserted vector %d", i, i)
		}
	}
	if idx.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", idx.Len())
	}

	ids, err := idx.TopKChunkIDs(unitVector(0), 5)
	if err != nil {
		t.Fatalf("TopKChunkIDs on drained index: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("TopKChunkIDs on drained index = %v, want empty", ids)
	}
}
