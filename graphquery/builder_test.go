package graphquery

import (
	"strings"
	"testing"
)

func TestAddEdgeUnknownEndpoint(t *testing.T) {
	b := New()
	b.CreateNode("alice", nil)

	err := b.AddEdge("alice", "bob", "knows")
	if err == nil {
		t.Fatal("expected UnknownEndpointError, got nil")
	}
	var ue *UnknownEndpointError
	if !asUnknownEndpoint(err, &ue) {
		t.Fatalf("error = %v (%T), want *UnknownEndpointError", err, err)
	}
	if ue.Label != "bob" {
		t.Errorf("UnknownEndpointError.Label = %q, want %q", ue.Label, "bob")
	}
}

func asUnknownEndpoint(err error, target **UnknownEndpointError) bool {
	ue, ok := err.(*UnknownEndpointError)
	if ok {
		*target = ue
	}
	return ok
}

func TestBuildParamNamesSequential(t *testing.T) {
	b := New()
	b.CreateNode("alice", []Property{{Key: "name", Value: "Alice"}, {Key: "age", Value: 30}})
	b.CreateNode("bob", []Property{{Key: "name", Value: "Bob"}})

	text, params := b.Build()

	if !strings.Contains(text, "$param_0") || !strings.Contains(text, "$param_1") || !strings.Contains(text, "$param_2") {
		t.Fatalf("expected sequential param_0..param_2 in query text, got:\n%s", text)
	}
	if len(params) != 3 {
		t.Fatalf("len(params) = %d, want 3", len(params))
	}
	if params[0] != "Alice" || params[1] != 30 || params[2] != "Bob" {
		t.Errorf("params = %v, want [Alice 30 Bob]", params)
	}
}

func TestBuildNodeWithoutProperties(t *testing.T) {
	b := New()
	b.CreateNode("alice", nil)
	text, params := b.Build()

	if !strings.Contains(text, "CREATE (n0:alice)\n") {
		t.Errorf("expected bare CREATE line, got:\n%s", text)
	}
	if len(params) != 0 {
		t.Errorf("len(params) = %d, want 0", len(params))
	}
}

func TestBuildEdgeEmitsWithClause(t *testing.T) {
	b := New()
	b.CreateNode("alice", nil)
	b.CreateNode("bob", nil)
	if err := b.AddEdge("alice", "bob", "knows"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	text, _ := b.Build()
	if !strings.Contains(text, "WITH n0, n1 ") {
		t.Errorf("expected WITH n0, n1 clause, got:\n%s", text)
	}
	if !strings.Contains(text, "MATCH (n0:alice), (n1:bob) CREATE (n0)-[:knows]->(n1)") {
		t.Errorf("expected edge MATCH/CREATE clause, got:\n%s", text)
	}
}

func TestBuildEdgeFirstMatchResolution(t *testing.T) {
	// Two nodes share the label "dup"; an edge naming "dup" must resolve to
	// the first one declared, per build()'s documented first-match rule.
	b := New()
	b.CreateNode("dup", nil)
	b.CreateNode("dup", nil)
	b.CreateNode("other", nil)
	if err := b.AddEdge("dup", "other", "rel"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	text, _ := b.Build()
	if !strings.Contains(text, "CREATE (n0)-[:rel]->(n2)") {
		t.Errorf("expected edge to resolve to first-declared n0, got:\n%s", text)
	}
}

func TestBuildReturnFieldsAndLimit(t *testing.T) {
	b := New()
	b.CreateNode("alice", nil)
	b.ReturnFields([]string{"name", "age"})
	b.Limit(10)

	text, _ := b.Build()
	if !strings.Contains(text, " RETURN n.name, n.age\n") {
		t.Errorf("expected RETURN clause, got:\n%s", text)
	}
	if !strings.Contains(text, " LIMIT 10\n") {
		t.Errorf("expected LIMIT clause, got:\n%s", text)
	}
}

func TestBuildRetrieveTemplate(t *testing.T) {
	text, params := BuildRetrieve([]uint64{1, 2, 3})
	want := "MATCH (n) WHERE ID(n) IN [id0, id1, id2] MATCH (n)-[r]->(m) RETURN n, r, m"
	if text != want {
		t.Errorf("BuildRetrieve text = %q, want %q", text, want)
	}
	if len(params) != 3 {
		t.Fatalf("len(params) = %d, want 3", len(params))
	}
	for i, p := range params {
		if p.(uint64) != uint64(i+1) {
			t.Errorf("params[%d] = %v, want %d", i, p, i+1)
		}
	}
}
