// Package graphquery builds parameterised, Cypher-shaped query text for the
// graph worker. It never talks to a database; build() is pure string
// assembly over a fluent, ordered description of nodes and edges.
package graphquery

import (
	"fmt"
	"strings"
)

// Property is an ordered key/value pair attached to a node.
type Property struct {
	Key   string
	Value any
}

// node is an internal record of a CREATE node declaration.
type node struct {
	label string
	props []Property
}

// edge is an internal record of an edge declaration between two node
// labels, resolved at build time by first-match label lookup.
type edge struct {
	sourceLabel string
	targetLabel string
	relation    string
}

// UnknownEndpointError reports that AddEdge referenced a label that has not
// been registered via CreateNode yet.
type UnknownEndpointError struct {
	Label string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("graphquery: unknown endpoint label %q", e.Label)
}

// QueryBuilder accumulates node and edge declarations in insertion order
// and compiles them into parameterised query text.
type QueryBuilder struct {
	nodes        []node
	edges        []edge
	returnFields []string
	limitN       int
	hasLimit     bool
}

// New returns an empty QueryBuilder.
func New() *QueryBuilder {
	return &QueryBuilder{}
}

// CreateNode registers a node with the given label and properties. Returns
// the builder for chaining.
func (b *QueryBuilder) CreateNode(label string, props []Property) *QueryBuilder {
	b.nodes = append(b.nodes, node{label: label, props: props})
	return b
}

// AddEdge registers a directed edge between two previously created node
// labels. Returns UnknownEndpointError if either label was never passed to
// CreateNode.
func (b *QueryBuilder) AddEdge(sourceLabel, targetLabel, relation string) error {
	if !b.hasLabel(sourceLabel) {
		return &UnknownEndpointError{Label: sourceLabel}
	}
	if !b.hasLabel(targetLabel) {
		return &UnknownEndpointError{Label: targetLabel}
	}
	b.edges = append(b.edges, edge{sourceLabel: sourceLabel, targetLabel: targetLabel, relation: relation})
	return nil
}

func (b *QueryBuilder) hasLabel(label string) bool {
	for _, n := range b.nodes {
		if n.label == label {
			return true
		}
	}
	return false
}

// ReturnFields sets the fields emitted by a trailing RETURN clause.
func (b *QueryBuilder) ReturnFields(fields []string) *QueryBuilder {
	b.returnFields = fields
	return b
}

// Limit sets a trailing LIMIT clause.
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	b.limitN = n
	b.hasLimit = true
	return b
}

// firstNodeIndex returns the index of the first node whose label matches,
// implementing build()'s documented first-match label resolution.
func (b *QueryBuilder) firstNodeIndex(label string) int {
	for i, n := range b.nodes {
		if n.label == label {
			return i
		}
	}
	return -1
}

// Build compiles the accumulated declarations into query text and a
// parameter list, following the deterministic output rules: parameter
// names are assigned globally (param_0, param_1, ...) in property
// insertion order; each node emits one CREATE line; if any edges are
// present, a single WITH clause naming every node in scope is prepended to
// each edge's MATCH/CREATE line; return fields and limit are appended last.
func (b *QueryBuilder) Build() (string, []any) {
	var sb strings.Builder
	var params []any
	paramIdx := 0

	for i, n := range b.nodes {
		if len(n.props) == 0 {
			fmt.Fprintf(&sb, "CREATE (n%d:%s)\n", i, n.label)
			continue
		}
		parts := make([]string, len(n.props))
		for j, p := range n.props {
			parts[j] = fmt.Sprintf("%s:$param_%d", p.Key, paramIdx)
			params = append(params, p.Value)
			paramIdx++
		}
		fmt.Fprintf(&sb, "CREATE (n%d:%s { %s })\n", i, n.label, strings.Join(parts, ", "))
	}

	if len(b.edges) > 0 {
		names := make([]string, len(b.nodes))
		for i := range b.nodes {
			names[i] = fmt.Sprintf("n%d", i)
		}
		withClause := "WITH " + strings.Join(names, ", ") + " "

		for _, e := range b.edges {
			s := b.firstNodeIndex(e.sourceLabel)
			t := b.firstNodeIndex(e.targetLabel)
			fmt.Fprintf(&sb, "%sMATCH (n%d:%s), (n%d:%s) CREATE (n%d)-[:%s]->(n%d)\n",
				withClause, s, e.sourceLabel, t, e.targetLabel, s, e.relation, t)
		}
	}

	if len(b.returnFields) > 0 {
		parts := make([]string, len(b.returnFields))
		for i, f := range b.returnFields {
			parts[i] = "n." + f
		}
		fmt.Fprintf(&sb, " RETURN %s\n", strings.Join(parts, ", "))
	}

	if b.hasLimit {
		fmt.Fprintf(&sb, " LIMIT %d\n", b.limitN)
	}

	return sb.String(), params
}

// BuildRetrieve serialises a neighborhood-fetch query for the given node
// ids using the fixed retrieve template.
func BuildRetrieve(ids []uint64) (string, []any) {
	strIDs := make([]string, len(ids))
	params := make([]any, len(ids))
	for i, id := range ids {
		strIDs[i] = fmt.Sprintf("id%d", i)
		params[i] = id
	}
	query := fmt.Sprintf(
		"MATCH (n) WHERE ID(n) IN [%s] MATCH (n)-[r]->(m) RETURN n, r, m",
		strings.Join(strIDs, ", "),
	)
	return query, params
}
