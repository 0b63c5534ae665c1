// Package kg implements the knowledge-graph value type: parsing an LLM's
// free-form response into a validated entity/relation structure, and
// lowering that structure into a graph query builder.
package kg

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunobiangulo/graphrag/graphquery"
)

// Entity is a short opaque string identifier. It must be 1 to 64 printable
// characters and start with a letter. Entities are immutable after creation
// and compare by string equality.
type Entity string

// Relation is a directed edge between two entities, valid only inside a
// KnowledgeGraph whose entity set contains both endpoints.
type Relation struct {
	Head  Entity `json:"head"`
	Tail  Entity `json:"tail"`
	Label string `json:"relation"`
}

// KnowledgeGraph is an ordered list of entities and an ordered list of
// relations. Every relation's endpoints must appear in the entity list.
type KnowledgeGraph struct {
	Entities  []Entity
	Relations []Relation
}

// ParseError reports that an LLM response could not be decoded into the
// entities/relations schema.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("kg: parse error: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// InvariantError reports that a relation's endpoint is missing from the
// entity list, naming the offending relation for test observability.
type InvariantError struct {
	Relation Relation
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("kg: relation %s-[%s]->%s references an entity not in the entity list",
		e.Relation.Head, e.Relation.Label, e.Relation.Tail)
}

// EntityError reports that an entity string failed the 1-64 printable
// character, starts-with-a-letter invariant.
type EntityError struct {
	Entity Entity
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("kg: entity %q is not 1-64 printable characters starting with a letter", string(e.Entity))
}

func isValidEntity(s string) bool {
	if len(s) < 1 || len(s) > 64 {
		return false
	}
	first := rune(s[0])
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// wireGraph is the JSON schema the LLM is instructed to emit:
// {"entities":[...],"relations":[{"head":..,"tail":..,"relation":..}]}
type wireGraph struct {
	Entities  []string   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// unescape undoes the doubled-brace and backslash-quote mangling that LLMs
// frequently introduce when asked to emit JSON inside a free-form answer.
// The five substitutions are applied in order, and the sequence is repeated
// until it changes nothing, so the result is idempotent: applying unescape
// a second time is a no-op.
func unescape(s string) string {
	for {
		next := strings.ReplaceAll(s, "{{", "{")
		next = strings.ReplaceAll(next, "}}", "}")
		next = strings.ReplaceAll(next, `\\"`, `"`)
		next = strings.ReplaceAll(next, `\"`, `"`)
		next = strings.ReplaceAll(next, "\\n", "")
		if next == s {
			return s
		}
		s = next
	}
}

// Parse decodes text (after unescaping) into a checked KnowledgeGraph.
func Parse(text string) (*KnowledgeGraph, error) {
	var wg wireGraph
	if err := json.Unmarshal([]byte(unescape(text)), &wg); err != nil {
		return nil, &ParseError{Cause: err}
	}

	entities := make([]Entity, 0, len(wg.Entities))
	for _, e := range wg.Entities {
		entities = append(entities, Entity(e))
	}
	return Validate(entities, wg.Relations)
}

// Validate constructs a KnowledgeGraph in checked mode: every relation
// endpoint must already appear in entities, in the order given. Every entity
// must satisfy isValidEntity.
func Validate(entities []Entity, relations []Relation) (*KnowledgeGraph, error) {
	present := make(map[Entity]struct{}, len(entities))
	for _, e := range entities {
		if !isValidEntity(string(e)) {
			return nil, &EntityError{Entity: e}
		}
		present[e] = struct{}{}
	}
	for _, r := range relations {
		if _, ok := present[r.Head]; !ok {
			return nil, &InvariantError{Relation: r}
		}
		if _, ok := present[r.Tail]; !ok {
			return nil, &InvariantError{Relation: r}
		}
	}
	return &KnowledgeGraph{Entities: entities, Relations: relations}, nil
}

// FromRelations builds a KnowledgeGraph in derived mode: the entity set is
// the union of every relation's endpoints. Entity ordering is not otherwise
// meaningful, so first-seen order is used. Every derived entity must satisfy
// isValidEntity.
func FromRelations(relations []Relation) (*KnowledgeGraph, error) {
	seen := make(map[Entity]struct{})
	var entities []Entity
	add := func(e Entity) error {
		if _, ok := seen[e]; ok {
			return nil
		}
		if !isValidEntity(string(e)) {
			return &EntityError{Entity: e}
		}
		seen[e] = struct{}{}
		entities = append(entities, e)
		return nil
	}
	for _, r := range relations {
		if err := add(r.Head); err != nil {
			return nil, err
		}
		if err := add(r.Tail); err != nil {
			return nil, err
		}
	}
	return &KnowledgeGraph{Entities: entities, Relations: relations}, nil
}

// AddEntity appends an entity to the graph if it is not already present,
// failing with EntityError if e does not satisfy isValidEntity.
// This is a supplemented incremental builder (the reference implementation's
// neo4j_service draft carries an equivalent add_new_edge/add_new_relation
// pair); it is not required by the checked/derived constructors above but
// is a within-scope convenience extension of them.
func (g *KnowledgeGraph) AddEntity(e Entity) error {
	for _, existing := range g.Entities {
		if existing == e {
			return nil
		}
	}
	if !isValidEntity(string(e)) {
		return &EntityError{Entity: e}
	}
	g.Entities = append(g.Entities, e)
	return nil
}

// AddRelation appends a relation, failing with InvariantError if either
// endpoint has not been added to the graph yet.
func (g *KnowledgeGraph) AddRelation(r Relation) error {
	var hasHead, hasTail bool
	for _, e := range g.Entities {
		if e == r.Head {
			hasHead = true
		}
		if e == r.Tail {
			hasTail = true
		}
	}
	if !hasHead || !hasTail {
		return &InvariantError{Relation: r}
	}
	g.Relations = append(g.Relations, r)
	return nil
}

// LowerToBuilder lowers the graph into an unbuilt QueryBuilder: every
// entity becomes a CREATE node carrying extraProps, and every relation
// becomes an add_edge call. The caller (the dispatcher's ingest path)
// builds the query and hands its text and parameters to the graph worker.
func LowerToBuilder(g *KnowledgeGraph, extraProps []graphquery.Property) (*graphquery.QueryBuilder, error) {
	qb := graphquery.New()
	for _, e := range g.Entities {
		qb.CreateNode(string(e), extraProps)
	}
	for _, r := range g.Relations {
		if err := qb.AddEdge(string(r.Head), string(r.Tail), r.Label); err != nil {
			return nil, err
		}
	}
	return qb, nil
}
