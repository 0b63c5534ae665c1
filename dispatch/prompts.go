package dispatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/brunobiangulo/graphrag/graphworker"
)

// kgBlockRE extracts the first <kg>...</kg> span from an LLM response.
var kgBlockRE = regexp.MustCompile(`(?s)<kg>(.*?)</kg>`)

// extractKGBlock returns the contents of the first <kg>...</kg> span, or
// false if none is present.
func extractKGBlock(text string) (string, bool) {
	m := kgBlockRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ingestionSystemPrompt is the fixed system message sent with every LLM
// call. It carries no format instructions; the wire shape the
// knowledge-graph parser expects is spelled out in ingestionPrompt.
const ingestionSystemPrompt = "You are an helpful digital assistant"

// ingestionPrompt builds the fixed grounding prompt for a chunk of text,
// instructing the LLM to emit camelCase entity/relation names starting
// with a letter, wrapped in <kg></kg>, using the entities/relations schema.
func ingestionPrompt(chunk string) string {
	return fmt.Sprintf(`Extract the entities and relationships present in the following text as a knowledge graph.

Rules:
- Entity and relation names must be camelCase and start with a letter.
- Wrap the JSON output in <kg></kg> tags.
- Use exactly this schema: {"entities":["entityName", ...],"relations":[{"head":"entityName","tail":"entityName","relation":"relationName"}]}

Example:
<kg>{"entities":["alice","bob"],"relations":[{"head":"alice","tail":"bob","relation":"knows"}]}</kg>

Text:
%s`, chunk)
}

// enhancedPrompt builds the "answer using these triples" prompt for the
// enhanced_knowledge endpoint.
func enhancedPrompt(userPrompt string, triples []graphworker.Triple) string {
	lines := make([]string, len(triples))
	for i, t := range triples {
		lines[i] = fmt.Sprintf("%s | %s | %s", t.Head, t.Relation, t.Tail)
	}
	return fmt.Sprintf(`Using the following knowledge graph triples as grounding context, answer the question.

Triples:
%s

Question:
%s`, strings.Join(lines, "\n"), userPrompt)
}
