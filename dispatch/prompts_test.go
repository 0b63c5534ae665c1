package dispatch

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/graphrag/graphworker"
)

func TestExtractKGBlockFound(t *testing.T) {
	text := `blah blah <kg>{"entities":["a"]}</kg> trailing`
	inner, ok := extractKGBlock(text)
	if !ok {
		t.Fatal("expected a <kg> block to be found")
	}
	if inner != `{"entities":["a"]}` {
		t.Errorf("inner = %q, want the JSON between the tags", inner)
	}
}

func TestExtractKGBlockAbsent(t *testing.T) {
	_, ok := extractKGBlock("no tags here at all")
	if ok {
		t.Error("expected no <kg> block to be found")
	}
}

func TestExtractKGBlockSpansNewlines(t *testing.T) {
	text := "<kg>{\n  \"entities\": [\"a\"]\n}</kg>"
	inner, ok := extractKGBlock(text)
	if !ok {
		t.Fatal("expected a <kg> block to be found across newlines")
	}
	if !strings.Contains(inner, "entities") {
		t.Errorf("inner = %q, want it to contain the multi-line body", inner)
	}
}

func TestIngestionPromptIncludesChunk(t *testing.T) {
	p := ingestionPrompt("the quick brown fox")
	if !strings.Contains(p, "the quick brown fox") {
		t.Error("expected prompt to embed the chunk text verbatim")
	}
	if !strings.Contains(p, "<kg></kg>") {
		t.Error("expected prompt to instruct wrapping output in <kg></kg>")
	}
}

func TestEnhancedPromptFormatsTriplesAndQuestion(t *testing.T) {
	triples := []graphworker.Triple{
		{Head: "alice", Relation: "knows", Tail: "bob"},
		{Head: "bob", Relation: "trusts", Tail: "carol"},
	}
	p := enhancedPrompt("who does alice know?", triples)
	if !strings.Contains(p, "alice | knows | bob") {
		t.Error("expected first triple rendered as pipe-separated row")
	}
	if !strings.Contains(p, "bob | trusts | carol") {
		t.Error("expected second triple rendered as pipe-separated row")
	}
	if !strings.Contains(p, "who does alice know?") {
		t.Error("expected the user's question to appear verbatim")
	}
}

func TestEnhancedPromptHandlesNoTriples(t *testing.T) {
	p := enhancedPrompt("anything?", nil)
	if !strings.Contains(p, "anything?") {
		t.Error("expected the question to still appear with zero triples")
	}
}
