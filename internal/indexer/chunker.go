package indexer

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// runesPerToken is the estimation heuristic used throughout chunking. Real
// tokenizer counts vary by model; a rune-based estimate keeps chunking
// deterministic and model-independent.
const runesPerToken = 4

// Chunker splits note content into overlapping plain-text chunks sized for
// the embedding model. Markdown syntax is stripped first so embeddings see
// prose, not formatting.
type Chunker struct {
	parser        goldmark.Markdown
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a chunker with the given per-chunk token budget and
// inter-chunk overlap.
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	return &Chunker{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
	}
}

// Split strips markdown from content and windows the remaining text into
// chunks of at most maxTokens estimated tokens, consecutive chunks sharing
// overlapTokens of trailing context. Empty or whitespace-only content yields
// no chunks. Splitting is deterministic: the same content always produces
// the same chunks.
func (c *Chunker) Split(content string) []string {
	plain := c.stripMarkdown(content)
	if strings.TrimSpace(plain) == "" {
		return nil
	}

	maxRunes := c.maxTokens * runesPerToken
	overlapRunes := c.overlapTokens * runesPerToken

	runes := []rune(plain)
	if len(runes) <= maxRunes {
		return []string{strings.TrimSpace(plain)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxRunes
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		splitPoint := splitBoundary(runes, start, end)
		if chunk := strings.TrimSpace(string(runes[start:splitPoint])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		// Step back to share trailing context, but always advance.
		next := splitPoint - overlapRunes
		if next <= start {
			next = splitPoint
		}
		start = next
	}
	return chunks
}

// splitBoundary picks the cut point for the window [start, end), preferring
// a paragraph break, then a line break, then a sentence end. Falls back to a
// hard cut at end.
func splitBoundary(runes []rune, start, end int) int {
	window := string(runes[start:end])
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return start + len([]rune(window[:i])) + 2
	}
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return start + len([]rune(window[:i])) + 1
	}
	if i := strings.LastIndex(window, ". "); i > 0 {
		return start + len([]rune(window[:i])) + 2
	}
	return end
}

// stripMarkdown renders markdown down to plain text, one line per block,
// table rows joined with pipes. Non-markdown content passes through intact.
func (c *Chunker) stripMarkdown(content string) string {
	source := []byte(content)
	doc := c.parser.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock:
			writeBlockLines(&b, node, source)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			writeBlockLines(&b, node, source)
			return ast.WalkSkipChildren, nil
		case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.Blockquote:
			ensureNewline(&b)
		default:
			kind := n.Kind().String()
			if strings.Contains(kind, "TableRow") || strings.Contains(kind, "TableHeader") {
				ensureNewline(&b)
				b.WriteString(tableRowText(n, source))
				b.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func writeBlockLines(b *strings.Builder, node ast.Node, source []byte) {
	ensureNewline(b)
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
}

func ensureNewline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

func tableRowText(row ast.Node, source []byte) string {
	var cells []string
	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if strings.Contains(node.Kind().String(), "TableCell") {
			cells = append(cells, strings.TrimSpace(nodeText(node, source)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(cells, " | ")
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
