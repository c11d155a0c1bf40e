package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// defaultEncoding is the tokenizer used for budget accounting; cl100k_base
// is the encoding tiktoken-go ships a built-in vocabulary for, so token
// counts stay accurate without a network fetch.
const defaultEncoding = "cl100k_base"

// Assembler packs ranked chunks into a rendered string under a token
// budget.
type Assembler struct {
	enc *tiktoken.Tiktoken
	minChunkTokens int
	maxChunkTokens int
}

func NewAssembler(minChunkTokens, maxChunkTokens int) (*Assembler, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("rag: load tokenizer: %w", err)
	}
	return &Assembler{enc: enc, minChunkTokens: minChunkTokens, maxChunkTokens: maxChunkTokens}, nil
}

// CountTokens returns the real encoded token count for s.
func (a *Assembler) CountTokens(s string) int {
	return len(a.enc.Encode(s, nil, nil))
}

// Pack greedily keeps chunks (best first — callers pass already-ranked
// input) until budget is exhausted, clamping any individual chunk to
// maxChunkTokens and skipping any chunk that would not even meet
// minChunkTokens of budget remaining.
func (a *Assembler) Pack(chunks []model.RetrievedChunk, budget int) []model.ContextChunk {
	if budget <= 0 {
		return nil
	}
	out := make([]model.ContextChunk, 0, len(chunks))
	used := 0

	for _, rc := range chunks {
		c := rc.ContextChunk
		if a.maxChunkTokens > 0 {
			c.Content = a.clampTokens(c.Content, a.maxChunkTokens)
		}
		c.TokenCount = a.CountTokens(c.Content)

		remaining := budget - used
		if remaining <= 0 {
			break
		}
		if a.minChunkTokens > 0 && remaining < a.minChunkTokens {
			break
		}
		if c.TokenCount > remaining {
			c.Content = a.clampTokens(c.Content, remaining)
			c.TokenCount = a.CountTokens(c.Content)
			if c.TokenCount == 0 {
				continue
			}
		}
		out = append(out, c)
		used += c.TokenCount
	}
	return out
}

func (a *Assembler) clampTokens(s string, max int) string {
	tokens := a.enc.Encode(s, nil, nil)
	if len(tokens) <= max {
		return s
	}
	return a.enc.Decode(tokens[:max])
}

// Render renders packed chunks into the requested format.
func Render(chunks []model.ContextChunk, format model.AssemblyFormat) string {
	switch format {
	case model.FormatXML:
		return renderXML(chunks)
	case model.FormatMarkdown:
		return renderMarkdown(chunks)
	default:
		return renderPlain(chunks)
	}
}

func renderPlain(chunks []model.ContextChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if c.Metadata.FilePath != "" {
			fmt.Fprintf(&b, "# %s\n", c.Metadata.FilePath)
		}
		b.WriteString(c.Content)
	}
	return b.String()
}

func renderMarkdown(chunks []model.ContextChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if c.Metadata.FilePath != "" {
			fmt.Fprintf(&b, "### `%s`\n\n", c.Metadata.FilePath)
		}
		lang := c.Metadata.Language
		fmt.Fprintf(&b, "```%s\n%s\n```\n", lang, c.Content)
	}
	return b.String()
}

func renderXML(chunks []model.ContextChunk) string {
	var b strings.Builder
	b.WriteString("<context>\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, " <chunk id=%q source=%q", c.ID, string(c.Source))
		if c.Metadata.FilePath != "" {
			fmt.Fprintf(&b, " path=%q", c.Metadata.FilePath)
		}
		b.WriteString(">")
		b.WriteString(escapeXML(c.Content))
		b.WriteString("</chunk>\n")
	}
	b.WriteString("</context>")
	return b.String()
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}
