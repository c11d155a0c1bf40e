package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperionlabs/mergebot/internal/mcpconn"
	"github.com/hyperionlabs/mergebot/internal/model"
)

// MCPSource fetches resources from every connected MCP server and wraps
// each resource body as a chunk tagged source=mcp.
type MCPSource struct {
	Manager *mcpconn.Manager
	MaxChunks int
}

func NewMCPSource(manager *mcpconn.Manager, maxChunks int) *MCPSource {
	if maxChunks <= 0 {
		maxChunks = 10
	}
	return &MCPSource{Manager: manager, MaxChunks: maxChunks}
}

func (s *MCPSource) Name() string { return string(model.SourceMCP) }
func (s *MCPSource) Initialize(ctx context.Context) error { return nil }
func (s *MCPSource) IsAvailable(ctx context.Context) bool { return len(s.Manager.Connected()) > 0 }
func (s *MCPSource) Dispose(ctx context.Context) error { return nil }

type resourceReadResult struct {
	Contents []struct {
		URI string `json:"uri"`
		MimeType string `json:"mimeType"`
		Text string `json:"text"`
	} `json:"contents"`
}

func (s *MCPSource) Retrieve(ctx context.Context, q Query) Result {
	return Timed(func() ([]model.ContextChunk, bool, error) {
		var chunks []model.ContextChunk
		var firstErr error

		for _, conn := range s.Manager.Connected() {
			for _, res := range conn.Resources() {
				if len(chunks) >= s.MaxChunks {
					return chunks, false, firstErr
				}
				raw, err := conn.Call(ctx, "resources/read", map[string]any{"uri": res.URI})
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("mcp source: read %s/%s: %w", conn.Name, res.URI, err)
					}
					continue
				}
				var parsed resourceReadResult
				if err := json.Unmarshal(raw, &parsed); err != nil {
					continue
				}
				for _, c := range parsed.Contents {
					chunks = append(chunks, model.ContextChunk{
						ID: conn.Name + ":" + c.URI,
						Content: c.Text,
						Source: model.SourceMCP,
						Metadata: model.ChunkMetadata{
							URL: c.URI,
							Language: c.MimeType,
						},
						Relevance: 0.5, // unranked until the aggregator's ranker scores it
					})
				}
			}
		}
		// a per-server read failure never aborts the whole retrieval; only
		// surfaced when nothing at all came back, matching step 3's
		// "settle-all" semantics at the aggregator layer above us.
		if len(chunks) > 0 {
			firstErr = nil
		}
		return chunks, false, firstErr
	})
}
