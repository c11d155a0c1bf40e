package aggregator

import (
	"context"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// StreamChunk is one unit emitted by RetrieveStream: either a ranked
// context chunk, in final order, or the terminal response summary.
type StreamChunk struct {
	Chunk *model.ContextChunk
	Final *model.ContextResponse
}

// RetrieveStream runs the same retrieve-dedup-rank-pack pipeline as
// Retrieve, but emits chunks one at a time over the returned channel
// instead of waiting to hand back one assembled string. Streaming never
// early-terminates retrieval to save latency — every source still settles
// before the first chunk is emitted, since ranking needs the full
// candidate set to be stable; only the final assembly/render step is
// pipelined to the caller.
func (a *Aggregator) RetrieveStream(ctx context.Context, req model.ContextRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk)

	go func() {
		defer close(out)

		resp, err := a.Retrieve(ctx, req)
		if err != nil {
			return
		}
		for i := range resp.Chunks {
			select {
			case out <- StreamChunk{Chunk: &resp.Chunks[i]}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- StreamChunk{Final: &resp}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}
