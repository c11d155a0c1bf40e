package events

import (
	"time"

	"github.com/hyperionlabs/mergebot/internal/supervisor"
)

// FromSupervisorEvent adapts a supervisor.Event into the wire Envelope
// published over the bus and websocket feed.
func FromSupervisorEvent(ev supervisor.Event) Envelope {
	return Envelope{
		Type: string(ev.Type),
		At: ev.At.Format(time.RFC3339Nano),
		From: string(ev.From),
		To: string(ev.To),
		Detail: ev.Detail,
	}
}
