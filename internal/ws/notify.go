package ws

import (
	"matchengine/internal/messaging"

	"github.com/goccy/go-json"
)

// jobEnvelope is the frame sent to dashboard clients.
type jobEnvelope struct {
	Type  string             `json:"type"`
	Event messaging.JobEvent `json:"event"`
}

// NotifyJobEvent broadcasts a job lifecycle event to every client.
func (h *Hub) NotifyJobEvent(ev messaging.JobEvent) {
	if h == nil {
		return
	}
	b, err := json.Marshal(jobEnvelope{Type: "matching_job", Event: ev})
	if err != nil {
		h.logger.Warn().Err(err).Msg("encode job event")
		return
	}
	h.Broadcast(b)
}
