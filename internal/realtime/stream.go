package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const streamBuffer = 16

// ServeSSE streams the messages of one channel to w as server-sent events
// until the request context ends. The subscription is released on return.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, channel string, heartbeat time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	outbound := make(chan Message, streamBuffer)
	handle := h.Subscribe(channel, func(m Message) {
		select {
		case outbound <- m:
		default:
			h.log.Warn("dropping notification; stream buffer full", "channel", m.Channel, "event", m.Event)
		}
	})
	defer h.Unsubscribe(handle)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": subscribed %s\n\n", handle.ID)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-outbound:
			raw, err := json.Marshal(msg)
			if err != nil {
				h.log.Warn("failed to marshal notification", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}
