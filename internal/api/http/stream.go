package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleStreamEvents handles GET requests for the live creation-event
// stream, delivered as Server-Sent Events.
//
// Each subscriber gets its own buffered channel on the bus, so every
// subscriber sees every event published while it is connected; there is no
// replay of past events. While no events arrive, a keep-alive comment is
// written at the heartbeat interval so proxies don't drop the idle
// connection. The loop blocks on the subscription channel and terminates as
// soon as the client disconnects, unregistering the subscriber.
func handleStreamEvents(events EventSource, heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := events.Subscribe()
		defer sub.Close()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return

			case e := <-sub.C:
				data, err := json.Marshal(e)
				if err != nil {
					continue
				}

				fmt.Fprintf(w, "event: url_created\ndata: %s\n\n", data)
				flusher.Flush()

			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			}
		}
	}
}
