package httpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"surveyflow/internal/workflow"
)

// upgrader configures the WebSocket handshake.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; auth is handled at the HTTP layer.
	},
}

// handleWorkflowSocket handles GET /ws/survey/{workflow_id}: it upgrades the
// connection and streams the run's progress frames in order, replaying
// already-emitted events so reconnecting clients catch up. The connection is
// closed with a normal closure code once a terminal frame has been sent.
func (s *HTTPServer) handleWorkflowSocket(w http.ResponseWriter, r *http.Request) {
	// Parse path: /ws/survey/{workflow_id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] == "" {
		respondError(w, http.StatusBadRequest, "invalid path format (expected /ws/survey/{workflow_id})")
		return
	}

	run, ok := s.engine.Get(parts[2])
	if !ok {
		respondError(w, http.StatusNotFound, "unknown workflow")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub, cancel := run.Subscribe()
	defer cancel()

	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	// Read pump: answer application-level pings until the client disconnects.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
				) {
					log.Printf("[ws] read error for workflow %s: %v", run.WorkflowID, err)
				}
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.Type == "ping" {
				writeJSON(workflow.Event{Type: "pong"})
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := writeJSON(ev); err != nil {
				log.Printf("[ws] write to client error: %v", err)
				return
			}
			if ev.Type == "completed" || ev.Type == "error" {
				writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.Type),
					time.Now().Add(time.Second))
				writeMu.Unlock()
				// Give the client a moment to process the closure.
				select {
				case <-readClosed:
				case <-time.After(10 * time.Second):
				}
				return
			}
		case <-readClosed:
			return
		}
	}
}
