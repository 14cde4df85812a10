package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/strategy-lab/internal/jobs"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 10 * time.Second
)

// streamMessage is one websocket frame on the job stream: first a snapshot
// with the backlog, then one log frame per appended line, finally a status
// frame with the terminal job state.
type streamMessage struct {
	Type string        `json:"type"`
	Line string        `json:"line,omitempty"`
	Job  *jobs.JobView `json:"job,omitempty"`
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	job, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	view, stream, cancel := job.Subscribe(streamBuffer)
	defer cancel()

	if err := s.writeStream(conn, streamMessage{Type: "snapshot", Job: &view}); err != nil {
		return
	}

	// The read loop only watches for the client hanging up; the stream is
	// one-way.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case line, open := <-stream:
			if !open {
				final := job.Snapshot()
				if err := s.writeStream(conn, streamMessage{Type: "status", Job: &final}); err != nil {
					return
				}
				deadline := time.Now().Add(streamWriteTimeout)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			if err := s.writeStream(conn, streamMessage{Type: "log", Line: line}); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func (s *Server) writeStream(conn *websocket.Conn, msg streamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.WithError(err).Debug("Websocket write failed")
		return err
	}
	return nil
}
