package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawinfra/taskclaw/internal/runlog"
)

const tailPollInterval = 500 * time.Millisecond

// handleTail upgrades to a websocket and streams a run's events: the
// backlog first, then new events as they land in runlog.jsonl. The run
// log is append-only, so polling for growth and re-reading the tail is
// safe and simple.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.authenticateToken(r.URL.Query().Get("token")); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	runID := r.PathValue("id")
	logPath := filepath.Join(s.repo.WorkspaceRoot(), "runs", runID, "runlog.jsonl")
	if _, err := os.Stat(logPath); err != nil {
		writeError(w, http.StatusNotFound, "run not found: "+runID)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "tail ended")

	ctx := r.Context()
	sent := 0
	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		events, err := runlog.ParseLog(logPath)
		if err != nil {
			s.logger.Warn("tail parse failed", "run", runID, "error", err)
			return
		}
		for ; sent < len(events); sent++ {
			if err := wsjson.Write(ctx, conn, events[sent]); err != nil {
				return
			}
		}
		if hasTerminalEvent(events) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// hasTerminalEvent reports whether the run has reached a terminal state,
// so the tail can close instead of polling forever.
func hasTerminalEvent(events []runlog.Event) bool {
	for i := len(events) - 1; i >= 0; i-- {
		switch events[i].Kind {
		case runlog.KindFinish:
			return true
		case runlog.KindError:
			if reason, ok := events[i].Payload["reason"].(string); ok {
				switch reason {
				case "step_budget", "empty_responses", "validation_budget", "cancelled", "model_incapable":
					return true
				}
			}
			// The task entry point records transport and setup failures
			// as {"error": ...} and stops the run.
			if _, ok := events[i].Payload["error"]; ok {
				return true
			}
		}
	}
	return false
}
