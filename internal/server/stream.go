package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"meetflow/internal/progress"
)

const wsWriteTimeout = 10 * time.Second

// finishedEvent replays the terminal event for a run that already ended,
// so late observers are not left waiting.
func (s *Server) finishedEvent(workflowID string) (progress.Event, bool) {
	if workflowID == "" {
		return progress.Event{}, false
	}
	run, ok := s.runs.Get(workflowID)
	if !ok || run.Status == RunRunning {
		return progress.Event{}, false
	}
	ev := progress.Event{Type: progress.EventWorkflowComplete, WorkflowID: workflowID, Timestamp: s.now()}
	if run.Status == RunFailed {
		ev.Type = progress.EventWorkflowError
	}
	if run.Result != nil {
		ev.Data = run.Result
	}
	return ev, true
}

// next waits for the observer's next event. An idle tick re-checks the run
// store for a terminal event published before the observer subscribed.
func (s *Server) next(ctx context.Context, sub *progress.Subscription, workflowID string) (progress.Event, error) {
	ev, err := sub.Next(ctx, s.cfg.HeartbeatInterval)
	if err != nil || ev.Type != progress.EventHeartbeat {
		return ev, err
	}
	if fin, done := s.finishedEvent(workflowID); done {
		return fin, nil
	}
	return ev, nil
}

func (s *Server) subscribe(workflowID string) *progress.Subscription {
	if workflowID == "" {
		return s.broadcaster.Subscribe()
	}
	return s.broadcaster.Subscribe(progress.ForWorkflow(workflowID))
}

// handleSSE streams progress events. With workflow_id the stream ends after
// that workflow's terminal event.
func (s *Server) handleSSE(c *gin.Context) {
	workflowID := c.Query("workflow_id")
	sub := s.subscribe(workflowID)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	writeSSE(c, progress.Connected(workflowID))
	if ev, done := s.finishedEvent(workflowID); done {
		writeSSE(c, ev)
		return
	}
	s.logger.Debug("SSE observer attached (workflow=%q)", workflowID)

	for {
		ev, err := s.next(ctx, sub, workflowID)
		if err != nil {
			return
		}
		writeSSE(c, ev)
		if ctx.Err() != nil {
			return
		}
		if workflowID != "" && ev.Type.Terminal() {
			return
		}
	}
}

func writeSSE(c *gin.Context, ev progress.Event) {
	c.SSEvent(string(ev.Type), ev)
	c.Writer.Flush()
}

// handleWebSocket mirrors handleSSE over a websocket, one JSON event per
// message.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	workflowID := c.Query("workflow_id")
	sub := s.subscribe(workflowID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev progress.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(ev) == nil
	}
	closeNormal := func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "workflow finished"),
			time.Now().Add(wsWriteTimeout))
	}

	if !send(progress.Connected(workflowID)) {
		return
	}
	if ev, done := s.finishedEvent(workflowID); done {
		if send(ev) {
			closeNormal()
		}
		return
	}

	for {
		ev, err := s.next(ctx, sub, workflowID)
		if err != nil {
			return
		}
		if !send(ev) {
			return
		}
		if workflowID != "" && ev.Type.Terminal() {
			closeNormal()
			return
		}
	}
}
