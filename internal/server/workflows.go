package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"meetflow/internal/calendar"
	"meetflow/internal/orchestrator"
)

type submitRequest struct {
	Transcript  string `json:"transcript"`
	AutoExecute *bool  `json:"auto_execute"`
	// Wait blocks the request until the run finishes.
	Wait       bool   `json:"wait"`
	WorkflowID string `json:"workflow_id"`
}

type submitResponse struct {
	Run
	EventsURL string `json:"events_url"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": orchestrator.ErrEmptyTranscript.Error()})
		return
	}
	autoExecute := s.cfg.AutoExecute
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}
	id := strings.TrimSpace(req.WorkflowID)
	if id == "" {
		id = orchestrator.NewWorkflowID()
	}
	if existing, ok := s.runs.Get(id); ok && existing.Status == RunRunning {
		s.conflict(c, id)
		return
	}

	run := Run{WorkflowID: id, Status: RunRunning, AutoExecute: autoExecute, SubmittedAt: s.now()}
	in := orchestrator.Input{Transcript: req.Transcript, AutoExecute: autoExecute, WorkflowID: id}

	if req.Wait {
		if err := s.slots.Acquire(c.Request.Context(), 1); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled while waiting for a run slot"})
			return
		}
		defer s.slots.Release(1)
		if !s.runs.Start(run) {
			s.conflict(c, id)
			return
		}
		res, err := s.runner.Run(c.Request.Context(), in)
		c.JSON(http.StatusOK, s.runs.Finish(run, res, err))
		return
	}

	if !s.slots.TryAcquire(1) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many workflows in flight, retry later"})
		return
	}
	if !s.runs.Start(run) {
		s.slots.Release(1)
		s.conflict(c, id)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.runner.Run(s.ctx, in)
		s.slots.Release(1)
		if err != nil {
			s.logger.Warn("Workflow %s failed: %v", id, err)
		}
		s.runs.Finish(run, res, err)
	}()

	c.JSON(http.StatusAccepted, submitResponse{Run: run, EventsURL: "/api/events?workflow_id=" + id})
}

func (s *Server) conflict(c *gin.Context, id string) {
	c.JSON(http.StatusConflict, gin.H{"error": "workflow " + id + " is already running"})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs := s.runs.List()
	for i := range runs {
		runs[i].Result = nil
	}
	c.JSON(http.StatusOK, gin.H{"workflows": runs, "count": len(runs)})
}

func (s *Server) handleSlots(c *gin.Context) {
	if s.calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar not configured"})
		return
	}
	duration, err := intQuery(c, "duration", orchestrator.DefaultDurationMinutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days, err := intQuery(c, "days", s.cfg.SlotSearchDays)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := intQuery(c, "max", 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc := s.cfg.Hours.Location
	var day time.Time
	if raw := c.Query("date"); raw != "" {
		day, err = time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	}

	now := s.now()
	events, err := s.calendar.ListEvents(c.Request.Context(), calendar.Query{From: now, To: now.AddDate(0, 0, days+1)})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "list calendar events: " + err.Error()})
		return
	}
	query := calendar.SlotQuery{
		DurationMinutes: duration,
		DaysAhead:       days,
		MaxSlots:        limit,
		Hours:           s.cfg.Hours,
		Now:             now,
		NotBefore:       now,
	}
	if !day.IsZero() {
		query.MaxSlots = 0
	}
	slots := calendar.FindSlots(events, query)
	if !day.IsZero() {
		slots = calendar.SlotsOn(slots, day, loc)
		if limit > 0 && len(slots) > limit {
			slots = slots[:limit]
		}
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}
