package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meetflow/internal/attendee"
	"meetflow/internal/calendar"
	"meetflow/internal/logging"
	"meetflow/internal/observability"
	"meetflow/internal/progress"

	"go.opentelemetry.io/otel/attribute"
)

const (
	findSlotLimit    = 3
	datedSlotLimit   = 10
	defaultTitle     = "New Meeting"
	notesSeparator   = "\n\nNotes:\n"
	defaultNotesText = "Updated notes"
)

// defaultMeetingTime is used on a requested date that has no free slot.
var defaultMeetingTime = calendar.ClockTime{Hour: 14}

var errNoSlot = errors.New("no available slots found")

// executor runs planned actions against the calendar in two phases. Slot
// lookups and note edits run first so event creation can reuse slots found
// by an explicit FIND_SLOT.
type executor struct {
	store    calendar.Store
	resolver *attendee.Resolver
	cfg      Config
	now      func() time.Time
	logger   logging.Logger
	metrics  *Metrics
}

// executionRun holds the per-batch slot buffer.
type executionRun struct {
	*executor
	rec    *Recorder
	logger logging.Logger
	now    time.Time
	buffer []calendar.TimeSlot
}

type actionHandler func(r *executionRun, ctx context.Context, a Action) ExecutionResult

var phaseOneHandlers = map[ActionKind]actionHandler{
	ActionFindSlot:    (*executionRun).findSlot,
	ActionAddNotes:    (*executionRun).addNotes,
	ActionUpdateEvent: (*executionRun).updateEvent,
}

// Execute returns one result per attempted action, in phase order. A failed
// action never stops the ones after it.
func (e *executor) Execute(ctx context.Context, actions []Action, autoExecute bool, rec *Recorder) []ExecutionResult {
	now := e.now()
	if !autoExecute {
		rec.Add(progress.LogOutput, "Skipped execution, awaiting approval")
		return []ExecutionResult{{
			Status:    StatusWarning,
			Kind:      KindPendingApproval,
			Message:   "Actions planned but not executed, awaiting approval",
			Detail:    "Manual approval required before execution",
			Timestamp: now,
		}}
	}

	run := &executionRun{
		executor: e,
		rec:      rec,
		logger:   logging.FromContext(ctx, e.logger),
		now:      now,
	}
	results := make([]ExecutionResult, 0, len(actions))
	record := func(res ExecutionResult) {
		res.Timestamp = e.now()
		e.metrics.IncActionResult(string(res.Kind), string(res.Status))
		results = append(results, res)
	}

	for _, a := range actions {
		if handle, ok := phaseOneHandlers[a.Kind]; ok {
			record(handle(run, ctx, a))
		}
	}
	for _, a := range actions {
		if a.Kind == ActionCreateEvent {
			record(run.createEvent(ctx, a))
		}
	}
	return results
}

func failed(kind ActionKind, message string, err error) ExecutionResult {
	return ExecutionResult{Status: StatusError, Kind: kind, Message: message, Detail: err.Error()}
}

// freeSlots lists the calendar from now and sweeps it for gaps.
func (r *executionRun) freeSlots(ctx context.Context, duration time.Duration, limit int) ([]calendar.TimeSlot, error) {
	days := r.cfg.SlotSearchDays
	events, err := r.store.ListEvents(ctx, calendar.Query{
		From: r.now,
		To:   r.now.AddDate(0, 0, days+1),
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return calendar.FindSlots(events, calendar.SlotQuery{
		DurationMinutes: int(duration / time.Minute),
		DaysAhead:       days,
		MaxSlots:        limit,
		Hours:           r.cfg.Hours,
		Now:             r.now,
		NotBefore:       r.now,
	}), nil
}

func (r *executionRun) findSlot(ctx context.Context, a Action) ExecutionResult {
	slots, err := r.freeSlots(ctx, a.Duration(), findSlotLimit)
	if err != nil {
		r.logger.Error("FIND_SLOT failed: %v", err)
		return failed(a.Kind, "Failed to find available slots", err)
	}
	if len(slots) == 0 {
		return ExecutionResult{
			Status:  StatusWarning,
			Kind:    a.Kind,
			Message: fmt.Sprintf("No available slots found in the next %d days", r.cfg.SlotSearchDays),
			Detail:  "Check calendar availability or extend the search period",
		}
	}
	r.buffer = append(r.buffer, slots...)

	described := make([]string, len(slots))
	for i, s := range slots {
		described[i] = s.String()
	}
	r.rec.Add(progress.LogProcessing, "Found %d slots: %s", len(slots), strings.Join(described, "; "))
	return ExecutionResult{
		Status:  StatusSuccess,
		Kind:    a.Kind,
		Message: fmt.Sprintf("Found %d available slots", len(slots)),
		Detail:  strings.Join(described, ", "),
		Slots:   slots,
	}
}

func (r *executionRun) addNotes(ctx context.Context, a Action) ExecutionResult {
	if a.EventID == "" {
		return failed(a.Kind, "Failed to add notes", errors.New("calendar_event_id is required"))
	}
	ev, err := r.store.GetEvent(ctx, a.EventID)
	if err != nil {
		r.logger.Error("ADD_NOTES on %s failed: %v", a.EventID, err)
		return failed(a.Kind, "Failed to add notes", err)
	}
	description := ev.Description + notesSeparator + a.Notes
	if _, err := r.store.UpdateEvent(ctx, a.EventID, calendar.Patch{Description: &description}); err != nil {
		r.logger.Error("ADD_NOTES on %s failed: %v", a.EventID, err)
		return failed(a.Kind, "Failed to add notes", err)
	}
	change := calendar.DiffText(ev.Description, description)
	return ExecutionResult{
		Status:  StatusSuccess,
		Kind:    a.Kind,
		Message: fmt.Sprintf("Added notes to event %s", a.EventID),
		EventID: a.EventID,
		Detail:  change.Patch,
	}
}

func (r *executionRun) updateEvent(ctx context.Context, a Action) ExecutionResult {
	if a.EventID == "" {
		return failed(a.Kind, "Failed to update event", errors.New("calendar_event_id is required"))
	}
	ev, err := r.store.GetEvent(ctx, a.EventID)
	if err != nil {
		r.logger.Error("UPDATE_EVENT on %s failed: %v", a.EventID, err)
		return failed(a.Kind, "Failed to update event", err)
	}
	description := a.Notes
	if description == "" {
		description = defaultNotesText
	}
	patch := calendar.Patch{Description: &description}
	if a.Title != "" {
		patch.Title = &a.Title
	}
	if _, err := r.store.UpdateEvent(ctx, a.EventID, patch); err != nil {
		r.logger.Error("UPDATE_EVENT on %s failed: %v", a.EventID, err)
		return failed(a.Kind, "Failed to update event", err)
	}
	change := calendar.DiffText(ev.Description, description)
	return ExecutionResult{
		Status:  StatusSuccess,
		Kind:    a.Kind,
		Message: "Updated event with new notes",
		EventID: a.EventID,
		Detail:  change.Patch,
	}
}

// slotRequest is what a CREATE_EVENT needs a time for.
type slotRequest struct {
	date     time.Time
	dated    bool
	duration time.Duration
}

// slotStrategy proposes a slot; ok is false when it does not apply.
type slotStrategy struct {
	name string
	pick func(r *executionRun, ctx context.Context, req slotRequest) (slot calendar.TimeSlot, ok bool, err error)
}

// createStrategies are tried in order until one yields a slot.
var createStrategies = []slotStrategy{
	{name: "first free slot on the requested date", pick: (*executionRun).slotOnDate},
	{name: "default time on the requested date", pick: (*executionRun).defaultOnDate},
	{name: "slot found earlier in this batch", pick: (*executionRun).bufferedSlot},
	{name: "next free slot", pick: (*executionRun).nextFreeSlot},
}

func (r *executionRun) slotOnDate(ctx context.Context, req slotRequest) (calendar.TimeSlot, bool, error) {
	if !req.dated {
		return calendar.TimeSlot{}, false, nil
	}
	slots, err := r.freeSlots(ctx, req.duration, datedSlotLimit)
	if err != nil {
		return calendar.TimeSlot{}, false, err
	}
	matching := calendar.SlotsOn(slots, req.date, r.cfg.Hours.Location)
	if len(matching) == 0 {
		return calendar.TimeSlot{}, false, nil
	}
	return matching[0], true, nil
}

func (r *executionRun) defaultOnDate(_ context.Context, req slotRequest) (calendar.TimeSlot, bool, error) {
	if !req.dated {
		return calendar.TimeSlot{}, false, nil
	}
	start := defaultMeetingTime.On(req.date, r.cfg.Hours.Location)
	return calendar.TimeSlot{Start: start, End: start.Add(req.duration)}, true, nil
}

func (r *executionRun) bufferedSlot(_ context.Context, req slotRequest) (calendar.TimeSlot, bool, error) {
	if req.dated {
		return calendar.TimeSlot{}, false, nil
	}
	for i, s := range r.buffer {
		if s.End.Sub(s.Start) >= req.duration {
			r.buffer = append(r.buffer[:i:i], r.buffer[i+1:]...)
			return calendar.TimeSlot{Start: s.Start, End: s.Start.Add(req.duration)}, true, nil
		}
	}
	return calendar.TimeSlot{}, false, nil
}

func (r *executionRun) nextFreeSlot(ctx context.Context, req slotRequest) (calendar.TimeSlot, bool, error) {
	if req.dated {
		return calendar.TimeSlot{}, false, nil
	}
	slots, err := r.freeSlots(ctx, req.duration, 1)
	if err != nil || len(slots) == 0 {
		return calendar.TimeSlot{}, false, err
	}
	return slots[0], true, nil
}

func (r *executionRun) resolveSlot(ctx context.Context, req slotRequest) (calendar.TimeSlot, error) {
	for _, s := range createStrategies {
		slot, ok, err := s.pick(r, ctx, req)
		if err != nil {
			return calendar.TimeSlot{}, err
		}
		if ok {
			r.rec.Add(progress.LogProcessing, "Using %s: %s", s.name, slot)
			return slot, nil
		}
	}
	return calendar.TimeSlot{}, errNoSlot
}

func (r *executionRun) createEvent(ctx context.Context, a Action) ExecutionResult {
	title := a.Title
	if title == "" {
		title = defaultTitle
	}
	req := slotRequest{duration: a.Duration()}
	if a.Date != "" {
		date, err := time.ParseInLocation(time.DateOnly, a.Date, r.cfg.Hours.Location)
		if err != nil {
			return failed(a.Kind, fmt.Sprintf("Failed to create event %q", title), fmt.Errorf("invalid event_date %q: %w", a.Date, err))
		}
		req.date, req.dated = date, true
	}

	slot, err := r.resolveSlot(ctx, req)
	if errors.Is(err, errNoSlot) {
		return ExecutionResult{
			Status:  StatusError,
			Kind:    a.Kind,
			Message: "Cannot create event: No available slots found",
			Detail:  "Title: " + title,
		}
	}
	if err != nil {
		r.logger.Error("CREATE_EVENT %q failed: %v", title, err)
		return failed(a.Kind, fmt.Sprintf("Failed to create event %q", title), err)
	}

	var emails []string
	if len(a.Attendees) > 0 {
		emails = r.resolver.Emails(a.Attendees)
		r.rec.Add(progress.LogProcessing, "Mapped %d attendees to %d addresses", len(a.Attendees), len(emails))
	}

	writeCtx, span := observability.ChildSpan(ctx, observability.SpanCalendarWrite,
		attribute.String(observability.AttrActionKind, string(a.Kind)))
	id, err := r.store.CreateEvent(writeCtx, calendar.NewEvent{
		Title:       title,
		Start:       slot.Start,
		End:         slot.End,
		Description: a.Notes,
		Attendees:   emails,
	})
	observability.EndSpan(span, err)
	if err != nil {
		r.logger.Error("CREATE_EVENT %q failed: %v", title, err)
		return failed(a.Kind, fmt.Sprintf("Failed to create event %q", title), err)
	}
	r.logger.Info("Created event %q with id %s", title, id)

	attendeeInfo := ""
	if len(emails) > 0 {
		attendeeInfo = fmt.Sprintf(" with %d attendees", len(emails))
	}
	return ExecutionResult{
		Status:  StatusSuccess,
		Kind:    a.Kind,
		Message: fmt.Sprintf("Created event %q%s", title, attendeeInfo),
		EventID: id,
		Detail:  "Scheduled for " + slot.Start.Format(time.RFC3339),
		Slots:   []calendar.TimeSlot{slot},
	}
}
