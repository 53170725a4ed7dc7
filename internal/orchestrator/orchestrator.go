// Package orchestrator runs a meeting transcript through the fixed analysis
// and action pipeline and reports progress to a broadcaster.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meetflow/internal/attendee"
	"meetflow/internal/calendar"
	mferrors "meetflow/internal/errors"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/mail"
	"meetflow/internal/observability"
	"meetflow/internal/progress"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptyTranscript is returned by Run for a blank transcript.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Config tunes the pipeline.
type Config struct {
	// StageTimeout bounds each stage. Zero disables the bound.
	StageTimeout time.Duration

	ContextDaysBack  int
	ContextDaysAhead int
	ContextMaxEvents int
	// RelatedLimit caps how many calendar events are scored for relevance.
	RelatedLimit   int
	SlotSearchDays int
	Hours          calendar.WorkingHours

	SummaryRecipients []string
	SummarySubject    string
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		StageTimeout:     2 * time.Minute,
		ContextDaysBack:  30,
		ContextDaysAhead: 30,
		ContextMaxEvents: 50,
		RelatedLimit:     20,
		SlotSearchDays:   14,
		Hours:            calendar.DefaultWorkingHours(),
		SummarySubject:   "AI Meeting Summary",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ContextDaysBack <= 0 {
		c.ContextDaysBack = d.ContextDaysBack
	}
	if c.ContextDaysAhead <= 0 {
		c.ContextDaysAhead = d.ContextDaysAhead
	}
	if c.ContextMaxEvents <= 0 {
		c.ContextMaxEvents = d.ContextMaxEvents
	}
	if c.RelatedLimit <= 0 {
		c.RelatedLimit = d.RelatedLimit
	}
	if c.SlotSearchDays <= 0 {
		c.SlotSearchDays = d.SlotSearchDays
	}
	if c.Hours.Location == nil {
		c.Hours.Location = d.Hours.Location
	}
	if c.Hours.Start == (calendar.ClockTime{}) && c.Hours.End == (calendar.ClockTime{}) {
		c.Hours.Start, c.Hours.End = d.Hours.Start, d.Hours.End
		c.Hours.SkipWeekends = d.Hours.SkipWeekends
	}
	if c.SummarySubject == "" {
		c.SummarySubject = d.SummarySubject
	}
	return c
}

// Dependencies wires the collaborators. Generator and Calendar are required.
type Dependencies struct {
	Generator   llm.Generator
	Calendar    calendar.Store
	Resolver    *attendee.Resolver
	Mailer      mail.Mailer
	Broadcaster *progress.Broadcaster
	Metrics     *Metrics
	Tracer      *observability.TracerProvider
	Logger      logging.Logger
	Config      Config
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Orchestrator owns pipeline state for each run and is its only writer
// between stages.
type Orchestrator struct {
	stages      []Stage
	broadcaster *progress.Broadcaster
	metrics     *Metrics
	tracer      *observability.TracerProvider
	logger      logging.Logger
	cfg         Config
	now         func() time.Time
}

// New builds the nine-stage pipeline.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	if deps.Calendar == nil {
		return nil, errors.New("orchestrator: calendar store is required")
	}
	cfg := deps.Config.withDefaults()
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("orchestrator")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = attendee.NewResolver(attendee.FallbackDirectory(), attendee.WithLogger(logger))
	}

	exec := &executor{
		store:    deps.Calendar,
		resolver: resolver,
		cfg:      cfg,
		now:      now,
		logger:   logger,
		metrics:  metrics,
	}
	gen := deps.Generator
	return &Orchestrator{
		stages: []Stage{
			analyzeStage{gen: gen, logger: logger},
			researchStage{gen: gen, logger: logger},
			calendarStage{store: deps.Calendar, cfg: cfg, now: now},
			relatedStage{gen: gen, cfg: cfg, logger: logger},
			planStage{gen: gen, cfg: cfg, now: now, logger: logger},
			decisionStage{gen: gen, logger: logger},
			riskStage{gen: gen, logger: logger},
			executeStage{exec: exec},
			summaryStage{gen: gen, mailer: deps.Mailer, cfg: cfg, now: now, logger: logger},
		},
		broadcaster: deps.Broadcaster,
		metrics:     metrics,
		tracer:      deps.Tracer,
		logger:      logger,
		cfg:         cfg,
		now:         now,
	}, nil
}

// Stages returns the stage names in run order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name()
	}
	return names
}

// Input starts a run.
type Input struct {
	Transcript  string
	AutoExecute bool
	// WorkflowID is generated when empty.
	WorkflowID string
}

// NewWorkflowID returns a short random run identifier.
func NewWorkflowID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// StageError reports the stage that halted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Run drives the transcript through every stage in order. On failure the
// returned Result still carries everything produced before the failing
// stage, and the error is a *StageError.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return Result{}, ErrEmptyTranscript
	}
	id := in.WorkflowID
	if id == "" {
		id = NewWorkflowID()
	}
	ctx = logging.ContextWithWorkflowID(ctx, id)
	logger := logging.FromContext(ctx, o.logger)

	ctx, span := o.tracer.StartSpan(ctx, observability.SpanWorkflowRun,
		attribute.String(observability.AttrWorkflowID, id))
	o.metrics.IncActiveRuns()
	defer o.metrics.DecActiveRuns()

	started := o.now()
	st := State{WorkflowID: id, Transcript: in.Transcript, AutoExecute: in.AutoExecute}
	logger.Info("Workflow started (auto_execute=%t, %d stages)", in.AutoExecute, len(o.stages))

	for _, stage := range o.stages {
		next, err := o.runStage(ctx, stage, st)
		if err != nil {
			failure := &StageError{Stage: stage.Name(), Err: err}
			logger.Error("Workflow halted: %s", mferrors.FormatForDisplay(failure))
			res := newResult(st, started, o.now(), failure)
			o.publish(progress.Event{
				Type:       progress.EventWorkflowError,
				Stage:      stage.Name(),
				Title:      stage.Title(),
				WorkflowID: id,
				Timestamp:  o.now(),
				Data:       res,
			})
			o.metrics.IncRun("error")
			observability.EndSpan(span, failure)
			return res, failure
		}
		st = next
	}

	res := newResult(st, started, o.now(), nil)
	o.publish(progress.Event{
		Type:       progress.EventWorkflowComplete,
		WorkflowID: id,
		Timestamp:  o.now(),
		Data:       res,
	})
	o.metrics.IncRun("success")
	observability.EndSpan(span, nil)
	logger.Info("Workflow complete: %d actions, %d succeeded, %d failed",
		len(st.Actions), Count(st.Results, StatusSuccess), Count(st.Results, StatusError))
	return res, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, st State) (State, error) {
	name := stage.Name()
	rec := newRecorder(o.now)
	rec.Add(progress.LogProcessing, "Starting %s", stage.Title())
	rec.Add(progress.LogInput, "%s", stage.Input(st))
	o.publish(progress.Event{
		Type:       progress.EventStageStart,
		Stage:      name,
		Title:      stage.Title(),
		WorkflowID: st.WorkflowID,
		Timestamp:  o.now(),
		Logs:       rec.Entries(),
	})

	stageCtx := ctx
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}
	stageCtx, span := o.tracer.StartSpan(stageCtx, observability.SpanStageRun,
		attribute.String(observability.AttrWorkflowID, st.WorkflowID),
		attribute.String(observability.AttrStage, name))

	started := time.Now()
	next, err := stage.Run(stageCtx, st, rec)
	elapsed := time.Since(started)
	observability.EndSpan(span, err)

	if err != nil {
		o.metrics.ObserveStageDuration(name, "failed", elapsed)
		o.metrics.IncStageFailure(name, failureReason(err))
		return st, err
	}
	o.metrics.ObserveStageDuration(name, "success", elapsed)
	o.publish(progress.Event{
		Type:       progress.EventStageComplete,
		Stage:      name,
		Title:      stage.Title(),
		WorkflowID: st.WorkflowID,
		Timestamp:  o.now(),
		Logs:       rec.Entries(),
		Data:       map[string]any{"status": "success", "duration_ms": elapsed.Milliseconds()},
	})
	return next, nil
}

func (o *Orchestrator) publish(ev progress.Event) {
	if o.broadcaster != nil {
		o.broadcaster.Publish(ev)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case mferrors.IsTransient(err):
		return "transient"
	case mferrors.IsPermanent(err):
		return "permanent"
	default:
		return "error"
	}
}
