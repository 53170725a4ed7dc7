package logging

import "context"

type workflowIDKey struct{}

// ContextWithWorkflowID stores a workflow id on ctx.
func ContextWithWorkflowID(ctx context.Context, workflowID string) context.Context {
	if workflowID == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowIDKey{}, workflowID)
}

// WorkflowIDFromContext returns the workflow id stored on ctx, if any.
func WorkflowIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(workflowIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithWorkflowID returns a logger that tags log lines with a workflow id.
func WithWorkflowID(logger Logger, workflowID string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if workflowID == "" {
		return logger
	}
	return &workflowLogger{logger: logger, workflowID: workflowID}
}

// FromContext returns a logger tagged with the workflow id found in ctx, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	return WithWorkflowID(logger, WorkflowIDFromContext(ctx))
}

type workflowLogger struct {
	logger     Logger
	workflowID string
}

func (l *workflowLogger) Debug(format string, args ...any) {
	l.logger.Debug(l.prefix(format), args...)
}

func (l *workflowLogger) Info(format string, args ...any) {
	l.logger.Info(l.prefix(format), args...)
}

func (l *workflowLogger) Warn(format string, args ...any) {
	l.logger.Warn(l.prefix(format), args...)
}

func (l *workflowLogger) Error(format string, args ...any) {
	l.logger.Error(l.prefix(format), args...)
}

func (l *workflowLogger) prefix(format string) string {
	return "[wf:" + l.workflowID + "] " + format
}
