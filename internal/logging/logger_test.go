package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"meetflow/internal/observability"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.add(format) }
func (r *recordingLogger) Info(format string, args ...any)  { r.add(format) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.add(format) }
func (r *recordingLogger) Error(format string, args ...any) { r.add(format) }
func (r *recordingLogger) add(format string)               { r.lines = append(r.lines, format) }

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var rec *recordingLogger
	var logger Logger = rec
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world")
}

func TestFromObservabilityFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "text",
		Output: buf,
	})

	logger := FromObservabilityWithComponent(base, "test")
	logger.Info("hello %s", "world")

	if want := "hello world"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
	if !strings.Contains(buf.String(), "component=test") {
		t.Fatalf("expected component attribute, got %q", buf.String())
	}
}

func TestComponentLoggerFollowsConfiguredBase(t *testing.T) {
	logger := NewComponentLogger("late")

	buf := &bytes.Buffer{}
	SetBase(observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: buf}))
	t.Cleanup(func() {
		Configure(observability.LogConfig{Level: "info", Format: "text"})
	})

	logger.Debug("value=%d", 42)
	if !strings.Contains(buf.String(), `"msg":"value=42"`) {
		t.Fatalf("expected json record, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"component":"late"`) {
		t.Fatalf("expected component field, got %q", buf.String())
	}
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	var missing *recordingLogger

	logger := Multi(a, Multi(b, missing), nil)
	logger.Warn("fan out")

	if len(a.lines) != 1 || len(b.lines) != 1 {
		t.Fatalf("expected both loggers to receive the line, got %v / %v", a.lines, b.lines)
	}
	if _, ok := Multi(nil, missing).(nopLogger); !ok {
		t.Fatalf("expected Multi with no loggers to return Nop")
	}
}

func TestWorkflowIDPrefix(t *testing.T) {
	rec := &recordingLogger{}
	ctx := ContextWithWorkflowID(context.Background(), "ab12cd34")

	FromContext(ctx, rec).Info("stage done")
	FromContext(context.Background(), rec).Info("untagged")

	if rec.lines[0] != "[wf:ab12cd34] stage done" {
		t.Fatalf("unexpected tagged line %q", rec.lines[0])
	}
	if rec.lines[1] != "untagged" {
		t.Fatalf("unexpected untagged line %q", rec.lines[1])
	}
}
