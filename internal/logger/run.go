package logger

import (
	"context"

	"github.com/google/uuid"
)

type runKey struct{}

// RunContext identifies one invocation of the tool so that log lines and
// history rows written by concurrent workers can be correlated.
type RunContext struct {
	RunID   string
	Command string
	Source  string
}

// NewRunContext returns a RunContext with a fresh random run id.
func NewRunContext(command string) RunContext {
	return RunContext{
		RunID:   uuid.NewString(),
		Command: command,
	}
}

// ContextWithRun returns a derived context carrying the provided run metadata.
func ContextWithRun(ctx context.Context, run RunContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runKey{}, run)
}

// RunFromContext extracts a RunContext from ctx.
func RunFromContext(ctx context.Context) RunContext {
	if ctx == nil {
		return RunContext{}
	}
	if run, ok := ctx.Value(runKey{}).(RunContext); ok {
		return run
	}
	return RunContext{}
}

// WithSource returns ctx with the run's Source replaced, e.g. the jar being processed.
func WithSource(ctx context.Context, source string) context.Context {
	run := RunFromContext(ctx)
	run.Source = source
	return ContextWithRun(ctx, run)
}

func (r RunContext) fields() []Field {
	var fields []Field
	if r.RunID != "" {
		fields = append(fields, String("run_id", r.RunID))
	}
	if r.Command != "" {
		fields = append(fields, String("command", r.Command))
	}
	if r.Source != "" {
		fields = append(fields, String("source", r.Source))
	}
	return fields
}
