package changequeue

import (
	"context"

	"budgetPilot/domain"
)

type ResultClass string

const (
	ResultOK        ResultClass = "ok"
	ResultTransient ResultClass = "transient"
	ResultTerminal  ResultClass = "terminal"
)

// ExecResult is what an Executor reports back. The worker pool, not the
// executor, decides what happens next.
type ExecResult struct {
	Class    ResultClass
	Response map[string]any
	Err      error
}

func OK(response map[string]any) ExecResult {
	return ExecResult{Class: ResultOK, Response: response}
}

// Transient marks a failure worth retrying, including ambiguous outcomes.
func Transient(err error) ExecResult {
	return ExecResult{Class: ResultTransient, Err: err}
}

// Terminal marks a definitive rejection.
func Terminal(err error) ExecResult {
	return ExecResult{Class: ResultTerminal, Err: err}
}

func (r ExecResult) errString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Executor applies one change to the external platform. Implementations
// must treat the change as an idempotent "set to value".
type Executor interface {
	Execute(ctx context.Context, change domain.PendingChange) ExecResult
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, change domain.PendingChange) ExecResult

func (f ExecutorFunc) Execute(ctx context.Context, change domain.PendingChange) ExecResult {
	return f(ctx, change)
}
