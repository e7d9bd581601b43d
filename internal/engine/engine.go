// SPDX-License-Identifier: MPL-2.0

// Package engine runs one script per call against the capability registry
// and always produces a structured Result.
//
// The script body is the body of an async JavaScript function whose only
// parameters are the capability dispatch object and the progress function:
//
//	const files = await capabilities.fs.glob({ pattern: "**/*.go" });
//	progress("globbed", { count: files.count });
//	return files.count;
//
// Capability calls return promises. Each call runs on its own goroutine and
// its completion is handed back to the goroutine that owns the JavaScript
// runtime, so concurrent calls (Promise.all) suspend independently and settle
// in completion order.
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ptcrun/ptc/internal/capability"
	"github.com/ptcrun/ptc/internal/progress"
)

type (
	// Engine executes scripts. It may be reused for many sequential runs;
	// resolutions cached in its Registry persist across them. Concurrent
	// Execute calls are serialized.
	Engine struct {
		registry *capability.Registry
		logger   *log.Logger
		sink     progress.Sink
		clock    func() time.Time

		mu sync.Mutex
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithLogger sets the logger for run diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgressSink sets where progress events are mirrored live.
func WithProgressSink(sink progress.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithClock overrides the wall clock used for progress timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New creates an Engine over registry.
func New(registry *capability.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		logger:   log.New(io.Discard),
		sink:     progress.Discard,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry scripts resolve capabilities against.
func (e *Engine) Registry() *capability.Registry {
	return e.registry
}

// Execute runs source once and returns its result. It never returns nil.
//
// The engine imposes no deadline of its own. Cancelling ctx interrupts the
// script and any capability calls that honor the context, and the run ends
// with an InterruptedError.
func (e *Engine) Execute(ctx context.Context, source string) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	id := uuid.NewString()
	logger := e.logger.With("execution_id", id)
	logger.Debug("execution started", "bytes", len(source))

	events := progress.New(
		progress.MultiSink(e.sink, progress.NewLogSink(logger)),
		progress.WithClock(e.clock),
	)

	r := newRun(ctx, capability.NewDispatcher(e.registry), events)
	output, errInfo := r.execute(source)

	res := &Result{
		ExecutionID:   id,
		Status:        StatusSuccess,
		Output:        output,
		ProgressLogs:  events.Events(),
		ExecutionTime: float64(time.Since(start).Microseconds()) / 1000,
	}
	if errInfo != nil {
		res.Status = StatusError
		res.Output = nil
		res.Error = errInfo
	}

	if res.Success() {
		logger.Debug("execution finished", "status", res.Status, "elapsed", time.Since(start))
	} else {
		logger.Debug("execution failed", "status", res.Status, "type", res.Error.Type, "error", res.Error.Message, "elapsed", time.Since(start))
	}
	return res
}
