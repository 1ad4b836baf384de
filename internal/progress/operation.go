// Package progress runs a long request while reporting staged progress. A
// scripted generator fills the wait with synthetic ticks until the request
// settles.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
)

type Stage string

const (
	StageInitializing   Stage = "initializing"
	StageSearching      Stage = "searching"
	StageEnhancing      Stage = "enhancing"
	StageGeneratingTips Stage = "generating_tips"
	StageCompleted      Stage = "completed"
	StageError          Stage = "error"
)

var (
	ErrTimeout        = errors.New("progress: operation timed out")
	ErrCancelled      = errors.New("progress: operation cancelled")
	ErrAlreadyStarted = errors.New("progress: operation already started")
)

// OperationError wraps the failure of the underlying request.
type OperationError struct {
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation failed: %v", e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Event is one progress report. Payload is only set on StageCompleted.
type Event[T any] struct {
	Stage   Stage   `json:"stage"`
	Message string  `json:"message"`
	Percent int     `json:"progress"`
	Elapsed float64 `json:"elapsed_seconds"`
	Payload T       `json:"payload,omitempty"`
}

// Step is a scripted progress report emitted Delay after the previous one.
type Step struct {
	Stage   Stage
	Message string
	Percent int
	Delay   time.Duration
}

type Options struct {
	// Script runs while the request is in flight. It should stop short of
	// 100%.
	Script []Step
	// Finish runs after the request succeeds, before StageCompleted.
	Finish []Step
	// Timeout aborts the operation with ErrTimeout. Zero disables it.
	Timeout time.Duration
}

var DefaultScript = []Step{
	{Stage: StageSearching, Message: "Searching nearby places", Percent: 30, Delay: 2 * time.Second},
	{Stage: StageSearching, Message: "Collecting place details", Percent: 45, Delay: 3 * time.Second},
	{Stage: StageSearching, Message: "Ranking results", Percent: 55, Delay: 2500 * time.Millisecond},
	{Stage: StageSearching, Message: "Checking opening hours", Percent: 65, Delay: 1500 * time.Millisecond},
}

// FinishSteps builds the post-success steps with the given spacing.
func FinishSteps(delay time.Duration) []Step {
	return []Step{
		{Stage: StageEnhancing, Message: "Enhancing results", Percent: 70, Delay: delay},
		{Stage: StageGeneratingTips, Message: "Generating tips", Percent: 90, Delay: delay},
	}
}

func DefaultOptions() Options {
	return Options{
		Script:  DefaultScript,
		Finish:  FinishSteps(500 * time.Millisecond),
		Timeout: 600 * time.Second,
	}
}

// Operation is a single-use, cancellable request with a progress timeline.
//
// The listener runs while the operation holds its emission lock, so once
// Abort returns nothing more is delivered. For the same reason the listener
// must not call Abort itself; it may hand that off to another goroutine.
type Operation[T any] struct {
	opts     Options
	listener func(Event[T])
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	started   bool
	settled   bool
	cancelled bool
	stage     Stage
	percent   int
	startTime time.Time
	cancel    context.CancelFunc
}

// New creates an operation. A nil listener discards events.
func New[T any](opts Options, listener func(Event[T])) *Operation[T] {
	if listener == nil {
		listener = func(Event[T]) {}
	}
	return &Operation[T]{
		opts:     opts,
		listener: listener,
		log:      logger.For(logger.PROGRESS),
		now:      time.Now,
	}
}

type result[T any] struct {
	value T
	err   error
}

// Start emits StageInitializing, then runs request alongside the scripted
// generator and blocks until the operation settles. Cancelling ctx behaves
// like Abort.
func (o *Operation[T]) Start(ctx context.Context, request func(context.Context) (T, error)) (T, error) {
	var zero T

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return zero, ErrAlreadyStarted
	}
	o.started = true
	o.startTime = o.now()
	o.cancel = cancel
	o.mu.Unlock()

	o.log.Debug().Dur("timeout", o.opts.Timeout).Int("script_steps", len(o.opts.Script)).Msg("Operation started")
	o.emit(Event[T]{Stage: StageInitializing, Message: "Starting search", Percent: 0})

	results := make(chan result[T], 1)
	go func() {
		v, err := request(runCtx)
		results <- result[T]{value: v, err: err}
	}()

	synthCtx, stopSynth := context.WithCancel(runCtx)
	synthDone := make(chan struct{})
	go func() {
		defer close(synthDone)
		o.simulate(synthCtx)
	}()
	halt := func() {
		stopSynth()
		<-synthDone
	}

	select {
	case r := <-results:
		halt()
		if r.err != nil {
			if runCtx.Err() != nil {
				return zero, o.interrupted(ctx)
			}
			o.log.Warn().Err(r.err).Msg("Operation failed")
			o.emit(Event[T]{Stage: StageError, Message: r.err.Error()})
			return zero, &OperationError{Err: r.err}
		}
		return o.finish(ctx, runCtx, r.value)

	case <-runCtx.Done():
		halt()
		return zero, o.interrupted(ctx)
	}
}

func (o *Operation[T]) finish(parent, runCtx context.Context, value T) (T, error) {
	var zero T

	for _, step := range o.opts.Finish {
		if !sleep(runCtx, step.Delay) {
			return zero, o.interrupted(parent)
		}
		o.emit(Event[T]{Stage: step.Stage, Message: step.Message, Percent: step.Percent})
	}

	if !o.emit(Event[T]{Stage: StageCompleted, Message: "Search complete", Percent: 100, Payload: value}) {
		return zero, o.interrupted(parent)
	}

	o.log.Debug().Float64("elapsed_seconds", o.Elapsed()).Msg("Operation completed")
	return value, nil
}

func (o *Operation[T]) simulate(ctx context.Context) {
	for _, step := range o.opts.Script {
		if !sleep(ctx, step.Delay) {
			return
		}
		o.emit(Event[T]{Stage: step.Stage, Message: step.Message, Percent: step.Percent})
	}
}

// interrupted reports why the run context ended, emitting the matching error
// event unless Abort already did.
func (o *Operation[T]) interrupted(parent context.Context) error {
	o.mu.Lock()
	cancelled := o.cancelled
	o.mu.Unlock()

	switch {
	case cancelled:
		return ErrCancelled
	case parent.Err() != nil:
		o.emit(Event[T]{Stage: StageError, Message: "Search cancelled"})
		return fmt.Errorf("%w: %w", ErrCancelled, parent.Err())
	default:
		o.log.Warn().Dur("timeout", o.opts.Timeout).Msg("Operation timed out")
		o.emit(Event[T]{Stage: StageError, Message: fmt.Sprintf("Search timed out after %s", o.opts.Timeout)})
		return ErrTimeout
	}
}

// Abort cancels a running operation and emits a single error event. It
// reports whether the operation was still running.
func (o *Operation[T]) Abort() bool {
	o.mu.Lock()
	if !o.started || o.settled || o.cancelled {
		o.mu.Unlock()
		return false
	}
	o.cancelled = true
	o.deliverLocked(Event[T]{Stage: StageError, Message: "Search cancelled by user"})
	cancel := o.cancel
	o.mu.Unlock()

	o.log.Info().Msg("Operation aborted")
	cancel()
	return true
}

// Stage returns the stage of the last delivered event.
func (o *Operation[T]) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

func (o *Operation[T]) Cancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// Elapsed returns the seconds since Start.
func (o *Operation[T]) Elapsed() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.elapsedLocked()
}

func (o *Operation[T]) elapsedLocked() float64 {
	if o.startTime.IsZero() {
		return 0
	}
	return o.now().Sub(o.startTime).Seconds()
}

// emit delivers ev unless the operation has settled or been cancelled.
func (o *Operation[T]) emit(ev Event[T]) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.settled || o.cancelled {
		return false
	}
	o.deliverLocked(ev)
	return true
}

func (o *Operation[T]) deliverLocked(ev Event[T]) {
	if ev.Stage == StageError {
		ev.Percent = o.percent
	} else if ev.Percent < o.percent {
		ev.Percent = o.percent
	}
	o.percent = ev.Percent
	o.stage = ev.Stage
	ev.Elapsed = o.elapsedLocked()
	if ev.Stage == StageCompleted || ev.Stage == StageError {
		o.settled = true
	}

	o.log.Trace().Str("stage", string(ev.Stage)).Int("percent", ev.Percent).Msg("Progress")
	o.listener(ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// OptionsFromConfig applies configured timings to the default script.
func OptionsFromConfig(cfg config.ProgressConfig) Options {
	opts := DefaultOptions()
	opts.Finish = FinishSteps(cfg.FinishDelay)
	opts.Timeout = cfg.SearchTimeout
	return opts
}
