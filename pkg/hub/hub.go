// Package hub implements the in-process signal broker described in
// spec §4.1: pattern-based subscription, ordered emission, ambient
// context propagation, and cooperative cancellation.
//
// The broker is grounded on the teacher's pkg/workflow.EventEmitter
// (registration-order dispatch, failure-isolated listeners, sync/async
// modes) generalised from a fixed three-event-type enum to arbitrary
// colon-delimited signal names matched by pkg/signal.Pattern.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	harnesserrors "github.com/open-harness/openharness/pkg/errors"
	"github.com/open-harness/openharness/pkg/signal"
)

// Handler receives a dispatched signal. Handlers must either run
// synchronously to completion or hand work off to an internal queue; the
// hub itself never awaits a handler (§5's suspension-point rule: "the hub
// itself does not await"). A returned error is logged but does not halt
// dispatch to the remaining handlers (failure isolation, §4.1).
type Handler func(ctx context.Context, sig signal.Signal) error

// Persister is the append-only log the hub writes every signal to before
// any subscriber observes it (§3's "a signal is written to the log before
// any subscriber observes it" invariant). pkg/recorder.Recorder satisfies
// this interface; tests may pass nil to run without recording.
type Persister interface {
	Append(ctx context.Context, sig signal.Signal) error
}

// StateHook lets a state store observe every persisted signal before it
// is dispatched to subscribers, per the ordering rule in spec §4.3:
// "persist, apply reducer, emit state-change (if any), dispatch to
// subscribers". pkg/state.Store satisfies this interface structurally;
// the hub package does not import pkg/state.
type StateHook interface {
	ApplySignal(ctx context.Context, sig signal.Signal) ([]signal.StateChange, error)
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once; the second call is a no-op.
type Unsubscribe func()

type subscription struct {
	id      uint64
	pattern signal.Pattern
	handler Handler
	// removed is set once Unsubscribe has been called. A subscription
	// snapshot taken mid-dispatch still honours removal: the dispatch
	// loop checks this flag before invoking, so "unsubscription during
	// dispatch removes the handler before its next invocation but does
	// not cancel the current one" holds even when the handler was
	// already captured in the snapshot for signal N+1's dispatch.
	removed bool
}

// Hub is the run-scoped signal broker. One Hub exists per run.
type Hub struct {
	logger    *slog.Logger
	persister Persister
	stateHook StateHook

	// dispatchMu serialises the whole assign-persist-dispatch sequence
	// per emission, giving the "one signal is being dispatched at any
	// time; additional emit calls queue" guarantee from §4.1 and §5 for
	// free: callers simply block on the mutex.
	dispatchMu sync.Mutex

	subsMu  sync.Mutex
	subs    []*subscription
	nextSub uint64

	nextID int64

	cancelled bool
	cancelErr error
}

// Option configures a Hub at construction.
type Option func(*Hub)

// WithPersister attaches the append-only log a Hub writes to.
func WithPersister(p Persister) Option {
	return func(h *Hub) { h.persister = p }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithStateHook attaches the state store whose reducers run against every
// persisted signal ahead of subscriber dispatch.
func WithStateHook(hook StateHook) Option {
	return func(h *Hub) { h.stateHook = hook }
}

// New creates a Hub with no signals emitted yet (the next emission gets
// id 0, satisfying the "dense 0-based sequence" invariant).
func New(opts ...Option) *Hub {
	h := &Hub{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers handler for signals whose name matches pattern.
// Registering the same handler twice means it is invoked twice per
// matching signal, per §4.1's tie-break rule.
func (h *Hub) Subscribe(pattern signal.Pattern, handler Handler) Unsubscribe {
	h.subsMu.Lock()
	h.nextSub++
	sub := &subscription{id: h.nextSub, pattern: pattern, handler: handler}
	h.subs = append(h.subs, sub)
	h.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subsMu.Lock()
			sub.removed = true
			h.subsMu.Unlock()
		})
	}
}

// SubscriberCount reports the number of live (non-unsubscribed)
// subscriptions, optionally restricted to those matching name.
func (h *Hub) SubscriberCount(name string) int {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	n := 0
	for _, s := range h.subs {
		if s.removed {
			continue
		}
		if name == "" || s.pattern.Match(name) {
			n++
		}
	}
	return n
}

// Emit assigns the next id and timestamp, persists the record, then
// invokes every matching handler in registration order. Emission is
// rejected once the hub has been cancelled (§4.1: "After cancellation,
// emission is rejected").
func (h *Hub) Emit(ctx context.Context, name string, payload any) (signal.Signal, error) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	if h.cancelled {
		return signal.Signal{}, fmt.Errorf("hub: emit rejected after cancellation: %w", h.cancelErr)
	}
	return h.emitLocked(ctx, name, payload)
}

// emitLocked performs the assign-persist-dispatch sequence. Callers must
// hold dispatchMu.
func (h *Hub) emitLocked(ctx context.Context, name string, payload any) (signal.Signal, error) {
	id := h.nextID
	h.nextID++

	var runID, source string
	if ac, ok := AgentContextFrom(ctx); ok {
		runID = ac.RunID
		source = ac.AgentName
	}

	sig := signal.Signal{
		ID:        id,
		Name:      name,
		Timestamp: time.Now(),
		Payload:   payload,
		Source:    source,
		RunID:     runID,
	}

	if h.persister != nil {
		if err := h.persister.Append(ctx, sig); err != nil {
			persistErr := fmt.Errorf("hub: persist signal %d (%s): %w", sig.ID, sig.Name, err)
			h.cancelled = true
			h.cancelErr = persistErr
			return signal.Signal{}, persistErr
		}
	}

	if h.stateHook != nil {
		changes, err := h.stateHook.ApplySignal(ctx, sig)
		if err != nil {
			var key string
			if len(changes) > 0 {
				key = changes[0].Key
			}
			reducerErr := &harnesserrors.ReducerError{SignalID: sig.ID, SignalName: sig.Name, Key: key, Cause: err}
			// Best effort: get the failure onto the log and to any
			// subscriber watching for it before the hub stops accepting
			// further emissions. A failure here is swallowed; the
			// reducer error itself is what's surfaced to the caller.
			_, _ = h.emitLocked(ctx, signal.NameErrorReducer, map[string]any{
				"signalId":   sig.ID,
				"signalName": sig.Name,
				"key":        key,
				"error":      err.Error(),
			})
			h.cancelled = true
			h.cancelErr = reducerErr
			return sig, reducerErr
		}
		for _, change := range changes {
			if !change.Changed {
				continue
			}
			if _, err := h.emitLocked(ctx, signal.StateChangedName(change.Key), change); err != nil {
				return sig, err
			}
		}
	}

	h.dispatch(ctx, sig)
	return sig, nil
}

// dispatch snapshots the current subscriber list and invokes every
// handler whose pattern matches sig.Name, in registration order.
// Subscriptions added after this snapshot is taken do not receive sig;
// they begin at the next emission (§4.1).
func (h *Hub) dispatch(ctx context.Context, sig signal.Signal) {
	h.subsMu.Lock()
	snapshot := make([]*subscription, len(h.subs))
	copy(snapshot, h.subs)
	h.subsMu.Unlock()

	for _, sub := range snapshot {
		h.subsMu.Lock()
		removed := sub.removed
		h.subsMu.Unlock()
		if removed {
			continue
		}
		if !sub.pattern.Match(sig.Name) {
			continue
		}
		if err := sub.handler(ctx, sig); err != nil {
			h.logger.Warn("hub: subscriber handler returned an error",
				"signal_id", sig.ID, "signal_name", sig.Name, "error", err)
		}
	}
}

// Cancel flips the run's cancellation flag and emits a terminal
// workflow:aborted signal carrying reason. After Cancel returns, all
// subsequent Emit calls are rejected.
func (h *Hub) Cancel(ctx context.Context, reason string) (signal.Signal, error) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	if h.cancelled {
		return signal.Signal{}, h.cancelErr
	}

	sig, err := h.emitLocked(ctx, signal.NameWorkflowAborted, map[string]any{"reason": reason})
	h.cancelled = true
	h.cancelErr = fmt.Errorf("run cancelled: %s", reason)
	return sig, err
}

// Cancelled reports whether Cancel has already been called.
func (h *Hub) Cancelled() bool {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	return h.cancelled
}
