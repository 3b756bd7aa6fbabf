// Package state implements the workflow state projection layer from spec
// §4.3: a single versioned map mutated exclusively by reducers keyed on
// signal name, exposed to readers as an immutable snapshot.
//
// The store is grounded on the teacher's pkg/workflow.StateMachine
// (internal/workflow.go) for its mutex-guarded, hook-driven transition
// shape, generalised from a fixed idle/running/complete/aborted/failed
// enum to an arbitrary reducer registry over a key/value map.
package state

import (
	"context"
	"sync"

	"github.com/open-harness/openharness/pkg/signal"
)

// Reducer folds a signal into the draft of a workflow's state. Reducers
// must be pure: reads return the current draft value, writes accumulate
// into the journal that is committed atomically once the reducer
// returns. A returned error aborts the commit and is reported to the
// caller of ApplySignal as a fatal error (spec §4.3 error policy).
type Reducer func(draft *Draft, sig signal.Signal) error

// Snapshot is an immutable view of workflow state at a point in time.
// Callers must not mutate the map returned by Values; Get returns
// individual values by reference and is always safe.
type Snapshot struct {
	Version int64
	values  map[string]any
}

// Get returns the value stored at key and whether it was present.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Values returns the full key/value map. The returned map must be
// treated as read-only; mutating it does not affect the store and may
// race with concurrent reads.
func (s Snapshot) Values() map[string]any {
	return s.values
}

// ChangeHandler is notified after a committed write. key is empty when
// subscribed to the whole state rather than a single key.
type ChangeHandler func(change signal.StateChange)

type subscription struct {
	key     string // empty means "all keys"
	handler ChangeHandler
}

// Store holds one run's workflow state. It is safe for concurrent use;
// reducer application is additionally serialised per run via applyMu so
// that "a reducer runs to completion for one signal before the next
// signal's reducer begins" (spec §3 invariant) holds even if ApplySignal
// is invoked concurrently, which the harness never does but tests may.
type Store struct {
	applyMu sync.Mutex // serialises ApplySignal end-to-end

	mu       sync.RWMutex // guards current and subs
	current  Snapshot
	reducers map[string]Reducer
	subs     []*subscription
}

// New creates a Store seeded with initial state at version 0. A nil
// initial map is treated as empty.
func New(initial map[string]any) *Store {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Store{
		current:  Snapshot{Version: 0, values: values},
		reducers: make(map[string]Reducer),
	}
}

// Get returns the current committed snapshot.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// RegisterReducer attaches reducer to run whenever a signal named
// signalName is applied. Registering a second reducer for the same name
// replaces the first; the spec models a 1:1 signal-name-to-reducer
// mapping (§3: "reducer(draft, signal) -> void" keyed by signal name).
func (s *Store) RegisterReducer(signalName string, reducer Reducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reducers[signalName] = reducer
}

// Subscribe registers handler to be notified after a committed write. If
// key is non-empty, handler only fires for changes to that key.
func (s *Store) Subscribe(key string, handler ChangeHandler) func() {
	sub := &subscription{key: key, handler: handler}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// ApplySignal looks up the reducer registered for sig.Name, runs it
// against a draft of the current state, and commits the result. It
// satisfies hub.StateHook structurally, so the hub can call it directly
// without either package importing the other.
//
// Per spec §4.3, this is invoked by the hub after sig is persisted and
// before it is dispatched to subscribers. A reducer error is fatal and
// propagated to the caller unmodified; the caller (the hub) is
// responsible for wrapping it, halting further processing, and emitting
// the error:reducer signal.
func (s *Store) ApplySignal(_ context.Context, sig signal.Signal) ([]signal.StateChange, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.RLock()
	reducer, ok := s.reducers[sig.Name]
	before := s.current
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	draft := newDraft(before.values)
	if err := reducer(draft, sig); err != nil {
		return nil, err
	}
	if len(draft.order) == 0 {
		return nil, nil
	}

	next := make(map[string]any, len(before.values)+len(draft.order))
	for k, v := range before.values {
		next[k] = v
	}

	changes := make([]signal.StateChange, 0, len(draft.order))
	newVersion := before.Version + 1
	for _, key := range draft.order {
		oldValue, existed := before.values[key]
		if draft.isDeleted(key) {
			if !existed {
				continue
			}
			delete(next, key)
			changes = append(changes, signal.StateChange{Changed: true, Key: key, OldValue: oldValue, NewValue: nil, Version: newVersion})
			continue
		}
		newValue := draft.journal[key]
		next[key] = newValue
		changes = append(changes, signal.StateChange{Changed: true, Key: key, OldValue: oldValue, NewValue: newValue, Version: newVersion})
	}

	if len(changes) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	s.current = Snapshot{Version: newVersion, values: next}
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, change := range changes {
		for _, sub := range subs {
			if sub.key == "" || sub.key == change.Key {
				sub.handler(change)
			}
		}
	}

	return changes, nil
}
