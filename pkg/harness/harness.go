// Package harness implements the reactive scheduler described in spec
// §4.5: the main loop that owns the hub, the state store, and the
// activation budget, turning a static set of agent definitions and an
// initial signal into a run that proceeds until termination.
//
// It is grounded on the teacher's internal/controller/runner.Runner:
// same shape (own the execution context, the adapter, a waitgroup of
// in-flight work, a single terminal-status transition guarded by
// sync.Once), generalized from a fixed DAG-of-steps executor onto the
// spec's fully reactive, signal-matched scheduling model.
package harness

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	internallog "github.com/open-harness/openharness/internal/log"
	"github.com/open-harness/openharness/pkg/agent"
	harnesserrors "github.com/open-harness/openharness/pkg/errors"
	"github.com/open-harness/openharness/pkg/harness/metrics"
	"github.com/open-harness/openharness/pkg/hub"
	"github.com/open-harness/openharness/pkg/recorder"
	"github.com/open-harness/openharness/pkg/signal"
	"github.com/open-harness/openharness/pkg/state"
)

// Harness is one run's scheduler: it owns a Hub, a state Store, the
// agent roster, and the bookkeeping needed to decide when the run
// terminates (spec §4.5).
type Harness struct {
	runID     string
	opts      Options
	hub       *hub.Hub
	store     *state.Store
	guards    *agent.GuardEvaluator
	extractor *agent.Extractor
	logger    *slog.Logger
	recording *recorder.Recorder

	cancelRun  context.CancelFunc
	runningCtx context.Context

	mu          sync.Mutex
	terminated  bool
	status      Status
	reason      string
	activations int
	perAgent    map[string]int
	signals     []signal.Signal

	activationWG sync.WaitGroup
	finishOnce   sync.Once
	done         chan struct{}
}

// RunWorkflow is the boundary API described in spec §6:
// "runWorkflow({agents, initialState, endWhen, recording?, input?}) ->
// {state, signals, metrics, recordingId?}".
func RunWorkflow(ctx context.Context, opts Options) (Result, error) {
	h, err := newHarness(opts)
	if err != nil {
		return Result{}, err
	}

	if opts.Recording.Mode == ModeReplay {
		return h.runReplay(ctx)
	}
	return h.runLive(ctx)
}

func newHarness(opts Options) (*Harness, error) {
	if opts.Recording.Mode == ModeReplay {
		if opts.Recording.Store == nil || opts.Recording.RunID == "" {
			return nil, fmt.Errorf("harness: replay mode requires both a store and a recordingId")
		}
	}
	if opts.Recording.Mode == ModeRecord && opts.Recording.Store == nil {
		return nil, fmt.Errorf("harness: record mode requires a store")
	}
	// Replay never calls an execution adapter (spec §4.2), so Agents may
	// be supplied there purely to register their Updates reducers without
	// a matching Adapters entry.
	if opts.Recording.Mode != ModeReplay {
		for _, def := range opts.Agents {
			if _, ok := opts.Adapters[def.Name]; !ok {
				return nil, fmt.Errorf("harness: agent %q has no execution adapter configured", def.Name)
			}
		}
	}

	runID := opts.Recording.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger := slog.Default()
	store := state.New(opts.InitialState)
	for _, def := range opts.Agents {
		if def.Updates != "" {
			store.RegisterReducer(def.EmitName(), agent.UpdateReducer(def))
		}
	}

	h := &Harness{
		runID:     runID,
		opts:      opts,
		store:     store,
		guards:    agent.NewGuardEvaluator(),
		extractor: agent.NewExtractor(0, 0),
		logger:    internallog.WithRunContext(logger, runID, "openharness"),
		perAgent:  make(map[string]int),
		done:      make(chan struct{}),
	}

	hubOpts := []hub.Option{hub.WithLogger(h.logger)}
	if opts.Recording.Mode != ModeReplay {
		hubOpts = append(hubOpts, hub.WithStateHook(store))
	}
	if opts.Recording.Mode == ModeRecord {
		rec, err := recorder.New(context.Background(), opts.Recording.Store, runID)
		if err != nil {
			return nil, fmt.Errorf("harness: open recording: %w", err)
		}
		h.recording = rec
		hubOpts = append(hubOpts, hub.WithPersister(rec))
	}
	h.hub = hub.New(hubOpts...)
	if opts.Recording.Mode == ModeReplay {
		// A recording already holds every state:<key>:changed signal the
		// live run derived, so replay folds signals into the store through
		// a plain subscriber rather than the state hook, which would emit
		// them a second time and shift every later signal id.
		h.hub.Subscribe("*", func(ctx context.Context, sig signal.Signal) error {
			_, err := store.ApplySignal(ctx, sig)
			return err
		})
	}
	h.hub.Subscribe("*", h.onSignal)

	return h, nil
}

// runLive drives a live (optionally recorded) run: emit workflow:started
// and workflow:start, then react to whatever signals that produces until
// terminated() holds (spec §4.5).
func (h *Harness) runLive(ctx context.Context) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancelRun = cancel
	h.runningCtx = runCtx
	defer cancel()

	if h.opts.Tracer != nil {
		var span trace.Span
		runCtx, span = h.opts.Tracer.StartRun(runCtx, h.runID)
		h.runningCtx = runCtx
		defer span.End()
	}

	start := time.Now()

	if h.opts.Timeout > 0 {
		timer := time.AfterFunc(h.opts.Timeout, func() { h.finish(StatusAborted, "timeout") })
		defer timer.Stop()
	}

	if _, err := h.hub.Emit(runCtx, signal.NameWorkflowStarted, nil); err != nil {
		h.finish(StatusFailed, err.Error())
	}
	if _, err := h.hub.Emit(runCtx, signal.NameWorkflowStart, h.opts.Input); err != nil {
		h.finish(StatusFailed, err.Error())
	}

	// Emit dispatches synchronously, so every activation workflow:start
	// triggered is already counted in activationWG when this waiter starts.
	go func() {
		h.activationWG.Wait()
		h.finish(StatusComplete, "quiescent")
	}()

	select {
	case <-h.done:
	case <-ctx.Done():
		h.finish(StatusAborted, "cancelled")
		<-h.done
	}

	// Give any activations still in flight (e.g. ones that were
	// scheduled before termination but haven't returned yet) a chance
	// to drain before the result is assembled.
	h.activationWG.Wait()

	if h.recording != nil {
		if err := h.recording.Finalize(context.Background(), time.Since(start).Milliseconds()); err != nil {
			h.logger.Warn("harness: failed to finalize recording", internallog.Error(err))
		}
	}

	return h.buildResult(time.Since(start)), nil
}

// runReplay re-emits a previously recorded signal log through a fresh
// Hub, bypassing agent execution entirely (spec §4.2).
func (h *Harness) runReplay(ctx context.Context) (Result, error) {
	start := time.Now()
	replayer := recorder.NewReplayer(h.opts.Recording.Store)

	sigs, err := replayer.Replay(ctx, h.opts.Recording.RunID, h.hub, 0)
	if err != nil {
		reason := err.Error()
		var divergence *harnesserrors.ReplayDivergenceError
		if stderrors.As(err, &divergence) {
			reason = "replay-divergence"
		}
		return Result{
			Status:      StatusFailed,
			Reason:      reason,
			State:       h.store.Get(),
			Signals:     sigs,
			RecordingID: h.opts.Recording.RunID,
		}, nil
	}

	return Result{
		Status:      StatusComplete,
		Reason:      "replayed",
		State:       h.store.Get(),
		Signals:     sigs,
		Metrics:     Metrics{SignalCount: int64(len(sigs)), DurationMs: time.Since(start).Milliseconds()},
		RecordingID: h.opts.Recording.RunID,
	}, nil
}

// onSignal is the Hub subscription that implements the matching and
// scheduling half of the main loop in spec §4.5. It runs serialized
// with every other emission (the Hub calls subscribers while holding
// its dispatch lock), so the activation counter and termination checks
// here need no additional synchronization against concurrent signals,
// only against RunWorkflow reading the final tallies after the run ends.
func (h *Harness) onSignal(ctx context.Context, sig signal.Signal) error {
	metrics.RecordSignal(sig.Name)

	h.mu.Lock()
	h.signals = append(h.signals, sig)
	terminated := h.terminated
	h.mu.Unlock()

	if sig.Name == signal.NameErrorReducer {
		h.finish(StatusFailed, "reducer-error")
		return nil
	}
	if terminated {
		return nil
	}

	// Replay re-emits a recorded signal log through this same Hub to
	// reproduce its state transitions (spec §4.2); it must never invoke
	// an execution adapter (scenario S4, "Adapter must not be called"),
	// so no activation is ever scheduled off a replayed signal.
	if h.opts.Recording.Mode == ModeReplay {
		return nil
	}

	for _, def := range h.opts.Agents {
		if !def.MatchesSignal(sig.Name) {
			continue
		}

		snap := h.store.Get()
		ok, err := h.guards.Evaluate(def.When, snap, sig)
		if err != nil {
			internallog.WithAgent(h.logger, def.Name).Warn("harness: guard evaluation failed", internallog.Error(err))
			continue
		}
		if !ok {
			continue
		}

		h.mu.Lock()
		if h.terminated {
			h.mu.Unlock()
			break
		}
		if h.activations >= h.opts.maxActivations() {
			h.mu.Unlock()
			h.finish(StatusAborted, "budget-exhausted")
			break
		}
		if def.MaxActivations > 0 && h.perAgent[def.Name] >= def.MaxActivations {
			h.mu.Unlock()
			continue
		}
		h.activations++
		h.perAgent[def.Name]++
		remaining := h.opts.maxActivations() - h.activations
		h.mu.Unlock()

		metrics.SetActivationBudgetRemaining(h.runID, remaining)
		metrics.RecordActivationStart(def.Name)

		h.activationWG.Add(1)
		go h.runActivation(def, sig)
	}

	if h.opts.EndWhen != "" {
		ok, err := h.guards.Evaluate(h.opts.EndWhen, h.store.Get(), sig)
		if err != nil {
			h.logger.Warn("harness: endWhen evaluation failed", internallog.Error(err))
		} else if ok {
			h.finish(StatusComplete, "end-condition-met")
		}
	}

	return nil
}

// runActivation executes one agent activation end to end: emits
// agent:activated, calls the adapter, translates its output into the
// agent's declared signal, and emits agent:completed or agent:failed.
func (h *Harness) runActivation(def agent.Definition, triggerSig signal.Signal) {
	defer h.activationWG.Done()

	ctx := h.activationContext()
	if h.opts.Tracer != nil {
		var span trace.Span
		ctx, span = h.opts.Tracer.StartActivation(ctx, def.Name, triggerSig.ID)
		defer span.End()
	}
	ac := hub.AgentContext{RunID: h.runID, AgentName: def.Name, TriggeringSignalID: triggerSig.ID, HasTriggeringSignal: true}
	actCtx := hub.WithAgentContext(ctx, ac)

	if _, err := h.hub.Emit(actCtx, signal.NameAgentActivated, map[string]any{
		"agent": def.Name, "triggeringSignalId": triggerSig.ID,
	}); err != nil {
		return
	}

	adapter := h.opts.Adapters[def.Name]
	input := agent.Input{
		Prompt:       def.Prompt,
		OutputSchema: def.OutputSchema,
		Context: agent.ActivationContext{
			RunID: h.runID, AgentName: def.Name, TriggeringSignalID: triggerSig.ID, State: h.store.Get(),
		},
	}

	activationStart := time.Now()
	mw := internallog.NewActivationMiddleware(h.logger)
	req := &internallog.ActivationRequest{AgentName: def.Name, RunID: h.runID, TriggeringSignalID: triggerSig.ID}

	var out agent.Output
	err := mw.Wrap(req, func() error {
		var runErr error
		out, runErr = adapter.Run(actCtx, input, func(im agent.Intermediate) {
			_, _ = h.hub.Emit(actCtx, string(im.Kind), im.Payload)
		})
		return runErr
	})
	metrics.ObserveActivationDuration(def.Name, time.Since(activationStart))
	if err != nil {
		metrics.RecordActivationFailure(def.Name)
		h.failActivation(actCtx, def, err)
		return
	}

	name, payload, err := agent.Translate(actCtx, def, out, h.extractor)
	if err != nil {
		h.failActivation(actCtx, def, err)
		return
	}

	if _, err := h.hub.Emit(actCtx, name, payload); err != nil {
		return
	}
	_, _ = h.hub.Emit(actCtx, signal.NameAgentCompleted, map[string]any{"agent": def.Name, "emitted": name})
}

func (h *Harness) failActivation(ctx context.Context, def agent.Definition, cause error) {
	_, _ = h.hub.Emit(ctx, signal.NameErrorAgent, map[string]any{"agent": def.Name, "error": cause.Error()})
	_, _ = h.hub.Emit(ctx, signal.NameAgentFailed, map[string]any{"agent": def.Name, "error": cause.Error()})
}

// activationContext returns the context in-flight adapter calls should
// observe: the run's cancellation context if one exists yet (it is
// created by runLive before any activation can be scheduled), falling
// back to Background for the rare defensive case it does not.
func (h *Harness) activationContext() context.Context {
	if h.cancelRun != nil {
		return h.runningCtx
	}
	return context.Background()
}

// finish transitions the run to a terminal status exactly once. Called
// from onSignal (which runs under the Hub's dispatch lock) it must not
// call back into the Hub synchronously, so the actual terminal signal
// emission happens in a spawned goroutine after the current dispatch
// has returned and released the lock.
func (h *Harness) finish(status Status, reason string) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		h.terminated = true
		h.status = status
		h.reason = reason
		h.mu.Unlock()

		if h.cancelRun != nil {
			h.cancelRun()
		}
		metrics.RecordRunTerminated(h.runID, string(status), reason)

		go func() {
			switch status {
			case StatusAborted:
				_, _ = h.hub.Cancel(context.Background(), reason)
			case StatusComplete:
				_, _ = h.hub.Emit(context.Background(), signal.NameWorkflowEnded, map[string]any{"reason": reason})
			case StatusFailed:
				// The Hub already self-cancelled ahead of this (a fatal
				// reducer or store error); there is nothing left to emit.
			}
			close(h.done)
		}()
	})
}

func (h *Harness) buildResult(elapsed time.Duration) Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	recordingID := ""
	if h.recording != nil {
		recordingID = h.recording.RunID()
	}

	return Result{
		Status: h.status,
		Reason: h.reason,
		State:  h.store.Get(),
		Signals: append([]signal.Signal(nil), h.signals...),
		Metrics: Metrics{
			Activations: h.activations,
			PerAgent:    copyIntMap(h.perAgent),
			SignalCount: int64(len(h.signals)),
			DurationMs:  elapsed.Milliseconds(),
		},
		RecordingID: recordingID,
	}
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
