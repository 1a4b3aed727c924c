package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/emubot-core/internal/script"
)

// Engine is the part of the script engine the runner needs.
type Engine interface {
	RunAsync(spec *script.RunSpec) (*script.Execution, error)
}

// Reservations is the instance registry.
type Reservations interface {
	Reserve(instance, runID string) bool
	Release(instance, runID string)
}

// ScriptSource resolves a script by name.
type ScriptSource interface {
	Script(ctx context.Context, name string) (*script.Script, error)
}

// StatusObserver is notified of every status change.
type StatusObserver interface {
	StatusChanged(status RunStatus)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// run is the runner's record of one Start call.
type run struct {
	id       string
	botID    string
	ctx      context.Context
	cancel   context.CancelFunc
	statuses []*RunStatus
}

// Service schedules bots onto instances and tracks their progress.
type Service struct {
	engine   Engine
	registry Reservations
	scripts  ScriptSource
	logger   Logger
	now      func() time.Time

	mu    sync.Mutex
	runs  map[string]*run
	order []string

	obsMu     sync.RWMutex
	observers []StatusObserver

	wg sync.WaitGroup
}

// NewService creates a runner over the given engine, registry and script source.
func NewService(engine Engine, registry Reservations, scripts ScriptSource, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		engine:   engine,
		registry: registry,
		scripts:  scripts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		runs:     make(map[string]*run),
	}
}

// AddObserver registers o for status changes.
func (s *Service) AddObserver(o StatusObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Start schedules bot and returns the new run id immediately.
//
// Every instance binding gets a status. Bindings whose instance is already
// reserved are marked WAITING and are not retried. A nil bot or a bot with
// no bindings records a single ERROR status.
func (s *Service) Start(bot *BotProfile) string {
	reason := MsgNoInstances
	bot = bot.DeepCopy()
	if bot == nil {
		bot, reason = &BotProfile{}, MsgNoBot
	}
	runID := GenerateID()
	now := s.now()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{id: runID, botID: bot.ID, ctx: ctx, cancel: cancel}

	firstScript := ""
	if refs := bot.EnabledScripts(); len(refs) > 0 {
		firstScript = refs[0].ScriptName
	}

	var targets []*RunStatus
	if len(bot.Instances) == 0 {
		r.statuses = append(r.statuses, &RunStatus{
			RunID: runID, BotID: bot.ID,
			Instance: NoInstanceName, Script: NoScriptName,
			State: StateError, Message: reason,
			StartedAt: now, UpdatedAt: now,
		})
		s.logger.Warn("run not scheduled", "bot_id", bot.ID, "run_id", runID, "reason", reason)
	}
	for _, b := range bot.Instances {
		st := &RunStatus{
			RunID: runID, BotID: bot.ID,
			Instance: b.InstanceName, Script: firstScript,
			State: StateRunning, Message: MsgScheduled,
			StartedAt: now, UpdatedAt: now,
		}
		if s.registry.Reserve(b.InstanceName, runID) {
			targets = append(targets, st)
		} else {
			st.State, st.Message = StateWaiting, MsgInstanceBusy
			s.logger.Info("instance busy", "instance", b.InstanceName, "run_id", runID)
		}
		r.statuses = append(r.statuses, st)
	}

	s.mu.Lock()
	s.runs[runID] = r
	s.order = append(s.order, runID)
	snaps := make([]RunStatus, len(r.statuses))
	for i, st := range r.statuses {
		snaps[i] = *st
	}
	s.mu.Unlock()

	s.logger.Info("run started", "run_id", runID, "bot_id", bot.ID, "instances", len(bot.Instances), "reserved", len(targets))
	for _, snap := range snaps {
		s.notify(snap)
	}

	if len(targets) > 0 {
		s.wg.Add(1)
		go s.schedule(r, bot, targets)
	}
	return runID
}

// Stop ends runID: reserved instances are released, live statuses become
// STOPPED and the run is no longer listed. Scripts already executing are
// not interrupted here; stop the engine for that. Unknown ids are ignored.
func (s *Service) Stop(runID string) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.runs, runID)
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	now := s.now()
	var changed []RunStatus
	for _, st := range r.statuses {
		s.registry.Release(st.Instance, runID)
		if canTransition(st.State, StateStopped) {
			st.State, st.Message, st.UpdatedAt = StateStopped, MsgStoppedUser, now
			changed = append(changed, *st)
		}
	}
	s.mu.Unlock()

	r.cancel()
	s.logger.Info("run stopped", "run_id", runID)
	for _, snap := range changed {
		s.notify(snap)
	}
}

// List returns a snapshot of every tracked status, grouped by run in start order.
func (s *Service) List() []RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RunStatus
	for _, id := range s.order {
		for _, st := range s.runs[id].statuses {
			out = append(out, *st)
		}
	}
	return out
}

// Get returns the statuses of one run.
func (s *Service) Get(runID string) ([]RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	out := make([]RunStatus, len(r.statuses))
	for i, st := range r.statuses {
		out[i] = *st
	}
	return out, nil
}

// Settled reports whether every status of runID is terminal or waiting.
func (s *Service) Settled(runID string) bool {
	statuses, err := s.Get(runID)
	if err != nil {
		return true
	}
	for _, st := range statuses {
		if st.State == StateRunning {
			return false
		}
	}
	return true
}

// Close cancels scheduling for every run and waits for the drivers to return
// until ctx expires. Executions already submitted to the engine finish on
// their own.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs: %w", ctx.Err())
	}
}

// schedule launches a driver per reserved instance, honouring the bot's
// parallel flag and cooldown.
func (s *Service) schedule(r *run, bot *BotProfile, targets []*RunStatus) {
	defer s.wg.Done()
	cooldown := bot.Cooldown()

	if !bot.RunParallel {
		for i, st := range targets {
			if i > 0 {
				pause(r.ctx, cooldown)
			}
			s.drive(r, bot, st)
		}
		return
	}

	var wg sync.WaitGroup
	for i, st := range targets {
		if i > 0 {
			pause(r.ctx, cooldown)
		}
		wg.Add(1)
		go func(st *RunStatus) {
			defer wg.Done()
			s.drive(r, bot, st)
		}(st)
	}
	wg.Wait()
}

// drive runs the bot's enabled scripts on one instance and releases the
// instance before publishing the final status.
func (s *Service) drive(r *run, bot *BotProfile, st *RunStatus) {
	final, ok := s.play(r, bot, st)
	s.registry.Release(st.Instance, r.id)
	if ok {
		s.update(st, final.State, final.Script, final.Message)
	}
}

// play executes the enabled scripts in order. It returns the terminal status
// to record, or false when the run was stopped and nothing should be recorded.
func (s *Service) play(r *run, bot *BotProfile, st *RunStatus) (RunStatus, bool) {
	instance := st.Instance
	for _, ref := range bot.EnabledScripts() {
		if r.ctx.Err() != nil {
			return RunStatus{}, false
		}

		sc, err := s.scripts.Script(r.ctx, ref.ScriptName)
		if err != nil {
			s.logger.Error("script lookup failed", "run_id", r.id, "instance", instance, "script", ref.ScriptName, "error", err)
			return RunStatus{State: StateError, Script: ref.ScriptName, Message: fmt.Sprintf("loading script %s: %v", ref.ScriptName, err)}, true
		}
		if !s.update(st, StateRunning, ref.ScriptName, "Running script "+ref.ScriptName) {
			return RunStatus{}, false
		}

		exec, err := s.engine.RunAsync(&script.RunSpec{
			RunID:     r.id,
			BotID:     bot.ID,
			Instance:  instance,
			Script:    sc,
			Variables: script.MergeVariables(sc.Defaults(), bot.Overrides),
		})
		if err != nil {
			return RunStatus{State: StateError, Script: ref.ScriptName, Message: err.Error()}, true
		}

		res := exec.Result()
		switch res.Outcome {
		case script.OutcomeFailed:
			return RunStatus{State: StateError, Script: ref.ScriptName, Message: res.Err.Error()}, true
		case script.OutcomeInterrupted:
			return RunStatus{State: StateStopped, Script: ref.ScriptName, Message: MsgInterrupted}, true
		}
	}

	if r.ctx.Err() != nil {
		return RunStatus{}, false
	}
	return RunStatus{State: StateStopped, Message: MsgCompleted}, true
}

// update applies a transition if the state machine allows it and notifies
// observers. It reports whether the transition happened.
func (s *Service) update(st *RunStatus, to State, scriptName, msg string) bool {
	s.mu.Lock()
	if !canTransition(st.State, to) {
		s.mu.Unlock()
		return false
	}
	st.State, st.Message, st.UpdatedAt = to, msg, s.now()
	if scriptName != "" {
		st.Script = scriptName
	}
	snap := *st
	s.mu.Unlock()

	s.logger.Debug("run status", "run_id", snap.RunID, "instance", snap.Instance, "state", string(snap.State), "message", snap.Message)
	s.notify(snap)
	return true
}

func (s *Service) notify(status RunStatus) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, o := range s.observers {
		o.StatusChanged(status)
	}
}

// pause sleeps for d unless ctx ends first.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
