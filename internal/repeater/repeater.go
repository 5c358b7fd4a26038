package repeater

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"keyrepeatd/internal/config"
	"keyrepeatd/internal/event"
	"keyrepeatd/internal/keymap"
	"keyrepeatd/internal/logging"
	"keyrepeatd/internal/output"
)

// repeatTask is one running tap loop. done is closed when the loop
// goroutine has returned, giving cancellers a synchronous join point.
type repeatTask struct {
	code   event.KeyCode
	mods   event.Modifiers
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler turns eligible key presses into periodic synthetic taps and
// forwards everything else unchanged. One instance serves the whole
// daemon; the keyboard listener and the window detector call into it
// concurrently.
type Scheduler struct {
	matcher *Matcher
	cache   *DecisionCache
	window  *WindowContext
	sink    output.Sink
	logger  *logging.Logger

	interval  time.Duration
	toggleKey string

	enabled atomic.Bool

	// tasks maps KeyEvent.KeyOnlyHash to *repeatTask. Keyed on the key
	// alone so a release with drifted modifiers still cancels its task.
	tasks sync.Map

	// held tracks key codes forwarded as pressed and not yet released,
	// for the unconditional release sweep at shutdown.
	held sync.Map
}

// NewScheduler wires a scheduler from validated configuration.
func NewScheduler(cfg *config.Config, sink output.Sink, logger *logging.Logger) *Scheduler {
	window := NewWindowContext()
	window.UpdatePatterns(cfg.Window.WindowTitlePatterns)
	matcher := NewMatcher(cfg.Mappings, cfg.Window.WindowTitlePatterns)

	s := &Scheduler{
		matcher:   matcher,
		cache:     NewDecisionCache(matcher, window),
		window:    window,
		sink:      sink,
		logger:    logger.WithComponent("repeater"),
		interval:  time.Duration(cfg.Repeat.RepeatDelayMs) * time.Millisecond,
		toggleKey: cfg.Repeat.RepeatToggleKey,
	}
	s.enabled.Store(true)
	return s
}

// Window returns the window context the detector should publish into.
func (s *Scheduler) Window() *WindowContext { return s.window }

// Enabled reports whether synthetic repetition is active.
func (s *Scheduler) Enabled() bool { return s.enabled.Load() }

// SetEnabled switches synthetic repetition on or off. Disabling stops all
// running tasks gracefully.
func (s *Scheduler) SetEnabled(on bool) {
	if s.enabled.Swap(on) == on {
		return
	}
	s.logger.Info("repeat engine toggled", "enabled", on)
	if !on {
		s.StopAllGracefully()
	}
}

// HandleKeyEvent processes one hardware keyboard event. Called from the
// listener goroutine in device order. Emission failures are logged and
// confined; the listener keeps running.
func (s *Scheduler) HandleKeyEvent(ev event.KeyEvent) {
	name, named := keymap.KeyName(ev.Code)

	if named && s.toggleKey != "" && name == s.toggleKey {
		s.handleToggleKey(ev)
		return
	}

	shouldRepeat := false
	if named && s.enabled.Load() {
		var cached bool
		shouldRepeat, cached = s.cache.GetOrCompute(name, ev.Modifiers)
		if !cached {
			s.logger.Trace("decision computed",
				"key", name, "modifiers", ev.Modifiers.String(), "repeat", shouldRepeat)
		}
	}

	if !shouldRepeat {
		s.passthrough(ev)
		return
	}

	switch ev.State {
	case event.Pressed:
		s.handlePress(ev)
	case event.Released:
		s.handleRelease(ev)
	case event.Repeat:
		// Hardware auto-repeat is suppressed for scheduled keys; the
		// tap loop is the sole repeat source.
	}
}

// handleToggleKey flips the engine on toggle-key press and forwards the
// event unchanged, so the toggle key still types.
func (s *Scheduler) handleToggleKey(ev event.KeyEvent) {
	if ev.State == event.Pressed {
		s.SetEnabled(!s.enabled.Load())
	}
	s.passthrough(ev)
}

// handlePress forwards the original press, then starts the tap loop if no
// task exists for this key. Duplicate presses are idempotent: at most one
// task per physical key.
func (s *Scheduler) handlePress(ev event.KeyEvent) {
	s.emit(event.Press(ev.Code, ev.Modifiers))
	s.held.Store(ev.Code, struct{}{})

	ctx, cancel := context.WithCancel(context.Background())
	task := &repeatTask{
		code:   ev.Code,
		mods:   ev.Modifiers,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	hash := ev.KeyOnlyHash()
	if _, loaded := s.tasks.LoadOrStore(hash, task); loaded {
		cancel()
		return
	}

	s.logger.Debug("repeat task started",
		"combination", ev.CombinationID(), "interval", s.interval)
	go s.run(ctx, hash, task)
}

// handleRelease cancels the key's task, waits for its loop to exit, and
// forwards the original release. Waiting makes cancellation synchronous:
// no tap is emitted after the release reaches the output device.
func (s *Scheduler) handleRelease(ev event.KeyEvent) {
	hash := ev.KeyOnlyHash()
	if v, loaded := s.tasks.LoadAndDelete(hash); loaded {
		task := v.(*repeatTask)
		task.cancel()
		<-task.done
		s.logger.Debug("repeat task stopped", "combination", ev.CombinationID())
	}

	s.emit(event.Release(ev.Code, ev.Modifiers))
	s.held.Delete(ev.Code)
}

// run is the tap loop: a press/release pair per tick until cancelled. An
// emission failure aborts only this task.
func (s *Scheduler) run(ctx context.Context, hash uint64, task *repeatTask) {
	defer close(task.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tap(task); err != nil {
				s.logger.Error("repeat tap failed, stopping task",
					"key_code", task.code, "error", err)
				s.tasks.CompareAndDelete(hash, task)
				return
			}
		}
	}
}

func (s *Scheduler) tap(task *repeatTask) error {
	if err := s.sink.Send(event.Press(task.code, task.mods)); err != nil {
		return err
	}
	return s.sink.Send(event.Release(task.code, task.mods))
}

// HandleWindowEvent reacts to a focus change: publish the new title (which
// invalidates cached decisions via the title hash) and stop running tasks,
// since their decisions were made for the previous window.
func (s *Scheduler) HandleWindowEvent(we event.WindowEvent) {
	if s.window.UpdateTitle(we.Window.Title) {
		s.logger.Debug("focused window changed", "window", we.Window.String())
	}
	s.StopAllGracefully()
}

// StopAllGracefully cancels every running task, waits for each loop to
// exit, and emits one final release per key so none is left held.
// Idempotent and safe to call concurrently; each task is stopped exactly
// once. Returns the number of tasks stopped by this call.
func (s *Scheduler) StopAllGracefully() int {
	stopped := 0
	s.tasks.Range(func(key, _ any) bool {
		v, loaded := s.tasks.LoadAndDelete(key)
		if !loaded {
			return true
		}
		task := v.(*repeatTask)
		task.cancel()
		<-task.done

		if err := s.sink.Send(event.Release(task.code, task.mods)); err != nil {
			s.logger.Warn("final release failed", "key_code", task.code, "error", err)
		}
		s.held.Delete(task.code)
		stopped++
		return true
	})

	if stopped > 0 {
		s.logger.Debug("stopped all repeat tasks", "count", stopped)
	}
	return stopped
}

// ReleaseHeldKeys emits a release for every key the scheduler forwarded as
// pressed and never saw released. Shutdown calls this after the graceful
// stop so no key stays latched on the virtual device.
func (s *Scheduler) ReleaseHeldKeys() int {
	released := 0
	s.held.Range(func(key, _ any) bool {
		code := key.(event.KeyCode)
		if err := s.sink.Send(event.Release(code, 0)); err != nil {
			s.logger.Warn("shutdown release failed", "key_code", code, "error", err)
		}
		s.held.Delete(code)
		released++
		return true
	})
	return released
}

// passthrough forwards a hardware event unchanged.
func (s *Scheduler) passthrough(ev event.KeyEvent) {
	switch ev.State {
	case event.Pressed:
		s.held.Store(ev.Code, struct{}{})
	case event.Released:
		s.held.Delete(ev.Code)
	}

	var ve event.VirtualKeyEvent
	ve.Code, ve.State, ve.Modifiers = ev.Code, ev.State, ev.Modifiers
	s.emit(ve)
}

func (s *Scheduler) emit(ve event.VirtualKeyEvent) {
	if err := s.sink.Send(ve); err != nil {
		s.logger.Error("event emission failed",
			"key_code", ve.Code, "state", ve.State.String(), "error", err)
	}
}
