// Package script embeds a Lua automation runtime. A user script reacts to
// device state updates (global on_update callback) and drives devices through
// the hubspace module. All Lua execution happens on one worker goroutine.
package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/hubspaced/internal/control"
	"github.com/dokzlo13/hubspaced/internal/script/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// Work represents work to be executed on the Lua VM.
// All Lua execution MUST go through this to ensure thread safety.
type Work func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution.
type Runtime struct {
	L          *lua.LState
	dispatcher control.Dispatcher

	// Work queue for thread-safe Lua execution
	workQueue chan Work

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a new Lua runtime bound to a device dispatcher.
func NewRuntime(dispatcher control.Dispatcher) *Runtime {
	r := &Runtime{
		L:          lua.NewState(),
		dispatcher: dispatcher,
		workQueue:  make(chan Work, 100),
		closing:    make(chan struct{}),
	}
	r.registerModules()
	return r
}

// registerModules registers all Lua modules
func (r *Runtime) registerModules() {
	modules.RegisterDeviceType(r.L)

	logModule := modules.NewLogModule()
	r.L.PreloadModule("log", logModule.Loader)

	hubModule := modules.NewHubspaceModule(r.dispatcher)
	r.L.PreloadModule("hubspace", hubModule.Loader)
}

// LoadScript loads and executes a Lua script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking).
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work Work) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// NotifyUpdate schedules the script's on_update callback for a device
// snapshot. A script without an on_update function is fine.
func (r *Runtime) NotifyUpdate(ctx context.Context, snap control.Snapshot) {
	r.Do(ctx, func(ctx context.Context) {
		fn := r.L.GetGlobal("on_update")
		if fn == lua.LNil {
			return
		}
		r.L.Push(fn)
		modules.PushDevice(r.L, snap, r.dispatcher)
		if err := r.L.PCall(1, 0, nil); err != nil {
			log.Error().Err(err).Str("device", snap.ID).Msg("Lua on_update failed")
		}
	})
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that
// touches Lua. It includes panic recovery to prevent crashes from killing
// the worker.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// Close signals the runtime to stop accepting new work and closes the Lua
// state. Safe to call concurrently with Do.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	r.L.Close()
}
