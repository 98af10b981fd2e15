package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubspaced/internal/control"
	"github.com/dokzlo13/hubspaced/internal/hubspace"
)

// Adapter is the device surface a worker drives. *hubspace.Light and
// *hubspace.Fan implement it.
type Adapter interface {
	ID() string
	Name() string
	Available() bool
	Update(ctx context.Context) error
}

// work is one serialized device operation.
type work func(ctx context.Context)

// DeviceWorker owns all access to one device. The sync protocol requires at
// most one in-flight operation per device; every poll tick and every command
// flows through this worker's queue and executes on its single goroutine.
// Different devices' workers run fully independently.
type DeviceWorker struct {
	adapter Adapter
	kind    string
	queue   chan work

	mu       sync.RWMutex
	snapshot control.Snapshot

	onUpdate []func(control.Snapshot)
}

// NewDeviceWorker creates a worker for one adapter.
func NewDeviceWorker(adapter Adapter, kind string, queueSize int) *DeviceWorker {
	w := &DeviceWorker{
		adapter: adapter,
		kind:    kind,
		queue:   make(chan work, queueSize),
	}
	w.snapshot = w.buildSnapshot()
	return w
}

// OnUpdate registers a snapshot listener. Must be called before Run;
// listeners are invoked from the worker goroutine after every operation.
func (w *DeviceWorker) OnUpdate(fn func(control.Snapshot)) {
	w.onUpdate = append(w.onUpdate, fn)
}

// Snapshot returns the last known device state.
func (w *DeviceWorker) Snapshot() control.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Run executes queued operations until the context is cancelled. This is the
// only goroutine that touches the adapter.
func (w *DeviceWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-w.queue:
			op(ctx)
			w.refresh()
		}
	}
}

// Enqueue queues an operation without blocking. A full queue drops the
// operation with a warning: a device that cannot keep up should not buffer an
// unbounded command backlog.
func (w *DeviceWorker) Enqueue(name string, op func(ctx context.Context) error) bool {
	wrapped := work(func(ctx context.Context) {
		if err := op(ctx); err != nil {
			log.Error().Err(err).Str("device", w.adapter.ID()).Str("op", name).Msg("Device operation failed")
		}
	})
	select {
	case w.queue <- wrapped:
		return true
	default:
		log.Warn().Str("device", w.adapter.ID()).Str("op", name).Msg("Device queue full, dropping operation")
		return false
	}
}

// EnqueueWait queues an operation and blocks until it has run, returning its
// error. Used by callers that need the result, like the Lua script module.
func (w *DeviceWorker) EnqueueWait(ctx context.Context, name string, op func(ctx context.Context) error) error {
	done := make(chan error, 1)
	wrapped := work(func(ctx context.Context) {
		done <- op(ctx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.queue <- wrapped:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

// refresh rebuilds the snapshot and notifies listeners.
func (w *DeviceWorker) refresh() {
	snap := w.buildSnapshot()
	w.mu.Lock()
	w.snapshot = snap
	w.mu.Unlock()
	for _, fn := range w.onUpdate {
		fn(snap)
	}
}

// buildSnapshot reads the adapter's current state into a snapshot. Runs on
// the worker goroutine (or before Run starts), so adapter access is safe.
func (w *DeviceWorker) buildSnapshot() control.Snapshot {
	snap := control.Snapshot{
		ID:        w.adapter.ID(),
		Name:      w.adapter.Name(),
		Kind:      w.kind,
		Available: w.adapter.Available(),
	}

	switch a := w.adapter.(type) {
	case *hubspace.Light:
		snap.On = a.IsOn()
		if b, ok := a.Brightness(); ok {
			snap.Brightness = &b
		}
		if ct, ok := a.ColorTemp(); ok {
			snap.ColorTemp = &ct
		}
	case *hubspace.Fan:
		snap.On = a.IsOn()
		if p, ok := a.Percentage(); ok {
			snap.Percentage = &p
		}
		snap.PresetMode = a.PresetMode()
		snap.PresetModes = a.PresetModes()
	}
	return snap
}

// applyCommand translates a control command into adapter calls. Runs on the
// worker goroutine.
func applyCommand(ctx context.Context, adapter Adapter, cmd control.Command) error {
	switch a := adapter.(type) {
	case *hubspace.Light:
		if cmd.Power != nil && *cmd.Power == hubspace.StateOff {
			return a.TurnOff(ctx)
		}
		return a.TurnOn(ctx, hubspace.LightOptions{
			Brightness: cmd.Brightness,
			ColorTemp:  cmd.ColorTemp,
		})
	case *hubspace.Fan:
		if cmd.Power != nil && *cmd.Power == hubspace.StateOff {
			return a.TurnOff(ctx)
		}
		if cmd.Power == nil && cmd.Percentage != nil {
			return a.SetPercentage(ctx, *cmd.Percentage)
		}
		if cmd.Power == nil && cmd.PresetMode != nil {
			return a.SetPresetMode(ctx, *cmd.PresetMode)
		}
		return a.TurnOn(ctx, hubspace.FanOptions{
			Percentage: cmd.Percentage,
			PresetMode: cmd.PresetMode,
		})
	default:
		return fmt.Errorf("device %s accepts no commands", adapter.ID())
	}
}
