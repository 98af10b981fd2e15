package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/hubspaced/internal/control"
)

type fakeDispatcher struct {
	snaps    []control.Snapshot
	commands chan dispatched
}

type dispatched struct {
	deviceID string
	cmd      control.Command
}

func (f *fakeDispatcher) Snapshots() []control.Snapshot { return f.snaps }

func (f *fakeDispatcher) Snapshot(deviceID string) (control.Snapshot, bool) {
	for _, s := range f.snaps {
		if s.ID == deviceID {
			return s, true
		}
	}
	return control.Snapshot{}, false
}

func (f *fakeDispatcher) Dispatch(_ context.Context, deviceID string, cmd control.Command) error {
	f.commands <- dispatched{deviceID: deviceID, cmd: cmd}
	return nil
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRuntimeOnUpdateDispatchesCommand(t *testing.T) {
	dispatcher := &fakeDispatcher{
		snaps: []control.Snapshot{
			{ID: "light-1", Name: "Office Light", Kind: control.KindLight, On: true},
		},
		commands: make(chan dispatched, 4),
	}

	r := NewRuntime(dispatcher)
	defer r.Close()

	script := writeScript(t, `
function on_update(device)
	if device:kind() == "light" and device:is_on() then
		device:off()
	end
end
`)
	if err := r.LoadScript(script); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.NotifyUpdate(ctx, dispatcher.snaps[0])

	select {
	case got := <-dispatcher.commands:
		if got.deviceID != "light-1" {
			t.Fatalf("dispatched device = %q", got.deviceID)
		}
		if got.cmd.Power == nil || *got.cmd.Power != "off" {
			t.Fatalf("dispatched command = %+v, want power off", got.cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("no command dispatched from on_update")
	}
}

func TestRuntimeFindAndChainedCommands(t *testing.T) {
	dispatcher := &fakeDispatcher{
		snaps: []control.Snapshot{
			{ID: "fan-1", Name: "Bedroom Fan", Kind: control.KindFan, On: false},
		},
		commands: make(chan dispatched, 4),
	}

	r := NewRuntime(dispatcher)
	defer r.Close()

	script := writeScript(t, `
local hubspace = require("hubspace")

function on_update(_)
	local fan = hubspace.find("Bedroom Fan")
	if fan then
		fan:on({percentage = 66, preset = "sleep"})
	end
end
`)
	if err := r.LoadScript(script); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.NotifyUpdate(ctx, dispatcher.snaps[0])

	select {
	case got := <-dispatcher.commands:
		if got.deviceID != "fan-1" {
			t.Fatalf("dispatched device = %q", got.deviceID)
		}
		if got.cmd.Power == nil || *got.cmd.Power != "on" {
			t.Fatalf("command = %+v, want power on", got.cmd)
		}
		if got.cmd.Percentage == nil || *got.cmd.Percentage != 66 {
			t.Fatalf("command percentage = %v, want 66", got.cmd.Percentage)
		}
		if got.cmd.PresetMode == nil || *got.cmd.PresetMode != "sleep" {
			t.Fatalf("command preset = %v, want sleep", got.cmd.PresetMode)
		}
	case <-time.After(time.Second):
		t.Fatal("no command dispatched from on_update")
	}
}

func TestRuntimeWithoutOnUpdate(t *testing.T) {
	dispatcher := &fakeDispatcher{commands: make(chan dispatched, 1)}

	r := NewRuntime(dispatcher)
	defer r.Close()

	if err := r.LoadScript(writeScript(t, `local x = 1`)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Must not panic or dispatch anything.
	r.NotifyUpdate(ctx, control.Snapshot{ID: "dev-1"})

	select {
	case got := <-dispatcher.commands:
		t.Fatalf("unexpected dispatch %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRuntimeCloseStopsWork(t *testing.T) {
	dispatcher := &fakeDispatcher{commands: make(chan dispatched, 1)}
	r := NewRuntime(dispatcher)

	r.Close()

	if ok := r.Do(context.Background(), func(context.Context) {}); ok {
		t.Fatal("Do must refuse work after Close")
	}
}
