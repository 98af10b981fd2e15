package hubspace

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// fakeTransport records calls and serves canned state payloads.
type fakeTransport struct {
	state     *StatePayload
	getCalls  int
	putCalls  int
	lastPut   *StatePayload
	putAnswer *StatePayload
	getErr    error
	putErr    error
}

func (f *fakeTransport) DeviceState(_ context.Context, _, _ string) (*StatePayload, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.state, nil
}

func (f *fakeTransport) SetDeviceState(_ context.Context, _, _ string, payload *StatePayload) (*StatePayload, error) {
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastPut = payload
	if f.putAnswer != nil {
		return f.putAnswer, nil
	}
	// The vendor echoes authoritative state back.
	return &StatePayload{Values: payload.Values}, nil
}

func testMetadevice() *Metadevice {
	return &Metadevice{
		ID:           "dev-1",
		FriendlyName: "Office Light",
		Description: MetadeviceDescription{Functions: []FunctionDef{
			defsWithValues("power", "", "on", "off"),
		}},
		State: &StatePayload{Values: []WireValue{
			{FunctionClass: "power", Value: "on"},
			{FunctionClass: "available", Value: true},
		}},
	}
}

func TestNewDeviceEagerInit(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	if d.ID() != "dev-1" || d.Name() != "Office Light" {
		t.Fatalf("identity = %s/%s", d.ID(), d.Name())
	}
	if !d.Catalog().Has(ClassPower) {
		t.Fatal("catalog must be parsed at construction")
	}
	if d.States().Len() != 2 {
		t.Fatalf("initial state len = %d, want 2", d.States().Len())
	}
	if tr.getCalls != 0 {
		t.Fatal("construction must not hit the transport")
	}
}

func TestDeviceAvailable(t *testing.T) {
	meta := testMetadevice()
	d := NewDevice(meta, "acct", &fakeTransport{}, BaseProfile{}, zerolog.Nop())
	if !d.Available() {
		t.Fatal("available=true state should report available")
	}

	d.States().Replace([]WireValue{{FunctionClass: "available", Value: false}})
	if d.Available() {
		t.Fatal("available=false state should report unavailable")
	}

	// No availability state at all means available.
	d.States().Replace(nil)
	if !d.Available() {
		t.Fatal("unknown availability should report available")
	}
}

func TestDeviceUpdateReplacesState(t *testing.T) {
	tr := &fakeTransport{state: &StatePayload{Values: []WireValue{
		{FunctionClass: "power", Value: "off"},
	}}}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "off" {
		t.Fatalf("power = %v, want off after poll", v)
	}
	if d.States().Len() != 1 {
		t.Fatalf("state len = %d, want full replacement", d.States().Len())
	}
}

func TestDeviceSkipsExactlyOnePollAfterPush(t *testing.T) {
	tr := &fakeTransport{state: &StatePayload{Values: []WireValue{
		{FunctionClass: "power", Value: "off"},
	}}}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	d.SetStateValue(ClassKey(ClassPower), "on")
	if err := d.PushState(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.putCalls != 1 {
		t.Fatalf("putCalls = %d, want 1", tr.putCalls)
	}

	// First poll after the push is suppressed.
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.getCalls != 0 {
		t.Fatal("poll right after push must be skipped")
	}
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "on" {
		t.Fatalf("power = %v, want pushed value retained", v)
	}

	// Second poll goes through.
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.getCalls != 1 {
		t.Fatalf("getCalls = %d, want 1", tr.getCalls)
	}
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "off" {
		t.Fatalf("power = %v, want polled value", v)
	}
}

func TestDevicePushSerialization(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	if err := d.PushState(context.Background()); err != nil {
		t.Fatal(err)
	}

	if tr.lastPut.MetadeviceID != "dev-1" {
		t.Fatalf("metadeviceId = %q, want dev-1", tr.lastPut.MetadeviceID)
	}
	if len(tr.lastPut.Values) != 1 {
		t.Fatalf("pushed %d values, want 1 (available excluded)", len(tr.lastPut.Values))
	}
	wv := tr.lastPut.Values[0]
	if wv.FunctionClass != "power" || wv.LastUpdateTime == 0 {
		t.Fatalf("unexpected pushed value %+v", wv)
	}
}

func TestDeviceSetStateStampsValues(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	err := d.SetState(context.Background(), []WireValue{
		{FunctionClass: "power", Value: "off"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := tr.lastPut.Values[0].LastUpdateTime; got == 0 {
		t.Fatal("SetState must stamp values with the current time")
	}
	// Response re-populated local state.
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "off" {
		t.Fatalf("power = %v, want off from PUT echo", v)
	}
}

func TestDeviceUpdateFailurePropagates(t *testing.T) {
	transportErr := errors.New("connection refused")
	tr := &fakeTransport{getErr: transportErr}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	err := d.Update(context.Background())
	if err == nil {
		t.Fatal("expected error from failing transport")
	}
	if !errors.Is(err, transportErr) {
		t.Fatalf("error %v does not wrap the transport error", err)
	}
	// Local state stays what the bootstrap payload delivered.
	if d.States().Len() != 2 {
		t.Fatalf("state len = %d, want 2 untouched values", d.States().Len())
	}
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "on" {
		t.Fatalf("power = %v, want on", v)
	}
}

func TestDevicePushFailureDoesNotSuppressPoll(t *testing.T) {
	transportErr := errors.New("bad gateway")
	tr := &fakeTransport{
		putErr: transportErr,
		state: &StatePayload{Values: []WireValue{
			{FunctionClass: "power", Value: "off"},
		}},
	}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	err := d.PushState(context.Background())
	if !errors.Is(err, transportErr) {
		t.Fatalf("PushState error = %v, want wrapped transport error", err)
	}
	// The failed write left local state alone.
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "on" {
		t.Fatalf("power = %v, want bootstrap value after failed push", v)
	}

	// A failed push must not suppress the next poll.
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.getCalls != 1 {
		t.Fatalf("getCalls = %d, want poll to go through after failed push", tr.getCalls)
	}
	if v, _ := d.StateValue(ClassKey(ClassPower)); v != "off" {
		t.Fatalf("power = %v, want polled value", v)
	}

	// SetState failures behave the same way.
	err = d.SetState(context.Background(), []WireValue{{FunctionClass: "power", Value: "on"}})
	if !errors.Is(err, transportErr) {
		t.Fatalf("SetState error = %v, want wrapped transport error", err)
	}
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.getCalls != 2 {
		t.Fatalf("getCalls = %d, want poll after failed SetState", tr.getCalls)
	}
}

func TestDeviceSetStateLeavesCallerSliceAlone(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDevice(testMetadevice(), "acct", tr, BaseProfile{}, zerolog.Nop())

	values := []WireValue{{FunctionClass: "power", Value: "off"}}
	if err := d.SetState(context.Background(), values); err != nil {
		t.Fatal(err)
	}

	if values[0].LastUpdateTime != 0 {
		t.Fatalf("caller slice was stamped in place: %+v", values[0])
	}
	if got := tr.lastPut.Values[0].LastUpdateTime; got == 0 {
		t.Fatal("uploaded values must carry the timestamp")
	}
}

func TestDeviceStateValueExactKey(t *testing.T) {
	meta := testMetadevice()
	meta.State.Values = append(meta.State.Values,
		WireValue{FunctionClass: "toggle", FunctionInstance: "eco", Value: "enabled"})
	d := NewDevice(meta, "acct", &fakeTransport{}, BaseProfile{}, zerolog.Nop())

	if v, ok := d.StateValue(InstanceKey(ClassToggle, "eco")); !ok || v != "enabled" {
		t.Fatalf("toggle/eco = %v/%v", v, ok)
	}
	if _, ok := d.StateValue(InstanceKey(ClassToggle, "sleep")); ok {
		t.Fatal("absent instance must report ok=false")
	}
}
