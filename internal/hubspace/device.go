package hubspace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transport is the vendor API surface a device needs to synchronize state.
// *Client implements it; tests substitute fakes.
type Transport interface {
	DeviceState(ctx context.Context, accountID, deviceID string) (*StatePayload, error)
	SetDeviceState(ctx context.Context, accountID, deviceID string, payload *StatePayload) (*StatePayload, error)
}

// Device composes a function catalog and a state store for one metadevice and
// runs the synchronization protocol against the vendor cloud. Per-type
// behavior (value ordering and typing) comes from the injected Profile.
//
// A Device assumes at most one in-flight operation at a time; callers
// serialize poll, push and write externally (the app layer runs one worker
// goroutine per device).
type Device struct {
	id        string
	name      string
	accountID string
	transport Transport
	profile   Profile
	log       zerolog.Logger

	catalog *Catalog
	states  *Store

	// skipNextPoll suppresses exactly one Update after a write, because the
	// PUT response already delivered fresh state.
	skipNextPoll bool
}

// NewDevice builds a Device from a metadevice payload. The catalog and the
// initial state (when the list was fetched with expansions=state) are parsed
// eagerly here; a device never mutates its catalog afterwards.
func NewDevice(meta *Metadevice, accountID string, transport Transport, profile Profile, logger zerolog.Logger) *Device {
	logger = logger.With().Str("device", meta.ID).Logger()
	d := &Device{
		id:        meta.ID,
		name:      meta.FriendlyName,
		accountID: accountID,
		transport: transport,
		profile:   profile,
		log:       logger,
		catalog:   ParseCatalog(meta.Description.Functions, profile),
		states:    NewStore(logger),
	}
	if meta.State != nil {
		d.states.Replace(meta.State.Values)
	}
	return d
}

// ID returns the stable metadevice identifier.
func (d *Device) ID() string { return d.id }

// Name returns the vendor-side friendly name.
func (d *Device) Name() string { return d.name }

// Available reports whether the vendor considers the device reachable.
// Unknown means available.
func (d *Device) Available() bool {
	v, ok := d.StateValue(ClassKey(ClassAvailable))
	if !ok {
		return true
	}
	b, _ := v.(bool)
	return b
}

// Update polls the current device state and replaces the local state map.
// If the previous operation was a write, the poll is skipped once: the write
// response already supplied this state.
func (d *Device) Update(ctx context.Context) error {
	if d.skipNextPoll {
		d.skipNextPoll = false
		d.log.Debug().Msg("Skipping poll right after state push")
		return nil
	}
	payload, err := d.transport.DeviceState(ctx, d.accountID, d.id)
	if err != nil {
		return fmt.Errorf("fetch device state: %w", err)
	}
	d.states.Replace(payload.Values)
	return nil
}

// SetState uploads an explicit value list as the device's new state. Every
// entry is stamped with the current time, the PUT response re-populates the
// local state map and the next poll is suppressed.
func (d *Device) SetState(ctx context.Context, values []WireValue) error {
	now := epochMillis()
	stamped := make([]WireValue, len(values))
	for i, wv := range values {
		wv.LastUpdateTime = now
		stamped[i] = wv
	}
	return d.putState(ctx, stamped)
}

// PushState serializes the locally mutated state values (settable classes
// with non-nil values) and uploads them, then refreshes local state from the
// response and suppresses the next poll.
func (d *Device) PushState(ctx context.Context) error {
	return d.putState(ctx, d.states.SerializeForPush(epochMillis()))
}

func (d *Device) putState(ctx context.Context, values []WireValue) error {
	pushID := uuid.NewString()
	d.log.Debug().Str("push_id", pushID).Int("values", len(values)).Msg("Pushing device state")
	payload := &StatePayload{MetadeviceID: d.id, Values: values}
	resp, err := d.transport.SetDeviceState(ctx, d.accountID, d.id, payload)
	if err != nil {
		return fmt.Errorf("push device state: %w", err)
	}
	d.states.Replace(resp.Values)
	d.skipNextPoll = true
	d.log.Debug().Str("push_id", pushID).Int("values", d.states.Len()).Msg("Device state accepted")
	return nil
}

// StateValue resolves a key to its domain value. Class-only keys use the
// first instance in payload order (with an ambiguity warning when several
// exist); exact keys match one instance or nothing.
func (d *Device) StateValue(key Key) (any, bool) {
	var sv *StateValue
	if key.Exact() {
		sv = d.states.Instance(key.Class, key.Instance)
	} else {
		sv = d.states.First(key.Class)
	}
	if sv == nil {
		return nil, false
	}
	return d.profile.DecodeValue(sv.Class, sv.Value), true
}

// SetStateValue encodes a domain value and writes it into the local state
// map. Class-only keys rewrite every instance of the class; exact keys touch
// one instance and do nothing when it is absent. The mutation is local until
// the next PushState.
func (d *Device) SetStateValue(key Key, value any) {
	d.states.Set(key, d.profile.EncodeValue(key.Class, value))
}

// FunctionValues returns the ordered value tokens of the function addressed
// by key, or nil when the device has no such function. Class-only resolution
// mirrors StateValue, including the ambiguity warning.
func (d *Device) FunctionValues(key Key) []string {
	if key.Exact() {
		if fn := d.catalog.Instance(key.Class, key.Instance); fn != nil {
			return fn.Values
		}
		return nil
	}
	group := d.catalog.Class(key.Class)
	if len(group) == 0 {
		return nil
	}
	if len(group) > 1 {
		d.log.Warn().
			Str("function_class", string(key.Class)).
			Int("instances", len(group)).
			Msg("Expected at most one function for class, using first")
	}
	return group[0].Values
}

// Catalog exposes the parsed function catalog.
func (d *Device) Catalog() *Catalog { return d.catalog }

// States exposes the current state store.
func (d *Device) States() *Store { return d.states }

func epochMillis() int64 {
	return time.Now().UTC().UnixMilli()
}
