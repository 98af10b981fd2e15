package hubspace

import (
	"github.com/rs/zerolog"
)

// StateValue is the live value of one (class, instance) pair. Value stays
// vendor-native here; domain translation happens in the Device accessors via
// the injected Profile.
type StateValue struct {
	Class          Class
	Instance       string
	Value          any
	LastUpdateTime int64
}

// Store holds a device's current state values grouped by class. Within a
// class, instances keep payload order; across classes, first-seen order is
// kept so push serialization and publishing are deterministic.
//
// Store is not safe for concurrent use. The caller serializes access, one
// operation per device at a time.
type Store struct {
	classes map[Class][]*StateValue
	order   []Class
	log     zerolog.Logger
}

// NewStore creates an empty state store. The logger is the diagnostics sink
// for data-shape anomalies (they are warnings, never errors).
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		classes: make(map[Class][]*StateValue),
		log:     logger,
	}
}

// Replace drops the whole current map and rebuilds it from a state payload.
// Entries with an unrecognized class are discarded. Replacement, not merging,
// is deliberate: every GET and PUT response carries the full state.
func (s *Store) Replace(values []WireValue) {
	s.classes = make(map[Class][]*StateValue)
	s.order = s.order[:0]
	for _, wv := range values {
		class := classOf(wv.FunctionClass)
		if class == ClassUnsupported {
			continue
		}
		sv := &StateValue{
			Class:          class,
			Instance:       wv.FunctionInstance,
			Value:          wv.Value,
			LastUpdateTime: wv.LastUpdateTime,
		}
		s.put(sv)
	}
}

// put inserts a value, overwriting an earlier entry for the same
// (class, instance) pair.
func (s *Store) put(sv *StateValue) {
	group, seen := s.classes[sv.Class]
	for i, existing := range group {
		if existing.Instance == sv.Instance {
			group[i] = sv
			return
		}
	}
	if !seen {
		s.order = append(s.order, sv.Class)
	}
	s.classes[sv.Class] = append(group, sv)
}

// Class returns all state values of a class in payload order.
func (s *Store) Class(class Class) []*StateValue {
	return s.classes[class]
}

// Instance returns the state value with the exact (class, instance) pair,
// or nil when the device reports no such state.
func (s *Store) Instance(class Class, instance string) *StateValue {
	for _, sv := range s.classes[class] {
		if sv.Instance == instance {
			return sv
		}
	}
	return nil
}

// First resolves a class-only lookup: the first value of the class in payload
// order. A device is expected to report at most one value per bare class;
// if several instances exist the first one is still used and a warning is
// emitted on the diagnostics logger.
func (s *Store) First(class Class) *StateValue {
	group := s.classes[class]
	if len(group) == 0 {
		return nil
	}
	if len(group) > 1 {
		s.log.Warn().
			Str("function_class", string(class)).
			Int("instances", len(group)).
			Msg("Expected at most one state value for class, using first")
	}
	return group[0]
}

// Set writes a raw vendor value. An exact key updates that one instance and
// is a no-op when absent; a class-only key rewrites every instance of the
// class, which is the intended one-to-many semantics for instanced classes.
func (s *Store) Set(key Key, raw any) {
	if key.Exact() {
		if sv := s.Instance(key.Class, key.Instance); sv != nil {
			sv.Value = raw
		}
		return
	}
	for _, sv := range s.classes[key.Class] {
		sv.Value = raw
	}
}

// All returns every state value, classes in first-seen order and instances in
// payload order.
func (s *Store) All() []*StateValue {
	var out []*StateValue
	for _, class := range s.order {
		out = append(out, s.classes[class]...)
	}
	return out
}

// Len returns the number of state values held.
func (s *Store) Len() int {
	n := 0
	for _, group := range s.classes {
		n += len(group)
	}
	return n
}

// SerializeForPush builds the value list for a state upload: one entry per
// state value that has a non-nil raw value and whose class is settable.
// All entries share the same timestamp; the instance field is only carried
// when the value has one.
func (s *Store) SerializeForPush(now int64) []WireValue {
	var out []WireValue
	for _, sv := range s.All() {
		if sv.Value == nil || !settableClasses[sv.Class] {
			continue
		}
		out = append(out, WireValue{
			FunctionClass:    string(sv.Class),
			FunctionInstance: sv.Instance,
			Value:            sv.Value,
			LastUpdateTime:   now,
		})
	}
	return out
}
