package hubspace

import (
	"sort"
)

// Class identifies a capability category reported by the Afero API, e.g.
// "power" or "fan-speed". Classes the integration does not understand are
// folded into ClassUnsupported.
type Class string

const (
	ClassUnsupported      Class = "unsupported"
	ClassPower            Class = "power"
	ClassBrightness       Class = "brightness"
	ClassFanSpeed         Class = "fan-speed"
	ClassAvailable        Class = "available"
	ClassToggle           Class = "toggle"
	ClassColorTemperature Class = "color-temperature"
)

// settableClasses are the function classes accepted in an outbound state push.
// Anything else ("available" in particular) is read-only and never uploaded.
var settableClasses = map[Class]bool{
	ClassPower:            true,
	ClassBrightness:       true,
	ClassFanSpeed:         true,
	ClassToggle:           true,
	ClassColorTemperature: true,
}

// Vendor value tokens shared by several classes.
const (
	StateOn        = "on"
	StateOff       = "off"
	ToggleEnabled  = "enabled"
	ToggleDisabled = "disabled"
)

// classOf maps a raw functionClass string to a Class. An absent class marks
// the entry unsupported, matching how the vendor payloads are interpreted.
func classOf(raw string) Class {
	if raw == "" {
		return ClassUnsupported
	}
	return Class(raw)
}

// Key addresses a function either by bare class or by an exact
// (class, instance) pair. The two forms resolve differently: a bare class
// picks the first instance on read and fans out to every instance on write.
type Key struct {
	Class    Class
	Instance string
	exact    bool
}

// ClassKey returns a class-only key.
func ClassKey(class Class) Key {
	return Key{Class: class}
}

// InstanceKey returns an exact (class, instance) key. An empty instance
// addresses the entry the vendor reported without a functionInstance field.
func InstanceKey(class Class, instance string) Key {
	return Key{Class: class, Instance: instance, exact: true}
}

// Exact reports whether the key addresses one specific instance.
func (k Key) Exact() bool {
	return k.exact
}

// Profile is the per-device-type strategy injected into a Device. It decides
// how catalog value tokens are ordered and how vendor-native values translate
// to and from domain values.
type Profile interface {
	// ValueOrder returns the ordering rank of a catalog value token for the
	// given class. ok=false means tokens for that class sort by literal text.
	ValueOrder(class Class, value string) (rank float64, ok bool)

	// DecodeValue converts a vendor-native value into its domain form.
	DecodeValue(class Class, raw any) any

	// EncodeValue converts a domain value into its vendor-native form.
	EncodeValue(class Class, value any) any
}

// BaseProfile implements the class-agnostic parts of Profile: identity value
// ordering and the "available" boolean coercion. Device-type profiles embed it
// and override what they need.
type BaseProfile struct{}

// ValueOrder sorts every class by literal token text.
func (BaseProfile) ValueOrder(Class, string) (float64, bool) {
	return 0, false
}

// DecodeValue coerces "available" to a boolean; everything else passes through.
func (BaseProfile) DecodeValue(class Class, raw any) any {
	if class == ClassAvailable {
		return truthy(raw)
	}
	return raw
}

// EncodeValue stringifies "available" booleans; everything else passes through.
func (BaseProfile) EncodeValue(class Class, value any) any {
	if class == ClassAvailable {
		if truthy(value) {
			return "True"
		}
		return "False"
	}
	return value
}

// truthy interprets a decoded JSON value as a boolean: nil and zero/empty
// values are false, everything else is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

// Function describes one device capability: its class, optional instance,
// the raw vendor type tag and the ordered list of allowed value tokens.
// Immutable once parsed.
type Function struct {
	Class    Class
	Instance string
	Type     string
	Values   []string
}

// Catalog holds a device's functions grouped by class. Within a class,
// instances keep the order they appeared in the description payload, which is
// what makes class-only lookups deterministic.
type Catalog struct {
	classes map[Class][]*Function
}

// ParseCatalog converts a description payload's function list into a Catalog.
// Value tokens are sorted per class using the profile's ordering; entries with
// no values list get an empty slice. Malformed entries are kept as-is, there
// is no error path.
func ParseCatalog(defs []FunctionDef, profile Profile) *Catalog {
	c := &Catalog{classes: make(map[Class][]*Function)}
	for _, def := range defs {
		fn := &Function{
			Class:    classOf(def.FunctionClass),
			Instance: def.FunctionInstance,
			Type:     def.Type,
			Values:   make([]string, 0, len(def.Values)),
		}
		for _, v := range def.Values {
			fn.Values = append(fn.Values, v.Name)
		}
		sortValues(profile, fn.Class, fn.Values)
		c.put(fn)
	}
	return c
}

// put inserts a function, replacing an earlier entry for the same
// (class, instance) pair so later payload entries win like a map assignment.
func (c *Catalog) put(fn *Function) {
	group := c.classes[fn.Class]
	for i, existing := range group {
		if existing.Instance == fn.Instance {
			group[i] = fn
			return
		}
	}
	c.classes[fn.Class] = append(group, fn)
}

// Has reports whether the catalog contains any function of the class.
func (c *Catalog) Has(class Class) bool {
	return len(c.classes[class]) > 0
}

// Class returns all functions of a class in payload order.
func (c *Catalog) Class(class Class) []*Function {
	return c.classes[class]
}

// Instance returns the function with the exact (class, instance) pair, or nil.
func (c *Catalog) Instance(class Class, instance string) *Function {
	for _, fn := range c.classes[class] {
		if fn.Instance == instance {
			return fn
		}
	}
	return nil
}

// Instances returns the non-empty instance names of a class in payload order.
func (c *Catalog) Instances(class Class) []string {
	var names []string
	for _, fn := range c.classes[class] {
		if fn.Instance != "" {
			names = append(names, fn.Instance)
		}
	}
	return names
}

// sortValues orders catalog value tokens. Classes the profile ranks
// numerically (fan speeds by suffix, color temperatures by mired value) sort
// by that rank; everything else sorts by literal text.
func sortValues(profile Profile, class Class, values []string) {
	if len(values) < 2 {
		return
	}
	for _, v := range values {
		if _, ok := profile.ValueOrder(class, v); !ok {
			sort.Strings(values)
			return
		}
	}
	sort.SliceStable(values, func(i, j int) bool {
		ri, _ := profile.ValueOrder(class, values[i])
		rj, _ := profile.ValueOrder(class, values[j])
		return ri < rj
	})
}
