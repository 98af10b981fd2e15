package hubspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Mired fallbacks for lights whose catalog carries no color-temperature
// function, matching the usual 2000K–6500K white range.
const (
	defaultMinMireds = 153
	defaultMaxMireds = 500
)

// Light adapts a generic Device to light semantics: boolean power, 0–255
// brightness over the vendor's 0–100 range, and mired color temperature over
// the vendor's "<kelvin>K" tokens.
type Light struct {
	*Device
}

// NewLight builds a light adapter from a metadevice payload.
func NewLight(meta *Metadevice, accountID string, transport Transport, logger zerolog.Logger) *Light {
	return &Light{NewDevice(meta, accountID, transport, lightProfile{}, logger)}
}

// lightProfile orders color-temperature tokens by their converted mired value
// and rescales brightness between the vendor's 0–100 and the domain's 0–255.
type lightProfile struct {
	BaseProfile
}

func (lightProfile) ValueOrder(class Class, value string) (float64, bool) {
	if class == ClassColorTemperature {
		if mired, err := kelvinTokenToMired(value); err == nil {
			return float64(mired), true
		}
	}
	return 0, false
}

func (p lightProfile) DecodeValue(class Class, raw any) any {
	if class == ClassBrightness {
		return brightnessToDomain(raw)
	}
	return p.BaseProfile.DecodeValue(class, raw)
}

func (p lightProfile) EncodeValue(class Class, value any) any {
	if class == ClassBrightness {
		return brightnessToVendor(value)
	}
	return p.BaseProfile.EncodeValue(class, value)
}

// SupportsBrightness reports whether the catalog carries a brightness function.
func (l *Light) SupportsBrightness() bool {
	return l.catalog.Has(ClassBrightness)
}

// SupportsColorTemp reports whether the catalog carries a color-temperature
// function.
func (l *Light) SupportsColorTemp() bool {
	return l.catalog.Has(ClassColorTemperature)
}

// IsOn reports whether the light is powered on. Unknown means off.
func (l *Light) IsOn() bool {
	v, ok := l.StateValue(ClassKey(ClassPower))
	return ok && v == StateOn
}

// Brightness returns the current brightness in the 0–255 domain range.
func (l *Light) Brightness() (int, bool) {
	v, ok := l.StateValue(ClassKey(ClassBrightness))
	if !ok {
		return 0, false
	}
	b, ok := v.(int)
	return b, ok
}

// ColorTemp returns the current color temperature in mireds.
func (l *Light) ColorTemp() (int, bool) {
	v, ok := l.StateValue(ClassKey(ClassColorTemperature))
	if !ok {
		return 0, false
	}
	token, ok := v.(string)
	if !ok {
		return 0, false
	}
	mired, err := kelvinTokenToMired(token)
	if err != nil {
		return 0, false
	}
	return mired, true
}

// MinMireds returns the coldest color temperature the light supports.
// The catalog is mired-ordered, so that is the first token.
func (l *Light) MinMireds() int {
	values := l.FunctionValues(ClassKey(ClassColorTemperature))
	if len(values) == 0 {
		return defaultMinMireds
	}
	mired, err := kelvinTokenToMired(values[0])
	if err != nil {
		return defaultMinMireds
	}
	return mired
}

// MaxMireds returns the warmest color temperature the light supports.
func (l *Light) MaxMireds() int {
	values := l.FunctionValues(ClassKey(ClassColorTemperature))
	if len(values) == 0 {
		return defaultMaxMireds
	}
	mired, err := kelvinTokenToMired(values[len(values)-1])
	if err != nil {
		return defaultMaxMireds
	}
	return mired
}

// LightOptions are the optional attributes of a turn-on command.
type LightOptions struct {
	// Brightness in the 0–255 domain range.
	Brightness *int
	// ColorTemp in mireds. Mapped onto the catalog token whose relative
	// position matches the requested position between MinMireds and
	// MaxMireds (nearest position, not nearest value).
	ColorTemp *int
}

// TurnOn powers the light on, applies the requested attributes to the local
// state and pushes the result to the vendor.
func (l *Light) TurnOn(ctx context.Context, opts LightOptions) error {
	l.SetStateValue(ClassKey(ClassPower), StateOn)
	if opts.Brightness != nil {
		l.SetStateValue(ClassKey(ClassBrightness), *opts.Brightness)
	}
	if opts.ColorTemp != nil {
		values := l.FunctionValues(ClassKey(ClassColorTemperature))
		minM, maxM := l.MinMireds(), l.MaxMireds()
		if len(values) > 0 && maxM > minM {
			pct := float64(*opts.ColorTemp-minM) / float64(maxM-minM) * 100
			if token, ok := percentageToOrderedListItem(values, pct); ok {
				l.SetStateValue(ClassKey(ClassColorTemperature), token)
			}
		}
	}
	return l.PushState(ctx)
}

// TurnOff powers the light off and pushes the result to the vendor.
func (l *Light) TurnOff(ctx context.Context) error {
	l.SetStateValue(ClassKey(ClassPower), StateOff)
	return l.PushState(ctx)
}

// brightnessToDomain rescales a vendor 0–100 brightness to 0–255.
func brightnessToDomain(raw any) any {
	f, ok := rawNumber(raw)
	if !ok {
		return raw
	}
	return int(f*255) / 100
}

// brightnessToVendor rescales a 0–255 domain brightness to the vendor's
// 0–100 range.
func brightnessToVendor(value any) any {
	f, ok := rawNumber(value)
	if !ok {
		return value
	}
	return int(f) * 100 / 255
}

// rawNumber extracts a numeric value from the heterogeneous vendor types.
func rawNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// kelvinTokenToMired converts a vendor "<kelvin>K" token to mireds using the
// reciprocal pair floor(1e6/K).
func kelvinTokenToMired(token string) (int, error) {
	s := strings.TrimSuffix(token, "K")
	if s == token || s == "" {
		return 0, fmt.Errorf("malformed color temperature token %q", token)
	}
	kelvin, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed color temperature token %q: %w", token, err)
	}
	if kelvin <= 0 {
		return 0, fmt.Errorf("non-positive color temperature %q", token)
	}
	return int(1_000_000 / kelvin), nil
}

// miredToKelvinToken converts mireds back to the vendor token form.
func miredToKelvinToken(mired int) string {
	return strconv.Itoa(1_000_000/mired) + "K"
}
