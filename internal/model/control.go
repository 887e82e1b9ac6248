package model

// ControlValue is the mutable runtime value of one control. The
// enforcement rule is: when HasAuto && Auto && HasAutoAdjustable, AutoValue
// is the effective bias and Value is advisory; otherwise Value is the
// effective setting.
type ControlValue struct {
	Value     float64  `json:"value"`
	Auto      *bool    `json:"auto,omitempty"`
	AutoValue *float64 `json:"autoValue,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Allowed   *bool    `json:"allowed,omitempty"`
	Error     string   `json:"error,omitempty"`
	Units     string   `json:"units,omitempty"`
}

// Effective returns the value a client should treat as authoritative,
// applying the auto/auto-adjustable rule.
func (v ControlValue) Effective() float64 {
	if v.Auto != nil && *v.Auto {
		if v.AutoValue != nil {
			return *v.AutoValue
		}
	}
	return v.Value
}

// Equal reports whether two control values are indistinguishable from a
// client's point of view (used to detect idempotent no-op writes).
func (v ControlValue) Equal(o ControlValue) bool {
	if v.Value != o.Value {
		return false
	}
	if boolPtrEqual(v.Auto, o.Auto) && boolPtrEqual(v.Enabled, o.Enabled) {
		return floatPtrEqual(v.AutoValue, o.AutoValue)
	}
	return false
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// NoTransmitZoneDisabled reports whether a no-transmit zone encoded as
// start/end angles is disabled: start<0 or end<0 means disabled.
func NoTransmitZoneDisabled(start, end float64) bool {
	return start < 0 || end < 0
}

// Bool is a convenience constructor for *bool fields.
func Bool(v bool) *bool { return &v }

// Float is a convenience constructor for *float64 fields.
func Float(v float64) *float64 { return &v }
