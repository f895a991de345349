package kb1

// Field domains enforced before a record is written.
//
// CC numbers and values are MIDI data bytes (0..127); the CC number domain
// adds the CCVelocity sentinel. Root notes are the twelve pitch classes and
// the scale type count comes from the firmware version (CapabilitiesFor).
// The remaining fields are firmware enumerants and times without a
// published upper bound: any non-negative value is accepted, so a record
// read from the device can always be written back.
const (
	MaxCCValue  = 127
	MaxStepSize = MaxCCValue
	RootNotes   = 12

	// Minimum gap, in seconds, between consecutive system timeouts.
	SystemTimeoutGap = 30

	maxField = 1<<31 - 1
)

type fieldCheck struct {
	name     string
	value    int32
	min, max int64
}

func checkFields(record string, checks ...fieldCheck) error {
	for _, c := range checks {
		v := int64(c.value)
		if v < c.min || v > c.max {
			return invalid(record, c.name, v, "out of range %d..%d", c.min, c.max)
		}
	}
	return nil
}

func checkCCRange(record string, min, max int32) error {
	if min > max {
		return invalid(record, "min_cc", int64(min), "greater than max_cc %d", max)
	}
	return nil
}

func ccChecks(cc, min, max int32) []fieldCheck {
	return []fieldCheck{
		{"cc_number", cc, 0, CCVelocity},
		{"min_cc", min, 0, MaxCCValue},
		{"max_cc", max, 0, MaxCCValue},
	}
}

func envelopeChecks(onsetTime, offsetTime, onsetType, offsetType int32) []fieldCheck {
	return []fieldCheck{
		{"onset_time", onsetTime, 0, maxField},
		{"offset_time", offsetTime, 0, maxField},
		{"onset_type", onsetType, 0, maxField},
		{"offset_type", offsetType, 0, maxField},
	}
}

// Validate checks every field of the lever record.
func (s LeverSettings) Validate(Capabilities) error {
	const record = "lever"
	checks := ccChecks(s.CCNumber, s.MinCC, s.MaxCC)
	checks = append(checks,
		fieldCheck{"step_size", s.StepSize, 0, MaxStepSize},
		fieldCheck{"function_mode", s.FunctionMode, 0, maxField},
		fieldCheck{"value_mode", s.ValueMode, 0, maxField},
	)
	checks = append(checks, envelopeChecks(s.OnsetTime, s.OffsetTime, s.OnsetType, s.OffsetType)...)
	if err := checkFields(record, checks...); err != nil {
		return err
	}
	return checkCCRange(record, s.MinCC, s.MaxCC)
}

// Validate checks every field of the lever push record.
func (s LeverPushSettings) Validate(Capabilities) error {
	const record = "lever_push"
	checks := ccChecks(s.CCNumber, s.MinCC, s.MaxCC)
	checks = append(checks, fieldCheck{"function_mode", s.FunctionMode, 0, maxField})
	checks = append(checks, envelopeChecks(s.OnsetTime, s.OffsetTime, s.OnsetType, s.OffsetType)...)
	if err := checkFields(record, checks...); err != nil {
		return err
	}
	return checkCCRange(record, s.MinCC, s.MaxCC)
}

// Validate checks every field of the touch record. The threshold field is
// only accepted when the firmware supports it.
func (s TouchSettings) Validate(caps Capabilities) error {
	const record = "touch"
	if s.HasThreshold && !caps.TouchThreshold {
		return invalid(record, "threshold", int64(s.Threshold),
			"not supported by firmware %s", caps.Firmware)
	}
	checks := ccChecks(s.CCNumber, s.MinCC, s.MaxCC)
	checks = append(checks, fieldCheck{"function_mode", s.FunctionMode, 0, maxField})
	if s.HasThreshold {
		checks = append(checks, fieldCheck{"threshold", s.Threshold, 0, maxField})
	}
	if err := checkFields(record, checks...); err != nil {
		return err
	}
	return checkCCRange(record, s.MinCC, s.MaxCC)
}

// Validate checks the scale record. The number of scale types depends on
// the firmware version.
func (s ScaleSettings) Validate(caps Capabilities) error {
	n := caps.ScaleTypes
	if n <= 0 {
		n = LegacyScaleTypes
	}
	return checkFields("scale",
		fieldCheck{"scale_type", s.ScaleType, 0, int64(n) - 1},
		fieldCheck{"root_note", s.RootNote, 0, RootNotes - 1},
		fieldCheck{"key_mapping", s.KeyMapping, 0, maxField},
	)
}

// Validate checks the system timeouts and their ordering: deep sleep must
// come more than SystemTimeoutGap seconds after light sleep, and the BLE
// timeout at least SystemTimeoutGap seconds after deep sleep.
func (s SystemSettings) Validate(Capabilities) error {
	const record = "system"
	if err := checkFields(record,
		fieldCheck{"light_sleep_timeout", s.LightSleepTimeout, 0, maxField},
		fieldCheck{"deep_sleep_timeout", s.DeepSleepTimeout, 0, maxField},
		fieldCheck{"ble_timeout", s.BLETimeout, 0, maxField},
	); err != nil {
		return err
	}
	light, deep, ble := int64(s.LightSleepTimeout), int64(s.DeepSleepTimeout), int64(s.BLETimeout)
	if deep <= light+SystemTimeoutGap {
		return invalid(record, "deep_sleep_timeout", deep,
			"must exceed light_sleep_timeout + %d (%d)", SystemTimeoutGap, light+SystemTimeoutGap)
	}
	if ble < deep+SystemTimeoutGap {
		return invalid(record, "ble_timeout", ble,
			"must be at least deep_sleep_timeout + %d (%d)", SystemTimeoutGap, deep+SystemTimeoutGap)
	}
	return nil
}
