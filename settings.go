package kb1

import (
	"encoding/binary"
)

// CCVelocity is the controller number that maps an axis to note velocity
// instead of a MIDI CC.
const CCVelocity = 128

// Record sizes on the wire.
const (
	LeverSettingsSize          = 40
	LeverPushSettingsSize      = 32
	TouchSettingsSize          = 16
	TouchSettingsThresholdSize = 20
	ScaleSettingsSize          = 12
	SystemSettingsSize         = 16
)

// LeverSettings configures one lever axis.
type LeverSettings struct {
	CCNumber     int32 `yaml:"cc_number"`
	MinCC        int32 `yaml:"min_cc"`
	MaxCC        int32 `yaml:"max_cc"`
	StepSize     int32 `yaml:"step_size"`
	FunctionMode int32 `yaml:"function_mode"`
	ValueMode    int32 `yaml:"value_mode"`
	OnsetTime    int32 `yaml:"onset_time"`
	OffsetTime   int32 `yaml:"offset_time"`
	OnsetType    int32 `yaml:"onset_type"`
	OffsetType   int32 `yaml:"offset_type"`
}

// LeverPushSettings configures the push action of one lever.
type LeverPushSettings struct {
	CCNumber     int32 `yaml:"cc_number"`
	MinCC        int32 `yaml:"min_cc"`
	MaxCC        int32 `yaml:"max_cc"`
	FunctionMode int32 `yaml:"function_mode"`
	OnsetTime    int32 `yaml:"onset_time"`
	OffsetTime   int32 `yaml:"offset_time"`
	OnsetType    int32 `yaml:"onset_type"`
	OffsetType   int32 `yaml:"offset_type"`
}

// TouchSettings configures the touch sensor. Threshold is only carried by
// firmware that sends the 20 byte form.
type TouchSettings struct {
	CCNumber     int32 `yaml:"cc_number"`
	MinCC        int32 `yaml:"min_cc"`
	MaxCC        int32 `yaml:"max_cc"`
	FunctionMode int32 `yaml:"function_mode"`
	Threshold    int32 `yaml:"threshold,omitempty"`
	HasThreshold bool  `yaml:"has_threshold,omitempty"`
}

// ScaleSettings selects the keyboard scale.
type ScaleSettings struct {
	ScaleType  int32 `yaml:"scale_type"`
	RootNote   int32 `yaml:"root_note"`
	KeyMapping int32 `yaml:"key_mapping"`
}

// SystemSettings holds the power management timeouts, in seconds. The
// record has a fourth, firmware-private field that is only ever copied from
// a device read; a SystemSettings built by hand carries zero there and
// cannot be written.
type SystemSettings struct {
	LightSleepTimeout int32 `yaml:"light_sleep_timeout"`
	DeepSleepTimeout  int32 `yaml:"deep_sleep_timeout"`
	BLETimeout        int32 `yaml:"ble_timeout"`

	private int32
}

func getInt32(buf []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[4*i:]))
}

func putInt32(buf []byte, i int, v int32) {
	binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
}

func putFields(fields ...int32) []byte {
	buf := make([]byte, 4*len(fields))
	for i, v := range fields {
		putInt32(buf, i, v)
	}
	return buf
}

// DecodeLeverSettings decodes a lever record. Extra trailing bytes are
// ignored.
func DecodeLeverSettings(buf []byte) (LeverSettings, error) {
	if len(buf) < LeverSettingsSize {
		return LeverSettings{}, ErrShortRecord
	}
	return LeverSettings{
		CCNumber:     getInt32(buf, 0),
		MinCC:        getInt32(buf, 1),
		MaxCC:        getInt32(buf, 2),
		StepSize:     getInt32(buf, 3),
		FunctionMode: getInt32(buf, 4),
		ValueMode:    getInt32(buf, 5),
		OnsetTime:    getInt32(buf, 6),
		OffsetTime:   getInt32(buf, 7),
		OnsetType:    getInt32(buf, 8),
		OffsetType:   getInt32(buf, 9),
	}, nil
}

// Encode returns the 40 byte wire form.
func (s LeverSettings) Encode() []byte {
	return putFields(s.CCNumber, s.MinCC, s.MaxCC, s.StepSize, s.FunctionMode,
		s.ValueMode, s.OnsetTime, s.OffsetTime, s.OnsetType, s.OffsetType)
}

// DecodeLeverPushSettings decodes a lever push record.
func DecodeLeverPushSettings(buf []byte) (LeverPushSettings, error) {
	if len(buf) < LeverPushSettingsSize {
		return LeverPushSettings{}, ErrShortRecord
	}
	return LeverPushSettings{
		CCNumber:     getInt32(buf, 0),
		MinCC:        getInt32(buf, 1),
		MaxCC:        getInt32(buf, 2),
		FunctionMode: getInt32(buf, 3),
		OnsetTime:    getInt32(buf, 4),
		OffsetTime:   getInt32(buf, 5),
		OnsetType:    getInt32(buf, 6),
		OffsetType:   getInt32(buf, 7),
	}, nil
}

// Encode returns the 32 byte wire form.
func (s LeverPushSettings) Encode() []byte {
	return putFields(s.CCNumber, s.MinCC, s.MaxCC, s.FunctionMode,
		s.OnsetTime, s.OffsetTime, s.OnsetType, s.OffsetType)
}

// DecodeTouchSettings decodes a touch record in either the 16 or the 20 byte
// form.
func DecodeTouchSettings(buf []byte) (TouchSettings, error) {
	if len(buf) < TouchSettingsSize {
		return TouchSettings{}, ErrShortRecord
	}
	s := TouchSettings{
		CCNumber:     getInt32(buf, 0),
		MinCC:        getInt32(buf, 1),
		MaxCC:        getInt32(buf, 2),
		FunctionMode: getInt32(buf, 3),
	}
	if len(buf) >= TouchSettingsThresholdSize {
		s.Threshold = getInt32(buf, 4)
		s.HasThreshold = true
	}
	return s, nil
}

// Encode returns the wire form, 20 bytes when the threshold is carried and
// 16 otherwise.
func (s TouchSettings) Encode() []byte {
	if s.HasThreshold {
		return putFields(s.CCNumber, s.MinCC, s.MaxCC, s.FunctionMode, s.Threshold)
	}
	return putFields(s.CCNumber, s.MinCC, s.MaxCC, s.FunctionMode)
}

// DecodeScaleSettings decodes a scale record.
func DecodeScaleSettings(buf []byte) (ScaleSettings, error) {
	if len(buf) < ScaleSettingsSize {
		return ScaleSettings{}, ErrShortRecord
	}
	return ScaleSettings{
		ScaleType:  getInt32(buf, 0),
		RootNote:   getInt32(buf, 1),
		KeyMapping: getInt32(buf, 2),
	}, nil
}

// Encode returns the 12 byte wire form.
func (s ScaleSettings) Encode() []byte {
	return putFields(s.ScaleType, s.RootNote, s.KeyMapping)
}

// DecodeSystemSettings decodes a system record, keeping the private field.
func DecodeSystemSettings(buf []byte) (SystemSettings, error) {
	if len(buf) < SystemSettingsSize {
		return SystemSettings{}, ErrShortRecord
	}
	return SystemSettings{
		LightSleepTimeout: getInt32(buf, 0),
		DeepSleepTimeout:  getInt32(buf, 1),
		BLETimeout:        getInt32(buf, 2),
		private:           getInt32(buf, 3),
	}, nil
}

// Merge returns the editable fields of s on top of the private field of
// current, the snapshot last read from the device.
func (s SystemSettings) Merge(current SystemSettings) SystemSettings {
	s.private = current.private
	return s
}

// Encode returns the 16 byte wire form. The private field is whatever the
// record was decoded or merged with.
func (s SystemSettings) Encode() []byte {
	return putFields(s.LightSleepTimeout, s.DeepSleepTimeout, s.BLETimeout, s.private)
}
