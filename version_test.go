package kb1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFirmwareVersion(t *testing.T) {
	tests := []struct {
		in   string
		want FirmwareVersion
	}{
		{"1.2.3", FirmwareVersion{1, 2, 3, true}},
		{"v1.0.0", FirmwareVersion{1, 0, 0, true}},
		{"2.10.0\x00\x00", FirmwareVersion{2, 10, 0, true}},
		{" 1.1.4 ", FirmwareVersion{1, 1, 4, true}},
		{"", FirmwareVersion{}},
		{"1.2", FirmwareVersion{}},
		{"1.2.3.4", FirmwareVersion{}},
		{"1.x.3", FirmwareVersion{}},
		{"-1.0.0", FirmwareVersion{}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseFirmwareVersion(tc.in), "input %q", tc.in)
	}
}

func TestFirmwareVersionAtLeast(t *testing.T) {
	v := FirmwareVersion{1, 2, 0, true}
	assert.True(t, v.AtLeast(1, 2, 0))
	assert.True(t, v.AtLeast(1, 1, 9))
	assert.True(t, v.AtLeast(0, 9, 9))
	assert.False(t, v.AtLeast(1, 2, 1))
	assert.False(t, v.AtLeast(2, 0, 0))
	assert.False(t, FirmwareVersion{}.AtLeast(0, 0, 0))
}

func TestCapabilitiesUnknownIsConservative(t *testing.T) {
	caps := CapabilitiesFor(ParseFirmwareVersion(""))
	assert.Equal(t, LegacyScaleTypes, caps.ScaleTypes)
	assert.False(t, caps.TouchThreshold)
	assert.Equal(t, "unknown", caps.Firmware.String())
}

func TestCapabilitiesTiers(t *testing.T) {
	assert.Equal(t, LegacyScaleTypes, CapabilitiesFor(ParseFirmwareVersion("1.1.9")).ScaleTypes)
	assert.True(t, CapabilitiesFor(ParseFirmwareVersion("1.1.0")).TouchThreshold)
	assert.Equal(t, ExtendedScaleTypes, CapabilitiesFor(ParseFirmwareVersion("1.2.0")).ScaleTypes)
	assert.Equal(t, ExtendedScaleTypes, CapabilitiesFor(ParseFirmwareVersion("3.0.0")).ScaleTypes)
}
