package kb1

import (
	"fmt"
	"strconv"
	"strings"
)

// FirmwareVersion is the major.minor.patch version advertised by the
// peripheral. Known is false when the firmware did not advertise one, or
// advertised something unparseable; such firmware is treated as the oldest
// release.
type FirmwareVersion struct {
	Major, Minor, Patch int
	Known               bool
}

// ParseFirmwareVersion parses "major.minor.patch", with an optional leading
// "v" and optional trailing NUL padding. Anything else yields an unknown
// version, never an error.
func ParseFirmwareVersion(s string) FirmwareVersion {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return FirmwareVersion{}
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return FirmwareVersion{}
		}
		nums[i] = n
	}
	return FirmwareVersion{Major: nums[0], Minor: nums[1], Patch: nums[2], Known: true}
}

func (v FirmwareVersion) String() string {
	if !v.Known {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is the given release or newer. An unknown
// version is older than every release.
func (v FirmwareVersion) AtLeast(major, minor, patch int) bool {
	if !v.Known {
		return false
	}
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// Scale type counts per firmware tier.
const (
	LegacyScaleTypes   = 8
	ExtendedScaleTypes = 12
)

// Capabilities are the field domains that depend on the firmware version.
type Capabilities struct {
	Firmware FirmwareVersion

	// ScaleTypes is the number of selectable scale modes; valid scaleType
	// values are 0..ScaleTypes-1.
	ScaleTypes int

	// TouchThreshold reports whether the touch record carries the fifth,
	// threshold field.
	TouchThreshold bool
}

// CapabilitiesFor returns the capability set of a firmware version. Unknown
// versions get the most conservative set.
func CapabilitiesFor(v FirmwareVersion) Capabilities {
	caps := Capabilities{
		Firmware:   v,
		ScaleTypes: LegacyScaleTypes,
	}
	if v.AtLeast(1, 1, 0) {
		caps.TouchThreshold = true
	}
	if v.AtLeast(1, 2, 0) {
		caps.ScaleTypes = ExtendedScaleTypes
	}
	return caps
}
