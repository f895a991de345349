package kb1

import "sort"

// Role is the logical purpose of one KB1 characteristic.
type Role int

const (
	RolePrimary Role = iota
	RoleKeepAlive
	RoleLever1
	RoleLever2
	RoleLeverPush1
	RoleLeverPush2
	RoleTouch
	RoleScale
	RoleSystem
	RolePresetSave
	RolePresetLoad
	RolePresetDelete
	RolePresetList
	RoleFirmwareVersion

	numRoles
)

var roleNames = [numRoles]string{
	RolePrimary:         "primary",
	RoleKeepAlive:       "keepalive",
	RoleLever1:          "lever-1-settings",
	RoleLever2:          "lever-2-settings",
	RoleLeverPush1:      "leverpush-1-settings",
	RoleLeverPush2:      "leverpush-2-settings",
	RoleTouch:           "touch-settings",
	RoleScale:           "scale-settings",
	RoleSystem:          "system-settings",
	RolePresetSave:      "preset-save",
	RolePresetLoad:      "preset-load",
	RolePresetDelete:    "preset-delete",
	RolePresetList:      "preset-list",
	RoleFirmwareVersion: "firmware-version",
}

func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return "unknown-role"
	}
	return roleNames[r]
}

// ParseRole returns the role with the given name.
func ParseRole(name string) (Role, bool) {
	for r, n := range roleNames {
		if n == name {
			return Role(r), true
		}
	}
	return 0, false
}

// Required reports whether a connection fails when the role is absent.
func (r Role) Required() bool {
	return r == RolePrimary
}

// Resolution groups, in the order the supervisor looks them up. The first
// group is attempted before anything else.
var (
	linkRoles     = []Role{RolePrimary, RoleKeepAlive}
	settingsRoles = []Role{RoleLever1, RoleLever2, RoleLeverPush1, RoleLeverPush2, RoleTouch, RoleScale, RoleSystem}
	presetRoles   = []Role{RolePresetSave, RolePresetLoad, RolePresetDelete, RolePresetList}
)

// Profile maps roles to the UUIDs the firmware advertises them under.
type Profile struct {
	// Service holds every role except RoleFirmwareVersion.
	Service UUID
	// InfoService holds RoleFirmwareVersion.
	InfoService     UUID
	Characteristics map[Role]UUID
}

var (
	ServiceUUIDKB1               = MustParseUUID("4b423100-0000-4d49-4449-000000000000")
	ServiceUUIDDeviceInformation = New16BitUUID(0x180a)

	CharacteristicUUIDFirmwareRevision = New16BitUUID(0x2a26)
)

// DefaultProfile returns the UUID layout of production KB1 firmware.
func DefaultProfile() Profile {
	return Profile{
		Service:     ServiceUUIDKB1,
		InfoService: ServiceUUIDDeviceInformation,
		Characteristics: map[Role]UUID{
			RolePrimary:         MustParseUUID("4b423101-0000-4d49-4449-000000000000"),
			RoleKeepAlive:       MustParseUUID("4b423102-0000-4d49-4449-000000000000"),
			RoleLever1:          MustParseUUID("4b423110-0000-4d49-4449-000000000000"),
			RoleLever2:          MustParseUUID("4b423111-0000-4d49-4449-000000000000"),
			RoleLeverPush1:      MustParseUUID("4b423112-0000-4d49-4449-000000000000"),
			RoleLeverPush2:      MustParseUUID("4b423113-0000-4d49-4449-000000000000"),
			RoleTouch:           MustParseUUID("4b423114-0000-4d49-4449-000000000000"),
			RoleScale:           MustParseUUID("4b423115-0000-4d49-4449-000000000000"),
			RoleSystem:          MustParseUUID("4b423116-0000-4d49-4449-000000000000"),
			RolePresetSave:      MustParseUUID("4b423120-0000-4d49-4449-000000000000"),
			RolePresetLoad:      MustParseUUID("4b423121-0000-4d49-4449-000000000000"),
			RolePresetDelete:    MustParseUUID("4b423122-0000-4d49-4449-000000000000"),
			RolePresetList:      MustParseUUID("4b423123-0000-4d49-4449-000000000000"),
			RoleFirmwareVersion: CharacteristicUUIDFirmwareRevision,
		},
	}
}

// CharacteristicTable records which roles resolved on one connection. It is
// filled once while resolving and never changes afterwards.
type CharacteristicTable struct {
	chars map[Role]Characteristic
}

func newCharacteristicTable() *CharacteristicTable {
	return &CharacteristicTable{chars: make(map[Role]Characteristic)}
}

// Lookup returns the handle for a role, if the firmware exposes it.
func (t *CharacteristicTable) Lookup(role Role) (Characteristic, bool) {
	if t == nil {
		return nil, false
	}
	c, ok := t.chars[role]
	return c, ok
}

// Supported reports whether the role resolved.
func (t *CharacteristicTable) Supported(role Role) bool {
	_, ok := t.Lookup(role)
	return ok
}

// Roles returns the resolved roles in declaration order.
func (t *CharacteristicTable) Roles() []Role {
	roles := make([]Role, 0, len(t.chars))
	for r := range t.chars {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Missing returns the roles that did not resolve, in declaration order.
func (t *CharacteristicTable) Missing() []Role {
	var roles []Role
	for r := Role(0); r < numRoles; r++ {
		if !t.Supported(r) {
			roles = append(roles, r)
		}
	}
	return roles
}
