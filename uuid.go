package kb1

// This file implements 16-bit and 128-bit UUIDs as defined in the Bluetooth
// specification.

import (
	"encoding/hex"
	"errors"
)

// UUID is a single UUID as used in the Bluetooth stack. It is represented as a
// [4]uint32 instead of a [16]byte for efficiency, least significant word
// first.
type UUID [4]uint32

var errInvalidUUID = errors.New("kb1: failed to parse UUID")

// New16BitUUID returns a new 128-bit UUID based on a 16-bit UUID.
//
// Note: only use registered UUIDs. See
// https://www.bluetooth.com/specifications/gatt/services/ for a list.
func New16BitUUID(shortUUID uint16) UUID {
	var uuid UUID
	uuid[0] = 0x5F9B34FB
	uuid[1] = 0x80000080
	uuid[2] = 0x00001000
	uuid[3] = uint32(shortUUID)
	return uuid
}

// Is16Bit returns whether this UUID is a 16-bit BLE UUID.
func (uuid UUID) Is16Bit() bool {
	return uuid.Is32Bit() && uuid[3] == uint32(uint16(uuid[3]))
}

// Is32Bit returns whether this UUID is a 32-bit BLE UUID.
func (uuid UUID) Is32Bit() bool {
	return uuid[0] == 0x5F9B34FB && uuid[1] == 0x80000080 && uuid[2] == 0x00001000
}

// ParseUUID parses a UUID in the canonical 8-4-4-4-12 form, or the 4 digit
// short form of a 16-bit UUID (as reported by CoreBluetooth). Both upper and
// lower case hex digits are accepted.
func ParseUUID(s string) (UUID, error) {
	switch len(s) {
	case 4:
		var b [2]byte
		if _, err := hex.Decode(b[:], []byte(s)); err != nil {
			return UUID{}, errInvalidUUID
		}
		return New16BitUUID(uint16(b[0])<<8 | uint16(b[1])), nil
	case 36:
	default:
		return UUID{}, errInvalidUUID
	}

	var raw [32]byte
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return UUID{}, errInvalidUUID
			}
			continue
		}
		raw[n] = c
		n++
	}

	var b [16]byte
	if _, err := hex.Decode(b[:], raw[:]); err != nil {
		return UUID{}, errInvalidUUID
	}

	var uuid UUID
	for i := 0; i < 4; i++ {
		// b[0] is the most significant byte, uuid[3] the most significant word.
		w := b[i*4 : i*4+4]
		uuid[3-i] = uint32(w[0])<<24 | uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
	}
	return uuid, nil
}

// MustParseUUID is like ParseUUID but panics on malformed input. It is meant
// for package-level UUID constants.
func MustParseUUID(s string) UUID {
	uuid, err := ParseUUID(s)
	if err != nil {
		panic(err.Error() + ": " + s)
	}
	return uuid
}

// String returns a lower case, 8-4-4-4-12 representation of this UUID.
func (uuid UUID) String() string {
	var b [16]byte
	for i := 0; i < 4; i++ {
		w := uuid[3-i]
		b[i*4] = byte(w >> 24)
		b[i*4+1] = byte(w >> 16)
		b[i*4+2] = byte(w >> 8)
		b[i*4+3] = byte(w)
	}

	var out [36]byte
	hex.Encode(out[0:8], b[0:4])
	out[8] = '-'
	hex.Encode(out[9:13], b[4:6])
	out[13] = '-'
	hex.Encode(out[14:18], b[6:8])
	out[18] = '-'
	hex.Encode(out[19:23], b[8:10])
	out[23] = '-'
	hex.Encode(out[24:36], b[10:16])
	return string(out[:])
}
