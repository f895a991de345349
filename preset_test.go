package kb1

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func presetList(entries map[int]PresetSlot) []byte {
	buf := make([]byte, PresetListSize)
	for i, e := range entries {
		rec := buf[i*PresetRecordSize:]
		copy(rec[:PresetNameSize], e.Name)
		binary.LittleEndian.PutUint32(rec[PresetNameSize:], uint32(e.Timestamp))
		if e.Valid {
			rec[PresetNameSize+4] = 1
		}
	}
	return buf
}

func TestEncodePresetSave(t *testing.T) {
	buf, err := EncodePresetSave(3, "Pad")
	require.NoError(t, err)
	require.Len(t, buf, PresetSaveSize)
	assert.Equal(t, byte(3), buf[0])
	assert.Equal(t, []byte("Pad"), buf[1:4])
	assert.Equal(t, make([]byte, PresetNameSize-3), buf[4:])
}

func TestEncodePresetSaveTruncates(t *testing.T) {
	buf, err := EncodePresetSave(0, strings.Repeat("x", 40))
	require.NoError(t, err)
	require.Len(t, buf, PresetSaveSize)
	assert.Equal(t, bytes.Repeat([]byte("x"), PresetNameSize), buf[1:])

	// A multi-byte rune straddling the limit is dropped whole.
	name := strings.Repeat("a", 31) + "é"
	buf, err = EncodePresetSave(0, name)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 31), string(bytes.TrimRight(buf[1:], "\x00")))
}

func TestEncodePresetSaveRejectsNUL(t *testing.T) {
	_, err := EncodePresetSave(0, "a\x00b")
	assert.Error(t, err)
}

func TestPresetSlotRange(t *testing.T) {
	for _, slot := range []int{-1, PresetSlots, 255} {
		_, err := EncodePresetSave(slot, "x")
		assert.True(t, errors.Is(err, ErrInvalidSlot), "slot %d", slot)
		_, err = EncodePresetSlot(slot)
		assert.True(t, errors.Is(err, ErrInvalidSlot), "slot %d", slot)
	}
	for slot := 0; slot < PresetSlots; slot++ {
		buf, err := EncodePresetSlot(slot)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(slot)}, buf)
	}
}

func TestDecodePresetList(t *testing.T) {
	full := strings.Repeat("N", PresetNameSize)
	buf := presetList(map[int]PresetSlot{
		0: {Name: "Lead", Timestamp: 1700000000, Valid: true},
		5: {Name: full, Timestamp: 42, Valid: true},
		7: {Name: "stale"},
	})
	slots, err := DecodePresetList(buf)
	require.NoError(t, err)
	require.Len(t, slots, PresetSlots)

	assert.Equal(t, PresetSlot{Slot: 0, Name: "Lead", Timestamp: 1700000000, Valid: true}, slots[0])
	assert.Equal(t, PresetSlot{Slot: 5, Name: full, Timestamp: 42, Valid: true}, slots[5])
	assert.Equal(t, PresetSlot{Slot: 7, Name: "stale"}, slots[7])
	assert.Equal(t, PresetSlot{Slot: 1}, slots[1])
	assert.Equal(t, time.Unix(1700000000, 0), slots[0].Time())
}

func TestDecodePresetListShort(t *testing.T) {
	for _, n := range []int{0, 1, PresetRecordSize, PresetListSize - 1} {
		slots, err := DecodePresetList(make([]byte, n))
		assert.Equal(t, ErrShortRecord, err)
		assert.Nil(t, slots)
	}
}

func TestPresetsRoundTrip(t *testing.T) {
	tr := newFakeTransport(fakeDevice{values: map[Role][]byte{
		RolePresetList: presetList(map[int]PresetSlot{2: {Name: "Keys", Timestamp: 10, Valid: true}}),
	}})
	_, conn := connectFake(t, tr)
	log, _ := quietLogger()
	p := NewPresets(conn, log)
	p.now = func() time.Time { return time.Unix(99, 0) }
	ctx := context.Background()

	require.True(t, p.Supported())
	assert.Nil(t, p.Cached())

	slots, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Keys", slots[2].Name)

	require.NoError(t, p.Save(ctx, 4, "Bass"))
	require.NoError(t, p.Load(ctx, 4))
	require.NoError(t, p.Delete(ctx, 2))

	link := tr.last()
	save := link.char(RolePresetSave).written()
	require.Len(t, save, 1)
	assert.Equal(t, byte(4), save[0][0])
	assert.Equal(t, [][]byte{{4}}, link.char(RolePresetLoad).written())
	assert.Equal(t, [][]byte{{2}}, link.char(RolePresetDelete).written())

	cached := p.Cached()
	require.Len(t, cached, PresetSlots)
	assert.Equal(t, PresetSlot{Slot: 4, Name: "Bass", Timestamp: 99, Valid: true, Provisional: true}, cached[4])
	assert.Equal(t, PresetSlot{Slot: 2, Provisional: true}, cached[2])

	// The next listing replaces the provisional echo.
	slots, err = p.List(ctx)
	require.NoError(t, err)
	assert.False(t, slots[4].Provisional)
	assert.Equal(t, slots, p.Cached())
}

func TestPresetsUnsupported(t *testing.T) {
	tr := newFakeTransport(fakeDevice{missing: []Role{RolePresetSave, RolePresetList}})
	_, conn := connectFake(t, tr)
	p := NewPresets(conn, nil)
	ctx := context.Background()

	assert.False(t, p.Supported())
	err := p.Save(ctx, 0, "x")
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
	_, err = p.List(ctx)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
	assert.Nil(t, p.Cached())

	// Slot range is checked first.
	err = p.Save(ctx, 9, "x")
	assert.True(t, errors.Is(err, ErrInvalidSlot), "got %v", err)
	err = p.Load(ctx, -1)
	assert.True(t, errors.Is(err, ErrInvalidSlot), "got %v", err)
	assert.Empty(t, tr.last().char(RolePresetLoad).written())
}

func TestPresetsShortListing(t *testing.T) {
	tr := newFakeTransport(fakeDevice{values: map[Role][]byte{RolePresetList: make([]byte, 100)}})
	_, conn := connectFake(t, tr)
	p := NewPresets(conn, nil)

	slots, err := p.List(context.Background())
	assert.Equal(t, ErrShortRecord, err)
	assert.Nil(t, slots)
	assert.Nil(t, p.Cached())
}
