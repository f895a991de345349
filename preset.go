package kb1

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Preset wire layout.
const (
	PresetSlots      = 8
	PresetNameSize   = 32
	PresetRecordSize = PresetNameSize + 4 + 1 + 3
	PresetListSize   = PresetSlots * PresetRecordSize
	PresetSaveSize   = 1 + PresetNameSize
)

// PresetSlot is the metadata of one preset slot as listed by the device.
type PresetSlot struct {
	Slot      int
	Name      string
	Timestamp int64 // unix seconds
	Valid     bool

	// Provisional is set on entries echoed locally after a save or delete,
	// until the next listing replaces them.
	Provisional bool
}

// Time returns the save time of the slot.
func (p PresetSlot) Time() time.Time {
	return time.Unix(p.Timestamp, 0)
}

func checkSlot(slot int) error {
	if slot < 0 || slot >= PresetSlots {
		return &ValidationError{
			Record: "preset",
			Field:  "slot",
			Value:  int64(slot),
			Reason: "out of range 0..7",
			Err:    ErrInvalidSlot,
		}
	}
	return nil
}

// truncateName cuts name to at most PresetNameSize bytes without splitting a
// UTF-8 sequence.
func truncateName(name string) string {
	if len(name) <= PresetNameSize {
		return name
	}
	n := PresetNameSize
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}

// EncodePresetSave returns the save command: the slot byte followed by the
// fixed width name field. Longer names are truncated.
func EncodePresetSave(slot int, name string) ([]byte, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	if i := bytes.IndexByte([]byte(name), 0); i >= 0 {
		return nil, invalid("preset", "name", int64(i), "contains NUL at byte offset")
	}
	buf := make([]byte, PresetSaveSize)
	buf[0] = byte(slot)
	copy(buf[1:], truncateName(name))
	return buf, nil
}

// EncodePresetSlot returns the one byte load or delete command.
func EncodePresetSlot(slot int) ([]byte, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	return []byte{byte(slot)}, nil
}

// DecodePresetList decodes the slot listing. A buffer shorter than
// PresetListSize yields ErrShortRecord and no slots.
func DecodePresetList(buf []byte) ([]PresetSlot, error) {
	if len(buf) < PresetListSize {
		return nil, ErrShortRecord
	}
	slots := make([]PresetSlot, PresetSlots)
	for i := range slots {
		rec := buf[i*PresetRecordSize : (i+1)*PresetRecordSize]
		name := rec[:PresetNameSize]
		if j := bytes.IndexByte(name, 0); j >= 0 {
			name = name[:j]
		}
		slots[i] = PresetSlot{
			Slot:      i,
			Name:      string(name),
			Timestamp: int64(binary.LittleEndian.Uint32(rec[PresetNameSize:])),
			Valid:     rec[PresetNameSize+4] != 0,
		}
	}
	return slots, nil
}

// Presets manages the device preset slots of one connection.
type Presets struct {
	conn *Conn
	log  logrus.FieldLogger
	now  func() time.Time

	mu    sync.Mutex
	cache []PresetSlot
}

// NewPresets binds a preset client to conn.
func NewPresets(conn *Conn, log logrus.FieldLogger) *Presets {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Presets{
		conn: conn,
		log:  log.WithField("component", "presets"),
		now:  time.Now,
	}
}

// Supported reports whether every preset characteristic was resolved.
func (p *Presets) Supported() bool {
	for _, r := range presetRoles {
		if !p.conn.Supported(r) {
			return false
		}
	}
	return true
}

func (p *Presets) require(role Role) error {
	if !p.conn.Supported(role) {
		return &RoleError{Role: role, Err: ErrUnsupported}
	}
	return nil
}

// Save stores the current device state in slot under name.
func (p *Presets) Save(ctx context.Context, slot int, name string) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := p.require(RolePresetSave); err != nil {
		return err
	}
	buf, err := EncodePresetSave(slot, name)
	if err != nil {
		return err
	}
	if err := p.conn.Write(ctx, RolePresetSave, buf); err != nil {
		return err
	}
	p.echo(PresetSlot{
		Slot:        slot,
		Name:        truncateName(name),
		Timestamp:   p.now().Unix(),
		Valid:       true,
		Provisional: true,
	})
	p.log.WithFields(logrus.Fields{"slot": slot, "name": name}).Debug("preset saved")
	return nil
}

// Load restores the preset in slot on the device.
func (p *Presets) Load(ctx context.Context, slot int) error {
	return p.command(ctx, RolePresetLoad, slot)
}

// Delete clears slot.
func (p *Presets) Delete(ctx context.Context, slot int) error {
	if err := p.command(ctx, RolePresetDelete, slot); err != nil {
		return err
	}
	p.echo(PresetSlot{Slot: slot, Provisional: true})
	return nil
}

func (p *Presets) command(ctx context.Context, role Role, slot int) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := p.require(role); err != nil {
		return err
	}
	buf, err := EncodePresetSlot(slot)
	if err != nil {
		return err
	}
	return p.conn.Write(ctx, role, buf)
}

// List reads the slot listing from the device and replaces the cache.
func (p *Presets) List(ctx context.Context) ([]PresetSlot, error) {
	if err := p.require(RolePresetList); err != nil {
		return nil, err
	}
	buf, err := p.conn.Read(ctx, RolePresetList)
	if err != nil {
		return nil, err
	}
	slots, err := DecodePresetList(buf)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.cache = slots
	p.mu.Unlock()
	return append([]PresetSlot(nil), slots...), nil
}

// Cached returns the last listing with any provisional echoes applied, or
// nil if the device was never listed.
func (p *Presets) Cached() []PresetSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache == nil {
		return nil
	}
	return append([]PresetSlot(nil), p.cache...)
}

func (p *Presets) echo(slot PresetSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache == nil {
		p.cache = make([]PresetSlot, PresetSlots)
		for i := range p.cache {
			p.cache[i].Slot = i
		}
	}
	p.cache[slot.Slot] = slot
}
