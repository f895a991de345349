package kb1

import (
	"context"
)

// Settings reads and writes the settings records of one connection. Every
// write is validated locally first; a record that fails validation never
// reaches the link.
type Settings struct {
	conn *Conn
}

// NewSettings binds a settings client to conn.
func NewSettings(conn *Conn) *Settings {
	return &Settings{conn: conn}
}

func leverRole(n int, first, second Role, record string) (Role, error) {
	switch n {
	case 1:
		return first, nil
	case 2:
		return second, nil
	}
	return 0, invalid(record, "index", int64(n), "must be 1 or 2")
}

// ReadLever reads the settings of lever n (1 or 2).
func (s *Settings) ReadLever(ctx context.Context, n int) (LeverSettings, error) {
	role, err := leverRole(n, RoleLever1, RoleLever2, "lever")
	if err != nil {
		return LeverSettings{}, err
	}
	buf, err := s.conn.Read(ctx, role)
	if err != nil {
		return LeverSettings{}, err
	}
	return DecodeLeverSettings(buf)
}

// WriteLever writes the settings of lever n (1 or 2).
func (s *Settings) WriteLever(ctx context.Context, n int, v LeverSettings) error {
	role, err := leverRole(n, RoleLever1, RoleLever2, "lever")
	if err != nil {
		return err
	}
	if err := v.Validate(s.conn.Capabilities()); err != nil {
		return err
	}
	return s.conn.Write(ctx, role, v.Encode())
}

// ReadLeverPush reads the push settings of lever n (1 or 2).
func (s *Settings) ReadLeverPush(ctx context.Context, n int) (LeverPushSettings, error) {
	role, err := leverRole(n, RoleLeverPush1, RoleLeverPush2, "lever_push")
	if err != nil {
		return LeverPushSettings{}, err
	}
	buf, err := s.conn.Read(ctx, role)
	if err != nil {
		return LeverPushSettings{}, err
	}
	return DecodeLeverPushSettings(buf)
}

// WriteLeverPush writes the push settings of lever n (1 or 2).
func (s *Settings) WriteLeverPush(ctx context.Context, n int, v LeverPushSettings) error {
	role, err := leverRole(n, RoleLeverPush1, RoleLeverPush2, "lever_push")
	if err != nil {
		return err
	}
	if err := v.Validate(s.conn.Capabilities()); err != nil {
		return err
	}
	return s.conn.Write(ctx, role, v.Encode())
}

// ReadTouch reads the touch settings. The threshold field is present only
// when the device sends the long form.
func (s *Settings) ReadTouch(ctx context.Context) (TouchSettings, error) {
	buf, err := s.conn.Read(ctx, RoleTouch)
	if err != nil {
		return TouchSettings{}, err
	}
	return DecodeTouchSettings(buf)
}

// WriteTouch writes the touch settings. A threshold is rejected unless the
// connected firmware supports it.
func (s *Settings) WriteTouch(ctx context.Context, v TouchSettings) error {
	if err := v.Validate(s.conn.Capabilities()); err != nil {
		return err
	}
	return s.conn.Write(ctx, RoleTouch, v.Encode())
}

// ReadScale reads the scale settings.
func (s *Settings) ReadScale(ctx context.Context) (ScaleSettings, error) {
	buf, err := s.conn.Read(ctx, RoleScale)
	if err != nil {
		return ScaleSettings{}, err
	}
	return DecodeScaleSettings(buf)
}

// WriteScale writes the scale settings. The scale type range follows the
// firmware version.
func (s *Settings) WriteScale(ctx context.Context, v ScaleSettings) error {
	if err := v.Validate(s.conn.Capabilities()); err != nil {
		return err
	}
	return s.conn.Write(ctx, RoleScale, v.Encode())
}

// ReadSystem reads the system timeouts, including the private field.
func (s *Settings) ReadSystem(ctx context.Context) (SystemSettings, error) {
	buf, err := s.conn.Read(ctx, RoleSystem)
	if err != nil {
		return SystemSettings{}, err
	}
	return DecodeSystemSettings(buf)
}

// WriteSystem writes the editable system timeouts. The current record is
// always read back from the device first so the firmware-private field is
// written unchanged.
func (s *Settings) WriteSystem(ctx context.Context, v SystemSettings) error {
	if err := v.Validate(s.conn.Capabilities()); err != nil {
		return err
	}
	current, err := s.ReadSystem(ctx)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, RoleSystem, v.Merge(current).Encode())
}
