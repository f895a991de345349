// Package kb1 is a host-side driver for the KB1 MIDI control surface.
//
// The KB1 exposes its configuration over Bluetooth Low Energy as a set of
// GATT characteristics, each holding a fixed-size little-endian record. This
// package supervises the link, resolves the characteristics the connected
// firmware offers, encodes and validates settings records, keeps the link
// alive with a periodic ping, throttles the real-time control stream and
// implements the preset slot protocol.
//
// The radio itself is reached through the Transport interface. BlueZ (Linux)
// and CoreBluetooth (macOS) implementations are included; tests and other
// hosts can inject their own.
package kb1 // import "github.com/PocketMidi/KB1-config"
