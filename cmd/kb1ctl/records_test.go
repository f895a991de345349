package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kb1 "github.com/PocketMidi/KB1-config"
)

func TestFindRecord(t *testing.T) {
	for _, name := range []string{"lever1", "lever2", "leverpush1", "leverpush2", "touch", "scale", "System"} {
		_, err := findRecord(name)
		assert.NoError(t, err, name)
	}
	_, err := findRecord("lever3")
	assert.Error(t, err)
}

func TestDecodeStrictRejectsUnknownFields(t *testing.T) {
	var v kb1.ScaleSettings
	require.NoError(t, decodeStrict([]byte("scale_type: 3\nroot_note: 2\nkey_mapping: 1\n"), &v))
	assert.Equal(t, kb1.ScaleSettings{ScaleType: 3, RootNote: 2, KeyMapping: 1}, v)

	assert.Error(t, decodeStrict([]byte("scale_type: 3\nmode: 1\n"), &v))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-8))
	assert.Equal(t, 127, clamp(130))
	assert.Equal(t, 64, clamp(64))
}

func TestWaitDisconnectSkipsEarlierFailures(t *testing.T) {
	statuses := make(chan kb1.Status, 4)
	statuses <- kb1.Status{Connected: false}
	statuses <- kb1.Status{Connected: true}
	statuses <- kb1.Status{Connected: false}
	assert.True(t, waitDisconnect(context.Background(), statuses))
	assert.Empty(t, statuses)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, waitDisconnect(ctx, make(chan kb1.Status)))

	closed := make(chan kb1.Status)
	close(closed)
	assert.False(t, waitDisconnect(context.Background(), closed))
}
