package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	kb1 "github.com/PocketMidi/KB1-config"
)

func TestChkErrCanceledThroughWrapping(t *testing.T) {
	// The library wraps with %w; the CLI wraps again with pkg/errors.
	err := errors.Wrap(fmt.Errorf("kb1: discover: %w", context.Canceled), "can't connect")
	assert.NoError(t, chkErr(err))
	assert.NoError(t, chkErr(nil))
}

func TestChkErrKeepsOtherErrors(t *testing.T) {
	err := errors.Wrap(kb1.ErrNoDevice, "can't connect")
	assert.Equal(t, err, chkErr(err))

	deadline := errors.Wrap(fmt.Errorf("kb1: discover: %w", context.DeadlineExceeded), "can't connect")
	assert.Error(t, chkErr(deadline))
}
