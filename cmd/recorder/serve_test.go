// cmd/recorder/serve_test.go
package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tamzrod/capture-sync/internal/syncclient"
	"github.com/tamzrod/capture-sync/internal/syncserver"
)

func TestOperatorInputSwitchesInstruction(t *testing.T) {
	srv := syncserver.NewServer("127.0.0.1:0", nil, nil)

	operatorInput(context.Background(), strings.NewReader("SAVE\n\nbogus\n"), srv)
	assert.Equal(t, syncclient.RespSave, srv.Instruction())

	operatorInput(context.Background(), strings.NewReader("wait\n"), srv)
	assert.Equal(t, syncclient.RespWait, srv.Instruction())
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	t.Setenv("DEBUG", "")
	l := newLogger("chatty")
	assert.True(t, l.Enabled(context.Background(), 0))
	assert.False(t, l.Enabled(context.Background(), -4))
}
