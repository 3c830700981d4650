package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rfx/internal/model"
)

func TestErrorOf(t *testing.T) {
	tests := []struct {
		name string
		op   model.PendingOp
		code OpErrorCode
	}{
		{"no transport", model.PendingOp{Status: model.StatusFailed, Error: ErrNoTransport}, ErrCodeNoTransport},
		{"rejected", model.PendingOp{Status: model.StatusFailed, Error: "unknown syscall: x"}, ErrCodeRejected},
		{"timeout", model.PendingOp{Status: model.StatusTimeout, Error: "timed out after 8000ms"}, ErrCodeTimeout},
		{"superseded", model.PendingOp{Status: model.StatusSuperseded}, ErrCodeSuperseded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ErrorOf(tt.op)
			var oe *OpError
			assert.True(t, errors.As(err, &oe))
			assert.Equal(t, tt.code, oe.Code)
		})
	}

	assert.NoError(t, ErrorOf(model.PendingOp{Status: model.StatusAcked}))
	assert.NoError(t, ErrorOf(model.PendingOp{Status: model.StatusSent}))
}

func TestOpError_Helpers(t *testing.T) {
	timeout := ErrorOf(model.PendingOp{ID: "op-1", Kind: model.KindSetVol, Status: model.StatusTimeout, Error: "timed out after 8000ms"})
	wrapped := fmt.Errorf("send: %w", timeout)

	assert.True(t, IsTimeout(wrapped))
	assert.False(t, IsNoTransport(wrapped))
	assert.Equal(t, "TIMEOUT: timed out after 8000ms (op=op-1, kind=setVol)", timeout.Error())

	cause := errors.New("boom")
	rej := NewRejectedError(model.PendingOp{ID: "op-2"}, cause)
	assert.True(t, IsRejected(rej))
	assert.ErrorIs(t, rej, cause)
}
