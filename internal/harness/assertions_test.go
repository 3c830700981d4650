package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(ks ...string) []TraceEvent {
	out := make([]TraceEvent, len(ks))
	for i, k := range ks {
		out[i] = TraceEvent{Seq: int64(i + 1), Kind: k}
	}
	return out
}

func TestAssertEventOrder(t *testing.T) {
	trace := kinds("a", "x", "b", "y", "c")

	assert.NoError(t, assertEventOrder(trace, Assertion{Type: AssertEventOrder, Events: []string{"a", "b", "c"}}))
	assert.NoError(t, assertEventOrder(trace, Assertion{Type: AssertEventOrder, Events: []string{"x", "y"}}))

	err := assertEventOrder(trace, Assertion{Type: AssertEventOrder, Events: []string{"b", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a in [a, x, b, y, c]")
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Type: AssertActiveBus, Expected: "FX_2", Actual: `"FX_1"`}
	assert.Equal(t, `active_bus: expected FX_2, got "FX_1"`, err.Error())
}

func TestNumber(t *testing.T) {
	for _, v := range []any{1, int64(1), 1.0} {
		n, ok := number(v)
		assert.True(t, ok)
		assert.Equal(t, 1.0, n)
	}
	_, ok := number("1")
	assert.False(t, ok)
}
