package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/model"
)

func TestSnapshot_FinalStatuses(t *testing.T) {
	r := NewResult()
	r.Ops["op-1"] = model.PendingOp{ID: "op-1", Status: model.StatusAcked}
	r.Ops["op-2"] = model.PendingOp{ID: "op-2", Status: model.StatusTimeout}

	s := Snapshot("demo", r)
	assert.Equal(t, map[string]string{"op-1": "acked", "op-2": "timeout"}, s.Final)
	assert.True(t, s.Pass)
	assert.NotNil(t, s.Trace)
}

func TestMarshalTrace_NoHTMLEscaping(t *testing.T) {
	s := TraceSnapshot{
		ScenarioName: "escape",
		Final:        map[string]string{},
		Trace:        []TraceEvent{{Seq: 1, Kind: "syscall:error", Data: map[string]string{"error": "a < b & c"}}},
	}
	b, err := MarshalTrace(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"error": "a < b & c"`)
	assert.Equal(t, byte('\n'), b[len(b)-1])
}
