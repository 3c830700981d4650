package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rfx/internal/model"
)

func TestEventLog_EvictsOldest(t *testing.T) {
	l := newEventLog(3)
	for i := int64(1); i <= 5; i++ {
		l.append(model.Event{Seq: i})
	}

	got := l.entries()

	assert.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})

	l.clear()
	assert.Empty(t, l.entries())
	l.append(model.Event{Seq: 6})
	assert.Equal(t, int64(6), l.entries()[0].Seq)
}

func TestHistory_Bounded(t *testing.T) {
	h := newHistory(2)
	h.add(model.PendingOp{ID: "a"})
	h.add(model.PendingOp{ID: "b"})
	h.add(model.PendingOp{ID: "c"})

	_, ok := h.get("a")
	assert.False(t, ok)
	_, ok = h.get("c")
	assert.True(t, ok)
}
