package lanes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rfx/internal/model"
)

func entities(tracks ...model.Track) *model.Entities {
	ents := model.NewEntities()
	for _, tr := range tracks {
		ents.TracksByGUID[tr.GUID] = tr
		ents.TrackOrder = append(ents.TrackOrder, tr.GUID)
	}
	return &ents
}

func TestByName_Lanes(t *testing.T) {
	ents := entities(
		model.Track{GUID: "g-in", Name: "INPUT"},
		model.Track{GUID: "g-a", Name: "FX_2A"},
		model.Track{GUID: "g-b", Name: "FX_2B"},
		model.Track{GUID: "g-x", Name: "FX_1A"},
	)

	got := ByName{}.Lanes(ents, "FX_2")

	assert.Equal(t, Set{A: "g-a", B: "g-b"}, got)
	assert.False(t, got.Empty())
}

func TestByName_LanesUnknownBus(t *testing.T) {
	ents := entities(model.Track{GUID: "g-a", Name: "FX_2A"})
	assert.True(t, ByName{}.Lanes(ents, "FX_9").Empty())
	assert.True(t, ByName{}.Lanes(nil, "FX_2").Empty())
}

func TestByName_Input(t *testing.T) {
	ents := entities(model.Track{GUID: "g-in", Name: "INPUT"})

	guid, ok := ByName{}.Input(ents)
	assert.True(t, ok)
	assert.Equal(t, "g-in", guid)

	_, ok = ByName{InputTrack: "MIC"}.Input(ents)
	assert.False(t, ok)
}

func TestArmed(t *testing.T) {
	ents := entities(
		model.Track{GUID: "g-a", Name: "FX_1A", RecArm: true},
		model.Track{GUID: "g-b", Name: "FX_1B", RecArm: false},
		model.Track{GUID: "g-c", Name: "FX_1C", RecArm: true},
	)

	assert.Equal(t, []string{"g-a", "g-c"}, Armed(ByName{}, ents, "FX_1"))
}
