package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/normalize"
)

func TestRichSnapshot_Normalizes(t *testing.T) {
	raw := RichSnapshot(3,
		Track("{IN}", "INPUT", "vol", 0.5),
		Track("{A}", "FX_1A", "recArm", true),
	)

	v := normalize.Normalize(raw)

	require.Equal(t, model.ShapeRich, v.Shape)
	assert.Equal(t, int64(3), v.Snapshot.Seq)
	assert.Equal(t, []string{"{IN}", "{A}"}, v.Entities.TrackOrder)
	assert.Equal(t, 0.5, v.Entities.TracksByGUID["{IN}"].Vol)
	assert.True(t, v.Entities.TracksByGUID["{A}"].RecArm)
}

func TestReducedSnapshot_Normalizes(t *testing.T) {
	v := normalize.Normalize(ReducedSnapshot(7, "FX_2", map[string]string{"FX_2": "lcr", "FX_1": "linear"}))

	require.Equal(t, model.ShapeReduced, v.Shape)
	assert.Equal(t, "FX_2", v.Perf.ActiveBusID)
	assert.Equal(t, "FX_1", v.Perf.Buses[0].ID)
	assert.Equal(t, model.ModeLCR, v.Perf.BusModesByID["FX_2"])
}
