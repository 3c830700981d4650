package testutil

import (
	"github.com/roach88/rfx/internal/model"
)

// Track builds a raw rich-shape track. Extra fields are merged in as given,
// e.g. Track("{T1}", "INPUT", "vol", 0.5, "recArm", true).
func Track(guid, name string, kv ...any) map[string]any {
	tr := map[string]any{
		"trackGuid": guid,
		"trackName": name,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			tr[k] = kv[i+1]
		}
	}
	return tr
}

// RichSnapshot builds a raw rich-shape snapshot. Track indexes follow
// argument order unless a track sets trackIndex itself.
func RichSnapshot(seq int64, tracks ...map[string]any) model.RawSnapshot {
	items := make([]any, 0, len(tracks))
	for i, tr := range tracks {
		if _, ok := tr["trackIndex"]; !ok {
			tr["trackIndex"] = float64(i)
		}
		items = append(items, tr)
	}
	return model.RawSnapshot{
		"schema": "reaper_session_v1",
		"seq":    float64(seq),
		"tracks": items,
	}
}

// ReducedSnapshot builds a raw reduced-shape snapshot with one bus per mode.
func ReducedSnapshot(seq int64, active string, modes map[string]string) model.RawSnapshot {
	buses := make([]any, 0, len(modes))
	busModes := make(map[string]any, len(modes))
	for _, id := range sortedKeys(modes) {
		buses = append(buses, map[string]any{"id": id, "label": id})
		busModes[id] = modes[id]
	}
	return model.RawSnapshot{
		"schema":      "mock_vm_v2",
		"seq":         float64(seq),
		"buses":       buses,
		"activeBusId": active,
		"busModes":    busModes,
	}
}
