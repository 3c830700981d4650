// Package normalize converts raw session snapshots into the canonical model.View.
//
// Two raw shapes are accepted and discriminated structurally:
//
//   - Reduced (performance) shape: the object carries a "buses" array.
//     Populates View.Perf; entities stay empty.
//   - Rich (session) shape: anything else. Populates View.Entities from
//     "tracks", each with nested "fx" and "routing.{sends,receives}".
//
// # Critical Patterns
//
// Normalize never fails. Malformed fields fall back to safe defaults so a
// single bad snapshot cannot wedge the engine. Decode is the only step that
// can return an error, and only when the payload is not a JSON object.
//
// Track order is always rebuilt from the explicit trackIndex field; producers
// may reorder the tracks array between deliveries.
//
// Route ids are synthesized as <ownerGuid>:<send|receive>:<index> so that
// repeated normalization of the same logical edge yields the same id.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rfx/internal/model"
)

// Schema defaults applied when a snapshot omits its schema tag.
const (
	DefaultReducedSchema = "mock_vm"
	DefaultRichSchema    = "unknown"
)

// Decode parses a snapshot payload.
func Decode(data []byte) (model.RawSnapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("decode snapshot: empty payload")
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode snapshot: payload is not an object")
	}
	return model.RawSnapshot(raw), nil
}

// ShapeOf reports which schema a raw snapshot follows.
func ShapeOf(raw model.RawSnapshot) model.Shape {
	if _, ok := asSlice(raw["buses"]); ok {
		return model.ShapeReduced
	}
	return model.ShapeRich
}

// Normalize converts either snapshot shape into a View. A nil snapshot
// yields an empty rich view.
func Normalize(raw model.RawSnapshot) *model.View {
	if raw == nil {
		raw = model.RawSnapshot{}
	}
	if ShapeOf(raw) == model.ShapeReduced {
		return reduced(raw)
	}
	return rich(raw)
}

func reduced(raw model.RawSnapshot) *model.View {
	items, _ := asSlice(raw["buses"])
	active := asStr(raw["activeBusId"], "")

	buses := make([]model.Bus, 0, len(items))
	selected := -1
	for i, item := range items {
		b := asMap(item)
		bus := model.Bus{
			ID:     asStr(b["id"], ""),
			Label:  asStr(b["label"], ""),
			BusNum: asInt(b["busNum"], i+1),
		}
		if selected < 0 && bus.ID != "" && bus.ID == active {
			selected = i
		}
		buses = append(buses, bus)
	}

	// Either key is accepted; busModes wins when both are present.
	modesRaw := asMap(raw["busModes"])
	if modesRaw == nil {
		modesRaw = asMap(raw["routingModes"])
	}
	modes := make(map[string]model.Mode, len(modesRaw))
	for id, m := range modesRaw {
		if s := asStr(m, ""); s != "" {
			modes[id] = model.Mode(s)
		}
	}

	return &model.View{
		Shape: model.ShapeReduced,
		Snapshot: model.SnapshotMeta{
			Seq:    int64(asNum(raw["seq"], 0)),
			Schema: asStr(raw["schema"], DefaultReducedSchema),
			TS:     asNum(raw["ts"], 0),
		},
		Host:      model.HostInfo{Version: "mock"},
		Project:   model.Project{Name: "Mock", TemplateVersion: "mock"},
		Selection: model.Selection{SelectedTrackIndex: selected},
		Session:   model.SessionInfo{ActiveBusID: active},
		Entities:  model.NewEntities(),
		Perf: &model.Perf{
			Buses:        buses,
			ActiveBusID:  active,
			BusModesByID: modes,
			MetersByID:   Meters(raw["meters"]),
		},
	}
}

// Meters decodes a {busId: {l, r}} object. Entries that are not objects are
// skipped; nil input yields nil.
func Meters(x any) map[string]model.Meter {
	m := asMap(x)
	if m == nil {
		return nil
	}
	out := make(map[string]model.Meter, len(m))
	for id, v := range m {
		lr := asMap(v)
		if lr == nil {
			continue
		}
		out[id] = model.Meter{L: asNum(lr["l"], 0), R: asNum(lr["r"], 0)}
	}
	return out
}

// MeterFrame decodes a telemetry frame {t, activeBusId?, meters}.
func MeterFrame(raw map[string]any) model.MeterFrame {
	return model.MeterFrame{
		T:           int64(asNum(raw["t"], 0)),
		ActiveBusID: asStr(raw["activeBusId"], ""),
		MetersByID:  Meters(first(raw["meters"], raw["metersById"])),
	}
}

func rich(raw model.RawSnapshot) *model.View {
	m := map[string]any(raw)
	v := &model.View{
		Shape: model.ShapeRich,
		Snapshot: model.SnapshotMeta{
			Seq:    int64(asNum(m["seq"], 0)),
			Schema: asStr(m["schema"], DefaultRichSchema),
			TS:     asNum(m["ts"], 0),
		},
		Host: model.HostInfo{
			Version:      asStr(first(field(m, "reaper", "version"), m["reaperVersion"]), "unknown"),
			ResourcePath: asStr(field(m, "reaper", "resourcePath"), ""),
		},
		Project: model.Project{
			Name:            asStr(first(field(m, "project", "name"), m["projectName"]), ""),
			Path:            asStr(first(field(m, "project", "path"), m["projectPath"]), ""),
			TemplateVersion: asStr(first(field(m, "project", "templateVersion"), m["templateVersion"]), "unknown"),
		},
		Selection: model.Selection{
			SelectedTrackIndex: asInt(field(m, "selection", "selectedTrackIndex"), -1),
		},
		TransportState: asMap(m["transport"]),
		Session: model.SessionInfo{
			ActiveBusID: asStr(field(m, "session", "activeBusId"), ""),
		},
		Entities: model.NewEntities(),
	}

	items, _ := asSlice(m["tracks"])
	ents := &v.Entities
	for _, item := range items {
		tr := asMap(item)
		guid := asStr(tr["trackGuid"], "")
		if guid == "" {
			continue
		}
		if _, dup := ents.TracksByGUID[guid]; !dup {
			ents.TrackOrder = append(ents.TrackOrder, guid)
		} else {
			dropOwned(ents, guid)
		}
		ents.TracksByGUID[guid] = track(guid, tr)
		fxChain(ents, guid, tr["fx"])
		routes(ents, guid, asMap(tr["routing"]))
	}

	sort.SliceStable(ents.TrackOrder, func(i, j int) bool {
		return ents.TracksByGUID[ents.TrackOrder[i]].Index < ents.TracksByGUID[ents.TrackOrder[j]].Index
	})
	return v
}

func track(guid string, tr map[string]any) model.Track {
	idx := asInt(tr["trackIndex"], 0)
	return model.Track{
		GUID:        guid,
		Index:       idx,
		Number:      asInt(tr["trackNumber"], idx+1),
		Name:        norm.NFC.String(asStr(tr["trackName"], "")),
		ParentGUID:  asStr(tr["parentGuid"], ""),
		FolderDepth: asInt(tr["folderDepth"], 0),
		Selected:    asBool(tr["selected"]),
		RecArm:      asBool(tr["recArm"]),
		RecMon:      asInt(tr["recMon"], 0),
		RecMode:     asInt(tr["recMode"], 0),
		RecInput:    asInt(tr["recInput"], 0),
		Mute:        asBool(tr["mute"]),
		Solo:        asInt(tr["solo"], 0),
		PhaseInvert: asBool(tr["phaseInvert"]),
		Vol:         asNum(tr["vol"], 1),
		Pan:         asNum(tr["pan"], 0),
		Width:       asNum(tr["width"], 1),
		PanLaw:      asNum(tr["panLaw"], 0),
		MasterSend:  asBool(tr["masterSend"]),
		Color:       asInt(tr["color"], 0),
		TCPHide:     asInt(tr["tcpHide"], 0),
		MCPHide:     asInt(tr["mcpHide"], 0),
	}
}

func fxChain(ents *model.Entities, trackGUID string, x any) {
	items, _ := asSlice(x)
	order := make([]string, 0, len(items))
	for _, item := range items {
		fx := asMap(item)
		guid := asStr(fx["fxGuid"], "")
		if guid == "" {
			continue
		}
		enabled := true
		if b, ok := fx["enabled"].(bool); ok && !b {
			enabled = false
		}
		ents.FXByGUID[guid] = model.FX{
			GUID:      guid,
			TrackGUID: trackGUID,
			Index:     asInt(fx["fxIndex"], 0),
			Name:      norm.NFC.String(asStr(fx["fxName"], "")),
			Enabled:   enabled,
			Offline:   asBool(fx["offline"]),
		}
		order = append(order, guid)
	}
	ents.FXOrderByTrackGUID[trackGUID] = order
}

func routes(ents *model.Entities, owner string, routing map[string]any) {
	ids := model.RouteIDs{
		Sends:    edges(ents, owner, model.RouteSend, routing["sends"]),
		Receives: edges(ents, owner, model.RouteReceive, routing["receives"]),
	}
	ents.RouteIDsByTrackGUID[owner] = ids
}

func edges(ents *model.Entities, owner string, cat model.RouteCategory, x any) []string {
	items, _ := asSlice(x)
	ids := make([]string, 0, len(items))
	for pos, item := range items {
		e := asMap(item)
		id := RouteID(owner, cat, asInt(e["index"], pos))
		ents.RoutesByID[id] = model.Route{
			ID:            id,
			Category:      cat,
			TrackGUID:     owner,
			SrcTrackGUID:  asStr(e["srcTrackGuid"], ""),
			DestTrackGUID: asStr(e["destTrackGuid"], ""),
			SendMode:      asInt(e["sendMode"], 0),
			Vol:           asNum(e["vol"], 1),
			Pan:           asNum(e["pan"], 0),
			Mute:          asBool(e["mute"]),
			PhaseInvert:   asBool(e["phaseInvert"]),
			Mono:          asBool(e["mono"]),
			SrcChan:       asInt(e["srcChan"], 0),
			DstChan:       asInt(e["dstChan"], 0),
		}
		ids = append(ids, id)
	}
	return ids
}

// dropOwned removes the fx and routes of a track that is about to be replaced
// by a later duplicate entry.
func dropOwned(ents *model.Entities, guid string) {
	for _, fx := range ents.FXOrderByTrackGUID[guid] {
		delete(ents.FXByGUID, fx)
	}
	delete(ents.FXOrderByTrackGUID, guid)
	ids := ents.RouteIDsByTrackGUID[guid]
	for _, id := range append(ids.Sends, ids.Receives...) {
		delete(ents.RoutesByID, id)
	}
	delete(ents.RouteIDsByTrackGUID, guid)
}

// RouteID builds the deterministic id of a routing edge.
func RouteID(owner string, cat model.RouteCategory, index int) string {
	return fmt.Sprintf("%s:%s:%d", owner, cat, index)
}
