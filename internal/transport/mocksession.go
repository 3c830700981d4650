package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/rfx/internal/model"
)

// MockSessionSchema tags snapshots produced by MockSession.
const MockSessionSchema = "rfx_session_v1"

type sessionFX struct {
	guid    string
	name    string
	enabled bool
}

type sessionTrack struct {
	guid   string
	name   string
	recArm bool
	mute   bool
	solo   int
	vol    float64
	pan    float64
	fx     []sessionFX
}

// MockSession is an in-process backend speaking the rich session shape.
//
// The session has an INPUT track followed by three lane tracks per bus
// (FX_nA, FX_nB, FX_nC). Routing modes are stored as lane record-arm flags
// and the active bus is implemented by INPUT sends to the armed lanes of
// that bus, which is what the rich-shape verifiers check.
type MockSession struct {
	mu       sync.Mutex
	seq      int64
	tracks   []*sessionTrack
	active   string
	selected int
	apply    bool
	now      func() time.Time

	snaps hub[model.RawSnapshot]
}

// NewMockSession returns a session with the given number of buses.
func NewMockSession(buses int, opts ...MockOption) *MockSession {
	cfg := buildMockConfig(opts)
	if buses <= 0 {
		buses = 4
	}
	s := &MockSession{seq: 1, apply: true, now: cfg.now, selected: 0}
	s.tracks = append(s.tracks, &sessionTrack{
		guid: trackGUID("INPUT"),
		name: "INPUT",
		vol:  1,
		fx: []sessionFX{
			{guid: "{FX-INPUT-1}", name: "ReaEQ", enabled: true},
			{guid: "{FX-INPUT-2}", name: "ReaComp", enabled: true},
			{guid: "{FX-INPUT-3}", name: "ReaDelay", enabled: false},
		},
	})
	for n := 1; n <= buses; n++ {
		bus := fmt.Sprintf("FX_%d", n)
		for i, letter := range []string{"A", "B", "C"} {
			s.tracks = append(s.tracks, &sessionTrack{
				guid:   trackGUID(bus + letter),
				name:   bus + letter,
				recArm: i == 0,
				vol:    1,
			})
		}
	}
	s.active = "FX_1"
	return s
}

func trackGUID(name string) string {
	return "{TRK-" + name + "}"
}

// TrackGUID returns the guid of the named track, for tests and demos.
func (s *MockSession) TrackGUID(name string) string {
	return trackGUID(name)
}

// SetApply controls whether accepted commands take effect. With apply off
// the session accepts every call but never changes, modelling a remote that
// never confirms.
func (s *MockSession) SetApply(on bool) {
	s.mu.Lock()
	s.apply = on
	s.mu.Unlock()
}

// Boot implements Transport.
func (s *MockSession) Boot(ctx context.Context) (Boot, error) {
	if err := ctx.Err(); err != nil {
		return Boot{}, err
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.snaps.emit(snap)
	return Boot{Seq: seq}, nil
}

// Snapshot implements Transport.
func (s *MockSession) Snapshot() model.RawSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe implements Transport.
func (s *MockSession) Subscribe(fn func(model.RawSnapshot)) func() {
	return s.snaps.add(fn)
}

// Syscall implements Transport.
func (s *MockSession) Syscall(ctx context.Context, call model.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.apply {
		s.mu.Unlock()
		return nil
	}
	if err := s.applyLocked(call); err != nil {
		s.mu.Unlock()
		return err
	}
	s.seq++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.snaps.emit(snap)
	return nil
}

func (s *MockSession) applyLocked(call model.Call) error {
	switch call.Name.Canonical() {
	case model.KindToggleRecArm, model.KindToggleMute, model.KindToggleSolo, model.KindSetVol, model.KindSetPan:
		tr := s.trackLocked(call.TrackGUID)
		if tr == nil {
			return Reject(call.Name, "unknown track: %s", call.TrackGUID)
		}
		switch call.Name.Canonical() {
		case model.KindToggleRecArm:
			tr.recArm = call.Bool()
		case model.KindToggleMute:
			tr.mute = call.Bool()
		case model.KindToggleSolo:
			tr.solo = 0
			if call.Bool() {
				tr.solo = 1
			}
		case model.KindSetVol:
			tr.vol = call.Number(1)
		case model.KindSetPan:
			tr.pan = call.Number(0)
		}
	case model.KindToggleFx:
		fx := s.fxLocked(call.FxGUID)
		if fx == nil {
			return Reject(call.Name, "unknown fx: %s", call.FxGUID)
		}
		fx.enabled = call.Bool()
	case model.KindReorderFx:
		tr := s.trackLocked(call.TrackGUID)
		if tr == nil {
			return Reject(call.Name, "unknown track: %s", call.TrackGUID)
		}
		if call.FromIndex == nil || call.ToIndex == nil {
			return Reject(call.Name, "missing fromIndex/toIndex")
		}
		from, to := *call.FromIndex, *call.ToIndex
		if from < 0 || to < 0 || from >= len(tr.fx) || to >= len(tr.fx) {
			return Reject(call.Name, "fx index out of range")
		}
		moved := tr.fx[from]
		rest := append(append([]sessionFX{}, tr.fx[:from]...), tr.fx[from+1:]...)
		tr.fx = append(append(append([]sessionFX{}, rest[:to]...), moved), rest[to:]...)
	case model.KindSetRoutingMode:
		if call.BusID == "" {
			return Reject(call.Name, "missing busId")
		}
		arm := model.NormalizeMode(call.Mode).Arming()
		found := false
		for i, letter := range []string{"A", "B", "C"} {
			if tr := s.trackByNameLocked(call.BusID + letter); tr != nil {
				tr.recArm = arm[i]
				found = true
			}
		}
		if !found {
			return Reject(call.Name, "unknown bus: %s", call.BusID)
		}
	case model.KindSelectActiveBus:
		if call.BusID == "" {
			return Reject(call.Name, "missing busId")
		}
		if s.trackByNameLocked(call.BusID+"A") == nil {
			return Reject(call.Name, "unknown bus: %s", call.BusID)
		}
		s.active = call.BusID
	case model.KindSyncView:
	default:
		return Reject(call.Name, "unknown syscall: %s", call.Name)
	}
	return nil
}

func (s *MockSession) trackLocked(guid string) *sessionTrack {
	for _, tr := range s.tracks {
		if tr.guid == guid {
			return tr
		}
	}
	return nil
}

func (s *MockSession) trackByNameLocked(name string) *sessionTrack {
	for _, tr := range s.tracks {
		if tr.name == name {
			return tr
		}
	}
	return nil
}

func (s *MockSession) fxLocked(guid string) *sessionFX {
	for _, tr := range s.tracks {
		for i := range tr.fx {
			if tr.fx[i].guid == guid {
				return &tr.fx[i]
			}
		}
	}
	return nil
}

// inputSendsLocked returns the lanes INPUT currently feeds: the armed lanes
// of the active bus.
func (s *MockSession) inputSendsLocked() []*sessionTrack {
	var out []*sessionTrack
	for _, letter := range []string{"A", "B", "C"} {
		if tr := s.trackByNameLocked(s.active + letter); tr != nil && tr.recArm {
			out = append(out, tr)
		}
	}
	return out
}

func (s *MockSession) snapshotLocked() model.RawSnapshot {
	input := s.tracks[0]
	sends := s.inputSendsLocked()
	receivers := map[string]int{}
	for i, dest := range sends {
		receivers[dest.guid] = i
	}

	tracks := make([]any, 0, len(s.tracks))
	for idx, tr := range s.tracks {
		fx := make([]any, 0, len(tr.fx))
		for i, f := range tr.fx {
			fx = append(fx, map[string]any{
				"fxGuid":  f.guid,
				"fxIndex": float64(i),
				"fxName":  f.name,
				"enabled": f.enabled,
			})
		}
		routing := map[string]any{"sends": []any{}, "receives": []any{}}
		if tr == input {
			out := make([]any, 0, len(sends))
			for i, dest := range sends {
				out = append(out, map[string]any{
					"index":         float64(i),
					"srcTrackGuid":  input.guid,
					"destTrackGuid": dest.guid,
					"vol":           float64(1),
				})
			}
			routing["sends"] = out
		}
		if _, ok := receivers[tr.guid]; ok {
			routing["receives"] = []any{map[string]any{
				"index":         float64(0),
				"srcTrackGuid":  input.guid,
				"destTrackGuid": tr.guid,
				"vol":           float64(1),
			}}
		}
		tracks = append(tracks, map[string]any{
			"trackGuid":   tr.guid,
			"trackIndex":  float64(idx),
			"trackNumber": float64(idx + 1),
			"trackName":   tr.name,
			"selected":    idx == s.selected,
			"recArm":      tr.recArm,
			"mute":        tr.mute,
			"solo":        float64(tr.solo),
			"vol":         tr.vol,
			"pan":         tr.pan,
			"width":       float64(1),
			"fx":          fx,
			"routing":     routing,
		})
	}

	return model.RawSnapshot{
		"schema":    MockSessionSchema,
		"seq":       float64(s.seq),
		"ts":        float64(s.now().UnixMilli()),
		"reaper":    map[string]any{"version": "mock-session", "resourcePath": ""},
		"project":   map[string]any{"name": "Mock Session", "path": "", "templateVersion": "1"},
		"selection": map[string]any{"selectedTrackIndex": float64(s.selected)},
		"transport": map[string]any{"playing": false, "recording": false},
		"session":   map[string]any{"activeBusId": s.active},
		"tracks":    tracks,
	}
}
