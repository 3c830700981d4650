package model

// RawSnapshot is a decoded snapshot exactly as the transport delivered it.
// Values follow encoding/json conventions (float64 numbers, []any arrays,
// map[string]any objects). The normalizer is the only consumer.
type RawSnapshot map[string]any

// Shape discriminates the two snapshot schemas.
type Shape string

const (
	// ShapeRich is the full session shape: tracks, fx chains and routing.
	ShapeRich Shape = "rich"

	// ShapeReduced is the performance shape: buses, active bus, modes and meters.
	ShapeReduced Shape = "reduced"
)

// SnapshotMeta identifies a snapshot.
type SnapshotMeta struct {
	Seq    int64   `json:"seq"`
	Schema string  `json:"schema"`
	TS     float64 `json:"ts"`
}

// HostInfo describes the DAW process that produced a rich snapshot.
type HostInfo struct {
	Version      string `json:"version"`
	ResourcePath string `json:"resourcePath"`
}

// Project describes the open DAW project.
type Project struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	TemplateVersion string `json:"templateVersion"`
}

// Selection holds the session's selected track index, -1 when none.
type Selection struct {
	SelectedTrackIndex int `json:"selectedTrackIndex"`
}

// SessionInfo holds session-level state reported by the remote.
type SessionInfo struct {
	ActiveBusID string `json:"activeBusId"`
}

// Track is a single DAW track keyed by GUID.
type Track struct {
	GUID        string  `json:"guid"`
	Index       int     `json:"trackIndex"`
	Number      int     `json:"trackNumber"`
	Name        string  `json:"name"`
	ParentGUID  string  `json:"parentGuid"`
	FolderDepth int     `json:"folderDepth"`
	Selected    bool    `json:"selected"`
	RecArm      bool    `json:"recArm"`
	RecMon      int     `json:"recMon"`
	RecMode     int     `json:"recMode"`
	RecInput    int     `json:"recInput"`
	Mute        bool    `json:"mute"`
	Solo        int     `json:"solo"`
	PhaseInvert bool    `json:"phaseInvert"`
	Vol         float64 `json:"vol"`
	Pan         float64 `json:"pan"`
	Width       float64 `json:"width"`
	PanLaw      float64 `json:"panLaw"`
	MasterSend  bool    `json:"masterSend"`
	Color       int     `json:"color"`
	TCPHide     int     `json:"tcpHide"`
	MCPHide     int     `json:"mcpHide"`
}

// FX is one plugin instance in a track's chain.
type FX struct {
	GUID      string `json:"guid"`
	TrackGUID string `json:"trackGuid"`
	Index     int    `json:"fxIndex"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Offline   bool   `json:"offline"`
}

// RouteCategory is the direction of a routing edge relative to its owner track.
type RouteCategory string

const (
	RouteSend    RouteCategory = "send"
	RouteReceive RouteCategory = "receive"
)

// Route is a send or receive edge owned by a track.
type Route struct {
	ID            string        `json:"id"`
	Category      RouteCategory `json:"category"`
	TrackGUID     string        `json:"trackGuid"`
	SrcTrackGUID  string        `json:"srcTrackGuid"`
	DestTrackGUID string        `json:"destTrackGuid"`
	SendMode      int           `json:"sendMode"`
	Vol           float64       `json:"vol"`
	Pan           float64       `json:"pan"`
	Mute          bool          `json:"mute"`
	PhaseInvert   bool          `json:"phaseInvert"`
	Mono          bool          `json:"mono"`
	SrcChan       int           `json:"srcChan"`
	DstChan       int           `json:"dstChan"`
}

// RouteIDs lists the edge ids owned by one track.
type RouteIDs struct {
	Sends    []string `json:"sends"`
	Receives []string `json:"receives"`
}

// Entities is the normalized entity graph of a rich snapshot.
type Entities struct {
	TracksByGUID        map[string]Track    `json:"tracksByGuid"`
	TrackOrder          []string            `json:"trackOrder"`
	FXByGUID            map[string]FX       `json:"fxByGuid"`
	FXOrderByTrackGUID  map[string][]string `json:"fxOrderByTrackGuid"`
	RoutesByID          map[string]Route    `json:"routesById"`
	RouteIDsByTrackGUID map[string]RouteIDs `json:"routeIdsByTrackGuid"`
}

// NewEntities returns an Entities value with every map allocated.
func NewEntities() Entities {
	return Entities{
		TracksByGUID:        map[string]Track{},
		TrackOrder:          []string{},
		FXByGUID:            map[string]FX{},
		FXOrderByTrackGUID:  map[string][]string{},
		RoutesByID:          map[string]Route{},
		RouteIDsByTrackGUID: map[string]RouteIDs{},
	}
}

// Bus is a performance bus from the reduced shape.
type Bus struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	BusNum int    `json:"busNum"`
}

// Meter is a stereo level pair in [0,1].
type Meter struct {
	L float64 `json:"l"`
	R float64 `json:"r"`
}

// MeterFrame is a telemetry-only update. It carries no seq and must never
// drive verification.
type MeterFrame struct {
	T           int64            `json:"t"`
	ActiveBusID string           `json:"activeBusId,omitempty"`
	MetersByID  map[string]Meter `json:"metersById"`
}

// Perf is the reduced-shape bus world.
type Perf struct {
	Buses        []Bus            `json:"buses"`
	ActiveBusID  string           `json:"activeBusId"`
	BusModesByID map[string]Mode  `json:"busModesById"`
	MetersByID   map[string]Meter `json:"metersById,omitempty"`
}

// View is the canonical form of either snapshot shape.
type View struct {
	Shape          Shape          `json:"shape"`
	Snapshot       SnapshotMeta   `json:"snapshot"`
	Host           HostInfo       `json:"host"`
	Project        Project        `json:"project"`
	Selection      Selection      `json:"selection"`
	TransportState map[string]any `json:"transportState"`
	Session        SessionInfo    `json:"session"`
	Entities       Entities       `json:"entities"`
	Perf           *Perf          `json:"perf"`
}

// Reduced reports whether the view came from the reduced performance shape.
func (v *View) Reduced() bool {
	return v != nil && v.Shape == ShapeReduced
}
