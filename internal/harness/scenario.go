package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rfx/internal/model"
)

// Scenario is a scripted session: a remote, a list of steps and the
// assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Remote selects the backend: manual (default), session, vm or none.
	Remote string `yaml:"remote,omitempty"`

	// Buses sizes a session remote. Defaults to 2.
	Buses int `yaml:"buses,omitempty"`

	// TimeoutMs overrides the reconcile timeout budget.
	TimeoutMs int `yaml:"timeout_ms,omitempty"`

	// OpIDs fixes the ids handed to dispatched ops. When empty, ops are
	// numbered op-1, op-2, ...
	OpIDs []string `yaml:"op_ids,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Remote kinds.
const (
	RemoteManual  = "manual"
	RemoteSession = "session"
	RemoteVM      = "vm"
	RemoteNone    = "none"
)

// Step is one scripted action. Exactly one action field is set.
type Step struct {
	Snapshot map[string]any `yaml:"snapshot,omitempty"`
	Dispatch map[string]any `yaml:"dispatch,omitempty"`
	Meters   map[string]any `yaml:"meters,omitempty"`
	Advance  string         `yaml:"advance,omitempty"`
	Tick     bool           `yaml:"tick,omitempty"`
	Apply    *bool          `yaml:"apply,omitempty"`
	Boot     bool           `yaml:"boot,omitempty"`

	// Expect is the status a dispatched op must have once the remote's
	// responses are processed. Only valid on dispatch steps.
	Expect string `yaml:"expect,omitempty"`
}

// Action names the step's action for messages and validation.
func (s Step) Action() string {
	var set []string
	if s.Snapshot != nil {
		set = append(set, "snapshot")
	}
	if s.Dispatch != nil {
		set = append(set, "dispatch")
	}
	if s.Meters != nil {
		set = append(set, "meters")
	}
	if s.Advance != "" {
		set = append(set, "advance")
	}
	if s.Tick {
		set = append(set, "tick")
	}
	if s.Apply != nil {
		set = append(set, "apply")
	}
	if s.Boot {
		set = append(set, "boot")
	}
	return strings.Join(set, "+")
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op and Status are used by op_status. Error, when set, must be a
	// substring of the op's error.
	Op     string `yaml:"op,omitempty"`
	Status string `yaml:"status,omitempty"`
	Error  string `yaml:"error,omitempty"`

	// GUID, Field and Value are used by track.
	GUID  string `yaml:"guid,omitempty"`
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Bus is used by active_bus.
	Bus string `yaml:"bus,omitempty"`

	// Count is used by pending_count and event_count.
	Count int `yaml:"count,omitempty"`

	// Event is used by event_count; Events by event_order.
	Event  string   `yaml:"event,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertOpStatus     = "op_status"
	AssertTrack        = "track"
	AssertOverlayEmpty = "overlay_empty"
	AssertActiveBus    = "active_bus"
	AssertPendingCount = "pending_count"
	AssertEventOrder   = "event_order"
	AssertEventCount   = "event_count"
)

var trackFields = []string{"recArm", "mute", "solo", "vol", "pan"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml scenario under dir, sorted by path.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(path); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Remote {
	case "", RemoteManual, RemoteSession, RemoteVM, RemoteNone:
	default:
		return fmt.Errorf("unknown remote %q", s.Remote)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	action := step.Action()
	switch {
	case action == "":
		return fmt.Errorf("steps[%d]: no action", index)
	case strings.Contains(action, "+"):
		return fmt.Errorf("steps[%d]: exactly one action allowed, got %s", index, action)
	}
	if step.Expect != "" {
		if step.Dispatch == nil {
			return fmt.Errorf("steps[%d]: expect is only valid on dispatch", index)
		}
		if !validStatus(step.Expect) {
			return fmt.Errorf("steps[%d]: unknown status %q", index, step.Expect)
		}
	}
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}
	if step.Dispatch != nil {
		if _, err := decodeIntent(step.Dispatch); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOpStatus:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for op_status", index)
		}
		if !validStatus(a.Status) {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertTrack:
		if a.GUID == "" {
			return fmt.Errorf("assertions[%d]: guid is required for track", index)
		}
		if !slices.Contains(trackFields, a.Field) {
			return fmt.Errorf("assertions[%d]: unknown track field %q", index, a.Field)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for track", index)
		}
	case AssertOverlayEmpty:
	case AssertActiveBus:
		if a.Bus == "" {
			return fmt.Errorf("assertions[%d]: bus is required for active_bus", index)
		}
	case AssertPendingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for pending_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validStatus(s string) bool {
	switch model.OpStatus(s) {
	case model.StatusQueued, model.StatusSent, model.StatusAcked,
		model.StatusFailed, model.StatusTimeout, model.StatusSuperseded:
		return true
	}
	return false
}

// decodeIntent converts a YAML dispatch map into an Intent via JSON, so
// "name" is accepted as an alias of "kind" exactly as on the wire.
func decodeIntent(m map[string]any) (model.Intent, error) {
	var in model.Intent
	if err := jsonRoundTrip(m, &in); err != nil {
		return in, fmt.Errorf("dispatch: %w", err)
	}
	if in.Kind == "" {
		return in, fmt.Errorf("dispatch: kind is required")
	}
	return in, nil
}

// jsonRoundTrip re-decodes YAML-shaped data through JSON so numbers become
// float64 and objects map[string]any, matching what transports deliver.
func jsonRoundTrip(src, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
