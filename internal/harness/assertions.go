package harness

import (
	"fmt"
	"math"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func (h *Harness) evaluate(a Assertion, result *Result) error {
	switch a.Type {
	case AssertOpStatus:
		return h.assertOpStatus(a)
	case AssertTrack:
		return h.assertTrack(a)
	case AssertOverlayEmpty:
		if ov := h.store.Overlay(); ov.Len() > 0 {
			owners := make([]string, 0, ov.Len())
			for _, l := range ov.Layers() {
				owners = append(owners, l.OpID)
			}
			return &AssertionError{Type: a.Type, Expected: "no optimistic claims", Actual: "layers of " + strings.Join(owners, ", ")}
		}
	case AssertActiveBus:
		if got := h.store.ActiveBusID(); got != a.Bus {
			return &AssertionError{Type: a.Type, Expected: a.Bus, Actual: quoted(got)}
		}
	case AssertPendingCount:
		if got := len(h.store.Pending()); got != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Count), Actual: fmt.Sprint(got)}
		}
	case AssertEventOrder:
		return assertEventOrder(result.Trace, a)
	case AssertEventCount:
		got := 0
		for _, e := range result.Trace {
			if e.Kind == a.Event {
				got++
			}
		}
		if got != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d × %s", a.Count, a.Event), Actual: fmt.Sprint(got)}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func (h *Harness) assertOpStatus(a Assertion) error {
	op, ok := h.store.Op(a.Op)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s %s", a.Op, a.Status), Actual: "unknown op"}
	}
	if string(op.Status) != a.Status {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s", a.Op, a.Status),
			Actual:   fmt.Sprintf("%s (%s)", op.Status, op.Error),
		}
	}
	if a.Error != "" && !strings.Contains(op.Error, a.Error) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("error containing %q", a.Error), Actual: quoted(op.Error)}
	}
	return nil
}

func (h *Harness) assertTrack(a Assertion) error {
	tr, ok := h.store.Track(a.GUID)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "track " + a.GUID, Actual: "unknown track"}
	}

	var actual any
	match := false
	switch a.Field {
	case "vol", "pan":
		v := tr.Vol
		if a.Field == "pan" {
			v = tr.Pan
		}
		actual = v
		if want, ok := number(a.Value); ok {
			match = math.Abs(want-v) < 1e-9
		}
	case "recArm", "mute":
		v := tr.RecArm
		if a.Field == "mute" {
			v = tr.Mute
		}
		actual = v
		want, ok := a.Value.(bool)
		match = ok && want == v
	case "solo":
		actual = tr.Solo
		if want, ok := number(a.Value); ok {
			match = int(want) == tr.Solo
		}
	}
	if !match {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %v", a.GUID, a.Field, a.Value),
			Actual:   fmt.Sprint(actual),
		}
	}
	return nil
}

// assertEventOrder checks that kinds appear in order. Other events may
// appear in between.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, e := range trace {
		if next < len(a.Events) && e.Kind == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	kinds := make([]string, len(trace))
	for i, e := range trace {
		kinds[i] = e.Kind
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: strings.Join(a.Events, " → "),
		Actual:   fmt.Sprintf("missing %s in [%s]", a.Events[next], strings.Join(kinds, ", ")),
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func quoted(s string) string {
	return fmt.Sprintf("%q", s)
}
