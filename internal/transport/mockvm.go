package transport

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roach88/rfx/internal/model"
)

// MockVMSchema tags snapshots produced by MockVM.
const MockVMSchema = "mock_vm_v2"

// MockVM is an in-process backend speaking the reduced performance shape.
//
// Commands that change state bump seq and emit a snapshot. Meter frames are
// emitted on a ticker for the active bus only and never bump seq.
type MockVM struct {
	mu            sync.Mutex
	seq           int64
	active        string
	buses         []model.Bus
	modes         map[string]model.Mode
	meters        map[string]model.Meter
	metersEnabled bool

	bootDelay     time.Duration
	meterInterval time.Duration
	now           func() time.Time
	rng           *rand.Rand

	snaps     hub[model.RawSnapshot]
	meterSubs hub[model.MeterFrame]

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// MockOption configures the mock backends.
type MockOption func(*mockConfig)

type mockConfig struct {
	bootDelay     time.Duration
	meterInterval time.Duration
	now           func() time.Time
	seed          uint64
}

// WithBootDelay makes Boot wait before answering.
func WithBootDelay(d time.Duration) MockOption {
	return func(c *mockConfig) { c.bootDelay = d }
}

// WithMeterInterval sets the meter ticker period. Zero disables the ticker.
func WithMeterInterval(d time.Duration) MockOption {
	return func(c *mockConfig) { c.meterInterval = d }
}

// WithMockClock sets the clock used for snapshot timestamps.
func WithMockClock(now func() time.Time) MockOption {
	return func(c *mockConfig) { c.now = now }
}

// WithSeed makes meter noise reproducible.
func WithSeed(seed uint64) MockOption {
	return func(c *mockConfig) { c.seed = seed }
}

func buildMockConfig(opts []MockOption) mockConfig {
	cfg := mockConfig{now: time.Now, seed: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewMockVM returns a backend with buses FX_1..FX_4 at seq 1.
// Call Start to run the meter ticker and Close to stop it.
func NewMockVM(opts ...MockOption) *MockVM {
	cfg := buildMockConfig(opts)
	return &MockVM{
		seq:    1,
		active: "FX_1",
		buses: []model.Bus{
			{ID: "FX_1", Label: "FX_1", BusNum: 1},
			{ID: "FX_2", Label: "FX_2", BusNum: 2},
			{ID: "FX_3", Label: "FX_3", BusNum: 3},
			{ID: "FX_4", Label: "FX_4", BusNum: 4},
		},
		modes: map[string]model.Mode{
			"FX_1": model.ModeLinear,
			"FX_2": model.ModeParallel,
			"FX_3": model.ModeLCR,
			"FX_4": model.ModeParallel,
		},
		meters: map[string]model.Meter{
			"FX_1": {L: 0.1, R: 0.12},
			"FX_2": {L: 0.02, R: 0.03},
			"FX_3": {L: 0, R: 0},
			"FX_4": {L: 0.05, R: 0.04},
		},
		metersEnabled: true,
		bootDelay:     cfg.bootDelay,
		meterInterval: cfg.meterInterval,
		now:           cfg.now,
		rng:           rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15)),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the meter ticker. It is a no-op when the interval is zero.
func (m *MockVM) Start() {
	m.startOnce.Do(func() {
		if m.meterInterval <= 0 {
			close(m.doneCh)
			return
		}
		go m.run()
	})
}

// Close stops the meter ticker and waits for it to exit.
func (m *MockVM) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.startOnce.Do(func() { close(m.doneCh) })
	<-m.doneCh
	return nil
}

func (m *MockVM) run() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.meterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.TickMeters()
		}
	}
}

// SetMetersEnabled pauses or resumes meter frames.
func (m *MockVM) SetMetersEnabled(on bool) {
	m.mu.Lock()
	m.metersEnabled = on
	m.mu.Unlock()
}

// TickMeters advances the active bus meter once and emits a frame.
func (m *MockVM) TickMeters() {
	m.mu.Lock()
	if !m.metersEnabled || m.active == "" {
		m.mu.Unlock()
		return
	}
	prev := m.meters[m.active]
	next := model.Meter{
		L: clamp01(prev.L*0.85 + m.rng.Float64()*0.35),
		R: clamp01(prev.R*0.85 + m.rng.Float64()*0.35),
	}
	m.meters[m.active] = next
	frame := m.frameLocked(m.active, next)
	m.mu.Unlock()

	m.meterSubs.emit(frame)
}

func (m *MockVM) frameLocked(busID string, meter model.Meter) model.MeterFrame {
	return model.MeterFrame{
		T:           m.now().UnixMilli(),
		ActiveBusID: busID,
		MetersByID:  map[string]model.Meter{busID: meter},
	}
}

// Boot implements Transport.
func (m *MockVM) Boot(ctx context.Context) (Boot, error) {
	if m.bootDelay > 0 {
		t := time.NewTimer(m.bootDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Boot{}, ctx.Err()
		case <-t.C:
		}
	}
	m.mu.Lock()
	m.seq++
	seq := m.seq
	snap := m.snapshotLocked()
	frame, hasFrame := m.seedFrameLocked()
	m.mu.Unlock()

	m.snaps.emit(snap)
	if hasFrame {
		m.meterSubs.emit(frame)
	}
	return Boot{Seq: seq}, nil
}

func (m *MockVM) seedFrameLocked() (model.MeterFrame, bool) {
	meter, ok := m.meters[m.active]
	if !ok {
		return model.MeterFrame{}, false
	}
	return m.frameLocked(m.active, meter), true
}

// Snapshot implements Transport.
func (m *MockVM) Snapshot() model.RawSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *MockVM) snapshotLocked() model.RawSnapshot {
	buses := make([]any, 0, len(m.buses))
	for _, b := range m.buses {
		buses = append(buses, map[string]any{"id": b.ID, "label": b.Label, "busNum": float64(b.BusNum)})
	}
	modes := make(map[string]any, len(m.modes))
	for id, mode := range m.modes {
		modes[id] = string(mode)
	}
	meters := make(map[string]any, len(m.meters))
	for id, v := range m.meters {
		meters[id] = map[string]any{"l": v.L, "r": v.R}
	}
	return model.RawSnapshot{
		"schemaVersion": float64(1),
		"schema":        MockVMSchema,
		"seq":           float64(m.seq),
		"ts":            float64(m.now().Unix()),
		"capabilities": map[string]any{
			"routingModes": []any{string(model.ModeLinear), string(model.ModeParallel), string(model.ModeLCR)},
		},
		"buses":       buses,
		"activeBusId": m.active,
		"busModes":    modes,
		"meters":      meters,
	}
}

// Subscribe implements Transport.
func (m *MockVM) Subscribe(fn func(model.RawSnapshot)) func() {
	return m.snaps.add(fn)
}

// SubscribeMeters implements MeterSource.
func (m *MockVM) SubscribeMeters(fn func(model.MeterFrame)) func() {
	return m.meterSubs.add(fn)
}

// Syscall implements Transport.
func (m *MockVM) Syscall(ctx context.Context, call model.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	var (
		frame    model.MeterFrame
		hasFrame bool
	)
	switch call.Name.Canonical() {
	case "":
		m.mu.Unlock()
		return Reject(call.Name, "invalid syscall")
	case model.KindSelectActiveBus:
		if call.BusID == "" {
			m.mu.Unlock()
			return Reject(call.Name, "missing busId")
		}
		m.seq++
		m.active = call.BusID
		frame, hasFrame = m.seedFrameLocked()
	case model.KindSetRoutingMode:
		if call.BusID == "" {
			m.mu.Unlock()
			return Reject(call.Name, "missing busId")
		}
		m.seq++
		m.modes[call.BusID] = model.NormalizeMode(call.Mode)
	case model.KindSyncView:
		m.seq++
	default:
		m.mu.Unlock()
		return Reject(call.Name, "unknown syscall: %s", call.Name)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.snaps.emit(snap)
	if hasFrame {
		m.meterSubs.emit(frame)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
