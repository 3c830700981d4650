// Package config loads rfx configuration from CUE.
//
// A config file is unified with the embedded #Config schema, which supplies
// defaults and rejects unknown fields. An absent file yields the defaults.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded #Config.
type Config struct {
	Transport Transport `json:"transport"`
	Reconcile Reconcile `json:"reconcile"`
	Lanes     Lanes     `json:"lanes"`
	EventLog  EventLog  `json:"eventLog"`
	Journal   Journal   `json:"journal"`
	Metrics   Metrics   `json:"metrics"`
	Server    Server    `json:"server"`
	Log       Log       `json:"log"`
}

// Transport selects and configures the remote.
type Transport struct {
	Kind             string `json:"kind"`
	URL              string `json:"url"`
	ViewPath         string `json:"viewPath"`
	CommandPath      string `json:"commandPath"`
	Buses            int    `json:"buses"`
	MetersIntervalMs int    `json:"metersIntervalMs"`
}

// MetersInterval returns the mock meter period.
func (t Transport) MetersInterval() time.Duration {
	return time.Duration(t.MetersIntervalMs) * time.Millisecond
}

// Reconcile holds reconciliation policy.
type Reconcile struct {
	TimeoutMs int     `json:"timeoutMs"`
	Epsilon   float64 `json:"epsilon"`
	TickMs    int     `json:"tickMs"`
}

// Timeout returns the sent → timeout budget.
func (r Reconcile) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Tick returns the sweep period. Zero disables sweeping.
func (r Reconcile) Tick() time.Duration {
	return time.Duration(r.TickMs) * time.Millisecond
}

type Lanes struct {
	InputTrack string `json:"inputTrack"`
}

type EventLog struct {
	Capacity int `json:"capacity"`
}

// Journal enables SQLite persistence when Path is set.
type Journal struct {
	Path string `json:"path"`
}

// Metrics enables the Prometheus endpoint when Addr is set.
type Metrics struct {
	Addr string `json:"addr"`
}

// Server is the listen address of `rfx serve`.
type Server struct {
	Addr string `json:"addr"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SlogLevel maps Level onto slog.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default returns the schema defaults.
func Default() (*Config, error) {
	return Parse(nil, "default.cue")
}

// Load reads and validates the config at path. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default()
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse unifies CUE source with #Config and decodes the result.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %s", filename, errors.Details(err, nil))
	}

	value := def.Unify(file)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %s", errors.Details(err, nil))
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
