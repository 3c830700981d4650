package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionConfig writes a config using the in-process session remote.
func sessionConfig(t *testing.T, dir, journalPath string) string {
	t.Helper()
	src := `transport: kind: "session"
transport: buses: 2
reconcile: tickMs: 20
log: level: "error"
`
	if journalPath != "" {
		src += fmt.Sprintf("journal: path: %q\n", journalPath)
	}
	return writeFile(t, dir, "rfx.cue", src)
}

func TestRunCommand_SettleRequiresIntents(t *testing.T) {
	cfg := sessionConfig(t, t.TempDir(), "")

	_, err := execute(t, nil, "--config", cfg, "run", "--settle")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_BadConfig(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "rfx.cue", `transport: kind: "carrier-pigeon"`)

	_, err := execute(t, nil, "--config", cfg, "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_IntentsAcked(t *testing.T) {
	dir := t.TempDir()
	cfg := sessionConfig(t, dir, "")
	intents := strings.Join([]string{
		`# volume then mute`,
		`{"kind":"setVol","trackGuid":"{TRK-FX_1A}","value":0.5}`,
		``,
		`{"kind":"toggleMute","trackGuid":"{TRK-FX_1B}","value":true}`,
	}, "\n")

	out, err := execute(t, strings.NewReader(intents), "--config", cfg, "run", "--intents", "-", "--settle")
	require.NoError(t, err)
	assert.Contains(t, out, "acked: 2")
	assert.NotContains(t, out, "✗")
}

func TestRunCommand_RejectedIntentFails(t *testing.T) {
	dir := t.TempDir()
	cfg := sessionConfig(t, dir, "")
	intents := writeFile(t, dir, "intents.jsonl",
		`{"kind":"toggleMute","trackGuid":"{TRK-NOPE}","value":true}`+"\n")

	out, err := execute(t, nil, "--config", cfg, "--format", "json", "run", "--intents", intents, "--settle")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data runSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Ops["failed"])
	require.Len(t, resp.Data.Unconfirmed, 1)
	assert.Contains(t, resp.Data.Unconfirmed[0].Error, "unknown track")
}

func TestRunCommand_MalformedIntent(t *testing.T) {
	cfg := sessionConfig(t, t.TempDir(), "")

	_, err := execute(t, strings.NewReader("{not json}\n"), "--config", cfg, "run", "--intents", "-", "--settle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intents line 1")
}

func TestRunCommand_JournalFeedsTrace(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "rfx.db")
	cfg := sessionConfig(t, dir, db)

	_, err := execute(t, strings.NewReader(`{"kind":"setPan","trackGuid":"{TRK-FX_2C}","value":-0.25}`),
		"--config", cfg, "run", "--intents", "-", "--settle")
	require.NoError(t, err)

	out, err := execute(t, nil, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "intent:received")
	assert.Contains(t, out, "syscall:sent")
	assert.Contains(t, out, "setPan acked {TRK-FX_2C}")
}
