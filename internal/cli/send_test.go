package cli

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/config"
	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/transport"
)

// startRemote serves backend over websocket and returns its ws url.
func startRemote(t *testing.T, backend transport.Transport) string {
	t.Helper()
	srv := transport.NewServer(backend, nil)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
}

func TestParseIntent(t *testing.T) {
	in, err := parseIntent(`{"name":"selectActiveBus","busId":"FX_2"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindSelectActiveBus, in.Kind)
	assert.Equal(t, "FX_2", in.BusID)

	in, err = parseIntent("-", strings.NewReader(`{"kind":"setVol","trackGuid":"{T}","value":0.25}`))
	require.NoError(t, err)
	assert.Equal(t, model.KindSetVol, in.Kind)

	_, err = parseIntent(`{"busId":"FX_2"}`, nil)
	require.Error(t, err)

	_, err = parseIntent(`nope`, nil)
	require.Error(t, err)
}

func TestSendCommand_AckedOverWebsocket(t *testing.T) {
	url := startRemote(t, transport.NewMockSession(2))

	out, err := execute(t, nil, "--format", "json", "send", "--url", url, "--wait",
		`{"kind":"toggleSolo","trackGuid":"{TRK-FX_2A}","value":true}`)
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   model.PendingOp `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, model.StatusAcked, resp.Data.Status)
	assert.NotZero(t, resp.Data.AckSeq)
}

func TestSendCommand_RejectionSurfacesReason(t *testing.T) {
	url := startRemote(t, transport.NewMockSession(2))

	out, err := execute(t, nil, "send", "--url", url, `{"kind":"toggleFx","fxGuid":"{FX-NOPE}","value":true}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "toggleFx failed")
	assert.Contains(t, out, "unknown fx: {FX-NOPE}")
}

func TestSendCommand_Unreachable(t *testing.T) {
	_, err := execute(t, nil, "send", "--url", "ws://127.0.0.1:1/ws", "--timeout", "500ms", `{"kind":"syncView"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNewBackend(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	b, err := newBackend("session", cfg)
	require.NoError(t, err)
	assert.IsType(t, &transport.MockSession{}, b)

	vm, err := newBackend("vm", cfg)
	require.NoError(t, err)
	require.IsType(t, &transport.MockVM{}, vm)
	require.NoError(t, vm.(*transport.MockVM).Close())

	_, err = newBackend("daw", cfg)
	require.Error(t, err)
}
