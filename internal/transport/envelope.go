package transport

import "github.com/roach88/rfx/internal/model"

// Envelope types exchanged over the websocket bridge.
const (
	MsgSnapshot = "snapshot"
	MsgMeters   = "meters"
	MsgBoot     = "boot"
	MsgSyscall  = "syscall"
	MsgResult   = "result"
)

// Envelope is one websocket message. Requests (boot, syscall) carry an ID
// that the matching result echoes.
type Envelope struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	Snapshot model.RawSnapshot `json:"snapshot,omitempty"`
	Meters   *model.MeterFrame `json:"meters,omitempty"`
	Call     *model.Call       `json:"call,omitempty"`
	Result   *Result           `json:"result,omitempty"`
}
