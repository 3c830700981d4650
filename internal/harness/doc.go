// Package harness runs YAML scenarios against a real engine Store.
//
// A scenario drives a Store through a fixed list of steps with a manual
// clock and deterministic op ids, then checks assertions against the final
// state and the event trace.
//
// # Scenario Format
//
//	name: volume_confirm
//	description: "setVol is acked once a snapshot shows the new volume"
//	remote: manual          # manual | session | vm | none
//	steps:
//	  - snapshot: {seq: 1, tracks: [{trackGuid: T1, trackName: Kick, vol: 1}]}
//	  - dispatch: {kind: setVol, trackGuid: T1, value: 0.7}
//	    expect: sent
//	  - advance: 40ms
//	  - snapshot: {seq: 2, tracks: [{trackGuid: T1, trackName: Kick, vol: 0.7}]}
//	assertions:
//	  - type: op_status
//	    op: op-1
//	    status: acked
//	  - type: overlay_empty
//
// # Remotes
//
//   - manual: accepts every syscall and never answers. Snapshots come only
//     from snapshot steps.
//   - session: transport.MockSession, which applies commands and emits the
//     rich shape.
//   - vm: transport.MockVM, the reduced shape.
//   - none: no transport; every dispatch fails.
//
// Responses from session and vm remotes are queued and drained after every
// step, so an expect clause sees the op after the remote has answered.
//
// # Step Types
//
//   - snapshot: ingest a raw snapshot
//   - dispatch: dispatch an intent; expect checks its status
//   - advance: move the manual clock (Go duration syntax)
//   - tick: run a reconcile sweep
//   - meters: ingest a telemetry frame
//   - apply: pause or resume a session remote
//   - boot: run the transport handshake
//
// # Assertion Types
//
//   - op_status: an op's final status, optionally an error substring
//   - track: one effective track field
//   - overlay_empty: no optimistic claims remain
//   - active_bus: the effective active bus
//   - pending_count: number of live ops
//   - event_order: event kinds appear in order (gaps allowed)
//   - event_count: an event kind appears exactly N times
//
// Golden traces (RunWithGolden) live under testdata/golden and are
// regenerated with:
//
//	go test ./internal/harness -update
package harness
