// Package webchat runs chat rooms over websockets.
//
// Ownership model:
//   - A Room owns its MessageLog, its ConnectionPool membership and its
//     session state. All mutations run on the room's goroutine.
//   - RoomManager creates rooms on first attach and disposes them after
//     they have been empty for the idle grace period.
//   - Each attached websocket has a read loop (owned by RoomManager) and a
//     single writer goroutine fed by a bounded queue (owned by Connection).
//
// Recommended setup:
//   - Build a RoomManager with NewRoomManager and a RoomConfig.
//   - Mount NewRouter, or NewWSHTTPHandler alone under an existing mux.
//   - Call StartEvictionLoop to sweep rooms missed by the grace timer.
package webchat
