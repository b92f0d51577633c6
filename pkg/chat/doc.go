// Package chat holds the room-level domain model shared by the websocket
// controller and the responders: chat messages, the tagged Domain Event union
// exchanged with clients, and the error taxonomy used at dispatch boundaries.
package chat
