package mapnet

import "context"

// Conn is the signalling transport the orchestrator drives. Send opens a
// fresh dialog, issues the request's operation on it and returns the local
// dialog id immediately; the outcome arrives later as an Event on Events.
// Implementations must deliver every event for a dialog after Send has
// returned its id, and must stop producing events after Close.
type Conn interface {
	Send(ctx context.Context, req Request) (DialogID, error)
	Events() <-chan Event
	Close() error
}
