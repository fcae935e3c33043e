package events

// Signal names the push notifications the engine reacts to. Payloads are
// never trusted beyond "something changed for this user"; handlers re-derive
// truth through the repository.
type Signal string

const (
	SignalNewMessage   Signal = "notification_new_message"
	SignalMessagesRead Signal = "notification_messages_read"
	// SignalResync is raised locally after a reconnect: whatever happened
	// while disconnected must be re-pulled.
	SignalResync Signal = "resync"
)

type Handler func(Signal)

// Channel is the push-event transport, scoped to one user session.
// Implementations own their connection lifecycle; subscribers registered
// once per store lifetime, not re-derived per view.
type Channel interface {
	Subscribe(sig Signal, h Handler) (unsubscribe func())
	Open() error
	Close() error
}
