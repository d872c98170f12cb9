package service

// Notifier delivers outbound events to user connections owned by this
// process. The WebSocket hub implements it; tests use a fake.
type Notifier interface {
	// EmitToUser sends one event to the user, dropped silently when the
	// user is not connected here.
	EmitToUser(userID, event string, payload interface{})

	// IsConnected reports whether the user's socket is attached to this
	// process.
	IsConnected(userID string) bool
}

// AdminNotifier delivers events to authorized admin subscribers.
type AdminNotifier interface {
	BroadcastAdmins(event string, payload interface{})
}
