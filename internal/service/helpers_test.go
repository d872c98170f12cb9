package service

import (
	"context"
	"sync"
	"time"

	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	"github.com/EvanKristianPratama/Anon-chat/internal/store"
	"github.com/EvanKristianPratama/Anon-chat/pkg/distributed"
)

type sentEvent struct {
	Event   string
	Payload interface{}
}

// fakeNotifier records emitted events in place of the WebSocket hub.
type fakeNotifier struct {
	mu           sync.Mutex
	events       map[string][]sentEvent
	adminEvents  []sentEvent
	disconnected map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		events:       make(map[string][]sentEvent),
		disconnected: make(map[string]bool),
	}
}

func (f *fakeNotifier) EmitToUser(userID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[userID] = append(f.events[userID], sentEvent{Event: event, Payload: payload})
}

func (f *fakeNotifier) IsConnected(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected[userID]
}

func (f *fakeNotifier) BroadcastAdmins(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminEvents = append(f.adminEvents, sentEvent{Event: event, Payload: payload})
}

func (f *fakeNotifier) setDisconnected(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected[userID] = true
}

func (f *fakeNotifier) countOf(userID, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, e := range f.events[userID] {
		if e.Event == event {
			count++
		}
	}
	return count
}

func (f *fakeNotifier) lastOf(userID, event string) (sentEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.events[userID]) - 1; i >= 0; i-- {
		if f.events[userID][i].Event == event {
			return f.events[userID][i], true
		}
	}
	return sentEvent{}, false
}

// testEnv wires the engine against the in-memory store and the fake
// notifier, with an injectable clock for expiry tests.
type testEnv struct {
	store    *store.MemoryStore
	registry *session.Registry
	notifier *fakeNotifier
	rooms    *RoomService
	match    *MatchService

	clock time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    store.NewMemoryStore(),
		registry: session.NewRegistry(2, 24),
		notifier: newFakeNotifier(),
		clock:    time.UnixMilli(1_700_000_000_000),
	}

	env.rooms = NewRoomService(env.store, env.registry, env.notifier, time.Minute, 15*time.Minute)
	env.rooms.now = func() time.Time { return env.clock }

	dispatcher := distributed.NewLocalDispatcher()
	env.match = NewMatchService(env.store, env.registry, env.notifier, env.rooms, dispatcher)
	dispatcher.Start(context.Background(), env.match.RunMatchingPass)

	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

// newUser registers a connected session and returns its id.
func (env *testEnv) newUser() string {
	return env.registry.Register("127.0.0.1").ID
}

func (env *testEnv) join(userID string) error {
	return env.match.EnqueueAndMatch(context.Background(), userID, env.clock.UnixMilli())
}
