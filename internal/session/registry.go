// Package session tracks the users and admins connected to this
// process. Sessions are transient: created on accept, destroyed on
// disconnect, never persisted. Room membership lives in the
// coordination store; the registry only carries per-connection
// attributes (alias, avatar, client address).
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/EvanKristianPratama/Anon-chat/internal/models"
	"github.com/EvanKristianPratama/Anon-chat/internal/sanitize"
)

// Session a connected user's transient attributes
type Session struct {
	ID     string
	IP     string
	Alias  string
	Avatar *models.AvatarPayload
}

// Registry in-process session registry. The id assigned at Register is
// the user's only identity and stays immutable for the connection's
// lifetime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	aliasMinLen int
	aliasMaxLen int
}

func NewRegistry(aliasMinLen, aliasMaxLen int) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		aliasMinLen: aliasMinLen,
		aliasMaxLen: aliasMaxLen,
	}
}

// Register creates a session with a fresh opaque id.
func (r *Registry) Register(ip string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID: uuid.New().String(),
		IP: ip,
	}
	r.sessions[s.ID] = s
	return s
}

// Get returns the session or nil. The returned value is a snapshot;
// mutations go through the registry.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	cloned := *s
	return &cloned
}

// Has reports whether the user is still registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// SetAlias normalizes and stores the alias. Returns the normalized
// alias, or "" when the input did not survive normalization.
func (r *Registry) SetAlias(id, raw string) string {
	alias := sanitize.Alias(raw, r.aliasMinLen, r.aliasMaxLen)
	if alias == "" {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ""
	}
	s.Alias = alias
	return alias
}

// Alias returns the user's alias, "" when unset or unknown.
func (r *Registry) Alias(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[id]; ok {
		return s.Alias
	}
	return ""
}

// SetAvatar stores a validated avatar descriptor.
func (r *Registry) SetAvatar(id string, avatar *models.AvatarPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.Avatar = avatar
	}
}

// Remove drops the session. Downstream cleanup (queue removal, room
// termination) is sequenced by the caller; removal itself is just the
// trigger.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Count reports connected users on this process.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
