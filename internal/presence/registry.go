package presence

import "sync"

// Registry tracks which users currently have open realtime sessions.
// State is process-local and rebuilt from zero on restart; it reflects
// only current connectivity, never history. For multi-instance
// deployments the Mirror provides the shared view.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]map[string]struct{} // userID -> set of sessionIDs
	sessions map[string]string              // sessionID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		users:    make(map[string]map[string]struct{}),
		sessions: make(map[string]string),
	}
}

// Announce registers sessionID under userID. Idempotent. A session is
// bound to at most one user; re-announcing with a different user moves it.
func (r *Registry) Announce(sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.sessions[sessionID]; ok {
		if prev == userID {
			return
		}
		r.dropLocked(sessionID, prev)
	}
	r.sessions[sessionID] = userID
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][sessionID] = struct{}{}
}

// Disconnect removes sessionID from whatever user owns it. It returns
// the user id and whether that user just transitioned to offline.
func (r *Registry) Disconnect(sessionID string) (userID string, offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	delete(r.sessions, sessionID)
	r.dropLocked(sessionID, userID)
	_, stillOnline := r.users[userID]
	return userID, !stillOnline
}

func (r *Registry) dropLocked(sessionID, userID string) {
	set := r.users[userID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// UserOf returns the user a session announced as, if any.
func (r *Registry) UserOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.sessions[sessionID]
	return uid, ok
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// SessionsOf returns the session ids currently announced for userID.
func (r *Registry) SessionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
