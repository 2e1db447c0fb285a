package room

import "sync"

// Sender is one live realtime connection as seen by the router. The
// websocket session implements it; tests use in-memory fakes.
type Sender interface {
	ID() string
	Emit(event string, payload any)
}

// Router groups sessions into named broadcast rooms. A room is just a
// label (an event id or a direct-chat id), never a stored entity, and
// membership is per session: a user with two open sessions must join
// from both to receive broadcasts on both.
//
// The router performs no authorization; callers verify membership
// before Join. State is process-local.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]Sender              // sessionID -> sender
	rooms    map[string]map[string]struct{} // roomID -> sessionIDs
	joined   map[string]map[string]struct{} // sessionID -> roomIDs
}

func NewRouter() *Router {
	return &Router{
		sessions: make(map[string]Sender),
		rooms:    make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (r *Router) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Unregister removes the session and leaves every room it had joined.
func (r *Router) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	for roomID := range r.joined[sessionID] {
		r.leaveLocked(sessionID, roomID)
	}
	delete(r.joined, sessionID)
}

// Join adds the session to a room. No-op if already joined or if the
// session was never registered.
func (r *Router) Join(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][sessionID] = struct{}{}
	if r.joined[sessionID] == nil {
		r.joined[sessionID] = make(map[string]struct{})
	}
	r.joined[sessionID][roomID] = struct{}{}
}

func (r *Router) Leave(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID, roomID)
	if set := r.joined[sessionID]; set != nil {
		delete(set, roomID)
	}
}

func (r *Router) leaveLocked(sessionID, roomID string) {
	if members := r.rooms[roomID]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// Broadcast delivers payload to every session joined to roomID, skipping
// any session ids listed in except (used by typing indicators to avoid
// echoing to the sender).
func (r *Router) Broadcast(roomID, event string, payload any, except ...string) {
	r.mu.RLock()
	members := r.rooms[roomID]
	targets := make([]Sender, 0, len(members))
	for sid := range members {
		if contains(except, sid) {
			continue
		}
		if s, ok := r.sessions[sid]; ok {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Emit(event, payload)
	}
}

// EmitToSessions delivers directly to the given session ids, bypassing
// room membership. Used for per-device notifications such as dm:notify.
func (r *Router) EmitToSessions(sessionIDs []string, event string, payload any) {
	r.mu.RLock()
	targets := make([]Sender, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		if s, ok := r.sessions[sid]; ok {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Emit(event, payload)
	}
}

// InRoom reports whether the session is currently joined to roomID.
func (r *Router) InRoom(sessionID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][sessionID]
	return ok
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
