package session

import (
	"sort"
	"sync"

	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

// Handler tracks all active sessions.
type Handler struct {
	mu       sync.RWMutex
	sessions map[int]*Session
	nextID   int
	byChar   map[gamedb.DBRef][]*Session // character -> sessions (multi-login)
	Bus      *events.Bus                 // nil disables event subscription
}

// NewHandler creates a session handler publishing through bus.
func NewHandler(bus *events.Bus) *Handler {
	return &Handler{
		sessions: make(map[int]*Session),
		byChar:   make(map[gamedb.DBRef][]*Session),
		nextID:   1,
		Bus:      bus,
	}
}

// NextID returns the next session id.
func (h *Handler) NextID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	return id
}

// Add registers a session.
func (h *Handler) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

// Remove logs a session out, disconnects it and forgets it.
func (h *Handler) Remove(s *Session) {
	h.Logout(s)
	s.Disconnect()
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.ID)
}

// Login binds a session to a player and subscribes it to the player
// character's events.
func (h *Handler) Login(s *Session, player *gamedb.Player) {
	s.mu.Lock()
	s.Player = player
	s.Character = player.Character
	s.State = StateConnected
	s.mu.Unlock()

	h.mu.Lock()
	h.byChar[player.Character] = append(h.byChar[player.Character], s)
	h.mu.Unlock()

	if h.Bus != nil {
		h.Bus.Subscribe(player.Character, s)
	}
}

// Logout detaches the player from a session, leaving it at the login screen.
func (h *Handler) Logout(s *Session) {
	s.mu.Lock()
	char := s.Character
	wasIn := s.State == StateConnected
	s.Player = nil
	s.Character = gamedb.Nothing
	if wasIn {
		s.State = StateLogin
	}
	s.mu.Unlock()
	if !wasIn {
		return
	}

	if h.Bus != nil {
		h.Bus.Unsubscribe(char, s)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.byChar[char]
	for i, other := range list {
		if other == s {
			h.byChar[char] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(h.byChar[char]) == 0 {
		delete(h.byChar, char)
	}
}

// Get returns a session by id.
func (h *Handler) Get(id int) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// ForCharacter returns the sessions puppeting a character.
func (h *Handler) ForCharacter(char gamedb.DBRef) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*Session(nil), h.byChar[char]...)
}

// IsConnected reports whether a character has at least one session.
func (h *Handler) IsConnected(char gamedb.DBRef) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byChar[char]) > 0
}

// All returns a snapshot of all sessions ordered by id.
func (h *Handler) All() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoggedIn returns the logged-in sessions ordered by id.
func (h *Handler) LoggedIn() []*Session {
	var out []*Session
	for _, s := range h.All() {
		if s.LoggedIn() {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of sessions.
func (h *Handler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast delivers ev to every logged-in session.
func (h *Handler) Broadcast(ev events.Event) {
	for _, s := range h.LoggedIn() {
		e := ev
		e.Player = s.Character
		s.Receive(e)
	}
}
