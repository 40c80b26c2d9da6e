// Package session tracks connected clients.
//
// A Session owns no transport. Whatever carries bytes (telnet, SSH, the
// websocket portal, or a test) implements Sink, and the session forwards
// input lines and outgoing events to it.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/google/uuid"
)

// Sink is the transport half of a session.
type Sink interface {
	AcceptLine(line string)
	Deliver(ev events.Event)
}

// State tracks where a session is in its lifecycle.
type State int

const (
	StateLogin     State = iota // Connected, awaiting connect/create
	StateConnected              // Logged in as a player
	StateClosed
)

// Session represents one connected client. It implements events.Subscriber
// so it can receive events from the bus.
type Session struct {
	ID          int
	UID         string // stable external id, used by the portal
	ProtocolKey string
	Addr        string
	State       State
	Player      *gamedb.Player
	Character   gamedb.DBRef
	ConnTime    time.Time
	LastCmd     time.Time
	CmdCount    int

	sink Sink
	mu   sync.Mutex
}

// New creates a session that is not yet connected.
func New(id int, protocol string, sink Sink) *Session {
	return &Session{
		ID:          id,
		UID:         uuid.NewString(),
		ProtocolKey: protocol,
		State:       StateClosed,
		Character:   gamedb.Nothing,
		sink:        sink,
	}
}

// Connect marks the session active from addr. No socket is opened here.
func (s *Session) Connect(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Addr = addr
	s.State = StateLogin
	s.ConnTime = now
	s.LastCmd = now
}

// Disconnect closes the session. Further events are dropped.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateClosed
}

// LineReceived records activity and hands the line to the sink.
func (s *Session) LineReceived(line string) {
	s.mu.Lock()
	s.LastCmd = time.Now()
	s.CmdCount++
	s.mu.Unlock()
	s.sink.AcceptLine(line)
}

// Msg sends plain text to the client.
func (s *Session) Msg(text string) {
	s.Receive(events.Text(s.Character, text))
}

// Msgf formats and sends plain text to the client.
func (s *Session) Msgf(format string, args ...any) {
	s.Msg(fmt.Sprintf(format, args...))
}

// Receive implements events.Subscriber.
func (s *Session) Receive(ev events.Event) {
	if s.Closed() {
		return
	}
	s.sink.Deliver(ev)
}

// Closed implements events.Subscriber.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == StateClosed
}

// LoggedIn reports whether a player is attached.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == StateConnected && s.Player != nil
}

// IdleTime returns how long since the last input line.
func (s *Session) IdleTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastCmd)
}

// OnlineTime returns how long the session has been connected.
func (s *Session) OnlineTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.ConnTime)
}

// Compile-time check that Session implements events.Subscriber.
var _ events.Subscriber = (*Session)(nil)

// FormatIdleTime formats a duration as a short idle time: 5s, 3m, 2h, 1d.
func FormatIdleTime(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm", secs/60)
	}
	if secs < 86400 {
		return fmt.Sprintf("%dh", secs/3600)
	}
	return fmt.Sprintf("%dd", secs/86400)
}

// FormatConnTime formats a duration as hh:mm.
func FormatConnTime(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60)
}
