package session

import (
	"testing"
	"time"

	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/google/go-cmp/cmp"
)

type recordingSink struct {
	lines  []string
	events []events.Event
}

func (r *recordingSink) AcceptLine(line string)  { r.lines = append(r.lines, line) }
func (r *recordingSink) Deliver(ev events.Event) { r.events = append(r.events, ev) }

func (r *recordingSink) texts() []string {
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Text)
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	sink := &recordingSink{}
	s := New(1, "telnet", sink)
	if !s.Closed() {
		t.Fatal("new session should start closed")
	}
	s.Msg("dropped")

	s.Connect("127.0.0.1:4201")
	if s.Closed() || s.LoggedIn() {
		t.Fatalf("after Connect: closed=%v loggedIn=%v", s.Closed(), s.LoggedIn())
	}
	s.LineReceived("connect wizard secret")
	s.Msgf("Welcome, %s.", "wizard")
	s.Disconnect()
	s.Msg("dropped too")

	if diff := cmp.Diff([]string{"connect wizard secret"}, sink.lines); diff != "" {
		t.Errorf("lines (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Welcome, wizard."}, sink.texts()); diff != "" {
		t.Errorf("delivered (-want +got):\n%s", diff)
	}
	if s.CmdCount != 1 {
		t.Errorf("CmdCount = %d, want 1", s.CmdCount)
	}
	if s.UID == "" {
		t.Error("session has no UID")
	}
}

func TestHandlerLoginSubscribes(t *testing.T) {
	bus := events.NewBus()
	h := NewHandler(bus)
	sink := &recordingSink{}
	s := New(h.NextID(), "fake", sink)
	s.Connect("fake")
	h.Add(s)

	player := &gamedb.Player{ID: 1, Name: "Tester", Character: 7}
	h.Login(s, player)
	if !s.LoggedIn() || s.Character != 7 {
		t.Fatalf("after Login: loggedIn=%v character=%s", s.LoggedIn(), s.Character)
	}
	if !h.IsConnected(7) || len(h.ForCharacter(7)) != 1 {
		t.Error("character not registered as connected")
	}

	bus.Emit(events.Text(7, "hello"))
	h.Broadcast(events.Event{Type: events.EvSystem, Text: "shutdown soon"})
	if diff := cmp.Diff([]string{"hello", "shutdown soon"}, sink.texts()); diff != "" {
		t.Errorf("delivered (-want +got):\n%s", diff)
	}

	h.Logout(s)
	bus.Emit(events.Text(7, "after logout"))
	if len(sink.events) != 2 {
		t.Error("logged-out session still receives character events")
	}
	if h.IsConnected(7) || s.Closed() {
		t.Errorf("after Logout: connected=%v closed=%v", h.IsConnected(7), s.Closed())
	}

	h.Remove(s)
	if h.Count() != 0 || !s.Closed() {
		t.Errorf("after Remove: count=%d closed=%v", h.Count(), s.Closed())
	}
}

func TestHandlerOrdering(t *testing.T) {
	h := NewHandler(nil)
	for i := 0; i < 3; i++ {
		s := New(h.NextID(), "fake", &recordingSink{})
		s.Connect("fake")
		h.Add(s)
	}
	var ids []int
	for _, s := range h.All() {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, ids); diff != "" {
		t.Errorf("All ids (-want +got):\n%s", diff)
	}
	if len(h.LoggedIn()) != 0 {
		t.Error("sessions at the login screen counted as logged in")
	}
}

func TestFormatTimes(t *testing.T) {
	tests := []struct {
		d          time.Duration
		idle, conn string
	}{
		{5 * time.Second, "5s", "00:00"},
		{3 * time.Minute, "3m", "00:03"},
		{2*time.Hour + 5*time.Minute, "2h", "02:05"},
		{49 * time.Hour, "2d", "49:00"},
	}
	for _, tt := range tests {
		if got := FormatIdleTime(tt.d); got != tt.idle {
			t.Errorf("FormatIdleTime(%v) = %q, want %q", tt.d, got, tt.idle)
		}
		if got := FormatConnTime(tt.d); got != tt.conn {
			t.Errorf("FormatConnTime(%v) = %q, want %q", tt.d, got, tt.conn)
		}
	}
}
