package events

import (
	"sync"
	"testing"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

// newRoomWithTwo returns a database holding a room with two characters.
func newRoomWithTwo(t *testing.T) (db *gamedb.Database, room, p1, p2 gamedb.DBRef) {
	t.Helper()
	db = gamedb.NewDatabase()
	room = db.Allocate("room", gamedb.TypeRoom).DBRef
	p1 = db.Allocate("one", gamedb.TypeCharacter).DBRef
	p2 = db.Allocate("two", gamedb.TypeCharacter).DBRef
	for _, p := range []gamedb.DBRef{p1, p2} {
		if err := db.Move(p, room); err != nil {
			t.Fatal(err)
		}
	}
	return db, room, p1, p2
}

func TestBusEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	player := gamedb.DBRef(1)
	bus.Subscribe(player, sub)

	bus.Emit(Event{Type: EvSay, Player: player, Source: player, Text: "Hello world"})

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", events[0].Text)
	}
	if events[0].Type != EvSay {
		t.Errorf("expected type EvSay, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	bus.EmitToPlayer(5, Text(gamedb.Nothing, "test msg"))

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Player != 5 {
		t.Errorf("expected recipient #5, got %s", events[0].Player)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	keep := &mockSubscriber{}
	drop := &mockSubscriber{}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, keep)
	bus.Subscribe(player, drop)
	bus.Unsubscribe(player, drop)

	bus.Emit(Text(player, "only one"))

	if len(drop.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
	if len(keep.Events()) != 1 {
		t.Error("remaining subscriber lost its event")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, sub)
	bus.Emit(Text(player, "no delivery"))

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusEmitToRoom(t *testing.T) {
	db, room, p1, p2 := newRoomWithTwo(t)

	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	global := &mockSubscriber{}
	bus.Subscribe(p1, sub1)
	bus.Subscribe(p2, sub2)
	bus.SubscribeGlobal(global)

	bus.EmitToRoom(db, room, Event{Type: EvSay, Source: p1, Text: "Hello room"})

	for name, sub := range map[string]*mockSubscriber{"player 1": sub1, "player 2": sub2} {
		evs := sub.Events()
		if len(evs) != 1 {
			t.Errorf("%s: expected 1 event, got %d", name, len(evs))
			continue
		}
		if evs[0].Room != room {
			t.Errorf("%s: room = %s, want %s", name, evs[0].Room, room)
		}
	}
	if len(global.Events()) != 1 {
		t.Errorf("global: expected 1 event, got %d", len(global.Events()))
	}
}

func TestBusEmitToRoomExcept(t *testing.T) {
	db, room, p1, p2 := newRoomWithTwo(t)

	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	bus.Subscribe(p1, sub1)
	bus.Subscribe(p2, sub2)

	bus.EmitToRoomExcept(db, room, p1, Event{Type: EvSay, Source: p1, Text: "Hello others"})

	if len(sub1.Events()) != 0 {
		t.Errorf("player 1 (excluded): expected 0 events, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 1 {
		t.Errorf("player 2: expected 1 event, got %d", len(sub2.Events()))
	}
}

func TestBusEmitToMissingRoom(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)
	bus.EmitToRoom(gamedb.NewDatabase(), 42, Text(gamedb.Nothing, "void"))
	if len(global.Events()) != 0 {
		t.Error("event for a missing room reached global subscribers")
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, active)
	bus.Subscribe(player, closed)
	bus.Subscribe(2, &mockSubscriber{isClosed: true})
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.PlayerSubscribers(player) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.PlayerSubscribers(player))
	}
	if bus.PlayerSubscribers(2) != 0 {
		t.Error("character with only closed subscribers kept its entry")
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EvText, "text"},
		{EvSay, "say"},
		{EvMove, "move"},
		{EvTraceback, "traceback"},
		{EventType(999), "unknown"},
		{EventType(-1), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
