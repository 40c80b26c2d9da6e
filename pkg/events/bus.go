package events

import (
	"sync"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-character pub/sub event bus with support for global
// subscribers. Game code emits structured events; each subscriber (session,
// metrics, logger) encodes them for its own transport.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[gamedb.DBRef][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[gamedb.DBRef][]Subscriber),
	}
}

// Subscribe registers a subscriber for one character's events.
func (b *Bus) Subscribe(char gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[char] = append(b.subscribers[char], sub)
}

// Unsubscribe removes a subscriber for a character.
func (b *Bus) Unsubscribe(char gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[char]
	for i, s := range subs {
		if s == sub {
			b.subscribers[char] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[char]) == 0 {
		delete(b.subscribers, char)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

func (b *Bus) snapshot(char gamedb.DBRef) (subs, globals []Subscriber) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers[char], b.global
}

func deliver(subs []Subscriber, ev Event) {
	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Emit sends an event to ev.Player's subscribers and all global subscribers.
func (b *Bus) Emit(ev Event) {
	subs, globals := b.snapshot(ev.Player)
	deliver(subs, ev)
	deliver(globals, ev)
}

// EmitToPlayer sends an event to a specific character (overriding ev.Player).
func (b *Bus) EmitToPlayer(char gamedb.DBRef, ev Event) {
	ev.Player = char
	b.Emit(ev)
}

// EmitToRoom sends an event to everything listening in a room.
func (b *Bus) EmitToRoom(db *gamedb.Database, room gamedb.DBRef, ev Event) {
	b.EmitToRoomExcept(db, room, gamedb.Nothing, ev)
}

// EmitToRoomExcept sends an event to everything listening in a room except one.
// Global subscribers get a single copy with Room set.
func (b *Bus) EmitToRoomExcept(db *gamedb.Database, room, except gamedb.DBRef, ev Event) {
	contents := db.Contents(room)
	if contents == nil {
		if _, ok := db.Get(room); !ok {
			return
		}
	}
	ev.Room = room
	for _, obj := range contents {
		if obj.DBRef == except {
			continue
		}
		subs, _ := b.snapshot(obj.DBRef)
		playerEv := ev
		playerEv.Player = obj.DBRef
		deliver(subs, playerEv)
	}
	_, globals := b.snapshot(gamedb.Nothing)
	deliver(globals, ev)
}

// PlayerSubscribers returns the number of subscribers for a character.
func (b *Bus) PlayerSubscribers(char gamedb.DBRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[char])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for char, subs := range b.subscribers {
		active := subs[:0:0]
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, char)
		} else {
			b.subscribers[char] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
