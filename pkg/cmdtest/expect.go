// Package cmdtest runs in-game commands against a throwaway world and
// checks what they send back.
package cmdtest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/crystal-mush/mushkit/pkg/events"
)

// AnyKind matches messages of every event type.
const AnyKind events.EventType = -1

// Expect is one expected outgoing message. The message must have the given
// kind (unless AnyKind) and its text must start with Text.
type Expect struct {
	Kind events.EventType
	Text string
}

// Text expects a message of any kind starting with s.
func Text(s string) Expect {
	return Expect{Kind: AnyKind, Text: s}
}

func (e Expect) matches(ev events.Event) bool {
	if e.Kind != AnyKind && ev.Type != e.Kind {
		return false
	}
	return strings.HasPrefix(ev.Text, e.Text)
}

// Expectations is the staged-assertion state shared by a fixture and its
// fake session. Each outgoing message consumes at most one staged entry.
type Expectations struct {
	mu       sync.Mutex
	staged   []Expect
	failures []string
	log      []events.Event
}

// Stage replaces whatever is staged with want, in order. Staging nothing
// clears.
func (e *Expectations) Stage(want ...Expect) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.staged = append([]Expect(nil), want...)
}

// Clear drops any staged entries that were not consumed.
func (e *Expectations) Clear() {
	e.Stage()
}

// Pending returns the number of staged entries not yet consumed.
func (e *Expectations) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.staged)
}

// Check records ev and compares it with the next staged entry, if any.
func (e *Expectations) Check(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, ev)

	if strings.HasPrefix(ev.Text, events.TracebackMarker) {
		e.failures = append(e.failures, ev.Text)
		return
	}
	if len(e.staged) == 0 {
		return
	}
	want := e.staged[0]
	e.staged = e.staged[1:]
	if want.matches(ev) {
		return
	}
	msg := fmt.Sprintf("Returned message ('%s') != desired message ('%s')", ev.Text, want.Text)
	if want.Kind != AnyKind && ev.Type != want.Kind {
		msg += fmt.Sprintf(" (kind %s, want %s)", ev.Type, want.Kind)
	}
	e.failures = append(e.failures, msg)
}

// Failures returns and forgets the recorded failures.
func (e *Expectations) Failures() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.failures
	e.failures = nil
	return out
}

// Messages returns and forgets the messages seen since the last call.
func (e *Expectations) Messages() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.log
	e.log = nil
	return out
}
