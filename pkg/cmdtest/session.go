package cmdtest

import (
	"testing"

	"github.com/crystal-mush/mushkit/pkg/ansi"
	"github.com/crystal-mush/mushkit/pkg/events"
)

// FakeSession is a session.Sink that never touches a network. Everything
// sent to it is checked against its Expectations.
type FakeSession struct {
	Expect  *Expectations
	Verbose bool
	tb      testing.TB
}

// NewFakeSession creates a sink checking against exp. In verbose mode
// every message is also written to the test log.
func NewFakeSession(tb testing.TB, exp *Expectations, verbose bool) *FakeSession {
	return &FakeSession{Expect: exp, Verbose: verbose, tb: tb}
}

// AcceptLine ignores input; fixtures drive commands directly.
func (f *FakeSession) AcceptLine(string) {}

// Deliver checks an outgoing message.
func (f *FakeSession) Deliver(ev events.Event) {
	if f.Verbose && f.tb != nil {
		f.tb.Log(ansi.Strip(ev.Text))
	}
	f.Expect.Check(ev)
}
