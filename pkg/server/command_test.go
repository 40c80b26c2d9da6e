package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

func TestCmdSetMatch(t *testing.T) {
	cs := NewCmdSet()
	cs.Add(&Definition{Key: "look", Aliases: []string{"l"}})
	cs.Add(&Definition{Key: "@scripts", Aliases: []string{"@script"}})
	cs.Add(&Definition{Key: "@service"})
	cs.Add(&Definition{Key: "@stats"})

	tests := []struct {
		in   string
		want string // "" for no match
	}{
		{"look", "look"},
		{"L", "look"},
		{"lo", ""},
		{"@scr", "@scripts"},
		{"@script", "@scripts"},
		{"@ser", "@service"},
		{"@s", ""}, // ambiguous
		{"@st", "@stats"},
		{"@", ""},
		{"@nothing", ""},
	}
	for _, tt := range tests {
		def, ok := cs.Match(tt.in)
		got := ""
		if ok {
			got = def.Key
		}
		if got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	var keys []string
	for _, d := range cs.All() {
		keys = append(keys, d.Key)
	}
	if got := strings.Join(keys, ","); got != "@scripts,@service,@stats,look" {
		t.Errorf("All() = %s", got)
	}
}

func TestSubstituteNick(t *testing.T) {
	obj := gamedb.NewObject(1, "Tester", gamedb.TypeCharacter)
	obj.SetNick(gamedb.NickInputLine, "l1", "look obj1")
	tests := map[string]string{
		"l1":        "look obj1",
		"l1 extra":  "look obj1 extra",
		"l1x":       "l1x",
		"look l1":   "look l1",
		"say hello": "say hello",
	}
	for in, want := range tests {
		if got := substituteNick(obj, in); got != want {
			t.Errorf("substituteNick(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTraceback(t *testing.T) {
	err := withStack(errors.New("kaboom"))
	text := FormatTraceback(err)
	if !strings.HasPrefix(text, events.TracebackMarker+"\n") {
		t.Errorf("traceback does not start with the marker: %q", text)
	}
	if !strings.HasSuffix(text, "kaboom") {
		t.Errorf("traceback does not end with the error: %q", text)
	}
	if StackTrace(err) == "" {
		t.Error("no stack recorded")
	}
	if StackTrace(errors.New("plain")) != "" {
		t.Error("stack reported for an error without one")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	g := &Game{}
	c := &Command{
		Def:  &Definition{Key: "boom", Handler: func(context.Context, *Command) error { panic("oops") }},
		Game: g,
	}
	err := c.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panic in boom: oops") {
		t.Errorf("Run() = %v, want recovered panic", err)
	}
}
