package server

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/pkg/errors"
)

// Handler runs a command. A returned error is an internal failure and is
// reported to the caller as a traceback; user mistakes are answered with
// a message and a nil error.
type Handler func(ctx context.Context, c *Command) error

// Definition describes one command.
type Definition struct {
	Key       string
	Aliases   []string
	Category  string
	Help      string
	Superuser bool // restricted to superuser accounts
	Handler   Handler
}

// Command is one invocation of a Definition.
type Command struct {
	Def       *Definition
	Caller    gamedb.DBRef
	CmdString string // the word the caller typed, switches stripped
	Args      string
	Switches  []string
	CmdSet    *CmdSet
	Obj       gamedb.DBRef // the object the command is defined on
	Game      *Game
	Session   *session.Session // nil when no session puppets the caller
}

// Msg sends text to the caller.
func (c *Command) Msg(text string) {
	c.Game.Msg(c.Caller, text)
}

// Msgf formats and sends text to the caller.
func (c *Command) Msgf(format string, args ...any) {
	c.Msg(fmt.Sprintf(format, args...))
}

// Emit sends a structured event to the caller.
func (c *Command) Emit(ev events.Event) {
	c.Game.Bus.EmitToPlayer(c.Caller, ev)
}

// HasSwitch reports whether the command was invoked with /name.
func (c *Command) HasSwitch(name string) bool {
	for _, s := range c.Switches {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// CallerObj returns the caller's object.
func (c *Command) CallerObj() (*gamedb.Object, bool) {
	return c.Game.DB.Get(c.Caller)
}

// Run executes the command, turning panics into errors.
func (c *Command) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in %s: %v", c.Def.Key, r)
		}
	}()
	if c.Def.Superuser && !c.Game.IsSuperuser(ctx, c.Caller) {
		c.Msg("Permission denied.")
		return nil
	}
	return c.Def.Handler(ctx, c)
}

// CmdSet is a named collection of commands.
type CmdSet struct {
	mu   sync.RWMutex
	defs map[string]*Definition // key and aliases, lower case
	keys []string               // sorted primary keys
}

// NewCmdSet creates an empty command set.
func NewCmdSet() *CmdSet {
	return &CmdSet{defs: make(map[string]*Definition)}
}

// Add registers def under its key and aliases, replacing earlier entries.
func (cs *CmdSet) Add(def *Definition) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	key := strings.ToLower(def.Key)
	if _, exists := cs.defs[key]; !exists {
		cs.keys = append(cs.keys, key)
		sort.Strings(cs.keys)
	}
	cs.defs[key] = def
	for _, a := range def.Aliases {
		cs.defs[strings.ToLower(a)] = def
	}
}

// Get looks a command up by exact key or alias.
func (cs *CmdSet) Get(name string) (*Definition, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	def, ok := cs.defs[strings.ToLower(name)]
	return def, ok
}

// Match resolves what the caller typed: an exact key or alias, or else a
// unique abbreviation of an @-command.
func (cs *CmdSet) Match(name string) (*Definition, bool) {
	if def, ok := cs.Get(name); ok {
		return def, true
	}
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, "@") || len(name) < 2 {
		return nil, false
	}
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	var found *Definition
	for n, def := range cs.defs {
		if !strings.HasPrefix(n, name) {
			continue
		}
		if found != nil && found != def {
			return nil, false
		}
		found = def
	}
	return found, found != nil
}

// All returns each command once, sorted by key.
func (cs *CmdSet) All() []*Definition {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Definition, 0, len(cs.keys))
	for _, k := range cs.keys {
		out = append(out, cs.defs[k])
	}
	return out
}

// ExecuteCmd parses raw as typed by caller and runs it. Messages go to the
// caller's sessions through the event bus. Internal failures are reported to
// the caller as a traceback and returned.
func (g *Game) ExecuteCmd(ctx context.Context, caller gamedb.DBRef, raw string) error {
	input := strings.TrimSpace(raw)
	if input == "" {
		return nil
	}
	g.world.Lock()
	defer g.world.Unlock()

	obj, ok := g.DB.Get(caller)
	if !ok {
		return fmt.Errorf("execute: no caller %s", caller)
	}
	if g.Metrics != nil {
		g.Metrics.CommandProcessed()
	}

	input = strings.TrimSpace(substituteNick(obj, input))
	if input == "" {
		return nil
	}

	// Single-character prefixes
	switch input[0] {
	case '"':
		input = "say " + input[1:]
	case ':':
		input = "pose " + input[1:]
	case ';':
		input = "pose/nospace " + input[1:]
	}

	word, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)
	parts := strings.Split(word, "/")
	name := strings.ToLower(parts[0])

	def, ok := g.Commands.Match(name)
	if !ok {
		g.Msg(caller, `Huh?  (Type "help" for help.)`)
		return nil
	}

	cmd := &Command{
		Def:       def,
		Caller:    caller,
		CmdString: name,
		Args:      args,
		Switches:  parts[1:],
		CmdSet:    g.Commands,
		Obj:       caller,
		Game:      g,
	}
	if sessions := g.Sessions.ForCharacter(caller); len(sessions) > 0 {
		cmd.Session = sessions[0]
	}

	if err := cmd.Run(ctx); err != nil {
		err = withStack(err)
		log.Printf("ERROR: command %q by %s: %v", raw, obj.Name(), err)
		g.Bus.EmitToPlayer(caller, events.Event{
			Type:   events.EvTraceback,
			Source: caller,
			Room:   obj.Location,
			Text:   FormatTraceback(err),
		})
		return err
	}
	return nil
}

// substituteNick replaces the first word of input with the caller's
// input-line nick for it, if any.
func substituteNick(obj *gamedb.Object, input string) string {
	word, rest, found := strings.Cut(input, " ")
	real, ok := obj.Nick(gamedb.NickInputLine, word)
	if !ok {
		return input
	}
	if found {
		return real + " " + rest
	}
	return real
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func withStack(err error) error {
	if _, ok := err.(stackTracer); !ok {
		return errors.WithStack(err)
	}
	return err
}

// StackTrace renders the stack recorded in err, if any.
func StackTrace(err error) string {
	buf := &bytes.Buffer{}
	if st, ok := err.(stackTracer); ok {
		for _, f := range st.StackTrace() {
			fmt.Fprintf(buf, "%+v\n", f)
		}
	}
	return buf.String()
}

// FormatTraceback renders err the way internal errors are shown to players.
func FormatTraceback(err error) string {
	return events.TracebackMarker + "\n" + StackTrace(err) + err.Error()
}
