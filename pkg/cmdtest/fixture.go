package cmdtest

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/crystal-mush/mushkit/pkg/create"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
)

// Credentials of the fixture's superuser.
const (
	PlayerName     = "TestingPlayer"
	PlayerEmail    = "testplayer@test.com"
	PlayerPassword = "testpassword"
)

// Options are read from the environment.
type Options struct {
	// Verbose echoes every message and skips the probe runs.
	Verbose bool `env:"MUSHKIT_CMDTEST_VERBOSE"`
}

// Fixture is a small world with a logged-in superuser.
//
// room1 holds the player's character (Char1), char2, obj1, obj2 and exit1.
// room2 holds exit2. default_home is room2.
type Fixture struct {
	T       testing.TB
	Game    *server.Game
	Expect  *Expectations
	Session *session.Session
	Player  *gamedb.Player
	Verbose bool

	Room1, Room2 *gamedb.Object
	Char1, Char2 *gamedb.Object
	Obj1, Obj2   *gamedb.Object
	Exit1, Exit2 *gamedb.Object
}

// Setup builds a fresh fixture with Options read from the environment.
// Everything is torn down with the test.
func Setup(t testing.TB) *Fixture {
	t.Helper()
	var opts Options
	if err := env.Parse(&opts); err != nil {
		t.Fatalf("cmdtest options: %v", err)
	}
	return SetupWith(t, opts)
}

// SetupWith builds a fresh fixture with explicit options.
func SetupWith(t testing.TB, opts Options) *Fixture {
	t.Helper()
	accounts, err := sqlstore.Open(":memory:", time.Second)
	if err != nil {
		t.Fatalf("sqlstore.Open: %v", err)
	}
	t.Cleanup(func() { accounts.Close() })

	ctx := context.Background()
	g := server.NewGame(gamedb.NewDatabase(), accounts, nil)
	if err := accounts.SetConfig(ctx, create.DefaultHomeKey, "2"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	f := &Fixture{T: t, Game: g, Expect: &Expectations{}, Verbose: opts.Verbose}
	f.Room1 = f.create(create.Spec{Type: gamedb.TypeRoom, Key: "room1"})
	f.Room2 = f.create(create.Spec{Type: gamedb.TypeRoom, Key: "room2"})

	player, char, err := g.Factory.CreatePlayer(ctx, create.PlayerSpec{
		Name:      PlayerName,
		Email:     PlayerEmail,
		Password:  PlayerPassword,
		Superuser: true,
		Location:  f.Room1.DBRef,
	})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	f.Player, f.Char1 = player, char

	sink := NewFakeSession(t, f.Expect, f.Verbose)
	f.Session = session.New(g.Sessions.NextID(), "test", sink)
	f.Session.Connect("0,0,0,0")
	g.Sessions.Add(f.Session)
	g.Sessions.Login(f.Session, player)
	t.Cleanup(func() { g.Sessions.Remove(f.Session) })

	f.Char2 = f.create(create.Spec{Type: gamedb.TypeCharacter, Key: "char2", Location: f.Room1.DBRef})
	f.Obj1 = f.create(create.Spec{Type: gamedb.TypeThing, Key: "obj1", Location: f.Room1.DBRef})
	f.Obj2 = f.create(create.Spec{Type: gamedb.TypeThing, Key: "obj2", Location: f.Room1.DBRef})
	f.Exit1 = f.create(create.Spec{Type: gamedb.TypeExit, Key: "exit1", Location: f.Room1.DBRef, Destination: f.Room2.DBRef})
	f.Exit2 = f.create(create.Spec{Type: gamedb.TypeExit, Key: "exit2", Location: f.Room2.DBRef, Destination: f.Room1.DBRef})
	return f
}

func (f *Fixture) create(spec create.Spec) *gamedb.Object {
	f.T.Helper()
	obj, err := f.Game.Factory.CreateObject(context.Background(), spec)
	if err != nil {
		f.T.Fatalf("CreateObject(%s): %v", spec.Key, err)
	}
	return obj
}

// GetCommand builds an invocation of key by Char1 without going through
// the dispatcher. The command has no command set.
func (f *Fixture) GetCommand(key, args string) *server.Command {
	f.T.Helper()
	def, ok := f.Game.Commands.Get(key)
	if !ok {
		f.T.Fatalf("no command %q", key)
	}
	return &server.Command{
		Def:       def,
		Caller:    f.Char1.DBRef,
		CmdString: key,
		Args:      args,
		Obj:       f.Char1.DBRef,
		Game:      f.Game,
		Session:   f.Session,
	}
}

var whitespace = regexp.MustCompile(`\s`)

// Probes returns the mangled variants of raw that Execute runs first.
func Probes(raw string) []string {
	return []string{
		whitespace.ReplaceAllString(raw, ""),
		raw + "/åäö öäö;-:$£@*~^' 'test",
		raw + " " + raw,
	}
}

// Execute runs raw as Char1 and fails the test if any message is a
// traceback or if the messages do not match want, in order. Unless the
// fixture is verbose, the Probes of raw run first; their output is only
// checked for tracebacks. Execute returns the messages of the real run.
func (f *Fixture) Execute(raw string, want ...Expect) []events.Event {
	f.T.Helper()
	ctx := context.Background()

	if !f.Verbose {
		f.Expect.Clear()
		for _, probe := range Probes(raw) {
			f.Game.ExecuteCmd(ctx, f.Char1.DBRef, probe)
		}
		f.report("probe of " + raw)
		f.Expect.Messages()
	}

	f.Expect.Stage(want...)
	defer f.Expect.Clear()
	f.Game.ExecuteCmd(ctx, f.Char1.DBRef, raw)
	f.report(raw)
	return f.Expect.Messages()
}

// Run executes a prepared command directly.
func (f *Fixture) Run(cmd *server.Command, want ...Expect) []events.Event {
	f.T.Helper()
	f.Expect.Stage(want...)
	defer f.Expect.Clear()
	if err := cmd.Run(context.Background()); err != nil {
		f.T.Errorf("%s: %v", cmd.CmdString, err)
	}
	f.report(cmd.CmdString)
	return f.Expect.Messages()
}

func (f *Fixture) report(what string) {
	f.T.Helper()
	for _, msg := range f.Expect.Failures() {
		f.T.Errorf("%s: %s", what, msg)
	}
}
