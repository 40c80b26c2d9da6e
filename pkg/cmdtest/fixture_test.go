package cmdtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/crystal-mush/mushkit/pkg/create"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/google/go-cmp/cmp"
)

func TestSetupWorld(t *testing.T) {
	f := Setup(t)
	ctx := context.Background()

	if got := f.Game.Factory.DefaultHome(ctx); got != f.Room2.DBRef {
		t.Errorf("default home = %s, want room2 %s", got, f.Room2.DBRef)
	}
	if f.Char1.Location != f.Room1.DBRef {
		t.Errorf("character in %s, want room1", f.Char1.Location)
	}
	if !f.Player.Superuser || !f.Game.IsSuperuser(ctx, f.Char1.DBRef) {
		t.Error("fixture player is not a superuser")
	}
	if !f.Session.LoggedIn() {
		t.Error("fixture session is not logged in")
	}
	if f.Exit2.Location != f.Room2.DBRef {
		t.Errorf("exit2 in %s, want room2", f.Exit2.Location)
	}

	var contents []string
	for _, o := range f.Game.DB.Contents(f.Room1.DBRef) {
		contents = append(contents, o.Key)
	}
	for _, want := range []string{PlayerName, "char2", "obj1", "obj2"} {
		found := false
		for _, c := range contents {
			found = found || c == want
		}
		if !found {
			t.Errorf("room1 contents %v missing %s", contents, want)
		}
	}
	if v, ok, _ := f.Game.Accounts.GetConfig(ctx, create.DefaultHomeKey); !ok || v != "2" {
		t.Errorf("default_home = %q, %v", v, ok)
	}
}

func TestProbes(t *testing.T) {
	want := []string{
		"@passwordold=new",
		"@password old = new/åäö öäö;-:$£@*~^' 'test",
		"@password old = new @password old = new",
	}
	if diff := cmp.Diff(want, Probes("@password old = new")); diff != "" {
		t.Errorf("Probes (-want +got):\n%s", diff)
	}
}

func TestGetCommand(t *testing.T) {
	f := Setup(t)
	cmd := f.GetCommand("look", "here")
	if cmd.Caller != f.Char1.DBRef || cmd.Obj != f.Char1.DBRef {
		t.Errorf("caller/obj = %s/%s, want %s", cmd.Caller, cmd.Obj, f.Char1.DBRef)
	}
	if cmd.CmdString != "look" || cmd.Args != "here" || cmd.CmdSet != nil {
		t.Errorf("unexpected command %+v", cmd)
	}
	msgs := f.Run(cmd, Text("{croom1"))
	if len(msgs) == 0 {
		t.Fatal("look produced no output")
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	f := Setup(t)
	f.Execute("xyzzy", Text("Huh?"))
}

func TestExecuteMovesNothingOnLook(t *testing.T) {
	f := Setup(t)
	f.Execute("look")
	if obj, _ := f.Game.DB.Get(f.Char1.DBRef); obj.Location != f.Room1.DBRef {
		t.Errorf("look moved the character to %s", obj.Location)
	}
	if obj, _ := f.Game.DB.Get(f.Obj1.DBRef); obj.Type != gamedb.TypeThing {
		t.Errorf("obj1 type = %s", obj.Type)
	}
}

// recordingTB keeps failures and log lines instead of reporting them.
type recordingTB struct {
	testing.TB
	errors []string
	logs   []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingTB) Log(args ...any) {
	r.logs = append(r.logs, fmt.Sprint(args...))
}

func addCommand(f *Fixture, key string, h server.Handler) {
	f.Game.Commands.Add(&server.Definition{Key: key, Handler: h})
}

func TestExecuteFailsOnTraceback(t *testing.T) {
	rec := &recordingTB{TB: t}
	f := SetupWith(rec, Options{})
	addCommand(f, "boom", func(context.Context, *server.Command) error {
		return errors.New("kaboom")
	})

	f.Execute("boom")

	var probes, real int
	for _, e := range rec.errors {
		switch {
		case strings.HasPrefix(e, "probe of boom: "+events.TracebackMarker):
			probes++
		case strings.HasPrefix(e, "boom: "+events.TracebackMarker):
			real++
		default:
			t.Errorf("unexpected failure %q", e)
		}
		if !strings.Contains(e, "kaboom") {
			t.Errorf("failure %q does not carry the error", e)
		}
	}
	if probes != 3 || real != 1 {
		t.Errorf("got %d mangled-input and %d real failures, want 3 and 1", probes, real)
	}
}

func TestExecuteReportsMismatch(t *testing.T) {
	rec := &recordingTB{TB: t}
	f := SetupWith(rec, Options{})
	addCommand(f, "greet", func(_ context.Context, c *server.Command) error {
		c.Msg("hello")
		return nil
	})

	f.Execute("greet", Text("nope"))
	want := []string{"greet: Returned message ('hello') != desired message ('nope')"}
	if diff := cmp.Diff(want, rec.errors); diff != "" {
		t.Errorf("failures (-want +got):\n%s", diff)
	}

	rec.errors = nil
	msgs := f.Execute("greet", Text("hel"))
	if len(rec.errors) != 0 {
		t.Errorf("matching run failed: %v", rec.errors)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Errorf("messages = %v", msgs)
	}

	rec.errors = nil
	f.Execute("greet")
	if len(rec.errors) != 0 {
		t.Errorf("stale expectation reported: %v", rec.errors)
	}
}

func TestRunReportsHandlerError(t *testing.T) {
	rec := &recordingTB{TB: t}
	f := SetupWith(rec, Options{})
	addCommand(f, "boom", func(context.Context, *server.Command) error {
		return errors.New("kaboom")
	})

	f.Run(f.GetCommand("boom", ""))
	if len(rec.errors) != 1 || !strings.HasPrefix(rec.errors[0], "boom: ") || !strings.Contains(rec.errors[0], "kaboom") {
		t.Errorf("failures = %v", rec.errors)
	}
}

func TestVerboseSkipsMangledRunsAndEchoes(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		rec := &recordingTB{TB: t}
		f := SetupWith(rec, Options{Verbose: verbose})
		calls := 0
		addCommand(f, "count", func(_ context.Context, c *server.Command) error {
			calls++
			c.Msg("{rcounted{n")
			return nil
		})

		f.Execute("count", Text("{rcounted"))
		if len(rec.errors) != 0 {
			t.Errorf("verbose=%v: failures %v", verbose, rec.errors)
		}
		wantCalls, wantLogs := 4, []string(nil)
		if verbose {
			wantCalls, wantLogs = 1, []string{"counted"}
		}
		if calls != wantCalls {
			t.Errorf("verbose=%v: handler ran %d times, want %d", verbose, calls, wantCalls)
		}
		if diff := cmp.Diff(wantLogs, rec.logs); diff != "" {
			t.Errorf("verbose=%v: echoed (-want +got):\n%s", verbose, diff)
		}
	}
}
