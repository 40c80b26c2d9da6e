package server

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/shellwords"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/scripts"
	"github.com/dustin/go-humanize"
	"github.com/gertd/go-pluralize"
	"github.com/rodaine/table"
)

var plural = pluralize.NewClient()

func systemCommands() []*Definition {
	return []*Definition{
		{Key: "@py", Aliases: []string{"!"}, Category: "System", Superuser: true, Handler: cmdPy,
			Help: "@py <go code>\n\nEvaluates Go code in the running server. The package \"mush\" " +
				"exposes Me, Here, Msg and Find.\n\nExample: @py 1+2"},
		{Key: "@scripts", Aliases: []string{"@script", "@listscripts"}, Category: "System", Superuser: true, Handler: cmdScripts,
			Help: "@scripts[/stop] [<key>|#<dbref>|<id>]\n\nLists running scripts, optionally only " +
				"those with a key or on an object. /stop stops the matching scripts."},
		{Key: "@objects", Aliases: []string{"@listobjects", "@db"}, Category: "System", Superuser: true, Handler: cmdObjects,
			Help: "@objects [<count>] [<type>...]\n\nShows object totals and the newest objects."},
		{Key: "@service", Aliases: []string{"@services"}, Category: "System", Superuser: true, Handler: cmdService,
			Help: "@service[/start|/stop] [<service>]\n\nLists the server's services or starts and stops one."},
		{Key: "@version", Category: "System", Handler: cmdVersion,
			Help: "@version\n\nShows the server version."},
		{Key: "@time", Aliases: []string{"@uptime"}, Category: "System", Handler: cmdTime,
			Help: "@time\n\nShows the server uptime and clock."},
		{Key: "@list", Category: "System", Superuser: true, Handler: cmdList,
			Help: "@list\n\nShows process resource usage."},
		{Key: "@ps", Category: "System", Superuser: true, Handler: cmdPs,
			Help: "@ps\n\nLists non-timed and timed scripts."},
		{Key: "@stats", Aliases: []string{"@dbstats"}, Category: "System", Superuser: true, Handler: cmdStats,
			Help: "@stats\n\nShows database statistics."},
	}
}

func cmdPy(ctx context.Context, c *Command) error {
	if c.Args == "" {
		c.Msg("Usage: @py <go code>")
		return nil
	}
	c.Msg(">>> " + c.Args)
	res, err := c.Game.Eval.Eval(ctx, c.Caller, c.Args)
	if err != nil {
		c.Msg("<<< error: " + err.Error())
		return nil
	}
	c.Msg("<<< " + res)
	return nil
}

// splitArgs splits command arguments the way a shell would. Bad quoting is
// reported to the caller and yields ok == false.
func splitArgs(c *Command) ([]string, bool) {
	parts, err := shellwords.SplitPosix(c.Args)
	if err != nil {
		c.Msgf("Could not parse arguments: %v", err)
		return nil, false
	}
	return parts, true
}

func cmdScripts(ctx context.Context, c *Command) error {
	args, ok := splitArgs(c)
	if !ok {
		return nil
	}
	h := c.Game.Scripts
	var found []*scripts.Script
	if len(args) == 0 {
		found = h.All()
	} else {
		for _, arg := range args {
			found = append(found, findScripts(h, arg)...)
		}
	}

	if c.HasSwitch("stop") {
		if len(args) == 0 {
			c.Msg("Usage: @scripts/stop <key>|#<dbref>|<id>")
			return nil
		}
		if len(found) == 0 {
			c.Msg("No scripts matched.")
			return nil
		}
		for _, s := range found {
			if h.Stop(s.ID) {
				c.Msgf("Stopped script %d (%s).", s.ID, s.Key)
			}
		}
		return nil
	}

	if len(found) == 0 {
		if len(args) == 0 {
			c.Msg("No scripts are running.")
		} else {
			c.Msgf("No scripts found matching '%s'.", strings.Join(args, " "))
		}
		return nil
	}
	c.Msg(formatScripts(c.Game, found))
	return nil
}

func findScripts(h *scripts.Handler, arg string) []*scripts.Script {
	if strings.HasPrefix(arg, "#") {
		n, err := strconv.Atoi(arg[1:])
		if err != nil {
			return nil
		}
		return h.Find("", gamedb.DBRef(n))
	}
	if id, err := strconv.Atoi(arg); err == nil {
		if s, ok := h.Get(id); ok {
			return []*scripts.Script{s}
		}
		return nil
	}
	return h.Find(arg, gamedb.Nothing)
}

func formatScripts(g *Game, list []*scripts.Script) string {
	var b strings.Builder
	tbl := table.New("id", "obj", "key", "interval", "next", "repeats", "persistent", "desc").WithWriter(&b)
	for _, s := range list {
		obj := "<Global>"
		if s.Obj != gamedb.Nothing {
			obj = g.ObjName(s.Obj)
		}
		interval, next := "--", "--"
		if s.Timed() {
			interval = s.Interval.String()
			next = time.Until(s.NextRun).Round(time.Second).String()
		}
		repeats := "--"
		if left := s.RemainingRepeats(); left >= 0 {
			repeats = strconv.Itoa(left)
		}
		persistent := "*"
		if !s.Persistent {
			persistent = "-"
		}
		tbl.AddRow(s.ID, obj, s.Key, interval, next, repeats, persistent, s.Desc)
	}
	tbl.Print()
	return strings.TrimRight(b.String(), "\n")
}

func cmdObjects(ctx context.Context, c *Command) error {
	args, ok := splitArgs(c)
	if !ok {
		return nil
	}
	count := 10
	var types []gamedb.ObjectType
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			count = n
			continue
		}
		typ, ok := gamedb.ParseObjectType(arg)
		if !ok {
			c.Msgf("Unknown object type '%s'. Use room, thing, exit or character.", arg)
			return nil
		}
		types = append(types, typ)
	}

	db := c.Game.DB
	counts := db.CountByType()
	var b strings.Builder
	fmt.Fprintf(&b, "{wDatabase totals:{n %s\n", plural.Pluralize("object", db.Len(), true))
	totals := table.New("type", "count", "%").WithWriter(&b)
	for _, typ := range []gamedb.ObjectType{gamedb.TypeCharacter, gamedb.TypeRoom, gamedb.TypeExit, gamedb.TypeThing} {
		pct := 0.0
		if db.Len() > 0 {
			pct = 100 * float64(counts[typ]) / float64(db.Len())
		}
		totals.AddRow(strings.ToLower(typ.String()), counts[typ], fmt.Sprintf("%.1f", pct))
	}
	totals.Print()

	all := db.All()
	var latest []*gamedb.Object
	for i := len(all) - 1; i >= 0 && len(latest) < count; i-- {
		if len(types) == 0 || slices.Contains(types, all[i].Type) {
			latest = append(latest, all[i])
		}
	}
	fmt.Fprintf(&b, "\n{wLatest %s:{n\n", plural.Pluralize("object", len(latest), true))
	recent := table.New("dbref", "created", "type", "key").WithWriter(&b)
	for _, obj := range latest {
		recent.AddRow(obj.DBRef, humanize.Time(obj.Created), strings.ToLower(obj.Type.String()), obj.Key)
	}
	recent.Print()
	c.Msg(strings.TrimRight(b.String(), "\n"))
	return nil
}

func cmdService(ctx context.Context, c *Command) error {
	svcs := c.Game.Services
	start, stop := c.HasSwitch("start"), c.HasSwitch("stop")
	if !start && !stop {
		var b strings.Builder
		tbl := table.New("service", "status").WithWriter(&b)
		for _, name := range svcs.Names() {
			status := "stopped"
			if svcs.Running(name) {
				status = "running"
			}
			tbl.AddRow(name, status)
		}
		tbl.Print()
		c.Msg(strings.TrimRight("{wActive services:{n\n"+b.String(), "\n"))
		return nil
	}

	name := strings.TrimSpace(c.Args)
	if name == "" {
		c.Msg("Usage: @service/start|stop <service>")
		return nil
	}
	if !svcs.Has(name) {
		c.Msgf("No service named '%s'. Known: %s.", name, strings.Join(svcs.Names(), ", "))
		return nil
	}
	var err error
	if stop {
		if svcs.Essential(name) {
			c.Msgf("Service '%s' cannot be stopped from inside the game.", name)
			return nil
		}
		err = svcs.Stop(ctx, name)
	} else {
		err = svcs.Start(ctx, name)
	}
	if err != nil {
		c.Msgf("Service '%s': %v", name, err)
		return nil
	}
	if stop {
		c.Msgf("Stopped service '%s'.", name)
	} else {
		c.Msgf("Started service '%s'.", name)
	}
	return nil
}

func cmdVersion(ctx context.Context, c *Command) error {
	c.Msgf("{w%s{n\nGo %s (%s/%s)", VersionString(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}

func cmdTime(ctx context.Context, c *Command) error {
	g := c.Game
	now := time.Now()
	var b strings.Builder
	tbl := table.New("clock", "value").WithWriter(&b)
	tbl.AddRow("Server uptime", time.Since(g.StartTime).Round(time.Second))
	tbl.AddRow("Server started", fmt.Sprintf("%s (%s)", g.StartTime.Format(time.RFC1123), humanize.Time(g.StartTime)))
	tbl.AddRow("Server time", now.Format(time.RFC1123))
	if c.Session != nil {
		tbl.AddRow("Your session", "connected "+humanize.Time(c.Session.ConnTime))
	}
	tbl.Print()
	c.Msg(strings.TrimRight(b.String(), "\n"))
	return nil
}

func cmdList(ctx context.Context, c *Command) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	var b strings.Builder
	tbl := table.New("resource", "value").WithWriter(&b)
	tbl.AddRow("process id", os.Getpid())
	tbl.AddRow("cpus", runtime.NumCPU())
	tbl.AddRow("goroutines", runtime.NumGoroutine())
	tbl.AddRow("heap in use", humanize.Bytes(mem.HeapInuse))
	tbl.AddRow("heap objects", humanize.Comma(int64(mem.HeapObjects)))
	tbl.AddRow("total allocated", humanize.Bytes(mem.TotalAlloc))
	tbl.AddRow("system memory", humanize.Bytes(mem.Sys))
	tbl.AddRow("gc runs", mem.NumGC)
	tbl.AddRow("sessions", c.Game.Sessions.Count())
	tbl.AddRow("objects", humanize.Comma(int64(c.Game.DB.Len())))
	tbl.AddRow("scripts", c.Game.Scripts.Count())
	tbl.Print()
	c.Msg(strings.TrimRight("{wServer resources:{n\n"+b.String(), "\n"))
	return nil
}

func cmdPs(ctx context.Context, c *Command) error {
	h := c.Game.Scripts
	nontimed, timed := h.NonTimed(), h.Timed()
	var b strings.Builder
	b.WriteString("\n{wNon-timed scripts:{n\n")
	if len(nontimed) > 0 {
		b.WriteString(formatScripts(c.Game, nontimed))
	} else {
		b.WriteString("  none")
	}
	b.WriteString("\n{wTimed scripts:{n\n")
	if len(timed) > 0 {
		b.WriteString(formatScripts(c.Game, timed))
	} else {
		b.WriteString("  none")
	}
	fmt.Fprintf(&b, "\n%s running.", plural.Pluralize("script", h.Count(), true))
	c.Msg(b.String())
	return nil
}

func cmdStats(ctx context.Context, c *Command) error {
	db := c.Game.DB
	counts := db.CountByType()
	players, err := c.Game.Accounts.CountPlayers(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The database holds %s: %s, %s, %s and %s.\n",
		plural.Pluralize("object", db.Len(), true),
		plural.Pluralize("room", counts[gamedb.TypeRoom], true),
		plural.Pluralize("exit", counts[gamedb.TypeExit], true),
		plural.Pluralize("thing", counts[gamedb.TypeThing], true),
		plural.Pluralize("character", counts[gamedb.TypeCharacter], true))
	fmt.Fprintf(&b, "%s on record, %s connected.",
		plural.Pluralize("player account", players, true),
		humanize.Comma(int64(len(c.Game.Sessions.LoggedIn()))))
	fmt.Fprintf(&b, "\nNext free dbref: %s", db.NextRef())
	c.Msg(b.String())
	return nil
}
