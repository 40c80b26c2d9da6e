package server

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/crystal-mush/mushkit/pkg/crypt"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/rodaine/table"
)

// DefaultCmdSet returns the command set every character starts with.
func DefaultCmdSet() *CmdSet {
	cs := NewCmdSet()
	for _, def := range generalCommands() {
		cs.Add(def)
	}
	for _, def := range systemCommands() {
		cs.Add(def)
	}
	return cs
}

func generalCommands() []*Definition {
	return []*Definition{
		{Key: "look", Aliases: []string{"l", "ls"}, Category: "General", Handler: cmdLook,
			Help: "look [<object>]\n\nDescribes your location or an object near you."},
		{Key: "home", Category: "General", Handler: cmdHome,
			Help: "home\n\nTakes you back to your home."},
		{Key: "inventory", Aliases: []string{"inv", "i"}, Category: "General", Handler: cmdInventory,
			Help: "inventory\n\nLists what you are carrying."},
		{Key: "say", Category: "Communication", Handler: cmdSay,
			Help: "say <message>\n\nSpeaks to everyone in your location. \"<message> does the same."},
		{Key: "pose", Aliases: []string{"emote"}, Category: "Communication", Handler: cmdPose,
			Help: "pose <action>\n\nShows everyone in your location what you do. :<action> does the same."},
		{Key: "who", Aliases: []string{"doing"}, Category: "General", Handler: cmdWho,
			Help: "who\n\nLists the players who are connected."},
		{Key: "help", Category: "General", Handler: cmdHelp,
			Help: "help [<command>]\n\nLists commands, or shows the help for one."},
		{Key: "quit", Category: "General", Handler: cmdQuit,
			Help: "quit\n\nDisconnects you."},
		{Key: "nick", Aliases: []string{"nickname", "nicks", "alias"}, Category: "General", Handler: cmdNick,
			Help: "nick[/switches] <nick> = [<string>]\n\n" +
				"Switches:\n  object  - nick an object name\n  player  - nick a player name\n" +
				"  delete  - remove a nick\n\n" +
				"Without switches the nick replaces the first word of anything you type.\n" +
				"With no arguments your nicks are listed."},
		{Key: "@password", Category: "General", Handler: cmdPassword,
			Help: "@password <old password> = <new password>\n\nChanges your account password."},
	}
}

func cmdLook(ctx context.Context, c *Command) error {
	me, ok := c.CallerObj()
	if !ok {
		return fmt.Errorf("look: caller %s is gone", c.Caller)
	}
	if c.Args == "" {
		c.Game.ShowRoom(c.Caller, me.Location)
		return nil
	}
	target := c.Game.DB.Match(c.Caller, c.Args)
	switch target {
	case gamedb.Nothing:
		c.Msg("I don't see that here.")
		return nil
	case gamedb.Ambiguous:
		c.Msg("I don't know which one you mean!")
		return nil
	}
	obj, ok := c.Game.DB.Get(target)
	if !ok {
		c.Msg("I don't see that here.")
		return nil
	}
	c.Game.ShowObject(c.Caller, obj)
	return nil
}

func cmdHome(ctx context.Context, c *Command) error {
	me, ok := c.CallerObj()
	if !ok {
		return fmt.Errorf("home: caller %s is gone", c.Caller)
	}
	if me.Home == gamedb.Nothing {
		c.Msg("You have no home!")
		return nil
	}
	if me.Location == me.Home {
		c.Msg("You are already home!")
		return nil
	}
	if _, ok := c.Game.DB.Get(me.Home); !ok {
		c.Msg("Your home no longer exists!")
		return nil
	}
	c.Msg("There's no place like home...")
	return c.Game.MoveObject(c.Caller, me.Home)
}

func cmdInventory(ctx context.Context, c *Command) error {
	carried := c.Game.DB.Contents(c.Caller)
	if len(carried) == 0 {
		c.Msg("You aren't carrying anything.")
		return nil
	}
	var b strings.Builder
	b.WriteString("You are carrying:")
	for _, obj := range carried {
		b.WriteString("\n  " + obj.Key)
	}
	c.Msg(b.String())
	return nil
}

func cmdSay(ctx context.Context, c *Command) error {
	if c.Args == "" {
		c.Msg("Say what?")
		return nil
	}
	me, _ := c.CallerObj()
	c.Emit(events.Event{Type: events.EvSay, Source: c.Caller, Room: me.Location,
		Text: fmt.Sprintf("You say, \"%s\"", c.Args)})
	c.Game.Announce(c.Caller, events.EvSay, fmt.Sprintf("%s says, \"%s\"", me.Key, c.Args))
	return nil
}

func cmdPose(ctx context.Context, c *Command) error {
	if c.Args == "" {
		c.Msg("Pose what?")
		return nil
	}
	me, _ := c.CallerObj()
	sep := " "
	if c.HasSwitch("nospace") {
		sep = ""
	}
	text := me.Key + sep + c.Args
	c.Emit(events.Event{Type: events.EvPose, Source: c.Caller, Room: me.Location, Text: text})
	c.Game.Announce(c.Caller, events.EvPose, text)
	return nil
}

func cmdWho(ctx context.Context, c *Command) error {
	c.Game.ShowWho(c.Caller, c.Game.IsSuperuser(ctx, c.Caller))
	return nil
}

// ShowWho sends the list of connected players to char. Staff also see
// where each session comes from.
func (g *Game) ShowWho(char gamedb.DBRef, staff bool) {
	text, names := g.who(staff)
	g.Bus.EmitToPlayer(char, events.Event{
		Type: events.EvWho,
		Text: text,
		Data: map[string]any{"players": names},
	})
}

// WhoText renders the public WHO list, as shown on the login screen.
func (g *Game) WhoText() string {
	text, _ := g.who(false)
	return text
}

func (g *Game) who(staff bool) (string, []string) {
	var b strings.Builder
	headers := []any{"Player Name", "On For", "Idle"}
	if staff {
		headers = append(headers, "Room", "Cmds", "Host")
	}
	tbl := table.New(headers...).WithWriter(&b)
	var names []string
	online := g.Sessions.LoggedIn()
	for _, s := range online {
		name := g.ObjName(s.Character)
		names = append(names, name)
		row := []any{name, session.FormatConnTime(s.OnlineTime()), session.FormatIdleTime(s.IdleTime())}
		if staff {
			loc := gamedb.Nothing
			if obj, ok := g.DB.Get(s.Character); ok {
				loc = obj.Location
			}
			row = append(row, loc.String(), s.CmdCount, s.Addr)
		}
		tbl.AddRow(row...)
	}
	tbl.Print()
	fmt.Fprintf(&b, "%s logged in.", plural.Pluralize("player", len(online), true))
	return b.String(), names
}

func cmdHelp(ctx context.Context, c *Command) error {
	if c.Args != "" {
		def, ok := c.CmdSet.Match(c.Args)
		if !ok || (def.Superuser && !c.Game.IsSuperuser(ctx, c.Caller)) {
			if text, found := c.Game.Texts.Help().Lookup(c.Args); found {
				c.Msg(text)
				return nil
			}
			c.Msgf("No help entry for '%s'.", c.Args)
			return nil
		}
		text := def.Help
		if text == "" {
			text = def.Key
		}
		if len(def.Aliases) > 0 {
			text += "\n\nAliases: " + strings.Join(def.Aliases, ", ")
		}
		c.Msg(text)
		return nil
	}

	super := c.Game.IsSuperuser(ctx, c.Caller)
	byCat := make(map[string][]string)
	var cats []string
	for _, def := range c.CmdSet.All() {
		if def.Superuser && !super {
			continue
		}
		if _, ok := byCat[def.Category]; !ok {
			cats = append(cats, def.Category)
		}
		byCat[def.Category] = append(byCat[def.Category], def.Key)
	}
	slices.Sort(cats)
	var b strings.Builder
	for i, cat := range cats {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "{w%s:{n\n  %s", cat, strings.Join(byCat[cat], ", "))
	}
	c.Msg(b.String())
	return nil
}

func cmdQuit(ctx context.Context, c *Command) error {
	c.Msg("Goodbye!")
	if c.Session != nil {
		c.Game.disconnect(c.Session)
	}
	return nil
}

func cmdNick(ctx context.Context, c *Command) error {
	me, ok := c.CallerObj()
	if !ok {
		return fmt.Errorf("nick: caller %s is gone", c.Caller)
	}

	kind := gamedb.NickInputLine
	switch {
	case c.HasSwitch("object") || c.HasSwitch("obj"):
		kind = gamedb.NickObject
	case c.HasSwitch("player"):
		kind = gamedb.NickPlayer
	}

	if c.Args == "" || c.HasSwitch("list") {
		nicks := me.NickList()
		if len(nicks) == 0 {
			c.Msg("No nicks defined.")
			return nil
		}
		var b strings.Builder
		tbl := table.New("Type", "Nick", "Replacement").WithWriter(&b)
		for _, n := range nicks {
			tbl.AddRow(n.Kind, n.Nick, n.Real)
		}
		tbl.Print()
		c.Msg(strings.TrimRight("{wDefined nicks:{n\n"+b.String(), "\n"))
		return nil
	}

	nick, real, hasEq := strings.Cut(c.Args, "=")
	nick = strings.TrimSpace(nick)
	real = strings.TrimSpace(real)
	if nick == "" {
		c.Msg("Usage: nick <nick> = <string>")
		return nil
	}

	if c.HasSwitch("delete") || (hasEq && real == "") {
		if !me.DeleteNick(kind, nick) {
			c.Msgf("No %s nick '%s' to delete.", kind, nick)
			return nil
		}
		c.Game.PersistObject(me)
		c.Msgf("Nick '%s' removed.", nick)
		return nil
	}
	if !hasEq {
		if val, ok := me.Nick(kind, nick); ok {
			c.Msgf("Nick '%s' = '%s'.", nick, val)
		} else {
			c.Msgf("No %s nick '%s'.", kind, nick)
		}
		return nil
	}

	old, existed := me.Nick(kind, nick)
	me.SetNick(kind, nick, real)
	c.Game.PersistObject(me)
	if existed {
		c.Msgf("Nick '%s' changed from '%s' to '%s'.", nick, old, real)
	} else {
		c.Msgf("Nick set: '%s' = '%s'.", nick, real)
	}
	return nil
}

func cmdPassword(ctx context.Context, c *Command) error {
	oldpass, newpass, ok := strings.Cut(c.Args, "=")
	oldpass = strings.TrimSpace(oldpass)
	newpass = strings.TrimSpace(newpass)
	if !ok || oldpass == "" || newpass == "" {
		c.Msg("Usage: @password <oldpass> = <newpass>")
		return nil
	}
	player, err := c.Game.PlayerFor(ctx, c.Caller)
	if err != nil {
		c.Msg("You have no account to change the password of.")
		return nil
	}
	if !crypt.CheckPassword(oldpass, player.PasswordHash) {
		c.Msg("The specified old password isn't correct.")
		return nil
	}
	if strings.IndexFunc(newpass, unicode.IsSpace) >= 0 {
		c.Msg("Passwords may not contain spaces.")
		return nil
	}
	if len(newpass) < 3 {
		c.Msg("Passwords must be at least three characters long.")
		return nil
	}
	if err := c.Game.Accounts.SetPassword(ctx, player.ID, newpass); err != nil {
		return err
	}
	c.Msg("Password changed.")
	return nil
}

// Disconnect logs a session out and closes it.
func (g *Game) Disconnect(s *session.Session) {
	g.world.Lock()
	defer g.world.Unlock()
	g.disconnect(s)
}

func (g *Game) disconnect(s *session.Session) {
	char := s.Character
	g.Sessions.Remove(s)
	if char != gamedb.Nothing && !g.Sessions.IsConnected(char) {
		g.Announce(char, events.EvDisconnect, fmt.Sprintf("%s has disconnected.", g.ObjName(char)))
	}
}

// idleTimeout returns how long a session may sit idle, or zero when idle
// disconnection is off.
func (g *Game) idleTimeout() time.Duration {
	return time.Duration(g.Conf.IdleTimeout) * time.Second
}
