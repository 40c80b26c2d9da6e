package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/crystal-mush/mushkit/pkg/create"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
)

// ErrBadLogin is returned for an unknown player or a wrong password.
var ErrBadLogin = errors.New("Either that player does not exist, or has a different password.")

// ParseConnect parses a login-screen command into (command, user, password).
// Handles "connect name password", "create name password" and quoted names.
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}
	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	if rest[0] == '"' {
		if end := strings.Index(rest[1:], "\""); end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// Connect authenticates name/password and logs s in as that player.
func (g *Game) Connect(ctx context.Context, s *session.Session, name, password string) (*gamedb.Player, error) {
	player, err := g.Accounts.Authenticate(ctx, name, password)
	if errors.Is(err, sqlstore.ErrNotFound) {
		return nil, ErrBadLogin
	}
	if err != nil {
		return nil, err
	}
	if err := g.LoginPlayer(ctx, s, player); err != nil {
		return nil, err
	}
	return player, nil
}

// CreateAccount registers a new player with a character in the starting
// room and logs s in as it.
func (g *Game) CreateAccount(ctx context.Context, s *session.Session, name, password string) (*gamedb.Player, error) {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return nil, errors.New("That name is not allowed.")
	}
	if len(password) < 3 || strings.IndexFunc(password, unicode.IsSpace) >= 0 {
		return nil, errors.New("Passwords must be at least three characters long and contain no spaces.")
	}
	g.world.Lock()
	defer g.world.Unlock()

	player, _, err := g.Factory.CreatePlayer(ctx, create.PlayerSpec{
		Name:     name,
		Password: password,
		Location: g.StartingRoom(),
	})
	if errors.Is(err, sqlstore.ErrNameTaken) {
		return nil, errors.New("That name is already taken.")
	}
	if err != nil {
		return nil, err
	}
	if err := g.loginPlayer(s, player); err != nil {
		return nil, err
	}
	return player, nil
}

// StartingRoom returns where new characters are placed, or 0 if the
// configured room does not exist.
func (g *Game) StartingRoom() gamedb.DBRef {
	start := gamedb.DBRef(g.Conf.StartingRoom)
	if _, ok := g.DB.Get(start); !ok {
		return 0
	}
	return start
}

// LoginPlayer binds an authenticated player to s, announces the arrival
// and shows the player where they are.
func (g *Game) LoginPlayer(ctx context.Context, s *session.Session, player *gamedb.Player) error {
	g.world.Lock()
	defer g.world.Unlock()
	return g.loginPlayer(s, player)
}

func (g *Game) loginPlayer(s *session.Session, player *gamedb.Player) error {
	char, ok := g.DB.Get(player.Character)
	if !ok {
		return fmt.Errorf("login: %s has no character", player.Name)
	}
	g.Sessions.Login(s, player)
	log.Printf("[%d] Player %s connected as %s from %s", s.ID, player.Name, char.Name(), s.Addr)

	s.Msgf("Welcome back, %s!", char.Key)
	if motd := g.Texts.Motd(); motd != "" {
		s.Msg(motd)
	}
	if len(g.Sessions.ForCharacter(char.DBRef)) == 1 {
		g.Announce(char.DBRef, events.EvConnect, fmt.Sprintf("%s has connected.", char.Key))
	}
	g.ShowRoom(char.DBRef, char.Location)
	return nil
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
                     _     _    _ _
 _ __ ___  _   _ ___| |__ | | _(_) |_
| '_ ` + "`" + ` _ \| | | / __| '_ \| |/ / | __|
| | | | | | |_| \__ \ | | |   <| | |_
|_| |_| |_|\__,_|___/_| |_|_|\_\_|\__|

"connect <name> <password>" to connect to your existing character.
"create <name> <password>" to create a new character.
"WHO" to see who is connected.
"QUIT" to disconnect.

`
