package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/mushkit/pkg/boltstore"
	"github.com/crystal-mush/mushkit/pkg/create"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/scripts"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
)

// Game holds all the live state of a running world.
//
// Object fields are guarded by the world lock. Commands and scripts
// already hold it and must use the unlocked variants.
type Game struct {
	world sync.Mutex

	DB        *gamedb.Database
	Bus       *events.Bus
	Sessions  *session.Handler
	Scripts   *scripts.Handler
	Accounts  *sqlstore.Store
	Store     *boltstore.Store // nil for memory-only worlds
	Factory   *create.Factory
	Conf      *GameConf
	ConfPath  string
	Texts     *TextFiles
	Commands  *CmdSet
	Services  *Services
	Metrics   *Metrics // nil unless the web server registered one
	Eval      *Evaluator
	StartTime time.Time
}

// NewGame wires a game around an object database and an account store.
// store may be nil.
func NewGame(db *gamedb.Database, accounts *sqlstore.Store, store *boltstore.Store) *Game {
	bus := events.NewBus()
	g := &Game{
		DB:        db,
		Bus:       bus,
		Sessions:  session.NewHandler(bus),
		Scripts:   scripts.NewHandler(),
		Accounts:  accounts,
		Store:     store,
		Conf:      DefaultGameConf(),
		Texts:     &TextFiles{},
		Commands:  DefaultCmdSet(),
		StartTime: time.Now(),
	}
	g.Factory = &create.Factory{DB: db, Accounts: accounts}
	if store != nil {
		g.Factory.Store = store
		g.Scripts.SetPersister(store)
	}
	g.Scripts.SetLocker(&g.world)
	g.Eval = NewEvaluator(g, time.Duration(g.Conf.EvalTimeout)*time.Second)
	g.Services = NewServices()
	g.Services.Register(&scriptRunner{game: g})
	g.registerSystemScripts()
	return g
}

// ApplyGameConf installs a new configuration.
func (g *Game) ApplyGameConf(gc *GameConf) {
	g.Conf = gc
	g.Texts.Reload(gc.TextDir)
	g.Eval.timeout = time.Duration(gc.EvalTimeout) * time.Second
	g.scheduleAutosave()
}

// PersistObject writes an object through to the bolt store if one is open.
func (g *Game) PersistObject(obj *gamedb.Object) {
	g.PersistObjects(obj)
}

// PersistObjects writes several objects in one transaction.
func (g *Game) PersistObjects(objs ...*gamedb.Object) {
	if g.Store == nil || len(objs) == 0 {
		return
	}
	if err := g.Store.PutObjects(objs...); err != nil {
		log.Printf("ERROR: persist objects: %v", err)
	}
}

// Msg sends plain text to every session puppeting char.
func (g *Game) Msg(char gamedb.DBRef, text string) {
	g.Bus.EmitToPlayer(char, events.Text(char, text))
}

// ObjName returns the key of ref, or a placeholder if it does not exist.
func (g *Game) ObjName(ref gamedb.DBRef) string {
	if obj, ok := g.DB.Get(ref); ok {
		return obj.Key
	}
	return fmt.Sprintf("*NOTHING*(%s)", ref)
}

// PlayerFor returns the account owning a character.
func (g *Game) PlayerFor(ctx context.Context, char gamedb.DBRef) (*gamedb.Player, error) {
	obj, ok := g.DB.Get(char)
	if !ok || obj.Account == 0 {
		return nil, sqlstore.ErrNotFound
	}
	return g.Accounts.PlayerByID(ctx, obj.Account)
}

// IsSuperuser reports whether char belongs to a superuser account.
func (g *Game) IsSuperuser(ctx context.Context, char gamedb.DBRef) bool {
	p, err := g.PlayerFor(ctx, char)
	return err == nil && p.Superuser
}

// MoveObject moves ref into dest, announcing departure and arrival and
// showing the new room to the mover.
func (g *Game) MoveObject(ref, dest gamedb.DBRef) error {
	obj, ok := g.DB.Get(ref)
	if !ok {
		return fmt.Errorf("move: no object %s", ref)
	}
	from := obj.Location
	if err := g.DB.Move(ref, dest); err != nil {
		return err
	}
	if from != gamedb.Nothing {
		g.Bus.EmitToRoomExcept(g.DB, from, ref, events.Event{
			Type: events.EvMove, Source: ref, Text: fmt.Sprintf("%s has left.", obj.Key),
			Data: map[string]any{"direction": "leave", "object": int(ref)},
		})
	}
	g.Bus.EmitToRoomExcept(g.DB, dest, ref, events.Event{
		Type: events.EvMove, Source: ref, Text: fmt.Sprintf("%s has arrived.", obj.Key),
		Data: map[string]any{"direction": "arrive", "object": int(ref)},
	})

	dirty := []*gamedb.Object{obj}
	for _, r := range []gamedb.DBRef{from, dest} {
		if o, ok := g.DB.Get(r); ok {
			dirty = append(dirty, o)
		}
	}
	g.PersistObjects(dirty...)
	g.ShowRoom(ref, dest)
	return nil
}

// ShowRoom sends a room description to looker as a structured room event.
func (g *Game) ShowRoom(looker, room gamedb.DBRef) {
	obj, ok := g.DB.Get(room)
	if !ok {
		g.Msg(looker, "You are nowhere.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "{c%s{n", obj.Key)
	if obj.Description != "" {
		b.WriteString("\n" + obj.Description)
	}

	var exits, seen []string
	for _, e := range g.DB.Exits(room) {
		exits = append(exits, e.Key)
	}
	for _, c := range g.DB.Contents(room) {
		if c.DBRef != looker {
			seen = append(seen, c.Key)
		}
	}
	if len(exits) > 0 {
		fmt.Fprintf(&b, "\n{wExits:{n %s", strings.Join(exits, ", "))
	}
	if len(seen) > 0 {
		fmt.Fprintf(&b, "\n{wYou see:{n %s", strings.Join(seen, ", "))
	}

	g.Bus.EmitToPlayer(looker, events.Event{
		Type:   events.EvRoom,
		Source: room,
		Room:   room,
		Text:   b.String(),
		Data: map[string]any{
			"name":     obj.Key,
			"desc":     obj.Description,
			"exits":    exits,
			"contents": seen,
		},
	})
}

// ShowObject describes a single object to looker.
func (g *Game) ShowObject(looker gamedb.DBRef, obj *gamedb.Object) {
	if obj.Type == gamedb.TypeRoom {
		g.ShowRoom(looker, obj.DBRef)
		return
	}
	desc := obj.Description
	if desc == "" {
		desc = "You see nothing special."
	}
	text := fmt.Sprintf("{c%s{n\n%s", obj.Key, desc)
	if obj.Type == gamedb.TypeExit && obj.Destination != gamedb.Nothing {
		text += fmt.Sprintf("\nIt leads to %s.", g.ObjName(obj.Destination))
	}
	g.Msg(looker, text)
}

// Announce tells everyone in char's room that something happened, char
// excluded.
func (g *Game) Announce(char gamedb.DBRef, typ events.EventType, text string) {
	obj, ok := g.DB.Get(char)
	if !ok || obj.Location == gamedb.Nothing {
		return
	}
	g.Bus.EmitToRoomExcept(g.DB, obj.Location, char, events.Event{Type: typ, Source: char, Text: text})
}

// WithWorld runs fn holding the world lock.
func (g *Game) WithWorld(fn func()) {
	g.world.Lock()
	defer g.world.Unlock()
	fn()
}

// SaveAll flushes the whole database to the bolt store.
func (g *Game) SaveAll() error {
	g.world.Lock()
	defer g.world.Unlock()
	return g.saveAll()
}

func (g *Game) saveAll() error {
	if g.Store == nil {
		return nil
	}
	return g.Store.SaveAll()
}

// Seed prepares a fresh world: an empty database gets a starting room, and
// the default_home value is set from the config when it is missing.
func (g *Game) Seed(ctx context.Context) error {
	if g.DB.Len() == 0 {
		room, err := g.Factory.CreateObject(ctx, create.Spec{
			Type:        gamedb.TypeRoom,
			Key:         "Limbo",
			Description: "A formless grey place. Everything starts here.",
		})
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Printf("Created starting room %s", room.Name())
	}
	if _, ok, err := g.Accounts.GetConfig(ctx, create.DefaultHomeKey); err != nil {
		return err
	} else if ok {
		return nil
	}
	home := g.Conf.DefaultHome
	if home == 0 {
		home = g.Conf.StartingRoom
	}
	return g.Accounts.SetConfig(ctx, create.DefaultHomeKey, strconv.Itoa(home))
}
