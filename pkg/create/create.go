// Package create builds new rooms, things, exits, characters and player
// accounts, wiring them into the object graph and persisting them.
package create

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

// DefaultHomeKey is the configuration value naming the default home.
const DefaultHomeKey = "default_home"

// Persister writes objects through to durable storage.
type Persister interface {
	PutObjects(objs ...*gamedb.Object) error
	DeleteObject(ref gamedb.DBRef) error
}

// Accounts is the account and configuration store the factory needs.
type Accounts interface {
	CreatePlayer(ctx context.Context, name, email, password string, superuser bool) (*gamedb.Player, error)
	SetCharacter(ctx context.Context, id int64, ref gamedb.DBRef) error
	DeletePlayer(ctx context.Context, id int64) error
	GetConfig(ctx context.Context, key string) (string, bool, error)
}

// Spec describes an object to create. Zero references mean unset; the
// database never hands out #0.
type Spec struct {
	Type        gamedb.ObjectType
	Key         string
	Aliases     []string
	Location    gamedb.DBRef
	Home        gamedb.DBRef
	Destination gamedb.DBRef
	Owner       gamedb.DBRef
	Description string
}

// PlayerSpec describes an account and its character.
type PlayerSpec struct {
	Name      string
	Email     string
	Password  string
	Superuser bool
	Location  gamedb.DBRef
	Home      gamedb.DBRef
}

// Factory creates objects in DB. Store may be nil for memory-only worlds.
type Factory struct {
	DB       *gamedb.Database
	Store    Persister
	Accounts Accounts
}

// DefaultHome returns the object named by the default_home configuration
// value, or Nothing if it is unset or does not exist.
func (f *Factory) DefaultHome(ctx context.Context) gamedb.DBRef {
	if f.Accounts == nil {
		return gamedb.Nothing
	}
	v, ok, err := f.Accounts.GetConfig(ctx, DefaultHomeKey)
	if err != nil {
		log.Printf("create: read %s: %v", DefaultHomeKey, err)
		return gamedb.Nothing
	}
	if !ok {
		return gamedb.Nothing
	}
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(v), "#"))
	if err != nil {
		return gamedb.Nothing
	}
	if _, exists := f.DB.Get(gamedb.DBRef(n)); !exists {
		return gamedb.Nothing
	}
	return gamedb.DBRef(n)
}

// CreateObject allocates an object from spec, moves it into its location
// and persists it. Things and characters without an explicit home get the
// default home.
func (f *Factory) CreateObject(ctx context.Context, spec Spec) (*gamedb.Object, error) {
	key := strings.TrimSpace(spec.Key)
	if key == "" {
		return nil, fmt.Errorf("create: object needs a key")
	}
	for name, ref := range map[string]gamedb.DBRef{"location": spec.Location, "home": spec.Home, "destination": spec.Destination} {
		if ref == 0 {
			continue
		}
		if _, ok := f.DB.Get(ref); !ok {
			return nil, fmt.Errorf("create: %s: %s %s does not exist", key, name, ref)
		}
	}

	obj := f.DB.Allocate(key, spec.Type)
	obj.Aliases = spec.Aliases
	obj.Description = spec.Description
	obj.Owner = setOr(spec.Owner, gamedb.Nothing)
	obj.Destination = setOr(spec.Destination, gamedb.Nothing)
	obj.Home = setOr(spec.Home, gamedb.Nothing)
	if obj.Home == gamedb.Nothing && (spec.Type == gamedb.TypeThing || spec.Type == gamedb.TypeCharacter) {
		obj.Home = f.DefaultHome(ctx)
	}

	dirty := []*gamedb.Object{obj}
	if spec.Location != 0 {
		if err := f.DB.Move(obj.DBRef, spec.Location); err != nil {
			f.DB.Delete(obj.DBRef)
			return nil, fmt.Errorf("create: %w", err)
		}
		loc, _ := f.DB.Get(spec.Location)
		dirty = append(dirty, loc)
	}
	if err := f.persist(dirty...); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreatePlayer creates an account and its character, links the two and
// returns both.
func (f *Factory) CreatePlayer(ctx context.Context, spec PlayerSpec) (*gamedb.Player, *gamedb.Object, error) {
	if f.Accounts == nil {
		return nil, nil, fmt.Errorf("create: no account store")
	}
	player, err := f.Accounts.CreatePlayer(ctx, spec.Name, spec.Email, spec.Password, spec.Superuser)
	if err != nil {
		return nil, nil, err
	}
	char, err := f.CreateObject(ctx, Spec{
		Type:     gamedb.TypeCharacter,
		Key:      player.Name,
		Location: spec.Location,
		Home:     spec.Home,
	})
	if err != nil {
		return nil, nil, f.dropAccount(ctx, player, nil, err)
	}
	char.Owner = char.DBRef
	char.Account = player.ID
	if err := f.persist(char); err != nil {
		return nil, nil, f.dropAccount(ctx, player, char, err)
	}
	if err := f.Accounts.SetCharacter(ctx, player.ID, char.DBRef); err != nil {
		return nil, nil, f.dropAccount(ctx, player, char, err)
	}
	player.Character = char.DBRef
	log.Printf("create: player %s (id %d) with character %s", player.Name, player.ID, char.DBRef)
	return player, char, nil
}

// dropAccount undoes a half-created player after cause, removing the
// account and, when it exists, the character.
func (f *Factory) dropAccount(ctx context.Context, player *gamedb.Player, char *gamedb.Object, cause error) error {
	errs := []error{cause}
	if char != nil {
		errs = append(errs, f.Destroy(ctx, char.DBRef))
	}
	if err := f.Accounts.DeletePlayer(ctx, player.ID); err != nil {
		errs = append(errs, fmt.Errorf("create: drop account %s: %w", player.Name, err))
	}
	return errors.Join(errs...)
}

// Destroy removes an object. Anything inside it is moved to its home, or
// to the destroyed object's location when it has none.
func (f *Factory) Destroy(ctx context.Context, ref gamedb.DBRef) error {
	obj, ok := f.DB.Get(ref)
	if !ok {
		return fmt.Errorf("create: destroy %s: no such object", ref)
	}
	var dirty []*gamedb.Object
	for _, inside := range append(f.DB.Contents(ref), f.DB.Exits(ref)...) {
		dest := inside.Home
		if dest == gamedb.Nothing || dest == ref {
			dest = obj.Location
		}
		if dest == gamedb.Nothing {
			f.DB.Delete(inside.DBRef)
			if f.Store != nil {
				if err := f.Store.DeleteObject(inside.DBRef); err != nil {
					return fmt.Errorf("create: destroy %s: %w", inside.DBRef, err)
				}
			}
			continue
		}
		if err := f.DB.Move(inside.DBRef, dest); err != nil {
			return fmt.Errorf("create: destroy %s: %w", ref, err)
		}
		dirty = append(dirty, inside)
	}
	loc := obj.Location
	f.DB.Delete(ref)
	if l, ok := f.DB.Get(loc); ok {
		dirty = append(dirty, l)
	}
	if err := f.persist(dirty...); err != nil {
		return err
	}
	if f.Store != nil {
		return f.Store.DeleteObject(ref)
	}
	return nil
}

func (f *Factory) persist(objs ...*gamedb.Object) error {
	if f.Store == nil {
		return nil
	}
	if err := f.Store.PutObjects(objs...); err != nil {
		return fmt.Errorf("create: persist: %w", err)
	}
	return nil
}

func setOr(ref, fallback gamedb.DBRef) gamedb.DBRef {
	if ref == 0 {
		return fallback
	}
	return ref
}
