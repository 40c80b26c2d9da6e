package gamedb

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DBRef is the fundamental object reference type.
type DBRef int

const (
	Nothing   DBRef = -1
	Ambiguous DBRef = -2
)

// String renders a reference the way players see it: #12.
func (r DBRef) String() string {
	return fmt.Sprintf("#%d", int(r))
}

// ObjectType represents the type of an in-world object.
type ObjectType int

const (
	TypeRoom      ObjectType = 0
	TypeThing     ObjectType = 1
	TypeExit      ObjectType = 2
	TypeCharacter ObjectType = 3
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypeExit:
		return "EXIT"
	case TypeCharacter:
		return "CHARACTER"
	default:
		return "UNKNOWN"
	}
}

// ParseObjectType maps a case-insensitive type name (or its plural) to an
// ObjectType.
func ParseObjectType(s string) (ObjectType, bool) {
	switch strings.TrimSuffix(strings.ToLower(s), "s") {
	case "room":
		return TypeRoom, true
	case "thing", "object":
		return TypeThing, true
	case "exit":
		return TypeExit, true
	case "character", "char", "player":
		return TypeCharacter, true
	}
	return 0, false
}

// Nick types. Input-line nicks rewrite the first word of a command before it
// is dispatched; the others are lookups used by object and player matching.
const (
	NickInputLine = "inputline"
	NickObject    = "object"
	NickPlayer    = "player"
	NickChannel   = "channel"
)

// Object represents an in-world database object.
//
// Rooms chain their contents through Contents/Next and their exits through
// Exits/Next. An exit's Location is the room it sits in and Destination is
// where it leads.
type Object struct {
	DBRef       DBRef
	Key         string
	Aliases     []string
	Type        ObjectType
	Location    DBRef
	Home        DBRef
	Destination DBRef
	Owner       DBRef
	Account     int64 // owning Player.ID for characters, 0 otherwise
	Description string
	Contents    DBRef
	Exits       DBRef
	Next        DBRef
	Nicks       map[string]map[string]string
	Created     time.Time
}

// NewObject returns an object with every reference field set to Nothing.
func NewObject(ref DBRef, key string, typ ObjectType) *Object {
	return &Object{
		DBRef:       ref,
		Key:         key,
		Type:        typ,
		Location:    Nothing,
		Home:        Nothing,
		Destination: Nothing,
		Owner:       Nothing,
		Contents:    Nothing,
		Exits:       Nothing,
		Next:        Nothing,
		Created:     time.Now(),
	}
}

// Name returns the display name with the reference appended, as staff see it.
func (o *Object) Name() string {
	return fmt.Sprintf("%s(%s)", o.Key, o.DBRef)
}

// Matches reports whether s names this object by key or alias, ignoring case.
func (o *Object) Matches(s string) bool {
	if strings.EqualFold(o.Key, s) {
		return true
	}
	for _, a := range o.Aliases {
		if strings.EqualFold(a, s) {
			return true
		}
	}
	return false
}

// SetNick registers nick as shorthand for real under the given nick type.
func (o *Object) SetNick(kind, nick, real string) {
	if o.Nicks == nil {
		o.Nicks = make(map[string]map[string]string)
	}
	if o.Nicks[kind] == nil {
		o.Nicks[kind] = make(map[string]string)
	}
	o.Nicks[kind][strings.ToLower(nick)] = real
}

// Nick looks up a nick of the given type.
func (o *Object) Nick(kind, nick string) (string, bool) {
	real, ok := o.Nicks[kind][strings.ToLower(nick)]
	return real, ok
}

// DeleteNick removes a nick, reporting whether it existed.
func (o *Object) DeleteNick(kind, nick string) bool {
	m := o.Nicks[kind]
	key := strings.ToLower(nick)
	if _, ok := m[key]; !ok {
		return false
	}
	delete(m, key)
	return true
}

// NickEntry is one row of a nick listing.
type NickEntry struct {
	Kind string
	Nick string
	Real string
}

// NickList returns all nicks sorted by type then nick.
func (o *Object) NickList() []NickEntry {
	var out []NickEntry
	for kind, m := range o.Nicks {
		for nick, real := range m {
			out = append(out, NickEntry{Kind: kind, Nick: nick, Real: real})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Nick < out[j].Nick
	})
	return out
}

// Player is an account. Its in-world presence is the Character object.
type Player struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password"`
	Superuser    bool   `db:"is_superuser"`
	Character    DBRef  `db:"char_ref"`
	CreatedAt    int64  `db:"created_at"`
	LastLogin    int64  `db:"last_login"`
}

// Tag is a key/category marker that can be attached to many players.
type Tag struct {
	ID       int64  `db:"id"`
	Key      string `db:"db_key"`
	Category string `db:"db_category"`
	Data     string `db:"db_data"`
}

// LiteAttribute is a small key/category/data record attached to players.
type LiteAttribute struct {
	ID       int64  `db:"id"`
	Key      string `db:"db_key"`
	Category string `db:"db_category"`
	Data     string `db:"db_data"`
}
