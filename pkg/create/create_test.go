package create

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/google/go-cmp/cmp"
)

type memStore struct {
	saved   map[gamedb.DBRef]int
	deleted []gamedb.DBRef
	fail    error
}

func (m *memStore) PutObjects(objs ...*gamedb.Object) error {
	if m.fail != nil {
		return m.fail
	}
	for _, o := range objs {
		m.saved[o.DBRef]++
	}
	return nil
}

func (m *memStore) DeleteObject(ref gamedb.DBRef) error {
	m.deleted = append(m.deleted, ref)
	return nil
}

func newTestFactory(t *testing.T) (*Factory, *memStore) {
	t.Helper()
	accounts, err := sqlstore.Open(":memory:", time.Second)
	if err != nil {
		t.Fatalf("sqlstore.Open: %v", err)
	}
	t.Cleanup(func() { accounts.Close() })
	store := &memStore{saved: make(map[gamedb.DBRef]int)}
	return &Factory{DB: gamedb.NewDatabase(), Store: store, Accounts: accounts}, store
}

func mustCreate(t *testing.T, f *Factory, spec Spec) *gamedb.Object {
	t.Helper()
	obj, err := f.CreateObject(context.Background(), spec)
	if err != nil {
		t.Fatalf("CreateObject(%s): %v", spec.Key, err)
	}
	return obj
}

func TestDefaultHome(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFactory(t)
	room1 := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room1"})
	room2 := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room2"})

	if got := f.DefaultHome(ctx); got != gamedb.Nothing {
		t.Errorf("DefaultHome with no config = %s", got)
	}
	if err := f.Accounts.(*sqlstore.Store).SetConfig(ctx, DefaultHomeKey, "2"); err != nil {
		t.Fatal(err)
	}
	if got := f.DefaultHome(ctx); got != room2.DBRef {
		t.Errorf("DefaultHome = %s, want %s", got, room2.DBRef)
	}

	thing := mustCreate(t, f, Spec{Type: gamedb.TypeThing, Key: "obj1", Location: room1.DBRef})
	if thing.Home != room2.DBRef {
		t.Errorf("thing home = %s, want default %s", thing.Home, room2.DBRef)
	}
	exit := mustCreate(t, f, Spec{Type: gamedb.TypeExit, Key: "exit1", Location: room1.DBRef, Destination: room2.DBRef})
	if exit.Home != gamedb.Nothing {
		t.Errorf("exit got a home: %s", exit.Home)
	}
	if diff := cmp.Diff([]*gamedb.Object{exit}, f.DB.Exits(room1.DBRef)); diff != "" {
		t.Errorf("room1 exits (-want +got):\n%s", diff)
	}

	f.Accounts.(*sqlstore.Store).SetConfig(ctx, DefaultHomeKey, "#99")
	if got := f.DefaultHome(ctx); got != gamedb.Nothing {
		t.Errorf("DefaultHome naming a missing object = %s", got)
	}
}

func TestCreateObjectValidates(t *testing.T) {
	f, _ := newTestFactory(t)
	if _, err := f.CreateObject(context.Background(), Spec{Type: gamedb.TypeThing, Key: "  "}); err == nil {
		t.Error("blank key accepted")
	}
	if _, err := f.CreateObject(context.Background(), Spec{Type: gamedb.TypeThing, Key: "lost", Location: 42}); err == nil {
		t.Error("missing location accepted")
	}
	if f.DB.Len() != 0 {
		t.Errorf("failed creates left %d objects behind", f.DB.Len())
	}
}

func TestCreatePersistsObjectAndLocation(t *testing.T) {
	f, store := newTestFactory(t)
	room := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room1"})
	obj := mustCreate(t, f, Spec{Type: gamedb.TypeThing, Key: "obj1", Location: room.DBRef})
	if store.saved[obj.DBRef] == 0 || store.saved[room.DBRef] < 2 {
		t.Errorf("saved counts = %v", store.saved)
	}
}

func TestCreatePlayer(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFactory(t)
	room := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room1"})

	player, char, err := f.CreatePlayer(ctx, PlayerSpec{
		Name:      "TestingPlayer",
		Email:     "testplayer@test.com",
		Password:  "testpassword",
		Superuser: true,
		Location:  room.DBRef,
		Home:      room.DBRef,
	})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if char.Account != player.ID || player.Character != char.DBRef {
		t.Errorf("player %+v and character %+v not linked", player, char)
	}
	if char.Location != room.DBRef || char.Owner != char.DBRef {
		t.Errorf("character = %+v", char)
	}
	stored, err := f.Accounts.(*sqlstore.Store).PlayerByName(ctx, "TestingPlayer")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Character != char.DBRef {
		t.Errorf("stored character = %s, want %s", stored.Character, char.DBRef)
	}
}

func TestCreatePlayerFailureDropsAccount(t *testing.T) {
	ctx := context.Background()
	errDisk := errors.New("disk full")

	tests := map[string]struct {
		location gamedb.DBRef
		fail     error
	}{
		"missing location": {location: 999},
		"persist fails":    {fail: errDisk},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f, store := newTestFactory(t)
			room := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room1"})
			before := f.DB.Len()
			if tt.location == 0 {
				tt.location = room.DBRef
			}
			store.fail = tt.fail

			_, _, err := f.CreatePlayer(ctx, PlayerSpec{Name: "Orphan", Password: "secret", Location: tt.location})
			if err == nil {
				t.Fatal("CreatePlayer succeeded")
			}
			if tt.fail != nil && !errors.Is(err, tt.fail) {
				t.Errorf("error %v does not wrap %v", err, tt.fail)
			}
			if _, err := f.Accounts.(*sqlstore.Store).PlayerByName(ctx, "Orphan"); !errors.Is(err, sqlstore.ErrNotFound) {
				t.Errorf("account left behind: %v", err)
			}
			if got := f.DB.Len(); got != before {
				t.Errorf("objects = %d, want %d", got, before)
			}
			if inside := f.DB.Contents(room.DBRef); len(inside) != 0 {
				t.Errorf("room still holds %v", inside)
			}
		})
	}
}

func TestDestroySendsContentsHome(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFactory(t)
	room1 := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room1"})
	room2 := mustCreate(t, f, Spec{Type: gamedb.TypeRoom, Key: "room2"})
	box := mustCreate(t, f, Spec{Type: gamedb.TypeThing, Key: "box", Location: room1.DBRef})
	homed := mustCreate(t, f, Spec{Type: gamedb.TypeThing, Key: "ball", Location: box.DBRef, Home: room2.DBRef})
	loose := mustCreate(t, f, Spec{Type: gamedb.TypeThing, Key: "pebble", Location: box.DBRef})

	if err := f.Destroy(ctx, box.DBRef); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, ok := f.DB.Get(box.DBRef); ok {
		t.Error("box still exists")
	}
	if homed.Location != room2.DBRef {
		t.Errorf("ball went to %s, want its home %s", homed.Location, room2.DBRef)
	}
	if loose.Location != room1.DBRef {
		t.Errorf("pebble went to %s, want the box's room %s", loose.Location, room1.DBRef)
	}
	if diff := cmp.Diff([]gamedb.DBRef{box.DBRef}, store.deleted); diff != "" {
		t.Errorf("deleted (-want +got):\n%s", diff)
	}
}
