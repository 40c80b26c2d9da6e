package boltstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/scripts"
	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.bolt")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestRefKeyRoundTrip(t *testing.T) {
	for _, ref := range []gamedb.DBRef{gamedb.Ambiguous, gamedb.Nothing, 0, 1, 123456} {
		if got := keyToRef(refToKey(ref)); got != ref {
			t.Errorf("keyToRef(refToKey(%s)) = %s", ref, got)
		}
	}
	if string(refToKey(gamedb.Nothing)) >= string(refToKey(0)) {
		t.Error("negative refs must sort before zero")
	}
}

func TestObjectsSurviveReopen(t *testing.T) {
	s, path := openTestStore(t)
	if s.HasData() {
		t.Fatal("fresh store reports data")
	}

	db := s.DB()
	room := db.Allocate("Limbo", gamedb.TypeRoom)
	char := db.Allocate("Wanderer", gamedb.TypeCharacter)
	char.Home = room.DBRef
	char.SetNick(gamedb.NickInputLine, "l", "look")
	if err := db.Move(char.DBRef, room.DBRef); err != nil {
		t.Fatal(err)
	}
	gone := db.Allocate("temporary", gamedb.TypeThing)
	if err := s.SaveAll(); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	db.Delete(gone.DBRef)
	if err := s.DeleteObject(gone.DBRef); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if !s2.HasData() {
		t.Fatal("reopened store has no data")
	}
	if err := s2.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, ok := s2.DB().Get(char.DBRef)
	if !ok {
		t.Fatal("character missing after reload")
	}
	if got.Key != "Wanderer" || got.Home != room.DBRef || got.Location != room.DBRef {
		t.Errorf("reloaded character = %+v", got)
	}
	if real, _ := got.Nick(gamedb.NickInputLine, "l"); real != "look" {
		t.Errorf("reloaded nick = %q, want look", real)
	}
	if _, ok := s2.DB().Get(gone.DBRef); ok {
		t.Error("deleted object came back")
	}
	if next := s2.DB().NextRef(); next != gone.DBRef+1 {
		t.Errorf("NextRef after reload = %s, want %s", next, gone.DBRef+1)
	}
}

func TestScriptRecords(t *testing.T) {
	s, _ := openTestStore(t)
	rec := scripts.Record{ID: 4, Key: "weather", Obj: gamedb.Nothing, Interval: time.Minute, Persistent: true}
	if err := s.PutScript(&rec); err != nil {
		t.Fatalf("PutScript: %v", err)
	}
	got, err := s.LoadScripts()
	if err != nil {
		t.Fatalf("LoadScripts: %v", err)
	}
	if diff := cmp.Diff([]scripts.Record{rec}, got); diff != "" {
		t.Errorf("LoadScripts (-want +got):\n%s", diff)
	}
	if err := s.DeleteScript(4); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LoadScripts(); len(got) != 0 {
		t.Errorf("script record survived delete: %+v", got)
	}
}

func TestBackup(t *testing.T) {
	s, _ := openTestStore(t)
	s.DB().Allocate("Limbo", gamedb.TypeRoom)
	if err := s.SaveAll(); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "backup.bolt")
	if err := s.Backup(dst); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	b, err := Open(dst)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer b.Close()
	if !b.HasData() {
		t.Error("backup has no objects")
	}
}
