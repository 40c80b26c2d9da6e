package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bxcodec/faker/v4"
	"github.com/crystal-mush/mushkit/pkg/crypt"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestPlayer(t *testing.T, s *Store) *gamedb.Player {
	t.Helper()
	p, err := s.CreatePlayer(context.Background(), faker.Username(), faker.Email(), "secret", false)
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	return p
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path, time.Second)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func TestCreateAndLoadPlayer(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p, err := s.CreatePlayer(ctx, "TestingPlayer", "testplayer@test.com", "testpassword", true)
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if p.ID == 0 || p.Character != gamedb.Nothing {
		t.Errorf("created player = %+v", p)
	}

	byName, err := s.PlayerByName(ctx, "testingplayer")
	if err != nil {
		t.Fatalf("PlayerByName: %v", err)
	}
	if diff := cmp.Diff(p, byName); diff != "" {
		t.Errorf("PlayerByName (-created +loaded):\n%s", diff)
	}
	if !byName.Superuser {
		t.Error("superuser flag lost")
	}

	if _, err := s.CreatePlayer(ctx, "testingPLAYER", "", "x", false); !errors.Is(err, ErrNameTaken) {
		t.Errorf("duplicate name error = %v, want ErrNameTaken", err)
	}
	if _, err := s.PlayerByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing player error = %v, want ErrNotFound", err)
	}
}

func TestAuthenticateAndPasswordChange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := createTestPlayer(t, s)

	if _, err := s.Authenticate(ctx, p.Name, "wrong"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong password error = %v, want ErrNotFound", err)
	}
	got, err := s.Authenticate(ctx, p.Name, "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.LastLogin == 0 {
		t.Error("login time not recorded")
	}

	if err := s.SetPassword(ctx, p.ID, "newpassword"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if _, err := s.Authenticate(ctx, p.Name, "newpassword"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestAuthenticateUpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := createTestPlayer(t, s)
	if _, err := s.db.ExecContext(ctx, `UPDATE players SET password = ? WHERE id = ?`,
		crypt.Crypt("oldpass", "XX"), p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Authenticate(ctx, p.Name, "oldpass"); err != nil {
		t.Fatalf("legacy password rejected: %v", err)
	}
	upgraded, _ := s.PlayerByID(ctx, p.ID)
	if crypt.IsLegacy(upgraded.PasswordHash) {
		t.Error("legacy hash was not upgraded")
	}
}

func TestSetCharacterAndSuperuser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := createTestPlayer(t, s)

	if err := s.SetCharacter(ctx, p.ID, 7); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSuperuser(ctx, p.ID, true); err != nil {
		t.Fatal(err)
	}
	got, _ := s.PlayerByID(ctx, p.ID)
	if got.Character != 7 || !got.Superuser {
		t.Errorf("player = %+v, want character #7 and superuser", got)
	}
	if err := s.SetCharacter(ctx, 999, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetCharacter on missing player = %v", err)
	}
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	alice := createTestPlayer(t, s)
	bob := createTestPlayer(t, s)

	for _, p := range []*gamedb.Player{alice, bob} {
		if err := s.TagPlayer(ctx, p.ID, "builder", "role"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.TagPlayer(ctx, alice.ID, "builder", "role"); err != nil {
		t.Fatalf("tagging twice: %v", err)
	}
	if err := s.TagPlayer(ctx, alice.ID, "beta", ""); err != nil {
		t.Fatal(err)
	}

	tags, err := s.PlayerTags(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []gamedb.Tag{{Key: "beta"}, {Key: "builder", Category: "role"}}
	if diff := cmp.Diff(want, tags, cmpopts.IgnoreFields(gamedb.Tag{}, "ID")); diff != "" {
		t.Errorf("PlayerTags (-want +got):\n%s", diff)
	}

	tagged, err := s.PlayersTagged(ctx, "builder", "role")
	if err != nil {
		t.Fatal(err)
	}
	if len(tagged) != 2 {
		t.Fatalf("PlayersTagged = %d players, want 2", len(tagged))
	}

	if err := s.UntagPlayer(ctx, bob.ID, "builder", "role"); err != nil {
		t.Fatal(err)
	}
	if err := s.UntagPlayer(ctx, bob.ID, "builder", "role"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second untag = %v, want ErrNotFound", err)
	}
	tagged, _ = s.PlayersTagged(ctx, "builder", "role")
	if len(tagged) != 1 || tagged[0].ID != alice.ID {
		t.Errorf("after untag PlayersTagged = %+v", tagged)
	}
}

func TestLiteAttributes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := createTestPlayer(t, s)
	other := createTestPlayer(t, s)

	if err := s.SetPlayerLiteAttribute(ctx, p.ID, "colour", "prefs", "blue"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPlayerLiteAttribute(ctx, p.ID, "colour", "prefs", "green"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPlayerLiteAttribute(ctx, other.ID, "colour", "prefs", "red"); err != nil {
		t.Fatal(err)
	}

	attrs, err := s.PlayerLiteAttributes(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []gamedb.LiteAttribute{{Key: "colour", Category: "prefs", Data: "green"}}
	if diff := cmp.Diff(want, attrs, cmpopts.IgnoreFields(gamedb.LiteAttribute{}, "ID")); diff != "" {
		t.Errorf("PlayerLiteAttributes (-want +got):\n%s", diff)
	}

	if err := s.RemovePlayerLiteAttribute(ctx, p.ID, "colour", "prefs"); err != nil {
		t.Fatal(err)
	}
	if attrs, _ := s.PlayerLiteAttributes(ctx, p.ID); len(attrs) != 0 {
		t.Errorf("attribute survived removal: %+v", attrs)
	}
	if attrs, _ := s.PlayerLiteAttributes(ctx, other.ID); len(attrs) != 1 {
		t.Error("removing one player's attribute touched another's")
	}
}

func TestDeletePlayerCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := createTestPlayer(t, s)
	s.TagPlayer(ctx, p.ID, "builder", "role")
	s.SetPlayerLiteAttribute(ctx, p.ID, "colour", "", "blue")

	if err := s.DeletePlayer(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	var links int
	if err := s.db.GetContext(ctx, &links, `SELECT
		(SELECT COUNT(*) FROM player_tags) + (SELECT COUNT(*) FROM player_liteattributes)`); err != nil {
		t.Fatal(err)
	}
	if links != 0 {
		t.Errorf("%d join rows survived player deletion", links)
	}
}

func TestConfigValues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.GetConfig(ctx, "default_home"); err != nil || ok {
		t.Fatalf("GetConfig on empty store = %v, %v", ok, err)
	}
	if err := s.SetConfig(ctx, "default_home", "2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.GetConfig(ctx, "default_home")
	if err != nil || !ok || v != "2" {
		t.Fatalf("GetConfig = %q, %v, %v; want 2", v, ok, err)
	}
	if err := s.SetConfig(ctx, "default_home", "5"); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := s.GetConfig(ctx, "default_home"); v != "5" {
		t.Errorf("cached value not invalidated: got %q", v)
	}
	s.SetConfig(ctx, "motd", "hello")

	list, err := s.ListConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []ConfigValue{{Key: "default_home", Value: "5"}, {Key: "motd", Value: "hello"}}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ListConfig (-want +got):\n%s", diff)
	}

	if err := s.DeleteConfig(ctx, "motd"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetConfig(ctx, "motd"); ok {
		t.Error("deleted config value still readable")
	}
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "accounts.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	p := createTestPlayer(t, s)

	dest := filepath.Join(dir, "copy.db")
	if err := s.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	copied, err := Open(dest, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { copied.Close() })
	got, err := copied.PlayerByName(ctx, p.Name)
	if err != nil {
		t.Fatalf("player missing from backup: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("backup id = %d, want %d", got.ID, p.ID)
	}
}
