package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crystal-mush/mushkit/pkg/crypt"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("sqlstore: not found")

// ErrNameTaken is returned when creating a player whose name already exists.
var ErrNameTaken = errors.New("sqlstore: player name taken")

const playerColumns = `id, name, email, password, is_superuser, char_ref, created_at, last_login`

// CreatePlayer hashes password and inserts a new account. The returned
// player has no character yet.
func (s *Store) CreatePlayer(ctx context.Context, name, email, password string, superuser bool) (*gamedb.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("sqlstore: create player: empty name")
	}
	hash, err := crypt.HashPassword(password)
	if err != nil {
		return nil, err
	}
	p := &gamedb.Player{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Superuser:    superuser,
		Character:    gamedb.Nothing,
		CreatedAt:    time.Now().Unix(),
	}
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM players WHERE name = ?`, name); err != nil {
			return err
		}
		if n > 0 {
			return ErrNameTaken
		}
		res, err := tx.NamedExecContext(ctx, `INSERT INTO players
			(name, email, password, is_superuser, char_ref, created_at, last_login)
			VALUES (:name, :email, :password, :is_superuser, :char_ref, :created_at, :last_login)`, p)
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlstore: create player %q: %w", name, err)
	}
	return p, nil
}

// PlayerByID loads a player by id.
func (s *Store) PlayerByID(ctx context.Context, id int64) (*gamedb.Player, error) {
	return s.getPlayer(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
}

// PlayerByName loads a player by name, ignoring case.
func (s *Store) PlayerByName(ctx context.Context, name string) (*gamedb.Player, error) {
	return s.getPlayer(ctx, `SELECT `+playerColumns+` FROM players WHERE name = ?`, strings.TrimSpace(name))
}

func (s *Store) getPlayer(ctx context.Context, query string, arg any) (*gamedb.Player, error) {
	var p gamedb.Player
	if err := s.db.GetContext(ctx, &p, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: load player: %w", err)
	}
	return &p, nil
}

// Authenticate checks name and password. Legacy DES hashes are upgraded to
// bcrypt on success.
func (s *Store) Authenticate(ctx context.Context, name, password string) (*gamedb.Player, error) {
	p, err := s.PlayerByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !crypt.CheckPassword(password, p.PasswordHash) {
		return nil, ErrNotFound
	}
	if crypt.IsLegacy(p.PasswordHash) {
		if err := s.SetPassword(ctx, p.ID, password); err != nil {
			return nil, err
		}
	}
	if err := s.TouchLogin(ctx, p.ID); err != nil {
		return nil, err
	}
	return s.PlayerByID(ctx, p.ID)
}

// SetPassword replaces a player's password.
func (s *Store) SetPassword(ctx context.Context, id int64, password string) error {
	hash, err := crypt.HashPassword(password)
	if err != nil {
		return err
	}
	return s.update(ctx, `UPDATE players SET password = ? WHERE id = ?`, hash, id)
}

// SetSuperuser grants or revokes superuser rights.
func (s *Store) SetSuperuser(ctx context.Context, id int64, superuser bool) error {
	return s.update(ctx, `UPDATE players SET is_superuser = ? WHERE id = ?`, superuser, id)
}

// SetCharacter links a player to its in-world character.
func (s *Store) SetCharacter(ctx context.Context, id int64, ref gamedb.DBRef) error {
	return s.update(ctx, `UPDATE players SET char_ref = ? WHERE id = ?`, int64(ref), id)
}

// TouchLogin records a login at the current time.
func (s *Store) TouchLogin(ctx context.Context, id int64) error {
	return s.update(ctx, `UPDATE players SET last_login = ? WHERE id = ?`, time.Now().Unix(), id)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: update player: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPlayers returns every player ordered by id.
func (s *Store) ListPlayers(ctx context.Context) ([]gamedb.Player, error) {
	var out []gamedb.Player
	if err := s.db.SelectContext(ctx, &out, `SELECT `+playerColumns+` FROM players ORDER BY id`); err != nil {
		return nil, fmt.Errorf("sqlstore: list players: %w", err)
	}
	return out, nil
}

// CountPlayers returns the number of accounts.
func (s *Store) CountPlayers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM players`); err != nil {
		return 0, fmt.Errorf("sqlstore: count players: %w", err)
	}
	return n, nil
}

// DeletePlayer removes an account along with its tag and attribute links.
func (s *Store) DeletePlayer(ctx context.Context, id int64) error {
	return s.update(ctx, `DELETE FROM players WHERE id = ?`, id)
}
