package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/jmoiron/sqlx"
)

// TagPlayer attaches the tag key/category to a player, creating the tag if
// needed. Tagging twice is a no-op.
func (s *Store) TagPlayer(ctx context.Context, playerID int64, key, category string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (db_key, db_category) VALUES (?, ?)`, key, category); err != nil {
			return err
		}
		var tagID int64
		if err := tx.GetContext(ctx, &tagID,
			`SELECT id FROM tags WHERE db_key = ? AND db_category = ?`, key, category); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO player_tags (player_id, tag_id) VALUES (?, ?)`, playerID, tagID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlstore: tag player %d with %s/%s: %w", playerID, key, category, err)
	}
	return nil
}

// UntagPlayer detaches a tag. Returns ErrNotFound if it was not attached.
func (s *Store) UntagPlayer(ctx context.Context, playerID int64, key, category string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM player_tags WHERE player_id = ? AND tag_id IN
		(SELECT id FROM tags WHERE db_key = ? AND db_category = ?)`, playerID, key, category)
	if err != nil {
		return fmt.Errorf("sqlstore: untag player %d: %w", playerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PlayerTags returns the tags on a player ordered by category then key.
func (s *Store) PlayerTags(ctx context.Context, playerID int64) ([]gamedb.Tag, error) {
	var out []gamedb.Tag
	err := s.db.SelectContext(ctx, &out, `SELECT t.id, t.db_key, t.db_category, t.db_data
		FROM tags t JOIN player_tags pt ON pt.tag_id = t.id
		WHERE pt.player_id = ? ORDER BY t.db_category, t.db_key`, playerID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: player %d tags: %w", playerID, err)
	}
	return out, nil
}

// PlayersTagged returns the players carrying a tag ordered by id.
func (s *Store) PlayersTagged(ctx context.Context, key, category string) ([]gamedb.Player, error) {
	var out []gamedb.Player
	err := s.db.SelectContext(ctx, &out, `SELECT p.id, p.name, p.email, p.password, p.is_superuser,
			p.char_ref, p.created_at, p.last_login
		FROM players p
		JOIN player_tags pt ON pt.player_id = p.id
		JOIN tags t ON t.id = pt.tag_id
		WHERE t.db_key = ? AND t.db_category = ? ORDER BY p.id`, key, category)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: players tagged %s/%s: %w", key, category, err)
	}
	return out, nil
}

// SetPlayerLiteAttribute sets key/category to data on a player, replacing
// an existing value.
func (s *Store) SetPlayerLiteAttribute(ctx context.Context, playerID int64, key, category, data string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var attrID int64
		err := tx.GetContext(ctx, &attrID, `SELECT la.id FROM lite_attributes la
			JOIN player_liteattributes pl ON pl.liteattribute_id = la.id
			WHERE pl.player_id = ? AND la.db_key = ? AND la.db_category = ?`, playerID, key, category)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `UPDATE lite_attributes SET db_data = ? WHERE id = ?`, data, attrID)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lite_attributes (db_key, db_category, db_data) VALUES (?, ?, ?)`, key, category, data)
		if err != nil {
			return err
		}
		if attrID, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_liteattributes (player_id, liteattribute_id) VALUES (?, ?)`, playerID, attrID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlstore: set player %d attribute %s/%s: %w", playerID, key, category, err)
	}
	return nil
}

// PlayerLiteAttributes returns a player's lite attributes ordered by
// category then key.
func (s *Store) PlayerLiteAttributes(ctx context.Context, playerID int64) ([]gamedb.LiteAttribute, error) {
	var out []gamedb.LiteAttribute
	err := s.db.SelectContext(ctx, &out, `SELECT la.id, la.db_key, la.db_category, la.db_data
		FROM lite_attributes la JOIN player_liteattributes pl ON pl.liteattribute_id = la.id
		WHERE pl.player_id = ? ORDER BY la.db_category, la.db_key`, playerID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: player %d attributes: %w", playerID, err)
	}
	return out, nil
}

// RemovePlayerLiteAttribute deletes a lite attribute from a player.
func (s *Store) RemovePlayerLiteAttribute(ctx context.Context, playerID int64, key, category string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lite_attributes WHERE id IN
		(SELECT la.id FROM lite_attributes la
		 JOIN player_liteattributes pl ON pl.liteattribute_id = la.id
		 WHERE pl.player_id = ? AND la.db_key = ? AND la.db_category = ?)`, playerID, key, category)
	if err != nil {
		return fmt.Errorf("sqlstore: remove player %d attribute: %w", playerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
