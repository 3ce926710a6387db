package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRoomRepository reads room membership and owns room_pseudonyms.
type PostgresRoomRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRoomRepository(pool *pgxpool.Pool) *PostgresRoomRepository {
	return &PostgresRoomRepository{pool: pool}
}

func (r *PostgresRoomRepository) Get(ctx context.Context, roomID string) (*models.Room, error) {
	room := models.Room{AnonymousNames: map[string]string{}}
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM rooms WHERE id = $1`, roomID).
		Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM room_participants WHERE room_id = $1 ORDER BY joined_at ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	room.Participants, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan participants: %w", err)
	}

	names, err := loadPseudonyms(ctx, r.pool, roomID)
	if err != nil {
		return nil, err
	}
	room.AnonymousNames = names
	return &room, nil
}

func (r *PostgresRoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var roomExists, isMember bool
	err := r.pool.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM rooms WHERE id = $1),
			EXISTS(SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2)
	`, roomID, userID).Scan(&roomExists, &isMember)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	if !roomExists {
		return false, fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}
	return isMember, nil
}

// UpdatePseudonyms locks the room row for the duration of the transaction, so
// concurrent allocations in one room are serialised while other rooms proceed.
func (r *PostgresRoomRepository) UpdatePseudonyms(ctx context.Context, roomID string, fn func(names map[string]string) error) (map[string]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock room: %w", err)
	}

	before, err := loadPseudonyms(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	names := copyNames(before)
	if err := fn(names); err != nil {
		return nil, err
	}

	// Drop changed rows first so UNIQUE(room_id, name) holds during the rewrite.
	for userID, old := range before {
		if cur, ok := names[userID]; !ok || cur != old {
			if _, err := tx.Exec(ctx, `DELETE FROM room_pseudonyms WHERE room_id = $1 AND user_id = $2`, roomID, userID); err != nil {
				return nil, fmt.Errorf("clear pseudonym: %w", err)
			}
		}
	}
	now := time.Now().UTC()
	for userID, name := range names {
		if old, ok := before[userID]; ok && old == name {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO room_pseudonyms (room_id, user_id, name, assigned_at)
			VALUES ($1, $2, $3, $4)
		`, roomID, userID, name, now)
		if err != nil {
			return nil, fmt.Errorf("store pseudonym: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return names, nil
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *models.Room) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx, `INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)`, room.ID, room.Name, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	for _, userID := range room.Participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO room_participants (room_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, room.ID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRoomRepository) AddParticipant(ctx context.Context, roomID, userID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if !exists {
		return fmt.Errorf("room %s: %w", roomID, apperr.ErrNotFound)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, roomID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func loadPseudonyms(ctx context.Context, q querier, roomID string) (map[string]string, error) {
	rows, err := q.Query(ctx, `SELECT user_id, name FROM room_pseudonyms WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("load pseudonyms: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var userID, name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("scan pseudonym: %w", err)
		}
		names[userID] = name
	}
	return names, rows.Err()
}
