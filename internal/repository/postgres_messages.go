package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/encryption"
	"secretsanta/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `
	id, seq, room_id, sender_id, body_ciphertext, body_iv, body_tag,
	attachment_path_ciphertext, attachment_path_iv, attachment_path_tag,
	attachment_filename_ciphertext, attachment_filename_iv, attachment_filename_tag,
	attachment_file_type, attachment_size, status, is_edited, is_deleted, deleted_at, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresMessageRepository stores messages in postgres. Every encrypted field
// is three sibling columns (ciphertext, iv, tag).
type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

func (r *PostgresMessageRepository) Insert(ctx context.Context, m *models.Message) error {
	var a struct {
		pCt, pIV, pTag, fCt, fIV, fTag, fType *string
		size                                  *int64
	}
	if m.Attachment != nil {
		a.pCt, a.pIV, a.pTag = &m.Attachment.Path.Ciphertext, &m.Attachment.Path.IV, &m.Attachment.Path.Tag
		a.fCt, a.fIV, a.fTag = &m.Attachment.Filename.Ciphertext, &m.Attachment.Filename.IV, &m.Attachment.Filename.Tag
		a.fType, a.size = &m.Attachment.FileType, &m.Attachment.Size
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages (
			id, room_id, sender_id, body_ciphertext, body_iv, body_tag,
			attachment_path_ciphertext, attachment_path_iv, attachment_path_tag,
			attachment_filename_ciphertext, attachment_filename_iv, attachment_filename_tag,
			attachment_file_type, attachment_size, status, is_edited, is_deleted, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING seq
	`, m.ID, m.RoomID, m.SenderID, m.Body.Ciphertext, m.Body.IV, m.Body.Tag,
		a.pCt, a.pIV, a.pTag, a.fCt, a.fIV, a.fTag, a.fType, a.size,
		string(m.Status), m.IsEdited, m.IsDeleted, m.CreatedAt).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	list := []models.Message{*m}
	if err := attachChildren(ctx, r.pool, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *PostgresMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]models.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at ASC, seq ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if err := attachChildren(ctx, r.pool, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) ReplaceBody(ctx context.Context, id string, prev models.EditEntry, body encryption.Payload) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET body_ciphertext = $1, body_iv = $2, body_tag = $3, is_edited = TRUE
		WHERE id = $4 AND is_deleted = FALSE
	`, body.Ciphertext, body.IV, body.Tag, id)
	if err != nil {
		return fmt.Errorf("update message body: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrDeleted(ctx, tx, id)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO message_edits (message_id, ciphertext, iv, tag, edited_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, prev.Body.Ciphertext, prev.Body.IV, prev.Body.Tag, prev.EditedAt)
	if err != nil {
		return fmt.Errorf("insert edit history: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PostgresMessageRepository) MarkDeleted(ctx context.Context, id string, placeholder encryption.Payload, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET body_ciphertext = $1, body_iv = $2, body_tag = $3, is_deleted = TRUE, deleted_at = $4
		WHERE id = $5
	`, placeholder.Ciphertext, placeholder.IV, placeholder.Tag, at, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *PostgresMessageRepository) ToggleReaction(ctx context.Context, id string, reaction models.Reaction) ([]models.Reaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var deleted bool
	err = tx.QueryRow(ctx, `SELECT is_deleted FROM messages WHERE id = $1 FOR UPDATE`, id).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock message: %w", err)
	}
	if deleted {
		return nil, fmt.Errorf("message %s is deleted: %w", id, apperr.ErrInvalidState)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`, id, reaction.UserID, reaction.Emoji)
	if err != nil {
		return nil, fmt.Errorf("remove reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO message_reactions (message_id, user_id, emoji, pseudonym, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, reaction.UserID, reaction.Emoji, reaction.Pseudonym, reaction.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("add reaction: %w", err)
		}
	}

	byMessage, err := loadReactions(ctx, tx, []string{id})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	out := byMessage[id]
	if out == nil {
		out = []models.Reaction{}
	}
	return out, nil
}

func (r *PostgresMessageRepository) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// missingOrDeleted explains why a guarded update touched no row.
func missingOrDeleted(ctx context.Context, q querier, id string) error {
	var deleted bool
	err := q.QueryRow(ctx, `SELECT is_deleted FROM messages WHERE id = $1`, id).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	return fmt.Errorf("message %s is deleted: %w", id, apperr.ErrInvalidState)
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m                                     models.Message
		bodyTag                               *string
		pCt, pIV, pTag, fCt, fIV, fTag, fType *string
		size                                  *int64
		status                                string
	)
	err := row.Scan(
		&m.ID, &m.Seq, &m.RoomID, &m.SenderID, &m.Body.Ciphertext, &m.Body.IV, &bodyTag,
		&pCt, &pIV, &pTag, &fCt, &fIV, &fTag, &fType, &size,
		&status, &m.IsEdited, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Body.Tag = deref(bodyTag)
	m.Status = models.MessageStatus(status)
	if pCt != nil {
		m.Attachment = &models.Attachment{
			Path:     encryption.Payload{Ciphertext: deref(pCt), IV: deref(pIV), Tag: deref(pTag)},
			Filename: encryption.Payload{Ciphertext: deref(fCt), IV: deref(fIV), Tag: deref(fTag)},
			FileType: deref(fType),
		}
		if size != nil {
			m.Attachment.Size = *size
		}
	}
	m.Reactions = []models.Reaction{}
	m.EditHistory = []models.EditEntry{}
	return &m, nil
}

// attachChildren loads reactions and edit history for a batch of messages.
func attachChildren(ctx context.Context, q querier, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}

	reactions, err := loadReactions(ctx, q, ids)
	if err != nil {
		return err
	}
	edits, err := loadEdits(ctx, q, ids)
	if err != nil {
		return err
	}

	for i := range messages {
		if rs, ok := reactions[messages[i].ID]; ok {
			messages[i].Reactions = rs
		}
		if es, ok := edits[messages[i].ID]; ok {
			messages[i].EditHistory = es
		}
	}
	return nil
}

func loadReactions(ctx context.Context, q querier, ids []string) (map[string][]models.Reaction, error) {
	rows, err := q.Query(ctx, `
		SELECT message_id, user_id, emoji, pseudonym, created_at
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY seq ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Reaction)
	for rows.Next() {
		var messageID string
		var r models.Reaction
		if err := rows.Scan(&messageID, &r.UserID, &r.Emoji, &r.Pseudonym, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out[messageID] = append(out[messageID], r)
	}
	return out, rows.Err()
}

func loadEdits(ctx context.Context, q querier, ids []string) (map[string][]models.EditEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT message_id, ciphertext, iv, tag, edited_at
		FROM message_edits
		WHERE message_id = ANY($1)
		ORDER BY seq ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load edit history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.EditEntry)
	for rows.Next() {
		var messageID string
		var e models.EditEntry
		if err := rows.Scan(&messageID, &e.Body.Ciphertext, &e.Body.IV, &e.Body.Tag, &e.EditedAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		out[messageID] = append(out[messageID], e)
	}
	return out, rows.Err()
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
