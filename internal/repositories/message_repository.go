package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thinkshare/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidReply    = errors.New("reply target is not in this conversation")
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID string, senderID string, req models.SendMessageRequest) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	EditMessage(ctx context.Context, messageID string, senderID string, content string) (models.Message, error)
	DeleteForAll(ctx context.Context, messageID string, senderID string) error
	AddReaction(ctx context.Context, messageID string, accountID string, reaction string) error
	RemoveReaction(ctx context.Context, messageID string, accountID string, reaction string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, content, reply_to, client_ref, created_at, edited_at, deleted_for_all`

// CreateMessage stores a message. Resending the same client_ref returns the
// stored copy, including when two sends with that ref race on the insert.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID string, senderID string, req models.SendMessageRequest) (models.Message, error) {
	if req.ClientRef != "" {
		existing, err := r.byClientRef(ctx, conversationID, senderID, req.ClientRef)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, err
		}
	}

	if req.ReplyTo != "" {
		var ok bool
		if err := r.db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1 AND conversation_id=$2 AND deleted_for_all = FALSE)`,
			req.ReplyTo, conversationID); err != nil {
			return models.Message{}, err
		}
		if !ok {
			return models.Message{}, ErrInvalidReply
		}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, reply_to, client_ref) VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (conversation_id, sender_id, client_ref) WHERE client_ref <> '' DO NOTHING
        RETURNING `+messageColumns,
		uuid.NewString(), conversationID, senderID, req.Content, req.ReplyTo, req.ClientRef).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) && req.ClientRef != "" {
		return r.byClientRef(ctx, conversationID, senderID, req.ClientRef)
	}
	return msg, err
}

func (r *MessageRepo) byClientRef(ctx context.Context, conversationID, senderID, clientRef string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 AND sender_id=$2 AND client_ref=$3`,
		conversationID, senderID, clientRef)
	return msg, err
}

// ListMessages returns visible messages oldest first with reactions and read receipts attached.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 AND deleted_for_all = FALSE
        ORDER BY created_at ASC, id ASC`, conversationID); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	var reactions []models.Reaction
	if err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, account_id, reaction FROM message_reactions
        WHERE message_id = ANY($1) ORDER BY created_at`, pq.Array(ids)); err != nil {
		return nil, err
	}
	byMessage := map[string]map[string][]string{}
	for _, rc := range reactions {
		if byMessage[rc.MessageID] == nil {
			byMessage[rc.MessageID] = map[string][]string{}
		}
		byMessage[rc.MessageID][rc.Reaction] = append(byMessage[rc.MessageID][rc.Reaction], rc.AccountID)
	}

	var readers []models.Participant
	if err := r.db.SelectContext(ctx, &readers, `SELECT conversation_id, account_id, joined_at, last_read_at FROM conversation_participants
        WHERE conversation_id=$1 ORDER BY position`, conversationID); err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].Reactions = byMessage[msgs[i].ID]
		for _, p := range readers {
			if p.AccountID != msgs[i].SenderID && !p.LastReadAt.Before(msgs[i].CreatedAt) {
				msgs[i].ReadBy = append(msgs[i].ReadBy, p.AccountID)
			}
		}
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// EditMessage replaces the content of a message owned by senderID.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID string, senderID string, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET content=$3, edited_at=NOW()
        WHERE id=$1 AND sender_id=$2 AND deleted_for_all = FALSE RETURNING `+messageColumns, messageID, senderID, content).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteForAll marks a message deleted for everyone (sender only).
func (r *MessageRepo) DeleteForAll(ctx context.Context, messageID string, senderID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted_for_all = TRUE WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// AddReaction records a reaction; repeating it is a no-op.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID string, accountID string, reaction string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, account_id, reaction) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, account_id, reaction) DO NOTHING`, messageID, accountID, reaction)
	return err
}

// RemoveReaction deletes a reaction.
func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID string, accountID string, reaction string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND account_id=$2 AND reaction=$3`, messageID, accountID, reaction)
	return err
}
