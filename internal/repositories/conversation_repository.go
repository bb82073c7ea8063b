package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thinkshare/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrNotParticipant       = errors.New("account is not a participant")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetDirect(ctx context.Context, accountID string, otherID string) (models.Conversation, error)
	CreateGroup(ctx context.Context, ownerID string, name string, memberIDs []string) (models.Conversation, error)
	ListForAccount(ctx context.Context, accountID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID string, accountID string) (bool, error)
	MarkRead(ctx context.Context, conversationID string, accountID string) error
	Touch(ctx context.Context, conversationID string, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `c.id, c.type, c.name, c.created_by, c.created_at, c.last_activity`

func directKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// CreateOrGetDirect returns the direct conversation between two accounts, creating it on first use.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, accountID string, otherID string) (models.Conversation, error) {
	if accountID == otherID {
		return models.Conversation{}, ErrSelfConversation
	}
	key := directKey(accountID, otherID)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c WHERE c.direct_key=$1`, key)
	if err == nil {
		conv.Participants, err = r.participants(ctx, conv.ID)
		return conv, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	return r.create(ctx, models.ConversationDirect, "", accountID, &key, []string{accountID, otherID})
}

// CreateGroup creates a thinktank with the owner first and deduplicated members after it.
func (r *ConversationRepo) CreateGroup(ctx context.Context, ownerID string, name string, memberIDs []string) (models.Conversation, error) {
	seen := map[string]struct{}{ownerID: {}}
	ordered := []string{ownerID}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	return r.create(ctx, models.ConversationGroup, name, ownerID, nil, ordered)
}

func (r *ConversationRepo) create(ctx context.Context, kind models.ConversationType, name, createdBy string, key *string, ordered []string) (conv models.Conversation, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (id, type, name, created_by, direct_key) VALUES ($1, $2, $3, $4, $5)
        RETURNING id, type, name, created_by, created_at, last_activity`, uuid.NewString(), kind, name, createdBy, key).
		StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}

	for pos, id := range ordered {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, account_id, position) VALUES ($1, $2, $3)`, conv.ID, id, pos); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = ordered
	return conv, nil
}

// ListForAccount returns the account's conversations, most recently active first, with unread counts.
func (r *ConversationRepo) ListForAccount(ctx context.Context, accountID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `,
        (SELECT COUNT(*) FROM messages m
            WHERE m.conversation_id = c.id AND m.deleted_for_all = FALSE
            AND m.sender_id <> $1 AND m.created_at > cp.last_read_at) AS unread_count
        FROM conversations c
        INNER JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.account_id = $1
        ORDER BY c.last_activity DESC`
	convs := []models.Conversation{}
	if err := r.db.SelectContext(ctx, &convs, query, accountID); err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}

	var rows []models.Participant
	if err := r.db.SelectContext(ctx, &rows, `SELECT conversation_id, account_id, joined_at, last_read_at FROM conversation_participants
        WHERE conversation_id = ANY($1) ORDER BY conversation_id, position`, pq.Array(ids)); err != nil {
		return nil, err
	}
	byConv := map[string][]string{}
	for _, p := range rows {
		byConv[p.ConversationID] = append(byConv[p.ConversationID], p.AccountID)
	}

	var last []models.Message
	if err := r.db.SelectContext(ctx, &last, `SELECT DISTINCT ON (conversation_id) `+messageColumns+` FROM messages
        WHERE conversation_id = ANY($1) AND deleted_for_all = FALSE
        ORDER BY conversation_id, created_at DESC`, pq.Array(ids)); err != nil {
		return nil, err
	}
	lastByConv := map[string]models.Message{}
	for _, m := range last {
		lastByConv[m.ConversationID] = m
	}

	for i := range convs {
		convs[i].Participants = byConv[convs[i].ID]
		if m, ok := lastByConv[convs[i].ID]; ok {
			convs[i].LastMessage = &m
		}
	}
	return convs, nil
}

// GetConversation fetches a conversation and its participants.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Participants, err = r.participants(ctx, conversationID)
	return conv, err
}

func (r *ConversationRepo) participants(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT account_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY position`, conversationID)
	return ids, err
}

// IsParticipant checks whether an account belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID string, accountID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND account_id=$2)`, conversationID, accountID)
	return exists, err
}

// MarkRead moves the account's read marker to now.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID string, accountID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_participants SET last_read_at = NOW() WHERE conversation_id=$1 AND account_id=$2`, conversationID, accountID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Touch records activity on the conversation.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET last_activity = $2 WHERE id=$1`, conversationID, at)
	return err
}
