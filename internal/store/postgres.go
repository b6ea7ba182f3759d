package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// Postgres stores documents as jsonb rows and fans change signals out through
// a Notifier; watchers re-read the full snapshot on every signal, which keeps
// the listener contract identical to the in-memory store across processes.
type Postgres struct {
	pool     *pgxpool.Pool
	notifier Notifier
	log      *logger.Logger
}

const (
	chanConversations = "store:conversations"
	chanUsers         = "store:users"
)

func messageChannel(conversationID string) string {
	return "store:messages:" + conversationID
}

func NewPostgres(pool *pgxpool.Pool, notifier Notifier, log *logger.Logger) *Postgres {
	return &Postgres{pool: pool, notifier: notifier, log: log}
}

// EnsureSchema creates the document tables. The seq column on messages is an
// internal insertion counter used only to make equal-timestamp ordering
// deterministic; it never overrides createdAt ordering.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id  TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL REFERENCES conversations (id),
			id              TEXT NOT NULL,
			doc             JSONB NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			seq             BIGSERIAL,
			PRIMARY KEY (conversation_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_history ON messages (conversation_id, created_at);
		CREATE TABLE IF NOT EXISTS users (
			id  TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		);
	`)
	return err
}

func (p *Postgres) CreateConversation(ctx context.Context, conv ConversationRecord) (string, error) {
	if conv.ID == "" {
		conv.ID = newDocumentID()
	}
	doc, err := json.Marshal(conv)
	if err != nil {
		return "", err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO conversations (id, doc) VALUES ($1, $2)`, conv.ID, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", chatsync_errors.ErrAlreadyExists
		}
		return "", err
	}

	p.publish(ctx, chanConversations)
	return conv.ID, nil
}

func (p *Postgres) GetConversation(ctx context.Context, id string) (ConversationRecord, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM conversations WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConversationRecord{}, chatsync_errors.ErrNotFound
		}
		return ConversationRecord{}, err
	}
	var conv ConversationRecord
	if err := json.Unmarshal(doc, &conv); err != nil {
		return ConversationRecord{}, err
	}
	return conv, nil
}

func (p *Postgres) GetConversations(ctx context.Context, userID string) ([]ConversationRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM conversations WHERE doc->'users' @> jsonb_build_array($1::text) ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]ConversationRecord, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var conv ConversationRecord
		if err := json.Unmarshal(doc, &conv); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

func (p *Postgres) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chatsync_errors.ErrNotFound
		}
		return err
	}
	var conv ConversationRecord
	if err := json.Unmarshal(doc, &conv); err != nil {
		return err
	}
	if update.UsersUnreadCountInfo != nil {
		conv.UsersUnreadCountInfo = update.UsersUnreadCountInfo
	}
	if update.LatestMessage != nil {
		conv.LatestMessage = update.LatestMessage
	}
	merged, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET doc = $2 WHERE id = $1`, id, merged); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	p.publish(ctx, chanConversations)
	return nil
}

func (p *Postgres) WatchConversations(ctx context.Context, userID string) (<-chan []ConversationRecord, CancelFunc, error) {
	return watch(ctx, p.notifier, chanConversations, p.log, func(ctx context.Context) ([]ConversationRecord, error) {
		return p.GetConversations(ctx, userID)
	})
}

func (p *Postgres) PutMessage(ctx context.Context, conversationID string, msg MessageRecord) error {
	doc, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO messages (conversation_id, id, doc, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, id)
		DO UPDATE SET doc = EXCLUDED.doc, created_at = EXCLUDED.created_at`,
		conversationID, msg.ID, doc, msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return chatsync_errors.ErrNotFound
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return chatsync_errors.ErrNotFound
	}

	p.publish(ctx, messageChannel(conversationID))
	return nil
}

func (p *Postgres) GetMessages(ctx context.Context, conversationID string) ([]MessageRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]MessageRecord, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var msg MessageRecord
		if err := json.Unmarshal(doc, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (p *Postgres) WatchMessages(ctx context.Context, conversationID string) (<-chan []MessageRecord, CancelFunc, error) {
	return watch(ctx, p.notifier, messageChannel(conversationID), p.log, func(ctx context.Context) ([]MessageRecord, error) {
		return p.GetMessages(ctx, conversationID)
	})
}

func (p *Postgres) PutUser(ctx context.Context, u UserRecord) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO users (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, u.ID, doc)
	if err != nil {
		return err
	}

	p.publish(ctx, chanUsers)
	return nil
}

func (p *Postgres) GetUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT doc FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]UserRecord, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var u UserRecord
		if err := json.Unmarshal(doc, &u); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (p *Postgres) WatchUsers(ctx context.Context) (<-chan []UserRecord, CancelFunc, error) {
	return watch(ctx, p.notifier, chanUsers, p.log, p.GetUsers)
}

func (p *Postgres) publish(ctx context.Context, channel string) {
	if err := p.notifier.Publish(ctx, channel, nil); err != nil && p.log != nil {
		p.log.Warnf("store: publish %s: %v", channel, err)
	}
}

// watch subscribes to a change channel and re-queries the full snapshot on
// every signal, starting with the current one. Signals arriving while a query
// runs collapse into a single re-read.
func watch[T any](ctx context.Context, n Notifier, channel string, log *logger.Logger, query func(context.Context) (T, error)) (<-chan T, CancelFunc, error) {
	ch := make(chan T, 1)
	kick := make(chan struct{}, 1)
	done := make(chan struct{})

	cancelSub, err := n.Subscribe(ctx, channel, func(string, []byte) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, nil, err
	}

	go func() {
		for {
			snap, err := query(ctx)
			if err != nil {
				if log != nil {
					log.Errorf("store: watch %s: %v", channel, err)
				}
			} else {
				push(ch, snap)
			}
			select {
			case <-done:
				return
			case <-kick:
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelSub()
			close(done)
		})
	}
	return ch, cancel, nil
}
