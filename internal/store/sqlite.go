package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyReplied = errors.New("message already has a reply")
	ErrStatusConflict = errors.New("document status changed concurrently")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        owner_id TEXT NOT NULL,
        title TEXT,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'machine')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        reply_to TEXT,
        is_helpful BOOLEAN,
        reason TEXT,
        category TEXT,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    -- one machine reply per user message
    CREATE UNIQUE INDEX IF NOT EXISTS ux_messages_reply_to ON messages (reply_to) WHERE reply_to IS NOT NULL;
    CREATE INDEX IF NOT EXISTS ix_messages_conversation ON messages (conversation_id, created_at);

    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        source_type TEXT NOT NULL CHECK (source_type IN ('uploaded', 'authored', 'web-imported')),
        title TEXT NOT NULL,
        text TEXT NOT NULL,
        source_url TEXT,
        visibility TEXT NOT NULL CHECK (visibility IN ('onlyMe', 'viewOnly')),
        status TEXT NOT NULL CHECK (status IN ('draft', 'synced', 'syncing')),
        owner_id TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS ix_documents_owner ON documents (owner_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Conversation methods
func (s *SQLiteStore) CreateConversation(ctx context.Context, ownerID string) (*Conversation, error) {
	conv := &Conversation{ID: uuid.NewString(), OwnerID: ownerID, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, "INSERT INTO conversations (id, owner_id, title, created_at) VALUES (?, ?, NULL, ?)",
		conv.ID, conv.OwnerID, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT id, owner_id, title, created_at FROM conversations WHERE id = ?", conversationID).
		Scan(&conv.ID, &conv.OwnerID, &title, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if title.Valid {
		conv.Title = &title.String
	}
	return &conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, owner_id, title, created_at FROM conversations WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var conv Conversation
		var title sql.NullString
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if title.Valid {
			conv.Title = &title.String
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) SetConversationTitle(ctx context.Context, conversationID, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET title = ? WHERE id = ?", title, conversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return nil
}

// Message methods

// AppendMessage stores a message at the end of the conversation. replyTo links
// a machine message to the user message it answers and may be empty.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, role Role, content string, replyTo string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin message insert: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", conversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	var reply sql.NullString
	if replyTo != "" {
		msg.ReplyTo = &replyTo
		reply = sql.NullString{String: replyTo, Valid: true}
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO messages (id, conversation_id, role, content, created_at, reply_to) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt, reply)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("message %s: %w", replyTo, ErrAlreadyReplied)
		}
		return nil, fmt.Errorf("failed to execute message insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message insert: %w", err)
	}
	return msg, nil
}

const messageColumns = "id, conversation_id, role, content, created_at, reply_to, is_helpful, reason, category"

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var msg Message
	var role string
	var replyTo, reason, category sql.NullString
	var helpful sql.NullBool
	if err := row.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt, &replyTo, &helpful, &reason, &category); err != nil {
		return nil, err
	}
	msg.Role = Role(role)
	if replyTo.Valid {
		msg.ReplyTo = &replyTo.String
	}
	if helpful.Valid {
		msg.IsHelpful = &helpful.Bool
	}
	if reason.Valid {
		msg.Reason = &reason.String
	}
	if category.Valid {
		msg.Category = &category.String
	}
	return &msg, nil
}

// ListMessages returns the conversation's messages oldest first. A conversation
// without messages yields an empty slice.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.queryMessages(ctx, "SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC", conversationID)
}

// LastMessages returns up to n most recent messages, oldest first.
func (s *SQLiteStore) LastMessages(ctx context.Context, conversationID string, n int) ([]Message, error) {
	msgs, err := s.queryMessages(ctx, "SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?", conversationID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ReplyFor returns the machine message answering userMessageID, or nil if none exists yet.
func (s *SQLiteStore) ReplyFor(ctx context.Context, userMessageID string) (*Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE reply_to = ?", userMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reply: %w", err)
	}
	return msg, nil
}

// UnansweredUserMessages returns the conversation's user messages that have no machine reply.
func (s *SQLiteStore) UnansweredUserMessages(ctx context.Context, conversationID string) ([]Message, error) {
	return s.queryMessages(ctx, `
        SELECT `+messageColumns+` FROM messages u
        WHERE u.conversation_id = ? AND u.role = 'user'
          AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.reply_to = u.id)
        ORDER BY u.created_at ASC, u.rowid ASC`, conversationID)
}

func (s *SQLiteStore) SetMessageFeedback(ctx context.Context, messageID string, isHelpful bool, reason *string) error {
	var r sql.NullString
	if !isHelpful && reason != nil && strings.TrimSpace(*reason) != "" {
		r = sql.NullString{String: strings.TrimSpace(*reason), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET is_helpful = ?, reason = ? WHERE id = ? AND role = 'machine'", isHelpful, r, messageID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("machine message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SetMessageCategory(ctx context.Context, messageID, category string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET category = ? WHERE id = ?", category, messageID)
	if err != nil {
		return fmt.Errorf("failed to execute category update: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}
