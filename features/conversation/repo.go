package conversation

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, title string) (string, error) {
	var id string
	query := `INSERT INTO conversations (title) VALUES ($1) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, title).Scan(&id)
	return id, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Conversation, error) {
	query := `SELECT c.id, c.title, c.created_at, c.last_activity_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON c.id = m.conversation_id
		GROUP BY c.id, c.title, c.created_at, c.last_activity_at
		ORDER BY c.last_activity_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.LastActivityAt, &c.MessageCount); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (r *PostgresRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `SELECT id, role, content, sources, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var sources sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &sources, &m.CreatedAt); err != nil {
			return nil, err
		}
		if sources.Valid {
			m.Sources = []byte(sources.String)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresRepo) AppendMessage(ctx context.Context, conversationID, role, content string, sources []byte) error {
	var src interface{}
	if len(sources) > 0 {
		src = string(sources)
	}
	query := `INSERT INTO messages (conversation_id, role, content, sources) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, conversationID, role, content, src); err != nil {
		return err
	}
	touch := `UPDATE conversations SET last_activity_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, touch, conversationID)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM conversations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM conversations`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
