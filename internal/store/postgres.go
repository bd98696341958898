package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"codecollab/api/internal/collab"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage persists a chat message and returns the stored record with
// its server-assigned creation time. The write is awaited by the caller
// before any broadcast happens.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	const insert = `
		INSERT INTO messages (id, room, user_id, user_name, text, client_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, insert,
		msg.ID, msg.Room, msg.UserID, msg.UserName, msg.Text, msg.ClientMessageID,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListRecentMessages returns up to limit of the newest messages in a room,
// reordered ascending by creation time for replay.
func (s *PostgresStore) ListRecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	const query = `
		SELECT id, room, user_id, user_name, text, client_message_id, created_at
		FROM (
			SELECT id, room, user_id, user_name, text, client_message_id, created_at
			FROM messages
			WHERE room = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var clientID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.UserID, &msg.UserName, &msg.Text, &clientID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ClientMessageID = clientID.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ResolveSession looks a collaborative session up by id or slug. The session
// records are owned by the external session service; this is the read-only
// role-lookup path. Returns sql.ErrNoRows when nothing matches.
func (s *PostgresStore) ResolveSession(ctx context.Context, idOrSlug string) (collab.Session, error) {
	const query = `
		SELECT id, name, slug, owner_id, owner_email, owner_name, invites
		FROM collab_sessions
		WHERE id = $1 OR slug = $1
		LIMIT 1
	`
	var session collab.Session
	var invitesRaw []byte
	err := s.db.QueryRowContext(ctx, query, idOrSlug).Scan(
		&session.ID, &session.Name, &session.Slug,
		&session.OwnerID, &session.OwnerEmail, &session.OwnerName, &invitesRaw,
	)
	if err != nil {
		return collab.Session{}, err
	}
	if len(invitesRaw) > 0 {
		if err := json.Unmarshal(invitesRaw, &session.Invites); err != nil {
			return collab.Session{}, fmt.Errorf("decode invites for session %s: %w", session.ID, err)
		}
	}
	return session, nil
}

// Login session fallback used when Redis is not configured.

func (s *PostgresStore) SaveLoginSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_sessions (token_hash, user_id, user_name, user_email, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE
			SET user_id=EXCLUDED.user_id, user_name=EXCLUDED.user_name,
			    user_email=EXCLUDED.user_email, expires_at=EXCLUDED.expires_at
	`, tokenHash, user.ID, user.Name, user.Email, expiresAt)
	if err != nil {
		return fmt.Errorf("save login session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupLoginSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT user_id, user_name, user_email
		FROM login_sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeLoginSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke login session: %w", err)
	}
	return nil
}
