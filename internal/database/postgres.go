package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Database = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.For("database").Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Migrate creates the tables the gateway and its collaborators read.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, username, COALESCE(avatar_url, ''), password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Username, &user.AvatarURL, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (email, username, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, email, username, created_at`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email, username, passwordHash).Scan(
		&user.ID, &user.Email, &user.Username, &user.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, username, COALESCE(avatar_url, ''), created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Username, &user.AvatarURL, &user.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// Token Repository Implementation
func (db *PostgresDB) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, NOW())`
	_, err := db.pool.Exec(ctx, query, token.ID, token.UserID, token.ExpiresAt)
	return translate(err)
}

func (db *PostgresDB) GetRefreshToken(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `SELECT id, user_id, expires_at, revoked_at FROM refresh_tokens WHERE id = $1`

	token := &models.RefreshToken{}
	if err := db.pool.QueryRow(ctx, query, id).Scan(&token.ID, &token.UserID, &token.ExpiresAt, &token.RevokedAt); err != nil {
		return nil, translate(err)
	}
	return token, nil
}

func (db *PostgresDB) RevokeRefreshToken(ctx context.Context, id string) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	tag, err := db.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *PostgresDB) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`
	_, err := db.pool.Exec(ctx, query, userID)
	return err
}

// Membership Directory Implementation
func (db *PostgresDB) ServerIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return db.collectIDs(ctx, `SELECT server_id FROM server_members WHERE user_id = $1 ORDER BY joined_at`, userID)
}

func (db *PostgresDB) DirectThreadIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return db.collectIDs(ctx, `SELECT thread_id FROM direct_members WHERE user_id = $1`, userID)
}

func (db *PostgresDB) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (db *PostgresDB) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	query := `SELECT id, server_id, name, type, min_role FROM channels WHERE id = $1`

	ch := &models.Channel{}
	if err := db.pool.QueryRow(ctx, query, channelID).Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.Type, &ch.MinRole); err != nil {
		return nil, translate(err)
	}
	return ch, nil
}

func (db *PostgresDB) GetMember(ctx context.Context, serverID, userID string) (*models.ServerMember, error) {
	query := `SELECT server_id, user_id, role, joined_at FROM server_members WHERE server_id = $1 AND user_id = $2`

	m := &models.ServerMember{}
	if err := db.pool.QueryRow(ctx, query, serverID, userID).Scan(&m.ServerID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (db *PostgresDB) IsBanned(ctx context.Context, serverID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM server_bans WHERE server_id = $1 AND user_id = $2)`

	var banned bool
	err := db.pool.QueryRow(ctx, query, serverID, userID).Scan(&banned)
	return banned, err
}

// Invite Repository Implementation
func (db *PostgresDB) GetInviteByCode(ctx context.Context, code string) (*models.Invite, error) {
	query := `SELECT id, code, server_id, max_uses, uses, expires_at, revoked FROM invites WHERE code = $1`

	inv := &models.Invite{}
	err := db.pool.QueryRow(ctx, query, code).Scan(
		&inv.ID, &inv.Code, &inv.ServerID, &inv.MaxUses, &inv.Uses, &inv.ExpiresAt, &inv.Revoked,
	)
	if err != nil {
		return nil, translate(err)
	}
	return inv, nil
}

func (db *PostgresDB) AcceptInvite(ctx context.Context, invite *models.Invite, userID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Increment only while the invite still has uses left.
	tag, err := tx.Exec(ctx, `
		UPDATE invites SET uses = uses + 1
		WHERE id = $1 AND NOT revoked AND (max_uses IS NULL OR uses < max_uses)`, invite.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invite exhausted: %w", models.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO server_members (server_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, NOW())`, invite.ServerID, userID, models.RoleMember); err != nil {
		return translate(err)
	}

	return tx.Commit(ctx)
}

func (db *PostgresDB) GetServer(ctx context.Context, id string) (*models.Server, error) {
	query := `SELECT id, name, COALESCE(icon_url, ''), owner_id, created_at FROM servers WHERE id = $1`

	srv := &models.Server{}
	if err := db.pool.QueryRow(ctx, query, id).Scan(&srv.ID, &srv.Name, &srv.IconURL, &srv.OwnerID, &srv.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return srv, nil
}

// Moderation Repository Implementation
func (db *PostgresDB) RemoveMember(ctx context.Context, serverID, userID string) error {
	return db.execOne(ctx, `DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`, serverID, userID)
}

func (db *PostgresDB) BanMember(ctx context.Context, serverID, userID, bannedBy, reason string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO server_bans (server_id, user_id, created_by, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (server_id, user_id) DO UPDATE SET reason = EXCLUDED.reason`,
		serverID, userID, bannedBy, reason); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`, serverID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Direct Repository Implementation
func (db *PostgresDB) FindThreadBetween(ctx context.Context, userA, userB string) (*models.DirectThread, error) {
	query := `
		SELECT t.id, t.created_at
		FROM direct_threads t
		JOIN direct_members a ON a.thread_id = t.id AND a.user_id = $1
		JOIN direct_members b ON b.thread_id = t.id AND b.user_id = $2
		LIMIT 1`

	thread := &models.DirectThread{UserIDs: []string{userA, userB}}
	if err := db.pool.QueryRow(ctx, query, userA, userB).Scan(&thread.ID, &thread.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return thread, nil
}

func (db *PostgresDB) CreateThread(ctx context.Context, userA, userB string) (*models.DirectThread, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	thread := &models.DirectThread{UserIDs: []string{userA, userB}}
	if err := tx.QueryRow(ctx, `INSERT INTO direct_threads (created_at) VALUES (NOW()) RETURNING id, created_at`).
		Scan(&thread.ID, &thread.CreatedAt); err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for _, uid := range thread.UserIDs {
		batch.Queue(`INSERT INTO direct_members (thread_id, user_id) VALUES ($1, $2)`, thread.ID, uid)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return thread, nil
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, channelID, authorID, content string) (*models.Message, error) {
	query := `
		INSERT INTO messages (channel_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	msg := &models.Message{ChannelID: channelID, AuthorID: authorID, Content: content}
	if err := db.pool.QueryRow(ctx, query, channelID, authorID, content, time.Now().UTC()).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return msg, nil
}

const messageColumns = `id, channel_id, author_id, content, created_at, edited_at, deleted_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	if err := row.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.CreatedAt, &m.EditedAt, &m.DeletedAt); err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return scanMessage(db.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (db *PostgresDB) EditMessage(ctx context.Context, id, content string, at time.Time) (*models.Message, error) {
	query := `
		UPDATE messages SET content = $2, edited_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + messageColumns

	return scanMessage(db.pool.QueryRow(ctx, query, id, content, at))
}

func (db *PostgresDB) DeleteMessage(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE messages SET content = '', deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	return db.execOne(ctx, query, id, at)
}

func (db *PostgresDB) AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error) {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		RETURNING id`

	r := &models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	if err := db.pool.QueryRow(ctx, query, messageID, userID, emoji).Scan(&r.ID); err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (db *PostgresDB) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	query := `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`
	_, err := db.pool.Exec(ctx, query, messageID, userID, emoji)
	return err
}

// execOne runs a statement that must touch exactly one live row.
func (db *PostgresDB) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Channel Repository Implementation
func (db *PostgresDB) CreateChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	query := `
		INSERT INTO channels (server_id, name, type, min_role)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	created := *ch
	if err := db.pool.QueryRow(ctx, query, ch.ServerID, ch.Name, ch.Type, ch.MinRole).Scan(&created.ID); err != nil {
		return nil, translate(err)
	}
	return &created, nil
}

func (db *PostgresDB) UpdateChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	query := `
		UPDATE channels SET name = $2, min_role = $3
		WHERE id = $1
		RETURNING id, server_id, name, type, min_role`

	updated := &models.Channel{}
	err := db.pool.QueryRow(ctx, query, ch.ID, ch.Name, ch.MinRole).
		Scan(&updated.ID, &updated.ServerID, &updated.Name, &updated.Type, &updated.MinRole)
	if err != nil {
		return nil, translate(err)
	}
	return updated, nil
}

func (db *PostgresDB) DeleteChannel(ctx context.Context, channelID string) error {
	return db.execOne(ctx, `DELETE FROM channels WHERE id = $1`, channelID)
}

// Direct Message Repository Implementation
const directMessageColumns = `id, thread_id, author_id, content, created_at, edited_at, deleted_at`

func scanDirectMessage(row pgx.Row) (*models.DirectMessage, error) {
	m := &models.DirectMessage{}
	if err := row.Scan(&m.ID, &m.ThreadID, &m.AuthorID, &m.Content, &m.CreatedAt, &m.EditedAt, &m.DeletedAt); err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (db *PostgresDB) IsThreadMember(ctx context.Context, threadID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM direct_members WHERE thread_id = $1 AND user_id = $2)`

	var member bool
	if err := db.pool.QueryRow(ctx, query, threadID, userID).Scan(&member); err != nil {
		return false, err
	}
	return member, nil
}

func (db *PostgresDB) SaveDirectMessage(ctx context.Context, threadID, authorID, content string) (*models.DirectMessage, error) {
	query := `
		INSERT INTO direct_messages (thread_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + directMessageColumns

	return scanDirectMessage(db.pool.QueryRow(ctx, query, threadID, authorID, content, time.Now().UTC()))
}

func (db *PostgresDB) GetDirectMessage(ctx context.Context, id string) (*models.DirectMessage, error) {
	return scanDirectMessage(db.pool.QueryRow(ctx, `SELECT `+directMessageColumns+` FROM direct_messages WHERE id = $1`, id))
}

func (db *PostgresDB) EditDirectMessage(ctx context.Context, id, content string, at time.Time) (*models.DirectMessage, error) {
	query := `
		UPDATE direct_messages SET content = $2, edited_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + directMessageColumns

	return scanDirectMessage(db.pool.QueryRow(ctx, query, id, content, at))
}

func (db *PostgresDB) DeleteDirectMessage(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE direct_messages SET content = '', deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	return db.execOne(ctx, query, id, at)
}

func (db *PostgresDB) AddDirectReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error) {
	query := `
		INSERT INTO direct_message_reactions (direct_message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		RETURNING id`

	r := &models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	if err := db.pool.QueryRow(ctx, query, messageID, userID, emoji).Scan(&r.ID); err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (db *PostgresDB) RemoveDirectReaction(ctx context.Context, messageID, userID, emoji string) error {
	query := `DELETE FROM direct_message_reactions WHERE direct_message_id = $1 AND user_id = $2 AND emoji = $3`
	_, err := db.pool.Exec(ctx, query, messageID, userID, emoji)
	return err
}
