package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"helix/internal/models"
	"helix/internal/storage"

	"github.com/google/uuid"
)

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sql.DB, dbType string) (*SQLStore, error) {
	driver, err := storage.Driver(dbType)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// upsert appends the dialect's conflict clause updating cols from the new row.
func (s *SQLStore) upsert(insert string, keys []string, cols ...string) string {
	sets := make([]string, len(cols))
	if s.driver == "mysql" {
		for i, col := range cols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
		}
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", insert, strings.Join(keys, ", "), strings.Join(sets, ", "))
}

func (s *SQLStore) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	var c models.Character
	var config []byte
	err := s.queryRow(ctx,
		`SELECT id, name, universe_id, persona_config FROM characters WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.UniverseID, &config)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("character not found")
		}
		return nil, fmt.Errorf("get character: %w", err)
	}
	c.PersonaConfig = config
	return &c, nil
}

func (s *SQLStore) GetUniverse(ctx context.Context, id string) (*models.Universe, error) {
	var u models.Universe
	err := s.queryRow(ctx, `SELECT id, name FROM universes WHERE id = ?`, id).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("universe not found")
		}
		return nil, fmt.Errorf("get universe: %w", err)
	}
	return &u, nil
}

func (s *SQLStore) ListUniverses(ctx context.Context) ([]models.Universe, error) {
	rows, err := s.query(ctx, `SELECT id, name FROM universes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list universes: %w", err)
	}
	defer rows.Close()

	universes := []models.Universe{}
	for rows.Next() {
		var u models.Universe
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("scan universe: %w", err)
		}
		universes = append(universes, u)
	}
	return universes, rows.Err()
}

func (s *SQLStore) ListCharacters(ctx context.Context, universeID string) ([]models.Character, error) {
	rows, err := s.query(ctx,
		`SELECT id, name, universe_id, persona_config FROM characters WHERE universe_id = ? ORDER BY name ASC`,
		universeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	characters := []models.Character{}
	for rows.Next() {
		var c models.Character
		var config []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.UniverseID, &config); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		c.PersonaConfig = config
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

const messageColumns = `id, conversation_id, sender, content, user_id, timestamp`

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	var userID sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &userID, &m.Timestamp); err != nil {
		return nil, err
	}
	m.UserID = userID.String
	return &m, nil
}

func (s *SQLStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	reverse(messages)
	return messages, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return messages, nil
}

func (s *SQLStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(s.queryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("message not found")
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// InsertMessage fills in the id and timestamp when the caller left them empty.
func (s *SQLStore) InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	var userID any
	if msg.UserID != "" {
		userID = msg.UserID
	}
	_, err := s.exec(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Sender), msg.Content, userID, msg.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

const conversationColumns = `id, user_id, character_id, started_at, pinned, archived`

func scanConversation(row scanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.CharacterID, &c.StartedAt, &c.Pinned, &c.Archived); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLStore) CreateConversation(ctx context.Context, userID, characterID string) (*models.Conversation, error) {
	conv := models.Conversation{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: characterID,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.exec(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.CharacterID, conv.StartedAt, false, false,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := scanConversation(s.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("conversation not found")
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, userID string, includeArchived bool) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = ?`
	if !includeArchived {
		query += ` AND archived = ?`
	}
	query += ` ORDER BY pinned DESC, started_at DESC`
	args := []any{userID}
	if !includeArchived {
		args = append(args, false)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

func (s *SQLStore) UpdateConversation(ctx context.Context, id string, patch models.ConversationPatch) (*models.Conversation, error) {
	var sets []string
	var args []any
	if patch.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, *patch.Pinned)
	}
	if patch.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, *patch.Archived)
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.exec(ctx, `UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("update conversation: %w", err)
		}
		// mysql counts changed rows rather than matched ones
		if affected, err := res.RowsAffected(); err == nil && affected == 0 && s.driver != "mysql" {
			return nil, NotFound("conversation not found")
		}
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLStore) UpsertUser(ctx context.Context, user models.User) error {
	query := s.upsert(`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`, []string{"id"}, "email")
	if _, err := s.exec(ctx, query, user.ID, user.Email, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *SQLStore) UpsertFeedback(ctx context.Context, fb models.Feedback) error {
	query := s.upsert(
		`INSERT INTO feedback (message_id, user_id, rating, created_at) VALUES (?, ?, ?, ?)`,
		[]string{"message_id", "user_id"}, "rating", "created_at",
	)
	if _, err := s.exec(ctx, query, fb.MessageID, fb.UserID, fb.Rating, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}
	return nil
}
