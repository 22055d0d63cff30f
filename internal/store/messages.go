package store

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EnsureConversation returns the conversation, creating it when id is empty
// or unknown. A conversation belongs to exactly one user; a mismatched owner
// is treated as unknown rather than leaked.
func (s *Store) EnsureConversation(userID, conversationID string) (*Conversation, error) {
	if conversationID != "" {
		conv, err := s.Conversation(conversationID)
		if err == nil && conv.UserID == userID {
			return conv, nil
		}
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
	}

	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) Conversation(id string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, language, archived, last_message_preview, message_count, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	var c Conversation
	var archived int
	if err := row.Scan(&c.ID, &c.UserID, &c.Language, &archived, &c.LastMessagePreview, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Archived = archived == 1
	return &c, nil
}

// AppendMessage stores one immutable message and returns its id.
func (s *Store) AppendMessage(msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	id, err := appendMessageTx(tx, msg)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit append: %w", err)
	}
	return id, nil
}

// AppendTurn atomically persists the assistant message together with its
// tool-call audit records, so a crash cannot separate a reply from the tool
// activity that produced it.
func (s *Store) AppendTurn(msg Message, calls []ToolCallRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	id, err := appendMessageTx(tx, msg)
	if err != nil {
		return "", err
	}

	for _, call := range calls {
		callID := call.ID
		if callID == "" {
			callID = uuid.NewString()
		}
		_, err := tx.Exec(`
			INSERT INTO tool_calls (id, conversation_id, message_id, name, params, result, is_error, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, callID, msg.ConversationID, id, call.Name, call.Params, call.Result, boolToInt(call.IsError), call.DurationMs, now())
		if err != nil {
			return "", fmt.Errorf("insert tool call: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit turn: %w", err)
	}
	return id, nil
}

func appendMessageTx(tx *sql.Tx, msg Message) (string, error) {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt == "" {
		createdAt = now()
	}

	var seq int
	row := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, msg.ConversationID)
	if err := row.Scan(&seq); err != nil {
		return "", fmt.Errorf("next seq: %w", err)
	}

	_, err := tx.Exec(`
		INSERT INTO messages (id, conversation_id, seq, role, content, provider, model, cost_usd, ephemeral_ack, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, msg.ConversationID, seq, msg.Role, msg.Content, msg.Provider, msg.Model, msg.CostUSD, boolToInt(msg.EphemeralAck), createdAt)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// RecentMessages returns the last limit messages, oldest first. Ephemeral
// acknowledgment messages are excluded: they are UX filler, not context.
func (s *Store) RecentMessages(conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, provider, model, cost_usd, ephemeral_ack, created_at
		FROM messages
		WHERE conversation_id = ? AND ephemeral_ack = 0
		ORDER BY seq DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SearchMessagesByTerms finds messages older than the most recent
// excludeRecent entries whose content matches any of the terms, oldest first.
func (s *Store) SearchMessagesByTerms(conversationID string, terms []string, excludeRecent int) ([]Message, error) {
	matchQuery := buildMatchQuery(terms)
	if matchQuery == "" {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT m.id, m.conversation_id, m.role, m.content, m.provider, m.model, m.cost_usd, m.ephemeral_ack, m.created_at
		FROM messages m
		JOIN messages_fts f ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?
		  AND m.conversation_id = ?
		  AND m.ephemeral_ack = 0
		  AND m.seq <= (SELECT COALESCE(MAX(seq), 0) - ? FROM messages WHERE conversation_id = ?)
		ORDER BY m.seq ASC
	`, matchQuery, conversationID, excludeRecent, conversationID)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// buildMatchQuery quotes each term for FTS5 and joins with OR. Terms that
// sanitize to nothing are dropped.
func buildMatchQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case '"', '\'', '(', ')', '*', ':', '^', '-':
				return -1
			}
			return r
		}, strings.TrimSpace(term))
		if cleaned == "" {
			continue
		}
		parts = append(parts, `"`+cleaned+`"`)
	}
	return strings.Join(parts, " OR ")
}

// UpdateConversationMeta refreshes the denormalized list-view fields.
// Last-write-wins is acceptable: these fields are not authoritative.
func (s *Store) UpdateConversationMeta(conversationID, preview string) error {
	if len(preview) > 120 {
		cut := 120
		// Back up to a rune boundary so the preview stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	_, err := s.db.Exec(`
		UPDATE conversations
		SET last_message_preview = ?,
		    message_count = (SELECT COUNT(*) FROM messages WHERE conversation_id = ?),
		    updated_at = ?
		WHERE id = ?
	`, preview, conversationID, now(), conversationID)
	if err != nil {
		return fmt.Errorf("update conversation meta: %w", err)
	}
	return nil
}

// SetConversationLanguage pins the resolved reply language on the
// conversation so later turns skip detection.
func (s *Store) SetConversationLanguage(conversationID, language string) error {
	_, err := s.db.Exec(`UPDATE conversations SET language = ?, updated_at = ? WHERE id = ?`,
		language, now(), conversationID)
	if err != nil {
		return fmt.Errorf("set conversation language: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	result := make([]Message, 0)
	for rows.Next() {
		var m Message
		var ack int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Provider, &m.Model, &m.CostUSD, &ack, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.EphemeralAck = ack == 1
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}
