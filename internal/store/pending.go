package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// CreatePendingLog stores a provisional extraction and returns its id.
func (s *Store) CreatePendingLog(entry PendingLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO pending_logs (id, user_id, conversation_id, log_type, structured_data, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, entry.UserID, entry.ConversationID, entry.LogType, entry.StructuredData, PendingStatusPending, now(), now())
	if err != nil {
		return "", fmt.Errorf("create pending log: %w", err)
	}
	return id, nil
}

func (s *Store) PendingLog(id string) (*PendingLog, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, conversation_id, log_type, structured_data, status, status_reason, linked_entity_id, created_at, updated_at
		FROM pending_logs WHERE id = ?
	`, id)

	var p PendingLog
	err := row.Scan(&p.ID, &p.UserID, &p.ConversationID, &p.LogType, &p.StructuredData,
		&p.Status, &p.StatusReason, &p.LinkedEntityID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending log: %w", err)
	}
	return &p, nil
}

// UpdatePendingLogStatus transitions a pending entry. Terminal states are
// immutable: the guard clause refuses to overwrite confirmed or cancelled
// rows, which is what makes confirmation idempotent at the storage level.
func (s *Store) UpdatePendingLogStatus(id, status, reason, linkedEntityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE pending_logs
		SET status = ?, status_reason = ?, linked_entity_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, reason, linkedEntityID, now(), id, PendingStatusPending)
	if err != nil {
		return fmt.Errorf("update pending log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pending log: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("pending log %s: no pending row to transition", id)
	}
	return nil
}

// ExpirePendingBefore cancels all pending entries created before cutoff
// (RFC3339). Returns the number of entries expired.
func (s *Store) ExpirePendingBefore(cutoff string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE pending_logs
		SET status = ?, status_reason = 'expired', updated_at = ?
		WHERE status = ? AND created_at < ?
	`, PendingStatusCancelled, now(), PendingStatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending logs: %w", err)
	}
	return res.RowsAffected()
}
