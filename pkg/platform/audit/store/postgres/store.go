package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "casegate/pkg/platform/audit"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts the event. Re-appending an event with the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	var crisisID sql.NullInt64
	if event.CrisisID != 0 {
		crisisID = sql.NullInt64{Int64: event.CrisisID, Valid: true}
	}
	query := `
		INSERT INTO audit_events (id, action, fingerprint, crisis_id, tag, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		event.Fingerprint,
		crisisID,
		event.Tag,
		event.Reason,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByFingerprint returns the events for one fingerprint, oldest first.
func (s *Store) ListByFingerprint(ctx context.Context, fingerprint string) ([]audit.Event, error) {
	return s.query(ctx, `
		SELECT id, action, fingerprint, crisis_id, tag, reason, request_id, created_at
		FROM audit_events WHERE fingerprint = $1 ORDER BY created_at ASC
	`, fingerprint)
}

// ListRecent returns up to limit of the newest events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.query(ctx, `
		SELECT id, action, fingerprint, crisis_id, tag, reason, request_id, created_at
		FROM audit_events ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			action   string
			crisisID sql.NullInt64
		)
		if err := rows.Scan(&event.ID, &action, &event.Fingerprint, &crisisID, &event.Tag,
			&event.Reason, &event.RequestID, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		event.CrisisID = crisisID.Int64
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
