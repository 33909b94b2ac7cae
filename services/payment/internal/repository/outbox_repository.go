package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kyungseok/course-payments/common/events"
)

// Outbox statuses
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
)

// OutboxEvent is an event waiting to be relayed to Kafka
type OutboxEvent struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        string
	CreatedAt     time.Time
	SentAt        *time.Time
}

// NewOutboxEvent marshals event into a pending outbox row
func NewOutboxEvent(aggregateType, aggregateID string, eventType events.EventType, event interface{}, now time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       payload,
		Status:        OutboxStatusPending,
		CreatedAt:     now,
	}, nil
}

// OutboxRepository stores and drains outbox events
type OutboxRepository interface {
	Insert(ctx context.Context, event *OutboxEvent) error
	InsertTx(ctx context.Context, tx DBTX, event *OutboxEvent) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
}

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates an outbox repository
func NewOutboxRepository(db *sql.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

const insertOutboxQuery = `
	INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id
`

// Insert writes an event outside any transaction
func (r *outboxRepository) Insert(ctx context.Context, event *OutboxEvent) error {
	return r.InsertTx(ctx, r.db, event)
}

// InsertTx writes an event in the caller's transaction
func (r *outboxRepository) InsertTx(ctx context.Context, tx DBTX, event *OutboxEvent) error {
	err := tx.QueryRowContext(
		ctx,
		insertOutboxQuery,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// FindPending returns the oldest unsent events
func (r *outboxRepository) FindPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status, created_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending events: %w", err)
	}
	defer rows.Close()

	var pending []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		var payload []byte
		err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&payload,
			&event.Status,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.Payload = payload
		pending = append(pending, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}

	return pending, nil
}

// MarkSent flags an event as relayed
func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = $1, sent_at = NOW()
		WHERE id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, OutboxStatusSent, id); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	return nil
}
