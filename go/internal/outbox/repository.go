package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/arena/go/internal/events"
	"github.com/mcdev12/arena/go/internal/sqlutil"
)

// Execer is satisfied by a pool or an open transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert writes an event row. Callers pass their transaction so the event
// commits together with the state change it describes.
func Insert(ctx context.Context, db Execer, event Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO outbox_events (id, competition_id, lan_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.CompetitionID, event.Identifier, string(event.EventType), event.Payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, competition_id, lan_id, event_type, payload, created_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, competition_id, lan_id, event_type, payload, created_at
		FROM outbox_events
		WHERE id = $1 AND sent_at IS NULL`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return ev, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE outbox_events SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		ev        Event
		eventType string
	)
	if err := row.Scan(&ev.ID, &ev.CompetitionID, &ev.Identifier, &eventType, &ev.Payload, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.EventType = events.Type(eventType)
	return &ev, nil
}
