package inbox

import (
	"context"

	"github.com/o-castellano/botdesk/libs/db"
)

// Repository dedupes consumed events. Each service keeps its own
// inbox_events table so redeliveries are filtered per consumer group.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record returns false when the event id was already processed.
func (r *Repository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		// Messages without an event id header cannot be deduped; process them.
		return true, nil
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
