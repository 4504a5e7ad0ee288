package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mvaldes/sentira/pkg/model"
)

// InsertEntry persists raw journal text before extraction runs and
// returns the entry id.
func (d *Database) InsertEntry(ctx context.Context, entry model.JournalEntry) (string, error) {
	if entry.Content == "" {
		return "", fmt.Errorf("entry content is required")
	}
	if entry.UserID == "" {
		return "", fmt.Errorf("entry user_id is required")
	}
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := d.db.ExecContext(ctx, `
        INSERT INTO journal_entries(id, user_id, type, content, created_at)
        VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP);
    `, id, entry.UserID, string(entry.Type), entry.Content)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecentEntries fetches a user's latest raw entries.
func (d *Database) RecentEntries(ctx context.Context, userID string, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, user_id, type, content, created_at
        FROM journal_entries
        WHERE user_id = ?
        ORDER BY created_at DESC
        LIMIT ?;
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = model.InputType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
