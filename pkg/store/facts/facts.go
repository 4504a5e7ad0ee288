package facts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/mvaldes/sentira/pkg/model"
)

const upsertRetries = 3

// Store accumulates per-(fact, theme) statistics. Upserts are purely
// additive: count increments by one per observation and each emotion value
// is added to its running sum inside a single transaction, so concurrent
// writers cannot lose updates.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Upsert folds one observation into its aggregate and returns the updated
// record. Emotion values outside (0, 1] are skipped; they carry no
// information and must not dilute averages. Contended writes are retried
// before surfacing ErrAggregateConflict.
func (s *Store) Upsert(ctx context.Context, obs model.Observation) (model.FactAggregate, error) {
	if obs.Fact == "" {
		return model.FactAggregate{}, fmt.Errorf("observation fact is required")
	}

	var lastErr error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		err := s.upsertOnce(ctx, obs)
		if err == nil {
			return s.Get(ctx, obs.Fact, obs.Theme)
		}
		if !isBusy(err) {
			return model.FactAggregate{}, err
		}
		lastErr = err
		s.logger.Warn("aggregate upsert contended, retrying",
			"fact", obs.Fact, "theme", obs.Theme, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return model.FactAggregate{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return model.FactAggregate{}, fmt.Errorf("%w: %v", model.ErrAggregateConflict, lastErr)
}

func (s *Store) upsertOnce(ctx context.Context, obs model.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO facts(fact, theme, count, updated_at)
        VALUES(?, ?, 1, CURRENT_TIMESTAMP)
        ON CONFLICT(fact, theme) DO UPDATE SET
            count = count + 1,
            updated_at = CURRENT_TIMESTAMP;
    `, obs.Fact, obs.Theme); err != nil {
		return err
	}

	for emotion, value := range obs.Emotions {
		if value <= 0 || value > 1 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO fact_emotions(fact, theme, emotion, total)
            VALUES(?, ?, ?, ?)
            ON CONFLICT(fact, theme, emotion) DO UPDATE SET
                total = total + excluded.total;
        `, obs.Fact, obs.Theme, emotion, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get reads one aggregate by key.
func (s *Store) Get(ctx context.Context, fact, theme string) (model.FactAggregate, error) {
	agg := model.FactAggregate{Fact: fact, Theme: theme, EmotionSum: map[string]float64{}}
	err := s.db.QueryRowContext(ctx, `
        SELECT count, updated_at FROM facts WHERE fact = ? AND theme = ?;
    `, fact, theme).Scan(&agg.Count, &agg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FactAggregate{}, fmt.Errorf("%w: fact %q theme %q", model.ErrNotFound, fact, theme)
	}
	if err != nil {
		return model.FactAggregate{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT emotion, total FROM fact_emotions WHERE fact = ? AND theme = ?;
    `, fact, theme)
	if err != nil {
		return model.FactAggregate{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var emotion string
		var total float64
		if err := rows.Scan(&emotion, &total); err != nil {
			return model.FactAggregate{}, err
		}
		agg.EmotionSum[emotion] = total
	}
	return agg, rows.Err()
}

// ByTheme lists all aggregates under one theme.
func (s *Store) ByTheme(ctx context.Context, theme string) ([]model.FactAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT fact FROM facts WHERE theme = ? ORDER BY count DESC, fact;
    `, theme)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var fact string
		if err := rows.Scan(&fact); err != nil {
			return nil, err
		}
		names = append(names, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.FactAggregate, 0, len(names))
	for _, fact := range names {
		agg, err := s.Get(ctx, fact, theme)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

var _ model.AggregateStore = (*Store)(nil)
