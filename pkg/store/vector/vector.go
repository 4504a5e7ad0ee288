package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mvaldes/sentira/pkg/model"
)

// Store is a SQLite-backed vector index: rows carry a JSON-encoded
// embedding plus the metadata the retrieval layer filters on (user_id,
// kind, pair_id). Similarity is brute-force cosine over the filtered rows,
// which stays cheap at per-user journal scale.
type Store struct {
	db  *sql.DB
	dim int
}

func New(db *sql.DB, dim int) *Store {
	return &Store{db: db, dim: dim}
}

// UpsertPair writes both halves of an embedding pair in one transaction.
// Either both vectors persist or neither does; a half-pair is never
// observable.
func (s *Store) UpsertPair(ctx context.Context, pair model.EmbeddingPair) error {
	if pair.PairID == "" {
		return fmt.Errorf("%w: missing pair id", model.ErrPairWriteIncomplete)
	}
	if err := s.checkRecord(pair.Fact, model.KindFact, pair.PairID); err != nil {
		return err
	}
	if err := s.checkRecord(pair.Emotion, model.KindEmotion, pair.PairID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range []model.VectorRecord{pair.Fact, pair.Emotion} {
		emb, err := json.Marshal(rec.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO vectors(id, user_id, kind, fact, emotion, pair_id, embedding)
            VALUES(?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding;
        `, rec.ID, rec.UserID, string(rec.Kind), rec.Fact, rec.Emotion, rec.PairID, string(emb)); err != nil {
			return fmt.Errorf("%w: %v", model.ErrPairWriteIncomplete, err)
		}
	}
	return tx.Commit()
}

func (s *Store) checkRecord(rec model.VectorRecord, kind model.VectorKind, pairID string) error {
	if rec.ID == "" || rec.Kind != kind || rec.PairID != pairID {
		return fmt.Errorf("%w: malformed %s half", model.ErrPairWriteIncomplete, kind)
	}
	if len(rec.Embedding) == 0 {
		return errors.New("embedding is empty")
	}
	if s.dim > 0 && len(rec.Embedding) != s.dim {
		return fmt.Errorf("embedding dimension mismatch: got %d want %d", len(rec.Embedding), s.dim)
	}
	return nil
}

// Query returns the topK most similar stored vectors matching the filter,
// ordered by descending cosine similarity.
func (s *Store) Query(ctx context.Context, vector []float64, topK int, filter model.VectorFilter) ([]model.VectorMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	if s.dim > 0 && len(vector) != s.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d want %d", len(vector), s.dim)
	}

	query := `SELECT id, user_id, kind, fact, emotion, pair_id, embedding FROM vectors`
	var conds []string
	var args []any
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(filter.PairIDs) > 0 {
		conds = append(conds, "pair_id IN ("+placeholders(len(filter.PairIDs))+")")
		for _, id := range filter.PairIDs {
			args = append(args, id)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.VectorMatch
	for rows.Next() {
		var rec model.VectorRecord
		var kind, emb string
		if err := rows.Scan(&rec.ID, &rec.UserID, &kind, &rec.Fact, &rec.Emotion, &rec.PairID, &emb); err != nil {
			return nil, err
		}
		rec.Kind = model.VectorKind(kind)
		if err := json.Unmarshal([]byte(emb), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", rec.ID, err)
		}
		matches = append(matches, model.VectorMatch{
			Record: rec,
			Score:  cosine(vector, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, '?')
		if i != n-1 {
			out = append(out, ',')
		}
	}
	return string(out)
}

var _ model.VectorIndex = (*Store)(nil)
