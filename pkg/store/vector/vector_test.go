package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mvaldes/sentira/pkg/model"
	"github.com/mvaldes/sentira/pkg/store/sqlite"
)

const dim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.New(context.Background(), sqlite.Config{
		Path:      filepath.Join(t.TempDir(), "vectors.db"),
		VectorDim: dim,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db.DB(), dim)
}

func pair(pairID, userID, fact, emotion string, factVec, emotionVec []float64) model.EmbeddingPair {
	return model.EmbeddingPair{
		PairID: pairID,
		Fact: model.VectorRecord{
			ID: pairID + "-fact", UserID: userID, Kind: model.KindFact,
			Fact: fact, Emotion: emotion, PairID: pairID, Embedding: factVec,
		},
		Emotion: model.VectorRecord{
			ID: pairID + "-emotion", UserID: userID, Kind: model.KindEmotion,
			Fact: fact, Emotion: emotion, PairID: pairID, Embedding: emotionVec,
		},
	}
}

func TestUpsertPair_BothHalvesPersist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := pair("p1", "u1", "correr", "alegría", []float64{1, 0, 0, 0}, []float64{0, 1, 0, 0})
	if err := store.UpsertPair(ctx, p); err != nil {
		t.Fatalf("upsert pair: %v", err)
	}

	matches, err := store.Query(ctx, []float64{1, 0, 0, 0}, 10, model.VectorFilter{PairIDs: []string{"p1"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d records for pair, want exactly 2", len(matches))
	}
	kinds := map[model.VectorKind]int{}
	for _, m := range matches {
		kinds[m.Record.Kind]++
		if m.Record.UserID != "u1" {
			t.Errorf("user_id = %q, want u1", m.Record.UserID)
		}
	}
	if kinds[model.KindFact] != 1 || kinds[model.KindEmotion] != 1 {
		t.Errorf("kinds = %v, want one fact and one emotion", kinds)
	}
}

func TestUpsertPair_RejectsMalformedHalf(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := pair("p1", "u1", "correr", "alegría", []float64{1, 0, 0, 0}, []float64{0, 1, 0, 0})
	p.Emotion.Kind = model.KindFact // both halves claim the same kind
	err := store.UpsertPair(ctx, p)
	if !errors.Is(err, model.ErrPairWriteIncomplete) {
		t.Fatalf("err = %v, want ErrPairWriteIncomplete", err)
	}

	matches, err := store.Query(ctx, []float64{1, 0, 0, 0}, 10, model.VectorFilter{PairIDs: []string{"p1"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("rejected pair left %d records behind", len(matches))
	}
}

func TestUpsertPair_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	p := pair("p1", "u1", "correr", "alegría", []float64{1, 0}, []float64{0, 1, 0, 0})
	if err := store.UpsertPair(context.Background(), p); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestQuery_FiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pairs := []model.EmbeddingPair{
		pair("p1", "u1", "correr", "alegría", []float64{1, 0, 0, 0}, []float64{0, 0, 1, 0}),
		pair("p2", "u1", "nadar", "calma", []float64{0.9, 0.1, 0, 0}, []float64{0, 0, 0, 1}),
		pair("p3", "u2", "leer", "calma", []float64{1, 0, 0, 0}, []float64{0, 0, 1, 1}),
	}
	for _, p := range pairs {
		if err := store.UpsertPair(ctx, p); err != nil {
			t.Fatalf("upsert pair %s: %v", p.PairID, err)
		}
	}

	matches, err := store.Query(ctx, []float64{1, 0, 0, 0}, 10, model.VectorFilter{
		UserID: "u1",
		Kind:   model.KindFact,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (u2 and emotion rows filtered out)", len(matches))
	}
	if matches[0].Record.Fact != "correr" {
		t.Errorf("best match = %q, want correr", matches[0].Record.Fact)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not ordered by descending score")
	}
	if matches[0].Score < 0.999 {
		t.Errorf("identical vector score = %f, want ~1", matches[0].Score)
	}
}

func TestQuery_TopKLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		p := pair(id, "u1", "correr", "alegría", []float64{1, 0, 0, 0}, []float64{0, 1, 0, 0})
		if err := store.UpsertPair(ctx, p); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	matches, err := store.Query(ctx, []float64{1, 0, 0, 0}, 2, model.VectorFilter{UserID: "u1", Kind: model.KindFact})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("got %d matches, want topK=2", len(matches))
	}
}

func TestQuery_PairIDSetMembership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		p := pair(id, "u1", "correr "+id, "alegría", []float64{1, 0, 0, 0}, []float64{0, 1, 0, 0})
		if err := store.UpsertPair(ctx, p); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	matches, err := store.Query(ctx, []float64{0, 1, 0, 0}, 10, model.VectorFilter{
		UserID:  "u1",
		Kind:    model.KindEmotion,
		PairIDs: []string{"p1", "p3"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	for _, m := range matches {
		if m.Record.PairID == "p2" {
			t.Error("p2 must be excluded by the pair_id filter")
		}
	}
}
