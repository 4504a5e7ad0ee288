package pairing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mvaldes/sentira/pkg/model"
)

// Pairer writes one fact vector and one emotion vector per (fact, emotion)
// of an observation, linked by a fresh pair id. The similarity index has no
// native joins; the pair id is the join key the retrieval layer uses to
// reconstruct fact-emotion associations.
type Pairer struct {
	embedder model.EmbeddingClient
	index    model.VectorIndex
	logger   *slog.Logger
}

func New(embedder model.EmbeddingClient, index model.VectorIndex, logger *slog.Logger) *Pairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pairer{embedder: embedder, index: index, logger: logger}
}

// EmbedAndStore embeds the fact phrase and the emotion phrase in one batch
// request and persists both halves atomically, returning the pair id.
func (p *Pairer) EmbedAndStore(ctx context.Context, fact, emotion, userID string) (string, error) {
	vectors, err := p.embedder.EmbedTexts(ctx, []string{fact, emotion})
	if err != nil {
		return "", fmt.Errorf("embed pair: %w", err)
	}
	if len(vectors) != 2 {
		return "", fmt.Errorf("embed pair: expected 2 vectors, got %d", len(vectors))
	}

	pairID := uuid.NewString()
	pair := model.EmbeddingPair{
		PairID: pairID,
		Fact: model.VectorRecord{
			ID:        pairID + "-fact",
			UserID:    userID,
			Kind:      model.KindFact,
			Fact:      fact,
			Emotion:   emotion,
			PairID:    pairID,
			Embedding: vectors[0],
		},
		Emotion: model.VectorRecord{
			ID:        pairID + "-emotion",
			UserID:    userID,
			Kind:      model.KindEmotion,
			Fact:      fact,
			Emotion:   emotion,
			PairID:    pairID,
			Embedding: vectors[1],
		},
	}
	if err := p.index.UpsertPair(ctx, pair); err != nil {
		return "", fmt.Errorf("store pair: %w", err)
	}
	return pairID, nil
}

// StoreObservation creates one pair per emotion of the observation and
// returns the allocated pair ids.
func (p *Pairer) StoreObservation(ctx context.Context, obs model.Observation) ([]string, error) {
	pairIDs := make([]string, 0, len(obs.Emotions))
	for emotion := range obs.Emotions {
		pairID, err := p.EmbedAndStore(ctx, obs.Fact, emotion, obs.UserID)
		if err != nil {
			return pairIDs, err
		}
		p.logger.Debug("stored embedding pair",
			"pair_id", pairID, "fact", obs.Fact, "emotion", emotion, "user_id", obs.UserID)
		pairIDs = append(pairIDs, pairID)
	}
	return pairIDs, nil
}
