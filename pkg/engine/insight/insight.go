package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mvaldes/sentira/pkg/model"
	"github.com/mvaldes/sentira/pkg/oracle"
)

const (
	// topK bounds the first similarity hop.
	topK = 10
	// scoreThreshold is the fixed relevance cutoff: neighbors scoring at
	// or below it are discarded as noise.
	scoreThreshold = 0.85
)

// Oracle is the completion capability the retriever and router need.
type Oracle interface {
	CompleteJSON(ctx context.Context, schemaName string, schema map[string]interface{}, instructions, input string, maxTokens int64) (string, error)
	CompleteText(ctx context.Context, instructions, input string, maxTokens int64) (string, error)
	RouteTool(ctx context.Context, instructions, input string, tools []oracle.ToolDef) (name, argsJSON string, err error)
}

// Retriever answers emotional-pattern queries with two-hop similarity
// lookups over the paired vector index: the first hop finds relevant
// vectors of the target's kind, the second fetches their paired opposites
// by pair id, reconstructing the fact-emotion association the index cannot
// join natively.
type Retriever struct {
	embedder model.EmbeddingClient
	index    model.VectorIndex
	oracle   Oracle
	logger   *slog.Logger
}

func New(embedder model.EmbeddingClient, index model.VectorIndex, o Oracle, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, oracle: o, logger: logger}
}

// InsightsForEmotion reports which activities correlate with an emotion.
func (r *Retriever) InsightsForEmotion(ctx context.Context, userID, emotion string) (model.InsightResult, error) {
	target := strings.ToLower(strings.TrimSpace(emotion))
	entries, err := r.twoHop(ctx, userID, target, model.KindEmotion)
	if err != nil {
		return model.InsightResult{}, err
	}
	result := model.InsightResult{Target: target, Kind: model.KindEmotion, Entries: entries}
	if len(entries) == 0 {
		result.Fallback = true
		result.Entries = []model.InsightEntry{}
		result.Message = fmt.Sprintf(
			"He revisado tu diario y no encontré experiencias significativas relacionadas con %s. "+
				"¡Esto no es malo! Significa que esta emoción no ha sido predominante en tus registros. "+
				"¿Te gustaría contarme más sobre cómo te sientes con %s?", target, target)
		return result, nil
	}
	result.Summary = r.summarize(ctx, "EmotionPatterns", emotionPatternsSchema,
		emotionPatternsPrompt, entries, target, emptyEmotionPatterns)
	return result, nil
}

// InsightsForFact reports how an activity makes the user feel.
func (r *Retriever) InsightsForFact(ctx context.Context, userID, fact string) (model.InsightResult, error) {
	target := strings.ToLower(strings.TrimSpace(fact))
	entries, err := r.twoHop(ctx, userID, target, model.KindFact)
	if err != nil {
		return model.InsightResult{}, err
	}
	result := model.InsightResult{Target: target, Kind: model.KindFact, Entries: entries}
	if len(entries) == 0 {
		result.Fallback = true
		result.Entries = []model.InsightEntry{}
		result.Message = fmt.Sprintf(
			"He revisado tu diario y no encontré experiencias similares a %q. "+
				"¿Te gustaría contarme más sobre cómo te hace sentir esta situación?", target)
		return result, nil
	}
	result.Summary = r.summarize(ctx, "FactPatterns", factPatternsSchema,
		factPatternsPrompt, entries, target, emptyFactPatterns)
	return result, nil
}

// twoHop embeds the target, finds qualifying neighbors of its kind, and
// fetches their paired opposites. Neighbors scoring <= scoreThreshold
// never contribute their pair id to the second hop.
func (r *Retriever) twoHop(ctx context.Context, userID, target string, kind model.VectorKind) ([]model.InsightEntry, error) {
	vectors, err := r.embedder.EmbedTexts(ctx, []string{target})
	if err != nil {
		return nil, fmt.Errorf("embed target: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed target: expected 1 vector, got %d", len(vectors))
	}
	queryVec := vectors[0]

	matches, err := r.index.Query(ctx, queryVec, topK, model.VectorFilter{
		UserID: userID,
		Kind:   kind,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalUnavailable, err)
	}

	var pairIDs []string
	for _, m := range matches {
		if m.Score > scoreThreshold {
			pairIDs = append(pairIDs, m.Record.PairID)
		}
	}
	if len(pairIDs) == 0 {
		return nil, nil
	}

	paired, err := r.index.Query(ctx, queryVec, len(pairIDs), model.VectorFilter{
		UserID:  userID,
		Kind:    kind.Opposite(),
		PairIDs: pairIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalUnavailable, err)
	}

	entries := make([]model.InsightEntry, 0, len(paired))
	for _, m := range paired {
		entries = append(entries, model.InsightEntry{
			Fact:    m.Record.Fact,
			Emotion: m.Record.Emotion,
			Score:   m.Score,
			UserID:  m.Record.UserID,
		})
	}
	return entries, nil
}

// summarize is best-effort: oracle failures degrade to a fixed
// empty-pattern JSON because the entries themselves remain valid evidence.
func (r *Retriever) summarize(ctx context.Context, schemaName string, schema map[string]interface{}, prompt string, entries []model.InsightEntry, target string, empty json.RawMessage) json.RawMessage {
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return empty
	}
	input := fmt.Sprintf("Analiza estas experiencias relacionadas con %q:\n%s", target, payload)

	out, err := r.oracle.CompleteJSON(ctx, schemaName, schema, prompt, input, 1000)
	if err != nil {
		r.logger.Warn("pattern summarization degraded", "target", target, "err", err)
		return empty
	}
	var parsed map[string]any
	if err := oracle.DecodeModelJSON(out, &parsed); err != nil {
		r.logger.Warn("pattern summarization unparsable", "target", target, "err", err)
		return empty
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return empty
	}
	return normalized
}
