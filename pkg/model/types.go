package model

import (
	"context"
	"encoding/json"
	"time"
)

// InputType discriminates journal payloads.
type InputType string

const (
	InputText  InputType = "text"
	InputAudio InputType = "audio"
)

// JournalInput is a raw journal submission. For audio input, Content holds
// the remote audio reference (URL); for text input it holds the text itself.
type JournalInput struct {
	Type     InputType `json:"type"`
	Content  string    `json:"content"`
	UserID   string    `json:"user_id"`
	Language string    `json:"language,omitempty"`
}

// JournalEntry mirrors journal_entries rows: the raw text as persisted
// before any extraction runs.
type JournalEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      InputType `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Observation is one extracted (activity, emotion) tuple. Immutable once
// produced; consumed once by aggregation and once by embedding pairing.
// Theme is empty in free-form mode. Emotion values are in (0, 1].
type Observation struct {
	Fact     string             `json:"fact"`
	Theme    string             `json:"theme,omitempty"`
	Emotions map[string]float64 `json:"emotions"`
	UserID   string             `json:"user_id"`
}

// FactAggregate is the running statistic for one (fact, theme) key.
// Mutated only additively: each observation adds 1 to Count and each
// emotion value to EmotionSum.
type FactAggregate struct {
	Fact       string             `json:"fact"`
	Theme      string             `json:"theme,omitempty"`
	Count      int64              `json:"count"`
	EmotionSum map[string]float64 `json:"emotion_sum"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Averages returns the mean intensity per emotion over Count observations.
func (a FactAggregate) Averages() map[string]float64 {
	if a.Count <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(a.EmotionSum))
	for emotion, sum := range a.EmotionSum {
		out[emotion] = sum / float64(a.Count)
	}
	return out
}

// VectorKind discriminates the two halves of an embedding pair.
type VectorKind string

const (
	KindFact    VectorKind = "fact"
	KindEmotion VectorKind = "emotion"
)

// Opposite returns the other half's kind.
func (k VectorKind) Opposite() VectorKind {
	if k == KindFact {
		return KindEmotion
	}
	return KindFact
}

// VectorRecord is one stored vector with its metadata.
type VectorRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      VectorKind `json:"kind"`
	Fact      string     `json:"fact"`
	Emotion   string     `json:"emotion"`
	PairID    string     `json:"pair_id"`
	Embedding []float64  `json:"embedding"`
}

// EmbeddingPair links a fact vector and an emotion vector that originated
// from the same observation. PairID is the join key; both halves must be
// written atomically.
type EmbeddingPair struct {
	PairID  string
	Fact    VectorRecord
	Emotion VectorRecord
}

// VectorFilter restricts a similarity query by metadata. Zero-valued
// fields are ignored; an empty PairIDs slice means no pair restriction.
type VectorFilter struct {
	UserID  string
	Kind    VectorKind
	PairIDs []string
}

// VectorMatch is one similarity-query hit.
type VectorMatch struct {
	Record VectorRecord `json:"record"`
	Score  float64      `json:"score"`
}

// InsightEntry is one reconstructed fact-emotion association.
type InsightEntry struct {
	Fact    string  `json:"fact"`
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
	UserID  string  `json:"user_id"`
}

// InsightResult is the ephemeral answer to an insight query. Summary holds
// the pattern-analysis JSON; Fallback marks the empty-evidence case where
// Message carries a fixed empathetic response instead.
type InsightResult struct {
	Target   string          `json:"target"`
	Kind     VectorKind      `json:"kind"`
	Entries  []InsightEntry  `json:"entries"`
	Summary  json.RawMessage `json:"summary,omitempty"`
	Message  string          `json:"message,omitempty"`
	Fallback bool            `json:"fallback"`
}

// QuickAnalysis is the low-latency summary returned before the full
// pipeline runs detached.
type QuickAnalysis struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MoodEmoji   string   `json:"mood_emoji"`
	Insights    []string `json:"insights"`
}

// QuestionAnswer is the question router's response. Data is nil when the
// router declined to map the question to a retrieval.
type QuestionAnswer struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Data     *InsightResult `json:"data,omitempty"`
}

// Taxonomy is the strict-mode reference structure: theme -> allowed facts,
// plus the closed emotion vocabulary.
type Taxonomy struct {
	Themes   map[string][]string `json:"themes"`
	Emotions []string            `json:"emotions"`
}

// AggregateStore provides the atomic additive upsert the aggregation
// engine requires, plus point and theme reads.
type AggregateStore interface {
	Upsert(ctx context.Context, obs Observation) (FactAggregate, error)
	Get(ctx context.Context, fact, theme string) (FactAggregate, error)
	ByTheme(ctx context.Context, theme string) ([]FactAggregate, error)
}

// VectorIndex stores embedding pairs and answers filtered top-K
// similarity queries. UpsertPair persists both halves atomically.
type VectorIndex interface {
	UpsertPair(ctx context.Context, pair EmbeddingPair) error
	Query(ctx context.Context, vector []float64, topK int, filter VectorFilter) ([]VectorMatch, error)
}

// EmbeddingClient produces fixed-dimensionality embeddings, one per input
// text, in input order.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// EntryStore persists raw journal text before processing.
type EntryStore interface {
	InsertEntry(ctx context.Context, entry JournalEntry) (string, error)
}

// AudioFetcher retrieves a remote audio resource and sniffs its media type.
type AudioFetcher interface {
	Fetch(ctx context.Context, ref string) (data []byte, mediaType string, err error)
}

// Transcriber turns fetched audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, mediaType, language string) (string, error)
}
