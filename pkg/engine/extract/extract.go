package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mvaldes/sentira/pkg/model"
	"github.com/mvaldes/sentira/pkg/oracle"
)

// Oracle is the completion capability the engine needs.
type Oracle interface {
	CompleteJSON(ctx context.Context, schemaName string, schema map[string]interface{}, instructions, input string, maxTokens int64) (string, error)
}

// DefaultEmotions is the closed emotion vocabulary used when none is
// configured.
var DefaultEmotions = []string{
	"alegría", "felicidad", "tristeza", "enojo", "miedo",
	"sorpresa", "calma", "orgullo", "gratitud", "ansiedad", "frustración",
}

// OtherTheme is the strict-mode catch-all for genuinely new activities.
// Facts routed there are exempt from fact-level taxonomy validation.
const OtherTheme = "otro"

// Options configures the extraction engine. A non-nil Taxonomy selects
// strict mode; otherwise the engine runs free-form with only the emotion
// vocabulary described in the prompt.
type Options struct {
	Oracle   Oracle
	Taxonomy *model.Taxonomy
	Emotions []string
	Logger   *slog.Logger
}

// Engine turns raw journal text into validated observations.
type Engine struct {
	oracle   Oracle
	taxonomy map[string]map[string]bool // theme -> fact set, lower-cased
	emotions map[string]bool
	vocab    []string
	strict   bool
	logger   *slog.Logger
}

func New(opt Options) *Engine {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	vocab := opt.Emotions
	if len(vocab) == 0 {
		vocab = DefaultEmotions
	}
	if opt.Taxonomy != nil && len(opt.Taxonomy.Emotions) > 0 {
		vocab = opt.Taxonomy.Emotions
	}

	e := &Engine{
		oracle:   opt.Oracle,
		emotions: make(map[string]bool, len(vocab)),
		vocab:    vocab,
		logger:   opt.Logger,
	}
	for _, em := range vocab {
		e.emotions[strings.ToLower(em)] = true
	}
	if opt.Taxonomy != nil {
		e.strict = true
		e.taxonomy = make(map[string]map[string]bool, len(opt.Taxonomy.Themes))
		for theme, facts := range opt.Taxonomy.Themes {
			set := make(map[string]bool, len(facts))
			for _, f := range facts {
				set[strings.ToLower(f)] = true
			}
			e.taxonomy[strings.ToLower(theme)] = set
		}
		if _, ok := e.taxonomy[OtherTheme]; !ok {
			e.taxonomy[OtherTheme] = map[string]bool{}
		}
	}
	return e
}

// Wire format for the oracle's structured output. Emotions travel as a
// name/value list so the strict schema stays closed; they become maps once
// validated.
type analysisResponse struct {
	Message string         `json:"message" jsonschema_description:"Original analyzed text"`
	Facts   []analyzedFact `json:"facts" jsonschema_description:"Activities identified in the text"`
}

type analyzedFact struct {
	Fact     string         `json:"fact" jsonschema_description:"Short infinitive phrase naming the activity"`
	Theme    string         `json:"theme" jsonschema_description:"Theme grouping the fact, empty if none applies"`
	Emotions []emotionScore `json:"emotions" jsonschema_description:"Emotions felt during the activity"`
}

type emotionScore struct {
	Name  string  `json:"name"`
	Value float64 `json:"value" jsonschema_description:"Intensity in (0, 1]"`
}

var analysisSchema = oracle.GenerateSchema[analysisResponse]()

// Extract asks the oracle to segment the text into (activity, emotion)
// tuples and validates and normalizes the result.
func (e *Engine) Extract(ctx context.Context, text, userID string) ([]model.Observation, error) {
	instructions := e.buildPrompt()
	out, err := e.oracle.CompleteJSON(ctx, "JournalAnalysis", analysisSchema, instructions, text, 2000)
	if err != nil {
		return nil, fmt.Errorf("extraction oracle: %w", err)
	}

	var resp analysisResponse
	if err := oracle.DecodeModelJSON(out, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExtractionFormat, err)
	}
	if resp.Facts == nil {
		return nil, fmt.Errorf("%w: missing facts list", model.ErrExtractionFormat)
	}

	observations := make([]model.Observation, 0, len(resp.Facts))
	for _, f := range resp.Facts {
		fact := strings.ToLower(strings.TrimSpace(f.Fact))
		theme := strings.ToLower(strings.TrimSpace(f.Theme))
		if fact == "" {
			return nil, fmt.Errorf("%w: empty fact", model.ErrExtractionFormat)
		}

		if e.strict {
			allowed, ok := e.taxonomy[theme]
			if !ok {
				return nil, fmt.Errorf("%w: %q", model.ErrInvalidTheme, theme)
			}
			if theme != OtherTheme && !allowed[fact] {
				return nil, fmt.Errorf("%w: %q under theme %q", model.ErrInvalidFact, fact, theme)
			}
		} else {
			// Free-form observations carry no theme.
			theme = ""
		}

		emotions := make(map[string]float64, len(f.Emotions))
		for _, em := range f.Emotions {
			name := strings.ToLower(strings.TrimSpace(em.Name))
			if name == "" {
				continue
			}
			if em.Value <= 0 || em.Value > 1 {
				continue
			}
			if !e.emotions[name] {
				// The vocabulary is closed; labels outside it are the
				// oracle drifting, not new signal.
				e.logger.Warn("dropping emotion outside vocabulary", "emotion", name, "fact", fact)
				continue
			}
			emotions[name] = em.Value
		}

		observations = append(observations, model.Observation{
			Fact:     fact,
			Theme:    theme,
			Emotions: emotions,
			UserID:   userID,
		})
	}
	return observations, nil
}

// Strict reports whether the engine validates against a taxonomy.
func (e *Engine) Strict() bool { return e.strict }
