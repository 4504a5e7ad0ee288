package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mvaldes/sentira/pkg/model"
	"github.com/mvaldes/sentira/pkg/oracle"
)

// Extractor is the extraction engine contract.
type Extractor interface {
	Extract(ctx context.Context, text, userID string) ([]model.Observation, error)
}

// PairWriter is the embedding pairing contract.
type PairWriter interface {
	StoreObservation(ctx context.Context, obs model.Observation) ([]string, error)
}

// Summarizer is the completion capability the quick path needs.
type Summarizer interface {
	CompleteJSON(ctx context.Context, schemaName string, schema map[string]interface{}, instructions, input string, maxTokens int64) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	Extractor   Extractor
	Aggregates  model.AggregateStore
	Pairs       PairWriter
	Entries     model.EntryStore // optional raw-entry persistence
	Oracle      Summarizer
	Fetcher     model.AudioFetcher
	Transcriber model.Transcriber

	Language        string
	DetachedTimeout time.Duration
	RunHistory      int
	RunTTL          time.Duration
	Logger          *slog.Logger
}

// Processor coordinates the two entry points: the synchronous full
// pipeline and the low-latency quick analysis that forks the full
// pipeline as a detached run.
type Processor struct {
	extractor   Extractor
	aggregates  model.AggregateStore
	pairs       PairWriter
	entries     model.EntryStore
	oracle      Summarizer
	fetcher     model.AudioFetcher
	transcriber model.Transcriber

	language        string
	detachedTimeout time.Duration
	runs            *RunBuffer
	logger          *slog.Logger

	detached sync.WaitGroup
}

func New(opt Options) *Processor {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Language == "" {
		opt.Language = "es"
	}
	if opt.DetachedTimeout == 0 {
		opt.DetachedTimeout = 2 * time.Minute
	}
	return &Processor{
		extractor:       opt.Extractor,
		aggregates:      opt.Aggregates,
		pairs:           opt.Pairs,
		entries:         opt.Entries,
		oracle:          opt.Oracle,
		fetcher:         opt.Fetcher,
		transcriber:     opt.Transcriber,
		language:        opt.Language,
		detachedTimeout: opt.DetachedTimeout,
		runs:            NewRunBuffer(opt.RunHistory, opt.RunTTL),
		logger:          opt.Logger,
	}
}

// Runs exposes recent pipeline runs, including detached ones.
func (p *Processor) Runs() []RunRecord {
	return p.runs.Snapshot()
}

// Wait blocks until all detached runs have finished. Used for graceful
// shutdown and by tests.
func (p *Processor) Wait() {
	p.detached.Wait()
}

// ProcessInput runs the full pipeline synchronously: acquire text, persist
// the raw entry, extract observations, fold them into aggregates, and
// store their embedding pairs. Every failure propagates to the caller.
func (p *Processor) ProcessInput(ctx context.Context, in model.JournalInput) ([]model.FactAggregate, error) {
	run := p.runs.Start(in.UserID, false)
	text, err := p.acquireText(ctx, in)
	if err != nil {
		run.fail(err)
		return nil, err
	}
	return p.processText(ctx, text, in, run)
}

// QuickAnalysis acquires text, returns a compact structured summary from a
// single oracle call, and then launches the full pipeline as a detached
// run. Detached failures are logged, never returned: the caller already
// has its response. Callers must not assume aggregates are updated when
// the quick response arrives.
func (p *Processor) QuickAnalysis(ctx context.Context, in model.JournalInput) (model.QuickAnalysis, error) {
	text, err := p.acquireText(ctx, in)
	if err != nil {
		return model.QuickAnalysis{}, err
	}

	out, err := p.oracle.CompleteJSON(ctx, "QuickAnalysis", quickSchema, quickAnalysisPrompt, text, 800)
	if err != nil {
		return model.QuickAnalysis{}, fmt.Errorf("quick analysis oracle: %w", err)
	}
	var quick model.QuickAnalysis
	if err := oracle.DecodeModelJSON(out, &quick); err != nil {
		return model.QuickAnalysis{}, fmt.Errorf("%w: %v", model.ErrExtractionFormat, err)
	}

	// The request context dies with the response; the detached run gets
	// its own bounded lifetime.
	p.detached.Add(1)
	go func() {
		defer p.detached.Done()
		dctx, cancel := context.WithTimeout(context.Background(), p.detachedTimeout)
		defer cancel()

		run := p.runs.Start(in.UserID, true)
		run.setState(StateExtracting)
		if _, err := p.processText(dctx, text, in, run); err != nil {
			p.logger.Error("detached full pipeline failed",
				"user_id", in.UserID, "run_id", run.Record().ID, "err", err)
		}
	}()

	return quick, nil
}

func (p *Processor) processText(ctx context.Context, text string, in model.JournalInput, run *Run) ([]model.FactAggregate, error) {
	if p.entries != nil {
		entry := model.JournalEntry{UserID: in.UserID, Type: in.Type, Content: text}
		if _, err := p.entries.InsertEntry(ctx, entry); err != nil {
			run.fail(err)
			return nil, fmt.Errorf("persist entry: %w", err)
		}
	}

	run.setState(StateExtracting)
	observations, err := p.extractor.Extract(ctx, text, in.UserID)
	if err != nil {
		run.fail(err)
		return nil, err
	}

	run.setState(StatePersisting)
	touched := make([]model.FactAggregate, 0, len(observations))
	for _, obs := range observations {
		agg, err := p.aggregates.Upsert(ctx, obs)
		if err != nil {
			run.fail(err)
			return nil, err
		}
		touched = append(touched, agg)

		if _, err := p.pairs.StoreObservation(ctx, obs); err != nil {
			run.fail(err)
			return nil, err
		}
	}

	run.setState(StateDone)
	return touched, nil
}

func (p *Processor) acquireText(ctx context.Context, in model.JournalInput) (string, error) {
	if in.Type == model.InputAudio {
		return p.transcribe(ctx, in)
	}
	if strings.TrimSpace(in.Content) == "" {
		return "", model.ErrEmptyContent
	}
	return in.Content, nil
}

func (p *Processor) transcribe(ctx context.Context, in model.JournalInput) (string, error) {
	data, mediaType, err := p.fetcher.Fetch(ctx, in.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrTranscriptionFailed, err)
	}
	language := in.Language
	if language == "" {
		language = p.language
	}
	text, err := p.transcriber.Transcribe(ctx, data, mediaType, language)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrTranscriptionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", model.ErrTranscriptionEmpty
	}
	p.logger.Info("audio transcribed", "user_id", in.UserID, "media_type", mediaType, "chars", len(text))
	return text, nil
}
