package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mvaldes/sentira/pkg/model"
)

type fakeExtractor struct {
	obs []model.Observation
	err error

	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _, userID string) ([]model.Observation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Observation, len(f.obs))
	copy(out, f.obs)
	for i := range out {
		out[i].UserID = userID
	}
	return out, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAggregates struct {
	mu      sync.Mutex
	upserts []model.Observation
	err     error
}

func (f *fakeAggregates) Upsert(_ context.Context, obs model.Observation) (model.FactAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.FactAggregate{}, f.err
	}
	f.upserts = append(f.upserts, obs)
	return model.FactAggregate{Fact: obs.Fact, Theme: obs.Theme, Count: 1}, nil
}

func (f *fakeAggregates) Get(context.Context, string, string) (model.FactAggregate, error) {
	return model.FactAggregate{}, model.ErrNotFound
}

func (f *fakeAggregates) ByTheme(context.Context, string) ([]model.FactAggregate, error) {
	return nil, nil
}

func (f *fakeAggregates) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fakePairs struct {
	mu     sync.Mutex
	stored []model.Observation
}

func (f *fakePairs) StoreObservation(_ context.Context, obs model.Observation) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, obs)
	return []string{"pair-1"}, nil
}

type fakeEntries struct {
	mu      sync.Mutex
	entries []model.JournalEntry
}

func (f *fakeEntries) InsertEntry(_ context.Context, e model.JournalEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return "entry-1", nil
}

type fakeSummarizer struct {
	out string
	err error
}

func (f *fakeSummarizer) CompleteJSON(context.Context, string, map[string]interface{}, string, string, int64) (string, error) {
	return f.out, f.err
}

type fakeFetcher struct {
	data      []byte
	mediaType string
	err       error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return f.data, f.mediaType, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

const quickJSON = `{"title": "Un buen día", "description": "Descansaste y corriste.", "mood_emoji": "😊", "insights": ["el deporte te sienta bien"]}`

func newProcessor(opt Options) *Processor {
	if opt.Oracle == nil {
		opt.Oracle = &fakeSummarizer{out: quickJSON}
	}
	return New(opt)
}

func TestProcessInput_EmptyText(t *testing.T) {
	p := newProcessor(Options{Extractor: &fakeExtractor{}, Aggregates: &fakeAggregates{}, Pairs: &fakePairs{}})
	_, err := p.ProcessInput(context.Background(), model.JournalInput{Type: model.InputText, Content: "   ", UserID: "u1"})
	if !errors.Is(err, model.ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}
}

func TestProcessInput_FullPath(t *testing.T) {
	extractor := &fakeExtractor{obs: []model.Observation{
		{Fact: "correr", Emotions: map[string]float64{"alegría": 0.8}},
	}}
	aggs := &fakeAggregates{}
	pairs := &fakePairs{}
	entries := &fakeEntries{}
	p := newProcessor(Options{Extractor: extractor, Aggregates: aggs, Pairs: pairs, Entries: entries})

	touched, err := p.ProcessInput(context.Background(), model.JournalInput{
		Type: model.InputText, Content: "hoy corrí", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(touched) != 1 || touched[0].Fact != "correr" {
		t.Errorf("touched = %+v, want the correr aggregate", touched)
	}
	if len(entries.entries) != 1 || entries.entries[0].Content != "hoy corrí" {
		t.Error("raw entry not persisted before extraction")
	}
	if len(pairs.stored) != 1 {
		t.Error("observation not forwarded to embedding pairing")
	}
	if aggs.upserts[0].UserID != "u1" {
		t.Errorf("observation user_id = %q, want u1", aggs.upserts[0].UserID)
	}

	runs := p.Runs()
	if len(runs) != 1 || runs[0].State != StateDone || runs[0].Detached {
		t.Errorf("runs = %+v, want one synchronous done run", runs)
	}
}

func TestProcessInput_ExtractionFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	p := newProcessor(Options{
		Extractor:  &fakeExtractor{err: boom},
		Aggregates: &fakeAggregates{},
		Pairs:      &fakePairs{},
	})
	_, err := p.ProcessInput(context.Background(), model.JournalInput{Type: model.InputText, Content: "texto", UserID: "u1"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want extractor error", err)
	}
	runs := p.Runs()
	if len(runs) != 1 || runs[0].State != StateFailed {
		t.Errorf("runs = %+v, want one failed run", runs)
	}
}

func TestProcessInput_AudioTranscription(t *testing.T) {
	extractor := &fakeExtractor{obs: []model.Observation{{Fact: "correr", Emotions: map[string]float64{"alegría": 0.8}}}}
	p := newProcessor(Options{
		Extractor:   extractor,
		Aggregates:  &fakeAggregates{},
		Pairs:       &fakePairs{},
		Fetcher:     &fakeFetcher{data: []byte("audio"), mediaType: "audio/webm"},
		Transcriber: &fakeTranscriber{text: "hoy corrí por el parque"},
	})
	if _, err := p.ProcessInput(context.Background(), model.JournalInput{
		Type: model.InputAudio, Content: "https://example.com/a.webm", UserID: "u1",
	}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if extractor.callCount() != 1 {
		t.Error("transcribed text never reached extraction")
	}
}

func TestProcessInput_TranscriptionEmpty(t *testing.T) {
	extractor := &fakeExtractor{}
	p := newProcessor(Options{
		Extractor:   extractor,
		Aggregates:  &fakeAggregates{},
		Pairs:       &fakePairs{},
		Fetcher:     &fakeFetcher{data: []byte("audio"), mediaType: "audio/webm"},
		Transcriber: &fakeTranscriber{text: "   "},
	})
	_, err := p.ProcessInput(context.Background(), model.JournalInput{
		Type: model.InputAudio, Content: "https://example.com/a.webm", UserID: "u1",
	})
	if !errors.Is(err, model.ErrTranscriptionEmpty) {
		t.Errorf("err = %v, want ErrTranscriptionEmpty", err)
	}
	if extractor.callCount() != 0 {
		t.Error("extraction must not run after an empty transcription")
	}
}

func TestProcessInput_FetchFailure(t *testing.T) {
	p := newProcessor(Options{
		Extractor:   &fakeExtractor{},
		Aggregates:  &fakeAggregates{},
		Pairs:       &fakePairs{},
		Fetcher:     &fakeFetcher{err: errors.New("404")},
		Transcriber: &fakeTranscriber{},
	})
	_, err := p.ProcessInput(context.Background(), model.JournalInput{
		Type: model.InputAudio, Content: "https://example.com/a.webm", UserID: "u1",
	})
	if !errors.Is(err, model.ErrTranscriptionFailed) {
		t.Errorf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestQuickAnalysis_ReturnsSummaryAndRunsFullPathDetached(t *testing.T) {
	extractor := &fakeExtractor{obs: []model.Observation{{Fact: "correr", Emotions: map[string]float64{"alegría": 0.8}}}}
	aggs := &fakeAggregates{}
	pairs := &fakePairs{}
	p := newProcessor(Options{Extractor: extractor, Aggregates: aggs, Pairs: pairs})

	quick, err := p.QuickAnalysis(context.Background(), model.JournalInput{
		Type: model.InputText, Content: "hoy corrí", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("quick analysis: %v", err)
	}
	if quick.Title != "Un buen día" || quick.MoodEmoji != "😊" {
		t.Errorf("quick = %+v", quick)
	}
	if len(quick.Insights) != 1 {
		t.Errorf("insights = %v", quick.Insights)
	}

	p.Wait()
	if aggs.upsertCount() != 1 {
		t.Error("detached full path did not reach the aggregate store")
	}
	runs := p.Runs()
	if len(runs) != 1 || !runs[0].Detached || runs[0].State != StateDone {
		t.Errorf("runs = %+v, want one detached done run", runs)
	}
}

func TestQuickAnalysis_DetachedFailureIsSwallowed(t *testing.T) {
	p := newProcessor(Options{
		Extractor:  &fakeExtractor{err: errors.New("oracle down")},
		Aggregates: &fakeAggregates{},
		Pairs:      &fakePairs{},
	})

	quick, err := p.QuickAnalysis(context.Background(), model.JournalInput{
		Type: model.InputText, Content: "hoy corrí", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("detached failure must not surface to the caller: %v", err)
	}
	if quick.Title == "" {
		t.Error("quick summary missing")
	}

	p.Wait()
	runs := p.Runs()
	if len(runs) != 1 || runs[0].State != StateFailed || runs[0].Error == "" {
		t.Errorf("runs = %+v, want one failed detached run with a recorded error", runs)
	}
}

func TestQuickAnalysis_OracleFailurePropagates(t *testing.T) {
	p := newProcessor(Options{
		Extractor:  &fakeExtractor{},
		Aggregates: &fakeAggregates{},
		Pairs:      &fakePairs{},
		Oracle:     &fakeSummarizer{err: errors.New("oracle down")},
	})
	if _, err := p.QuickAnalysis(context.Background(), model.JournalInput{
		Type: model.InputText, Content: "texto", UserID: "u1",
	}); err == nil {
		t.Fatal("quick-path oracle failure must surface to the caller")
	}
}
