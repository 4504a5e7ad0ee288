package model

import "errors"

// Failure taxonomy. Engines wrap these with context; the HTTP layer maps
// them to status codes with errors.Is.
var (
	// ErrEmptyContent rejects blank text input before any extraction.
	ErrEmptyContent = errors.New("journal content is empty")

	// ErrTranscriptionEmpty means the audio transcribed to nothing usable.
	ErrTranscriptionEmpty = errors.New("audio transcription is empty")

	// ErrTranscriptionFailed covers fetch and transcription failures.
	ErrTranscriptionFailed = errors.New("audio transcription failed")

	// ErrExtractionFormat means the oracle output was unparsable or missing
	// required fields.
	ErrExtractionFormat = errors.New("invalid extraction output format")

	// ErrInvalidTheme: strict mode, theme absent from the taxonomy.
	ErrInvalidTheme = errors.New("theme not present in taxonomy")

	// ErrInvalidFact: strict mode, fact not listed under its theme.
	ErrInvalidFact = errors.New("fact not listed under theme")

	// ErrAggregateConflict surfaces only after the store's internal retry
	// budget for contended upserts is exhausted.
	ErrAggregateConflict = errors.New("aggregate upsert conflict")

	// ErrPairWriteIncomplete is the pair-integrity violation: a write that
	// would persist only one half of an embedding pair.
	ErrPairWriteIncomplete = errors.New("embedding pair write incomplete")

	// ErrRetrievalUnavailable wraps vector-index failures during retrieval.
	ErrRetrievalUnavailable = errors.New("vector index unavailable")

	// ErrNotFound is returned by point reads with no matching record.
	ErrNotFound = errors.New("not found")
)
