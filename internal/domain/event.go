package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ImputeRequest is a partial wildfire record submitted for imputation.
// K of zero selects the engine default.
type ImputeRequest struct {
	ID        string `json:"id,omitempty"`
	Features  Record `json:"features"`
	RoundRisk bool   `json:"round_risk,omitempty"`
	K         int    `json:"k,omitempty"`
}

// ImputedEvent is the engine output for one request.
type ImputedEvent struct {
	ID          string        `json:"id,omitempty"`
	Input       Record        `json:"input"`
	Imputed     Record        `json:"imputed"`
	Features    []Feature     `json:"features"`
	Sampling    SamplingQuery `json:"sampling"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// NewImputedEvent assembles the output for one imputed record, stamping it
// with the package clock.
func NewImputedEvent(id string, schema Schema, input, imputed Record) ImputedEvent {
	return ImputedEvent{
		ID:          id,
		Input:       input,
		Imputed:     imputed,
		Features:    FeatureVector(schema, imputed),
		Sampling:    SamplingQueryFrom(imputed),
		ProcessedAt: Now(),
	}
}
