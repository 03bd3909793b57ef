package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/goccy/go-json"
)

// ErrEmptyPayload is returned for messages without a body.
var ErrEmptyPayload = errors.New("empty message payload")

// Imputer fills partial records. Implemented by artifact.Provider.
type Imputer interface {
	Impute(ctx context.Context, input domain.Record, opts imputer.Options) (domain.Record, error)
	Schema(ctx context.Context) (domain.Schema, error)
}

// ImputeTransformer implements Transformer by decoding an ImputeRequest from
// the message body and imputing its features.
type ImputeTransformer struct {
	imputer Imputer
	logger  *slog.Logger
}

// NewTransformer creates an ImputeTransformer.
func NewTransformer(imp Imputer, logger *slog.Logger) *ImputeTransformer {
	return &ImputeTransformer{
		imputer: imp,
		logger:  logger,
	}
}

func (t *ImputeTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.ImputedEvent, error) {
	req, err := ParseImputeRequest(raw)
	if err != nil {
		return domain.ImputedEvent{}, err
	}

	imputed, err := t.imputer.Impute(ctx, req.Features, imputer.Options{K: req.K, RoundRisk: req.RoundRisk})
	if err != nil {
		return domain.ImputedEvent{}, fmt.Errorf("impute %s: %w", req.ID, err)
	}
	schema, err := t.imputer.Schema(ctx)
	if err != nil {
		return domain.ImputedEvent{}, err
	}

	return domain.NewImputedEvent(req.ID, schema, req.Features, imputed), nil
}

// ParseImputeRequest decodes a message body. A request without an ID takes
// the message key, then its topic position.
func ParseImputeRequest(raw domain.RawEvent) (domain.ImputeRequest, error) {
	var req domain.ImputeRequest
	if len(raw.Value) == 0 {
		return req, ErrEmptyPayload
	}
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return req, fmt.Errorf("decode impute request: %w", err)
	}
	if req.Features == nil {
		req.Features = domain.Record{}
	}
	if req.ID == "" {
		if len(raw.Key) > 0 {
			req.ID = string(raw.Key)
		} else {
			req.ID = fmt.Sprintf("%s-%d-%d", raw.Topic, raw.Partition, raw.Offset)
		}
	}
	return req, nil
}
