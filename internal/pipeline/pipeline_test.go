package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/couchcryptid/wildfire-imputer/internal/observability"
	"github.com/couchcryptid/wildfire-imputer/internal/pipeline"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockExtractor hands out its events as one batch, then blocks until the
// context is cancelled to simulate waiting for messages.
type mockExtractor struct {
	events []domain.RawEvent
	calls  atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	if m.calls.Add(1) == 1 && len(m.events) > 0 {
		return m.events[:min(batchSize, len(m.events))], nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	fail map[string]bool
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ImputedEvent, error) {
	if m.fail[string(raw.Key)] {
		return domain.ImputedEvent{}, errors.New("bad data")
	}
	return domain.ImputedEvent{ID: string(raw.Key)}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.ImputedEvent
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.ImputedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loaded))
	for i, e := range m.loaded {
		out[i] = e.ID
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawEvents(n int, commits *atomic.Int64) []domain.RawEvent {
	out := make([]domain.RawEvent, n)
	for i := range out {
		out[i] = domain.RawEvent{
			Key:    []byte(fmt.Sprintf("evt-%d", i)),
			Value:  []byte(`{"features":{}}`),
			Offset: int64(i),
			Commit: func(context.Context) error {
				commits.Add(1)
				return nil
			},
		}
	}
	return out
}

func runBriefly(t *testing.T, p *pipeline.Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{events: rawEvents(5, &commits)}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10, 3)
	runBriefly(t, p)

	assert.Equal(t, []string{"evt-0", "evt-1", "evt-2", "evt-3", "evt-4"}, ldr.ids(), "source order kept")
	assert.Equal(t, int64(5), commits.Load())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 5.0, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 5.0, testutil.ToFloat64(metrics.MessagesProduced), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.ids())
}

func TestPipeline_Run_TransformErrorsSkipped(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{events: rawEvents(3, &commits)}
	tfm := &mockTransformer{fail: map[string]bool{"evt-1": true}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, tfm, ldr, discardLogger(), metrics, 10, 2)
	runBriefly(t, p)

	assert.Equal(t, []string{"evt-0", "evt-2"}, ldr.ids())
	assert.Equal(t, int64(3), commits.Load(), "failed messages are committed too")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.TransformErrors), 0)
}

func TestPipeline_Run_AllTransformsFail(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{events: rawEvents(1, &commits)}
	tfm := &mockTransformer{fail: map[string]bool{"evt-0": true}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, tfm, ldr, discardLogger(), observability.NewMetricsForTesting(), 10, 1)
	runBriefly(t, p)

	assert.Empty(t, ldr.ids())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureLeavesOffsets(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{events: rawEvents(2, &commits)}
	ldr := &mockLoader{err: errors.New("broker down")}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10, 1)
	runBriefly(t, p)

	assert.Zero(t, commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

// cancellingTransformer stops the pipeline while the batch is in flight.
type cancellingTransformer struct {
	cancel context.CancelFunc
	at     string
}

func (c *cancellingTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.ImputedEvent, error) {
	if string(raw.Key) == c.at {
		c.cancel()
		return domain.ImputedEvent{}, ctx.Err()
	}
	return domain.ImputedEvent{ID: string(raw.Key)}, nil
}

func TestPipeline_Run_ShutdownMidBatchLeavesOffsets(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{events: rawEvents(3, &commits)}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tfm := &cancellingTransformer{cancel: cancel, at: "evt-1"}

	p := pipeline.New(ext, tfm, ldr, discardLogger(), metrics, 10, 1)
	require.NoError(t, p.Run(ctx))

	assert.Empty(t, ldr.ids())
	assert.Zero(t, commits.Load(), "interrupted messages are redelivered")
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.TransformErrors), 0)
}

// --- transformer ---

// engineImputer serves a trained engine directly.
type engineImputer struct {
	engine *imputer.Engine
}

func (e engineImputer) Impute(ctx context.Context, in domain.Record, opts imputer.Options) (domain.Record, error) {
	return e.engine.Impute(ctx, in, opts)
}

func (e engineImputer) Schema(context.Context) (domain.Schema, error) {
	return e.engine.Schema(), nil
}

func testImputer(t *testing.T) engineImputer {
	t.Helper()
	schema := domain.Schema{Columns: []domain.Column{
		{Name: "state", Kind: domain.KindString},
		{Name: "county", Kind: domain.KindString},
		{Name: "latitude", Kind: domain.KindNumeric},
		{Name: "longitude", Kind: domain.KindNumeric},
		{Name: "prefire_fuel", Kind: domain.KindNumeric},
		{Name: "risk", Kind: domain.KindNumeric},
	}}
	records := []domain.Record{
		{"state": "CA", "county": "Butte", "latitude": 39.7, "longitude": -121.6, "prefire_fuel": 100.0, "risk": 1.0},
		{"state": "CA", "county": "Butte", "latitude": 39.8, "longitude": -121.5, "prefire_fuel": 120.0, "risk": 3.0},
		{"state": "OR", "county": "Lane", "latitude": 44.0, "longitude": -123.0, "prefire_fuel": 50.0, "risk": 5.0},
	}
	model, err := imputer.Train(schema, records)
	require.NoError(t, err)
	return engineImputer{imputer.New(model, imputer.Config{}, discardLogger(), nil)}
}

func TestImputeTransformer_Transform(t *testing.T) {
	frozen := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { domain.SetClock(nil) })

	body, err := json.Marshal(domain.ImputeRequest{
		ID:       "req-7",
		Features: domain.Record{"state": "CA", "county": "Butte"},
	})
	require.NoError(t, err)

	tfm := pipeline.NewTransformer(testImputer(t), discardLogger())
	out, err := tfm.Transform(context.Background(), domain.RawEvent{Key: []byte("key"), Value: body})
	require.NoError(t, err)

	assert.Equal(t, "req-7", out.ID)
	assert.Equal(t, frozen, out.ProcessedAt)
	assert.InDelta(t, 110.0, out.Imputed["prefire_fuel"], 1e-9)

	want := []domain.Feature{
		{Name: "latitude", Value: out.Imputed["latitude"]},
		{Name: "longitude", Value: out.Imputed["longitude"]},
		{Name: "prefire_fuel", Value: 110.0},
		{Name: domain.ColDOYSin, Value: nil},
		{Name: domain.ColDOYCos, Value: nil},
	}
	if diff := cmp.Diff(want, out.Features); diff != "" {
		t.Fatalf("feature vector mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, out.Sampling.Risk)
	assert.InDelta(t, 2.0, *out.Sampling.Risk, 1e-12)
}

func TestImputeTransformer_SchemaError(t *testing.T) {
	tfm := pipeline.NewTransformer(testImputer(t), discardLogger())

	_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte(`{"features":{"prefire_fuel":"lots"}}`)})
	assert.ErrorIs(t, err, imputer.ErrSchema)
}

func TestParseImputeRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     domain.RawEvent
		wantID  string
		wantErr error
	}{
		{"explicit id", domain.RawEvent{Key: []byte("k"), Value: []byte(`{"id":"a","features":{"doy":3}}`)}, "a", nil},
		{"key fallback", domain.RawEvent{Key: []byte("k"), Value: []byte(`{"features":{}}`)}, "k", nil},
		{"position fallback", domain.RawEvent{Topic: "t", Partition: 1, Offset: 9, Value: []byte(`{}`)}, "t-1-9", nil},
		{"empty payload", domain.RawEvent{}, "", pipeline.ErrEmptyPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := pipeline.ParseImputeRequest(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, req.ID)
			assert.NotNil(t, req.Features)
		})
	}

	_, err := pipeline.ParseImputeRequest(domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)
}
