package artifact

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/couchcryptid/wildfire-imputer/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher writes a prepared artifact to dst after failing its first
// failures calls with errFetch.
type fakeFetcher struct {
	body     []byte
	failures int32
	calls    atomic.Int32
}

var errFetch = errors.New("bucket unavailable")

func (f *fakeFetcher) Fetch(_ context.Context, dst string) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return errFetch
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, f.body, 0o600)
}

func encodedModel(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, trainTestModel(t, testCorpus())))
	return buf.Bytes()
}

func TestProvider_LoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imputer.json")
	require.NoError(t, os.WriteFile(path, encodedModel(t), 0o600))

	m := observability.NewMetricsForTesting()
	p := NewProvider(path, nil, imputer.Config{}, discardLogger(), m)
	assert.ErrorIs(t, p.CheckReadiness(context.Background()), ErrNotLoaded)

	var wg sync.WaitGroup
	engines := make([]*imputer.Engine, 8)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := p.Engine(context.Background())
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()

	for _, e := range engines[1:] {
		assert.Same(t, engines[0], e)
	}
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ArtifactLoaded), 0)
}

func TestProvider_FetchesMissingArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "imputer.json")
	f := &fakeFetcher{body: encodedModel(t)}
	p := NewProvider(path, f, imputer.Config{}, discardLogger(), nil)

	out, err := p.Impute(context.Background(), domain.Record{"state": "CA", "county": "Butte"}, imputer.Options{RoundRisk: true})
	require.NoError(t, err)
	assert.Equal(t, "Butte", out["county"])
	assert.Equal(t, 2, out["risk"], "mean of 1 and 2 rounds half to even")

	_, err = p.Engine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestProvider_FailureNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imputer.json")
	f := &fakeFetcher{body: encodedModel(t), failures: 1}
	p := NewProvider(path, f, imputer.Config{}, discardLogger(), nil)

	_, err := p.Engine(context.Background())
	require.ErrorIs(t, err, errFetch)
	assert.ErrorIs(t, p.CheckReadiness(context.Background()), ErrNotLoaded)

	schema, err := p.Schema(context.Background())
	require.NoError(t, err)
	assert.True(t, schema.Has("prefire_fuel"))
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestProvider_MissingFileWithoutFetcher(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "absent.json"), nil, imputer.Config{}, discardLogger(), nil)

	_, err := p.Engine(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProvider_CanceledCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imputer.json")
	require.NoError(t, os.WriteFile(path, encodedModel(t), 0o600))
	p := NewProvider(path, nil, imputer.Config{}, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Impute(ctx, domain.Record{}, imputer.Options{})
	assert.Error(t, err)

	_, err = p.Engine(context.Background())
	assert.NoError(t, err)
}
