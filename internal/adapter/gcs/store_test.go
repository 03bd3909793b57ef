package gcs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket serves just enough of the storage API for one object.
type fakeBucket struct {
	mu       sync.Mutex
	object   string
	body     string
	uploaded string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/"+b.object):
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, b.body) //nolint:errcheck,gosec // test server
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"):
		data, _ := io.ReadAll(r.Body)
		b.uploaded = string(data)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"bucket":"models","name":"`+b.object+`"}`) //nolint:errcheck,gosec // test server
	default:
		http.NotFound(w, r)
	}
}

func newTestStore(t *testing.T, bucket *fakeBucket) *Store {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))

	s, err := NewStore(context.Background(), "models", bucket.object, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Fetch(t *testing.T) {
	bucket := &fakeBucket{object: "imputer.json", body: `{"version":1}`}
	s := newTestStore(t, bucket)

	dst := filepath.Join(t.TempDir(), "models", "imputer.json")
	require.NoError(t, s.Fetch(context.Background(), dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(data))
}

func TestStore_FetchMissingObject(t *testing.T) {
	s := newTestStore(t, &fakeBucket{object: "imputer.json"})
	s.object = "absent.json"

	dst := filepath.Join(t.TempDir(), "imputer.json")
	require.Error(t, s.Fetch(context.Background(), dst))
	_, err := os.Stat(dst)
	assert.ErrorIs(t, err, os.ErrNotExist, "no partial artifact left behind")
}

func TestStore_Upload(t *testing.T) {
	bucket := &fakeBucket{object: "imputer.json"}
	s := newTestStore(t, bucket)

	src := filepath.Join(t.TempDir(), "imputer.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"version":1,"records":[]}`), 0o600))

	require.NoError(t, s.Upload(context.Background(), src))
	assert.Contains(t, bucket.uploaded, `{"version":1,"records":[]}`)
}

func TestNewStore_MissingCredentials(t *testing.T) {
	_, err := NewStore(context.Background(), "models", "imputer.json", filepath.Join(t.TempDir(), "sa.json"), slog.Default())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
