package httpcache

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storageBackends(t *testing.T) map[string]Storage {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sq, err := NewSQLiteStorage(db)
	require.NoError(t, err)
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sq,
	}
}

func TestStorage_PutMatchOverwrite(t *testing.T) {
	for name, storage := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store, err := storage.Open(ctx, RuntimeStoreName)
			require.NoError(t, err)

			_, ok, err := store.Match(ctx, "GET https://x/a")
			require.NoError(t, err)
			assert.False(t, ok)

			storedAt := time.UnixMilli(1700000000000)
			first := &Entry{StatusCode: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"v":1}`), StoredAt: storedAt}
			require.NoError(t, store.Put(ctx, "GET https://x/a", first))
			require.NoError(t, store.Put(ctx, "GET https://x/a", &Entry{StatusCode: 200, Header: http.Header{}, Body: []byte(`{"v":2}`), StoredAt: storedAt}))

			got, ok, err := store.Match(ctx, "GET https://x/a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"v":2}`, string(got.Body))
			assert.Equal(t, 200, got.StatusCode)
			assert.True(t, got.StoredAt.Equal(storedAt))
		})
	}
}

func TestStorage_KeysAndDelete(t *testing.T) {
	for name, storage := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, n := range []string{"static-v0", StaticStoreName, RuntimeStoreName} {
				s, err := storage.Open(ctx, n)
				require.NoError(t, err)
				require.NoError(t, s.Put(ctx, "k", &Entry{StatusCode: 200, Header: http.Header{}}))
			}

			names, err := storage.Keys(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"static-v0", StaticStoreName, RuntimeStoreName}, names)

			deleted, err := storage.Delete(ctx, "static-v0")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = storage.Delete(ctx, "static-v0")
			require.NoError(t, err)
			assert.False(t, deleted)

			reopened, err := storage.Open(ctx, "static-v0")
			require.NoError(t, err)
			_, ok, err := reopened.Match(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok, "deleted store must come back empty")
		})
	}
}

func TestRequestKey(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "https://api.open-meteo.com/v1/forecast?latitude=1", nil)
	b := httptest.NewRequest(http.MethodGet, "https://api.open-meteo.com/v1/forecast?latitude=1", nil)
	b.Header.Set("Accept-Language", "de")
	c := httptest.NewRequest(http.MethodGet, "https://api.open-meteo.com/v1/forecast?latitude=2", nil)

	assert.Equal(t, "GET https://api.open-meteo.com/v1/forecast?latitude=1", RequestKey(a))
	assert.NotEqual(t, RequestKey(a), RequestKey(b))
	assert.NotEqual(t, RequestKey(a), RequestKey(c))
}

func TestEntry_ResponseIndependentBodies(t *testing.T) {
	e := &Entry{StatusCode: 200, Header: http.Header{"X": {"1"}}, Body: []byte("abc")}
	req := httptest.NewRequest(http.MethodGet, "https://x/", nil)

	r1 := e.Response(req)
	r2 := e.Response(req)
	r1.Header.Set("X", "changed")

	buf := make([]byte, 3)
	_, _ = r1.Body.Read(buf)
	assert.Equal(t, "abc", string(buf))
	_, _ = r2.Body.Read(buf)
	assert.Equal(t, "abc", string(buf))
	assert.Equal(t, "1", e.Header.Get("X"))
	assert.Equal(t, "200 OK", r2.Status)
}
