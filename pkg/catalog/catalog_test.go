package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	val string
	err error
	key string
}

func (f *fakeGetter) Get(_ context.Context, key string) *redis.StringCmd {
	f.key = key
	return redis.NewStringResult(f.val, f.err)
}

func TestRedisSourceReadsKey(t *testing.T) {
	g := &fakeGetter{val: `[{"id":"m1","name":"One","description":"first","provider":"x","requiresKey":true}]`}
	models, err := NewRedisSource(g, "").List(context.Background())
	require.NoError(t, err)
	require.Equal(t, "models", g.key)
	require.Equal(t, []Model{{ID: "m1", Name: "One", Description: "first", Provider: "x", RequiresKey: true}}, models)
}

func TestRedisSourceMissingKeyFallsBack(t *testing.T) {
	models, err := NewRedisSource(&fakeGetter{err: redis.Nil}, "k").List(context.Background())
	require.NoError(t, err)
	require.Equal(t, builtin, models)
}

func TestRedisSourceErrors(t *testing.T) {
	_, err := NewRedisSource(&fakeGetter{err: errors.New("conn refused")}, "k").List(context.Background())
	require.Error(t, err)

	_, err = NewRedisSource(&fakeGetter{val: "{not json"}, "k").List(context.Background())
	require.Error(t, err)
}

func TestFileSourceYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: a
  name: A
  description: model a
- id: b
  name: B
  description: model b
  requiresKey: true
`), 0o644))

	models, err := FileSource{Path: path}.List(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.True(t, models[1].RequiresKey)
}

func TestHTTPHandlerServesSummaries(t *testing.T) {
	src := &RedisSource{client: &fakeGetter{val: `[{"id":"m1","name":"One","description":"d","provider":"p"},{"name":"no id"}]`}, key: "k"}
	rec := httptest.NewRecorder()
	NewHTTPHandler(src)(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, []map[string]any{{"id": "m1", "name": "One", "description": "d"}}, out)
}

func TestHTTPHandlerSourceFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(FileSource{Path: "/does/not/exist"})(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
