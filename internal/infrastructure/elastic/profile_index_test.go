package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/client-powered/internal/domain/entity"
)

func fakeES(t *testing.T, handler http.HandlerFunc) *ProfileIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the client checks this header to confirm it talks to Elasticsearch
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	es, err := NewClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return NewProfileIndex(es, "profiles")
}

func TestProfileIndex_Index(t *testing.T) {
	var gotPath string
	var doc map[string]any
	idx := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &doc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	name := "Ada"
	err := idx.Index(context.Background(), entity.Profile{ID: "u1", Email: "ada@example.com", Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "/profiles/_doc/u1", gotPath)
	assert.Equal(t, "Ada", doc["name"])
	assert.Equal(t, "ada@example.com", doc["email"])
}

func TestProfileIndex_Search(t *testing.T) {
	var query map[string]any
	idx := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_search"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &query)
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"u1","_source":{"id":"u1","email":"ada@example.com"}}]}}`))
	})

	hits, err := idx.Search(context.Background(), "ada", 500)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ada@example.com", hits[0]["email"])
	assert.EqualValues(t, 10, query["size"])
}

func TestProfileIndex_DisabledWithoutClient(t *testing.T) {
	idx := NewProfileIndex(nil, "profiles")
	assert.NoError(t, idx.Index(context.Background(), entity.Profile{ID: "u1"}))
	hits, err := idx.Search(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
