package vision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend_ProcessVisionParsesGroundResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ground", r.URL.Path)
		w.Write([]byte(`{"found":true,"x":12.5,"y":40,"width":100,"height":20,"confidence":0.9,"description":"submit button"}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, time.Second)
	result, err := backend.ProcessVision(context.Background(), GroundRequest{TextCommand: "find submit"})

	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, "submit button", result.Description)
}

func TestHTTPBackend_QueryMemoryParsesHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/memory/query", r.URL.Path)
		w.Write([]byte(`[{"text":"clicked submit","similarity":0.8,"action_plan":"click #submit"}]`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, time.Second)
	hits, err := backend.QueryMemory(context.Background(), MemoryQuery{Query: "submit flow", TopK: 3})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "click #submit", hits[0].ActionPlan)
}

func TestHTTPBackend_UpdateWorldModelParsesAcceptance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/world-model", r.URL.Path)
		w.Write([]byte(`{"accepted":true,"prediction":"checkout_page"}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, time.Second)
	ok, prediction, err := backend.UpdateWorldModel(context.Background(), "state-1", map[string]any{"url": "/checkout"})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "checkout_page", prediction)
}

func TestHTTPBackend_NonOKStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, time.Second)
	_, err := backend.ProcessVision(context.Background(), GroundRequest{})

	assert.Error(t, err)
}
