package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMissingKey(t *testing.T) {
	a := New(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	assert.Equal(t, MessageMissingKey, a.Analyze(context.Background(), "Teclado", "Dell"))
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, `Problema: "Tela piscando"`)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Modelo: Dell Inspiron")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"1. Cabo de vídeo."},{"text":" 2. Trocar."}]}}]}`))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "key", BaseURL: srv.URL, Model: "test-model"}, zap.NewNop())
	assert.Equal(t, "1. Cabo de vídeo. 2. Trocar.", a.Analyze(context.Background(), "Tela piscando", "Dell Inspiron"))
}

func TestDegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := New(Config{APIKey: "key", BaseURL: srv.URL}, zap.NewNop())
	assert.Equal(t, MessageUnavailable, a.Analyze(context.Background(), "x", "y"))

	srv.Close()
	assert.Equal(t, MessageUnavailable, a.Analyze(context.Background(), "x", "y"))
}

func TestEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "key", BaseURL: srv.URL}, zap.NewNop())
	assert.Equal(t, MessageEmpty, a.Analyze(context.Background(), "x", "y"))
}
