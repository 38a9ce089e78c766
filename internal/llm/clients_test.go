package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			var req ollamaGenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "m1", req.Model)
			_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "echo " + req.Prompt, Done: true})
		case "/api/embed":
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"0.1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "m1"})
	ctx := context.Background()

	out, err := c.Complete(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)

	vec, err := c.Embed(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	assert.NoError(t, c.HealthCheck(ctx))
}

func TestOpenAIClients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
		case "/v1/embeddings":
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	out, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}).Complete(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	emb := NewOpenAIEmbeddingClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	assert.Equal(t, "text-embedding-3-small", emb.GetModel())
	vec, err := emb.Embed(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestAnthropicClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	_, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestFactory(t *testing.T) {
	gen, err := NewTextGenerator(Config{})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewTextGenerator(Config{Provider: "ollama", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", gen.GetModel())

	_, err = NewTextGenerator(Config{Provider: "bogus"})
	assert.Error(t, err)

	emb, err := NewEmbeddingGenerator(Config{EmbeddingDims: 64})
	require.NoError(t, err)
	assert.Equal(t, "hash-64", emb.GetModel())

	_, err = NewEmbeddingGenerator(Config{EmbeddingProvider: "cohere"})
	assert.Error(t, err)
}
