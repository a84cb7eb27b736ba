package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatBody struct {
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestGroq_Complete(t *testing.T) {
	var got chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Data Engineer \n"}}]}`))
	}))
	defer srv.Close()

	g := NewGroq(srv.URL+"/", "secret", "llama-3.1-8b-instant", time.Second)
	out, err := g.Complete(context.Background(), Request{Prompt: "hello", Temperature: 0.3, MaxOutputTokens: 50})
	require.NoError(t, err)

	assert.Equal(t, "Data Engineer", out)
	assert.Equal(t, "llama-3.1-8b-instant", got.Model)
	assert.Equal(t, 50, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 0.0001)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestGroq_StatusErrors(t *testing.T) {
	for _, code := range []int{401, 404, 429, 500, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
		}))

		g := NewGroq(srv.URL, "k", "m", time.Second)
		_, err := g.Complete(context.Background(), Request{Prompt: "x"})
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, code, StatusCode(err))
		assert.Contains(t, err.Error(), "nope")
	}
}

func TestGroq_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	out, err := NewGroq(srv.URL, "k", "m", time.Second).Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGroq_TransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewGroq(url, "k", "m", time.Second).Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestGroq_NonJSONErrorBodyKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	_, err := NewGroq(srv.URL, "k", "m", time.Second).Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}
