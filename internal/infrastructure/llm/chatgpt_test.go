package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestRanker/internal/config"
	"DigestRanker/internal/domain"
)

func testConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{Endpoint: endpoint, Model: "gpt-4o", APIKey: "secret", Timeout: time.Second}
}

func TestChatGPTGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "rubric", req.Messages[0].Content)
		assert.Equal(t, "[Title] x", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"score\": 77}"}}]}`))
	}))
	defer srv.Close()

	out, err := NewChatGPTClient(testConfig(srv.URL)).Generate(context.Background(), "rubric", "[Title] x")
	require.NoError(t, err)
	assert.Equal(t, `{"score": 77}`, out)
}

func TestChatGPTStatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code      int
		transient bool
	}{
		{code: http.StatusTooManyRequests, transient: true},
		{code: http.StatusBadGateway, transient: true},
		{code: http.StatusBadRequest, transient: false},
		{code: http.StatusUnauthorized, transient: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			defer srv.Close()

			_, err := NewChatGPTClient(testConfig(srv.URL)).Generate(context.Background(), "s", "i")
			var statusErr *domain.StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.code, statusErr.Code)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
		})
	}
}

func TestChatGPTConnectionErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	_, err := NewChatGPTClient(testConfig(endpoint)).Generate(context.Background(), "s", "i")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestChatGPTDeadlineIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewChatGPTClient(testConfig(srv.URL)).Generate(ctx, "s", "i")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestChatGPTMisconfigured(t *testing.T) {
	t.Parallel()

	_, err := NewChatGPTClient(config.LLMConfig{}).Generate(context.Background(), "s", "i")
	assert.ErrorContains(t, err, "misconfigured")
	assert.False(t, domain.IsTransient(err))
}

func TestChatGPTEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewChatGPTClient(testConfig(srv.URL)).Generate(context.Background(), "s", "i")
	assert.ErrorContains(t, err, "no choices")
}
