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
)

type stubProvider struct {
	text  string
	err   error
	panic bool
	calls int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	return s.text, s.err
}

func TestOracleComplete(t *testing.T) {
	tests := []struct {
		name       string
		provider   *stubProvider
		wantFailed bool
		wantText   string
	}{
		{name: "text", provider: &stubProvider{text: `{"question":"q"}`}, wantText: `{"question":"q"}`},
		{name: "transport error", provider: &stubProvider{err: errors.New("429 rate limited")}, wantFailed: true},
		{name: "blank text", provider: &stubProvider{text: "  \n"}, wantFailed: true},
		{name: "panic", provider: &stubProvider{panic: true}, wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := NewOracle(tt.provider, 0, nil)
			got := oracle.Complete(context.Background(), "prompt")

			assert.Equal(t, tt.wantFailed, got.Failed())
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, 1, tt.provider.calls, "oracle must not retry")
		})
	}
}

func TestOracleBlankTextIsEmptyResponse(t *testing.T) {
	got := NewOracle(&stubProvider{text: ""}, 0, nil).Complete(context.Background(), "p")
	assert.ErrorIs(t, got.Err, ErrEmptyResponse)
}

func TestOllamaProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5", req.Model)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "hello " + req.Prompt})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5"})
	text, err := p.Generate(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestOllamaProviderFailureBecomesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), "x")
	assert.ErrorContains(t, err, "503")

	got := NewOracle(p, time.Second, nil).Complete(context.Background(), "x")
	assert.True(t, got.Failed())
	assert.Empty(t, got.Text)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Provider: "ollama", Model: "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = NewProvider(Config{Provider: "openai", OpenAIAPIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewProvider(Config{Provider: "anthropic", AnthropicKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = NewProvider(Config{Provider: "openai"})
	assert.Error(t, err)

	_, err = NewProvider(Config{Provider: "bard"})
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestOpenAIProviderGenerate(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  string
	}{
		{
			name:     "first choice",
			response: `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"question\":\"q\"}"},"finish_reason":"stop"}]}`,
			want:     `{"question":"q"}`,
		},
		{
			name:     "no choices",
			response: `{"id":"c2","object":"chat.completion","choices":[]}`,
			wantErr:  "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

				var req map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "gpt-4o-mini", req["model"])

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
			text, err := p.Generate(context.Background(), "prompt")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Empty(t, text)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestProviderName(t *testing.T) {
	assert.Equal(t, "openai", ProviderName(""))
	assert.Equal(t, "openai", ProviderName(" OpenAI "))
	assert.Equal(t, "anthropic", ProviderName("Anthropic"))

	p, err := NewProvider(Config{Provider: "OLLAMA"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}
