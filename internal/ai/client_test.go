package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/guardian/internal/apperr"
)

type scriptedProvider struct {
	responses map[string]string
	failures  map[string]error
	calls     []string
	delay     time.Duration
	lastMsgs  []Message
	jsonMode  bool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, model string, messages []Message, jsonMode bool) (string, error) {
	p.calls = append(p.calls, model)
	p.lastMsgs = messages
	p.jsonMode = jsonMode
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := p.failures[model]; err != nil {
		return "", err
	}
	return p.responses[model], nil
}

func TestNewRequiresModels(t *testing.T) {
	_, err := New(&scriptedProvider{}, nil, nil)
	assert.Error(t, err)

	_, err = New(nil, []string{"m"}, nil)
	assert.Error(t, err)
}

func TestFallbackStopsAtFirstSuccess(t *testing.T) {
	p := &scriptedProvider{
		failures:  map[string]error{"primary": errors.New("503 unavailable")},
		responses: map[string]string{"secondary": "  hello  ", "tertiary": "unused"},
	}
	c, err := New(p, []string{"primary", "secondary", "tertiary"}, nil)
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, []string{"primary", "secondary"}, p.calls)
}

func TestEmptyResponseFallsThrough(t *testing.T) {
	p := &scriptedProvider{responses: map[string]string{"a": "   ", "b": "ok"}}
	c, err := New(p, []string{"a", "b"}, nil)
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestAllModelsFail(t *testing.T) {
	p := &scriptedProvider{failures: map[string]error{"a": errors.New("boom"), "b": errors.New("bang")}}
	c, err := New(p, []string{"a", "b"}, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.ExternalAPI, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "bang")
}

func TestAttemptTimeout(t *testing.T) {
	p := &scriptedProvider{delay: time.Second, responses: map[string]string{"slow": "late", "fast": "x"}}
	c, err := New(p, []string{"slow"}, nil)
	require.NoError(t, err)
	c.timeout = 20 * time.Millisecond

	_, err = c.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompleteJSON(t *testing.T) {
	p := &scriptedProvider{responses: map[string]string{"m": "Sure! {\"conditions\": [\"anxiety\"]} Hope that helps."}}
	c, err := New(p, []string{"m"}, nil)
	require.NoError(t, err)

	var out struct {
		Conditions []string `json:"conditions"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), nil, &out))
	assert.Equal(t, []string{"anxiety"}, out.Conditions)
	assert.True(t, p.jsonMode)
}

func TestDecodeJSONObjectErrors(t *testing.T) {
	var out map[string]interface{}
	err := decodeJSONObject("no json here", &out)
	assert.Equal(t, apperr.ExternalAPI, apperr.KindOf(err))

	err = decodeJSONObject("{not valid}", &out)
	assert.Equal(t, apperr.ExternalAPI, apperr.KindOf(err))
}

func TestExtractTextSendsImage(t *testing.T) {
	p := &scriptedProvider{responses: map[string]string{"vision": "Sertraline 50 mg"}}
	c, err := New(p, []string{"vision"}, nil)
	require.NoError(t, err)

	text, err := c.ExtractText(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Sertraline 50 mg", text)
	require.Len(t, p.lastMsgs, 2)
	assert.Equal(t, "image/png", p.lastMsgs[1].ImageMIME)
	assert.NotEmpty(t, p.lastMsgs[1].Image)
}

func TestOllamaProvider(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string   `json:"role"`
			Content string   `json:"content"`
			Images  []string `json:"images"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"I hear you."},"done":true}`))
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	text, err := p.Complete(context.Background(), "llama3.2", []Message{
		{Role: RoleSystem, Content: "be kind"},
		{Role: RoleUser, Content: "read this", Image: []byte("img")},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", text)
	assert.Equal(t, "llama3.2", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Len(t, got.Messages[1].Images, 1)
}

func TestOllamaProviderInvalidURL(t *testing.T) {
	_, err := NewOllamaProvider("://invalid-url", nil)
	assert.Error(t, err)
}

func TestOpenAIProvider(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1")
	assert.Equal(t, "openai", p.Name())

	text, err := p.Complete(context.Background(), "gpt-4o-mini", []Message{
		{Role: RoleUser, Content: "scan", Image: []byte("img"), ImageMIME: "image/jpeg"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Contains(t, body, `"json_object"`)
	assert.Contains(t, body, "data:image/jpeg;base64,")
}
