package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider sends chat requests to an Ollama server
type OllamaProvider struct {
	client *api.Client
}

// NewOllamaProvider creates a provider for the given base URL
func NewOllamaProvider(ollamaURL string, httpClient *http.Client) (*OllamaProvider, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultOllamaURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &OllamaProvider{client: api.NewClient(baseURL, httpClient)}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

// Complete runs one non-streaming chat request
func (p *OllamaProvider) Complete(ctx context.Context, model string, messages []Message, jsonMode bool) (string, error) {
	req := &api.ChatRequest{
		Model:    model,
		Messages: make([]api.Message, 0, len(messages)),
		Stream:   new(bool),
	}
	if jsonMode {
		req.Format = json.RawMessage(`"json"`)
	}
	for _, m := range messages {
		msg := api.Message{Role: m.Role, Content: m.Content}
		if len(m.Image) > 0 {
			msg.Images = []api.ImageData{m.Image}
		}
		req.Messages = append(req.Messages, msg)
	}

	var response strings.Builder
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}

	return response.String(), nil
}
