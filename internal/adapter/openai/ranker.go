// Package openai ranks documentation files with an OpenAI chat completion.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/core/domain"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-mini"

	temperature = 0.3
)

const systemPrompt = `You are a helpful assistant that selects the most relevant AITuberKit documentation files based on a user query.
Here is the list of available documents with their descriptions:

%s

Please select up to %d most relevant documents for the given query. Return only the file paths in JSON format like: {"files": ["category/filename", ...]}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type selection struct {
	Files []string `json:"files"`
}

// APIError is a non-200 answer from the chat completions endpoint. Body is
// the response as sent, which for OpenAI is its JSON error object.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAI API error: %d %s", e.Status, e.Body)
}

// Ranker asks a chat model to pick documents from the index listing.
type Ranker struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewRanker(apiKey, baseURL, model string, client *http.Client) *Ranker {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Ranker{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

// Rank returns the paths the model selected, at most limit of them. Paths
// not present in entries are kept; the store decides whether they exist.
func (r *Ranker) Rank(ctx context.Context, query string, entries []domain.DocEntry, limit int) ([]string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, domain.FormatListing(entries), limit)},
			{Role: "user", Content: query},
		},
		Temperature:    temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return nil, domain.ErrNoCompletion
	}

	var sel selection
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &sel); err != nil {
		return nil, fmt.Errorf("parsing model selection: %w", err)
	}

	paths := make([]string, 0, len(sel.Files))
	for _, f := range sel.Files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		paths = append(paths, f)
		if limit > 0 && len(paths) == limit {
			break
		}
	}
	return paths, nil
}
