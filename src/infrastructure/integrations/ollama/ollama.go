package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docchat/src/infrastructure/log"
)

const (
	DefaultURL            = "http://localhost:11434/api"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultChatModel      = "llama3.2"
)

// EmbeddingRequest represents the request structure for embeddings
type EmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbeddingResponse represents the response structure from embeddings
type EmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// GenerateRequest represents the request structure for model generation
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse represents the response structure from generation
type GenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ErrTruncated is returned when the response was truncated by the model
type ErrTruncated struct {
	Message string
}

func (e *ErrTruncated) Error() string {
	return e.Message
}

// Client talks to an Ollama instance and satisfies both the embedder and
// generator capability interfaces of the core packages.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	embeddingModel string
	chatModel      string
}

// NewClient creates a new Ollama API client. Empty arguments fall back to
// the package defaults.
func NewClient(baseURL, embeddingModel, chatModel string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	if c == nil {
		c = &http.Client{}
	}

	return &Client{
		httpClient:     c,
		baseURL:        baseURL,
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}
}

// Embed generates an embedding vector for the given text using the
// configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := EmbeddingRequest{
		Model:  c.embeddingModel,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service error: %s", resp.Status)
	}

	var result EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	embedding32 := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding32[i] = float32(v)
	}

	return embedding32, nil
}

// Generate performs a one-shot completion with the configured chat model.
// Ollama streams line-delimited JSON even for single completions, so the
// chunks are reassembled here.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := GenerateRequest{
		Model:  c.chatModel,
		Prompt: prompt,
		Stream: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/generate", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error(err, "failed to make request to ollama")
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation service error: %s", resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	var fullResponse strings.Builder

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("error reading response: %w", err)
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var response GenerateResponse
		if err := json.Unmarshal(line, &response); err != nil {
			log.Error(err, "failed to unmarshal response line", "line", string(line))
			return "", fmt.Errorf("error unmarshaling response: %w", err)
		}

		fullResponse.WriteString(response.Response)

		if response.Truncated {
			return "", &ErrTruncated{Message: "Response was truncated by the model"}
		}

		if response.Done {
			return fullResponse.String(), nil
		}
	}

	if fullResponse.Len() > 0 {
		return fullResponse.String(), nil
	}
	return "", fmt.Errorf("no response received from Ollama")
}
