package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zombor/receipt-ingest/internal/objectstore"
)

// Ollama implements the Coordinator interface using a local Ollama vision
// model. Useful for fully offline operation; accuracy depends on the model.
type Ollama struct {
	baseURL string
	model   string
	store   objectstore.Store
	client  *http.Client
}

// NewOllama creates a new Ollama Coordinator instance. Recommended vision
// models: llava:1.6, llava:latest, qwen2-vl:7b.
func NewOllama(baseURL string, modelName string, store objectstore.Store) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		store:   store,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract analyzes the referenced page images and returns structured fields.
func (o *Ollama) Extract(ctx context.Context, req Request) (*Result, error) {
	if len(req.ObjectKeys) == 0 {
		return nil, fmt.Errorf("no object keys to extract from")
	}

	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	images := make([]string, 0, len(req.ObjectKeys))
	for _, key := range req.ObjectKeys {
		data, err := o.store.Download(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("downloading page image %s: %w", key, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from receipts and invoices. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: extractionPrompt,
			},
		},
		Images: images,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	result, err := parseExtractionJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	return result, nil
}

// Close closes the Ollama client (no-op for HTTP client).
func (o *Ollama) Close() error {
	return nil
}
