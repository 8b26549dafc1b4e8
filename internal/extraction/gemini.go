package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-ingest/internal/objectstore"
)

// Gemini implements the Coordinator interface using Google Gemini. Page
// images are fetched from object storage by key and sent inline.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	store  objectstore.Store
}

// NewGemini creates a new Gemini Coordinator instance.
func NewGemini(apiKey string, modelName string, store objectstore.Store) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
		store:  store,
	}, nil
}

// Extract analyzes the referenced page images and returns structured fields.
func (g *Gemini) Extract(ctx context.Context, req Request) (*Result, error) {
	if len(req.ObjectKeys) == 0 {
		return nil, fmt.Errorf("no object keys to extract from")
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	parts := make([]genai.Part, 0, len(req.ObjectKeys)+1)
	for _, key := range req.ObjectKeys {
		data, err := g.store.Download(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("downloading page image %s: %w", key, err)
		}
		parts = append(parts, genai.ImageData("jpeg", data))
	}
	parts = append(parts, genai.Text(extractionPrompt))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result, err := parseExtractionJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	return result, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
