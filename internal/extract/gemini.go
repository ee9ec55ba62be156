package extract

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"onboarding-reconciler/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

type gemini struct {
	client *genai.Client
	model  string
}

// NewGemini returns a Generator backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &domain.ConfigError{Component: "extract", Message: "GEMINI_API_KEY is not set"}
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, err
	}
	return &gemini{client: client, model: model}, nil
}

func (g *gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   2000,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
