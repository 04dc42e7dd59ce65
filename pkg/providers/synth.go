package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
)

// GeminiSynthesizer renders styled images, trying each configured model in
// order until one succeeds. Both attempts happen within the caller's queue
// slot; the chain never widens concurrency.
type GeminiSynthesizer struct {
	APIKey  string
	Models  []string
	BaseURL string
	Client  *http.Client
}

// NewGeminiSynthesizer returns a client against the production Gemini API.
// models is the ordered fallback chain, primary first.
func NewGeminiSynthesizer(apiKey string, models []string) *GeminiSynthesizer {
	return &GeminiSynthesizer{APIKey: apiKey, Models: models, BaseURL: geminiBaseURL, Client: http.DefaultClient}
}

// Synthesize generates one image from the prompt, passing refs as inline
// grounding imagery when present.
func (g *GeminiSynthesizer) Synthesize(ctx context.Context, prompt string, refs []Image) (Synthesis, error) {
	parts := []geminiPart{{Text: prompt}}
	for _, ref := range refs {
		parts = append(parts, imagePart(ref))
	}

	req := geminiRequest{
		Contents:         []geminiContent{{Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	var lastErr error
	for _, model := range g.Models {
		resp, err := generateContent(ctx, g.Client, g.BaseURL, model, g.APIKey, req)
		if err != nil {
			log.Printf("synthesis model %s failed: %v, trying next", model, err)
			lastErr = err
			continue
		}

		for _, c := range resp.Candidates {
			for _, p := range c.Content.Parts {
				if p.InlineData == nil {
					continue
				}
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					lastErr = fmt.Errorf("decode generated image: %w", err)
					continue
				}
				mime := p.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return Synthesis{Data: data, MimeType: mime, Model: model}, nil
			}
		}
		lastErr = fmt.Errorf("%s returned no image", model)
		log.Printf("synthesis model %s returned no image, trying next", model)
	}

	return Synthesis{}, fmt.Errorf("all synthesis models failed: %w", lastErr)
}
