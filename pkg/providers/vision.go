package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// identityInstructions asks for exact counts and positions rather than an
// impressionistic description; that precision is what lets synthesis
// reproduce a recognizable structure instead of a generic one.
const identityInstructions = `You are a property surveyor documenting a house from a photograph.
Report, with precise counts and positions (never impressions):
1. Number of stories.
2. Window count and placement on each visible facade.
3. Roof shape (gable, hip, flat, mansard) and material.
4. Number of garage doors and their position.
5. Driveway path, position, and material.
6. Landscaping elements and where each sits relative to the house.
7. Whether a pool is present; if so, its exact position.
8. Exterior color and siding material.
Use short declarative sentences. If the imagery is blurred or obscured and
a feature cannot be read, state that it is impossible to determine.`

// GeminiVision extracts text descriptions from imagery.
type GeminiVision struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

// NewGeminiVision returns a client against the production Gemini API.
func NewGeminiVision(apiKey, model string) *GeminiVision {
	return &GeminiVision{APIKey: apiKey, Model: model, BaseURL: geminiBaseURL, Client: http.DefaultClient}
}

// ExtractIdentity runs the structured extraction instruction set.
func (g *GeminiVision) ExtractIdentity(ctx context.Context, img Image) (string, error) {
	return g.Analyze(ctx, img, identityInstructions)
}

// Analyze runs a free-form instruction against an image and returns the
// concatenated text parts.
func (g *GeminiVision) Analyze(ctx context.Context, img Image, instructions string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: instructions}, imagePart(img)},
		}},
	}

	resp, err := generateContent(ctx, g.Client, g.BaseURL, g.Model, g.APIKey, req)
	if err != nil {
		return "", fmt.Errorf("vision: %w", err)
	}

	var b strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("vision: %s returned no text", g.Model)
	}
	return text, nil
}

// Mock reports whether this is the keyless stand-in.
func (g *GeminiVision) Mock() bool { return false }
