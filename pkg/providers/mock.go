package providers

import (
	"context"
	"fmt"
	"net/url"
)

// The mock providers keep the full pipeline exercisable without API keys.
// They are deterministic: same input, same output, zero network calls.

// MockStreetView reports universal coverage and serves placeholder imagery.
type MockStreetView struct{}

func (MockStreetView) Coverage(ctx context.Context, address string) (Coverage, error) {
	return Coverage{Status: "OK", Available: true, Mock: true}, nil
}

func (MockStreetView) ImageURL(address, size string, fov, pitch, heading int) string {
	return fmt.Sprintf("https://placehold.co/%s/png?text=%s", size, url.QueryEscape("Street View"))
}

func (MockStreetView) Fetch(ctx context.Context, address, size string) (Image, error) {
	return Image{Data: PlaceholderPNG, MimeType: "image/png", Mock: true}, nil
}

// MockAerial serves placeholder overhead imagery.
type MockAerial struct{}

func (MockAerial) ImageURL(address, size string, zoom int) string {
	return fmt.Sprintf("https://placehold.co/%s/png?text=%s", size, url.QueryEscape("Aerial View"))
}

func (MockAerial) Fetch(ctx context.Context, address, size string, zoom int) (Image, error) {
	return Image{Data: PlaceholderPNG, MimeType: "image/png", Mock: true}, nil
}

// MockVision returns a canned but structurally complete house identity.
type MockVision struct{}

const mockIdentity = `Two stories. Front facade: four double-hung windows on the upper floor, two flanking the entry below. Gable roof with gray asphalt shingles. One white garage door on the left. Straight concrete driveway on the left side. Two boxwood shrubs flanking the front door, one maple tree at the right corner. No pool present. Light blue horizontal lap siding with white trim.`

func (MockVision) ExtractIdentity(ctx context.Context, img Image) (string, error) {
	return mockIdentity, nil
}

func (MockVision) Analyze(ctx context.Context, img Image, instructions string) (string, error) {
	return mockIdentity, nil
}

func (MockVision) Mock() bool { return true }

// MockSynthesizer returns the placeholder image under a mock model name.
type MockSynthesizer struct{}

func (MockSynthesizer) Synthesize(ctx context.Context, prompt string, refs []Image) (Synthesis, error) {
	return Synthesis{Data: PlaceholderPNG, MimeType: "image/png", Model: "mock", Mock: true}, nil
}
