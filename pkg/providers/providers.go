// Package providers wraps the external imagery and generative-AI services
// behind narrow capability interfaces, with deterministic mocks used when
// no API key is configured.
package providers

import (
	"context"
	"encoding/base64"
)

// Static per-call dollar figures, summed per generation for basic spend
// observability.
const (
	CostStreetViewImage    = 0.007
	CostAerialImage        = 0.002
	CostIdentityExtraction = 0.0025
	CostImageGeneration    = 0.039
)

// Image is raw acquired imagery plus its MIME type.
type Image struct {
	Data     []byte
	MimeType string
	Mock     bool
}

// Coverage reports whether street-level imagery exists for an address.
type Coverage struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
	Mock      bool   `json:"mock"`
}

// Synthesis is one generated image and the model that produced it.
type Synthesis struct {
	Data     []byte
	MimeType string
	Model    string
	Mock     bool
}

// StreetView acquires street-level imagery for an address.
type StreetView interface {
	Coverage(ctx context.Context, address string) (Coverage, error)
	ImageURL(address, size string, fov, pitch, heading int) string
	Fetch(ctx context.Context, address, size string) (Image, error)
}

// Aerial acquires overhead imagery for an address.
type Aerial interface {
	ImageURL(address, size string, zoom int) string
	Fetch(ctx context.Context, address, size string, zoom int) (Image, error)
}

// Vision turns imagery into text.
type Vision interface {
	// ExtractIdentity produces the structured house-identity description
	// used to ground synthesis.
	ExtractIdentity(ctx context.Context, img Image) (string, error)
	// Analyze runs a free-form instruction against an image.
	Analyze(ctx context.Context, img Image, instructions string) (string, error)
	// Mock reports whether this is the keyless stand-in.
	Mock() bool
}

// Synthesizer renders a styled image from a prompt, optionally grounded by
// reference imagery.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string, refs []Image) (Synthesis, error)
}

// PlaceholderPNG is a 1x1 transparent PNG served wherever real imagery is
// unavailable.
var PlaceholderPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")
