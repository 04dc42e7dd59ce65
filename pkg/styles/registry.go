// Package styles holds the server-side allowlist of generation styles and
// the fallback catalog of pre-rendered homes. Raw user text never becomes a
// prompt: every outbound prompt starts from a registered template.
package styles

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hausgeist-ai/hausgeist/pkg/models"
)

//go:embed styles.yaml
var rawTable []byte

const locationPlaceholder = "{{location}}"

// genericLocation replaces the placeholder when no locality could be
// derived from the address.
const genericLocation = "the surrounding neighborhood"

// Registry is the immutable style table plus the fallback catalog.
type Registry struct {
	byID        map[string]models.StyleDefinition
	ids         []string
	fallbacks   []models.FallbackHome
	fallbackDir string
}

type table struct {
	Styles        []models.StyleDefinition `yaml:"styles"`
	FallbackHomes []models.FallbackHome    `yaml:"fallback_homes"`
}

// Load parses the embedded style table and validates it, failing fast on
// malformed entries. fallbackDir is where pre-rendered catalog images live.
func Load(fallbackDir string) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(rawTable, &t); err != nil {
		return nil, fmt.Errorf("parse style table: %w", err)
	}
	if len(t.Styles) == 0 {
		return nil, fmt.Errorf("style table is empty")
	}

	r := &Registry{
		byID:        make(map[string]models.StyleDefinition, len(t.Styles)),
		fallbacks:   t.FallbackHomes,
		fallbackDir: fallbackDir,
	}
	for _, def := range t.Styles {
		if def.ID == "" || def.DisplayName == "" || def.PromptTemplate == "" {
			return nil, fmt.Errorf("style %q: missing required field", def.ID)
		}
		if _, dup := r.byID[def.ID]; dup {
			return nil, fmt.Errorf("style %q: duplicate id", def.ID)
		}
		r.byID[def.ID] = def
		r.ids = append(r.ids, def.ID)
	}
	return r, nil
}

// Resolve looks up a style by ID.
func (r *Registry) Resolve(id string) (models.StyleDefinition, bool) {
	def, ok := r.byID[id]
	return def, ok
}

// IDs returns all registered style IDs in table order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// All returns every style definition in table order.
func (r *Registry) All() []models.StyleDefinition {
	defs := make([]models.StyleDefinition, 0, len(r.ids))
	for _, id := range r.ids {
		defs = append(defs, r.byID[id])
	}
	return defs
}

// Prompt renders the style template and appends the extracted identity as
// grounding. An unresolvable location placeholder falls back to a generic
// phrase instead of leaking the literal token downstream.
func (r *Registry) Prompt(def models.StyleDefinition, locality, identity string) string {
	loc := strings.TrimSpace(locality)
	if loc == "" {
		loc = genericLocation
	}
	rendered := strings.ReplaceAll(def.PromptTemplate, locationPlaceholder, loc)

	var b strings.Builder
	b.WriteString(rendered)
	b.WriteString("\n\nThe house to depict, exactly as observed:\n")
	b.WriteString(strings.TrimSpace(identity))
	return b.String()
}

// Fallback deterministically selects a catalog home for the given style,
// keyed by the normalized address, and loads its pre-rendered image.
// ok is false when no catalog entry exists for the style. The returned
// image bytes may be nil if the file is unreadable; callers substitute a
// placeholder.
func (r *Registry) Fallback(styleID, addrKey string) (home models.FallbackHome, image []byte, ok bool) {
	var candidates []models.FallbackHome
	for _, h := range r.fallbacks {
		if _, has := h.Images[styleID]; has {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return models.FallbackHome{}, nil, false
	}

	h := fnv.New32a()
	h.Write([]byte(addrKey))
	home = candidates[h.Sum32()%uint32(len(candidates))]

	data, err := os.ReadFile(filepath.Join(r.fallbackDir, home.Images[styleID]))
	if err != nil {
		return home, nil, true
	}
	return home, data, true
}
