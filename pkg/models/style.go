package models

// StyleDefinition describes one entry in the server-held style allowlist.
// Definitions are loaded once at startup and never mutated.
type StyleDefinition struct {
	ID           string `json:"id" yaml:"id"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	UseReference bool   `json:"use_reference" yaml:"use_reference"`
	// PromptTemplate may contain a {{location}} placeholder substituted
	// at request time from the validated address.
	PromptTemplate string `json:"-" yaml:"prompt_template"`
}

// FallbackHome is a well-known property with pre-rendered imagery,
// substituted when an address has no coverage or is privacy-blurred.
type FallbackHome struct {
	Subject string            `json:"subject" yaml:"subject"`
	Address string            `json:"address" yaml:"address"`
	Images  map[string]string `json:"-" yaml:"images"` // style ID -> image file
}
