// Package document defines the source material a generation run consumes
// and the manifest-driven loader that materializes it. Documents are
// enumerated once from a manifest, loaded into memory for the lifetime of
// a single run, and discarded afterwards; nothing here is cached across
// runs.
package document

import "fmt"

// Role distinguishes how a source document participates in generation.
type Role string

const (
	// RolePlacement marks documents whose content is placed into the
	// assembled dossier (study reports, summaries).
	RolePlacement Role = "placement"

	// RoleReference marks documents consulted for context only
	// (guidance text, prior correspondence).
	RoleReference Role = "reference"
)

// ParseRole validates a manifest role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePlacement, RoleReference:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown document role %q", s)
	}
}

// Source identifies one document in the manifest. Immutable after
// enumeration.
type Source struct {
	ID           string  `yaml:"id"`
	RelativePath string  `yaml:"path"`
	Role         Role    `yaml:"role"`
	Confidence   float64 `yaml:"confidence"`
}

// Loaded is a Source plus its raw body, free-form metadata, and the
// estimated cost used for batching. Owned exclusively by the run that
// loaded it.
type Loaded struct {
	Source
	Body          string
	Metadata      map[string]string
	EstimatedCost int
}
