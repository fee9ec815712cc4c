package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"dossierforge/internal/estimate"
)

// Manifest is the on-disk enumeration of source documents for one run.
type Manifest struct {
	Documents []Source `yaml:"documents"`
}

// ParseManifest decodes a manifest and validates every entry.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Documents))
	for i, src := range m.Documents {
		if src.ID == "" {
			return nil, fmt.Errorf("manifest entry %d has no id", i)
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("duplicate document id %q", src.ID)
		}
		seen[src.ID] = true
		if src.RelativePath == "" {
			return nil, fmt.Errorf("document %q has no path", src.ID)
		}
		if _, err := ParseRole(string(src.Role)); err != nil {
			return nil, fmt.Errorf("document %q: %w", src.ID, err)
		}
	}
	return &m, nil
}

// Loader reads manifest-listed documents from disk and assigns each an
// estimated cost. It is called once at pipeline start.
type Loader struct {
	estimator *estimate.Estimator
	log       *zap.Logger
}

// NewLoader creates a Loader. A nil logger is replaced with a no-op.
func NewLoader(estimator *estimate.Estimator, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{estimator: estimator, log: log}
}

// LoadAll reads the manifest at manifestPath and loads every listed
// document, resolving relative paths against the manifest's directory.
// Placement documents are ordered before reference documents; order is
// otherwise preserved as listed. A document that cannot be read fails the
// whole load: a run with missing placement material is not worth starting.
func (l *Loader) LoadAll(manifestPath string) ([]Loaded, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(manifestPath)
	loaded := make([]Loaded, 0, len(m.Documents))
	for _, src := range m.Documents {
		body, err := os.ReadFile(filepath.Join(baseDir, src.RelativePath))
		if err != nil {
			return nil, fmt.Errorf("failed to load document %q: %w", src.ID, err)
		}
		doc := Loaded{
			Source:        src,
			Body:          string(body),
			Metadata:      map[string]string{"path": src.RelativePath},
			EstimatedCost: l.estimator.Estimate(string(body)),
		}
		loaded = append(loaded, doc)
		l.log.Debug("Loaded document",
			zap.String("id", src.ID),
			zap.String("role", string(src.Role)),
			zap.Int("cost", doc.EstimatedCost))
	}

	// Placement material must come first so the batcher sees it before
	// reference context. Stable sort keeps manifest order within a role.
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].Role == RolePlacement && loaded[j].Role == RoleReference
	})

	l.log.Info("Manifest loaded", zap.Int("documents", len(loaded)))
	return loaded, nil
}
