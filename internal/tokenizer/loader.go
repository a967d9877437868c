package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Loader finds tokenizer manifests on disk.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new manifest loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		logger: logger.With(zap.String("component", "tokenizer-loader")),
	}
}

// LoadManifest parses and validates the manifest in dir.
func (l *Loader) LoadManifest(dir string) (*Manifest, error) {
	l.logger.Debug("Loading tokenizer manifest", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Tokenizer manifest loaded",
		zap.String("name", manifest.Name),
		zap.String("kind", string(manifest.Kind)),
		zap.Int("special_tokens", len(manifest.SpecialTokens)),
	)

	return manifest, nil
}

// Discover scans each path's subdirectories for manifests. Directories with
// a broken manifest are logged and skipped; it is an error only when no
// manifest at all could be loaded.
func (l *Loader) Discover(paths []string) ([]*Manifest, error) {
	var manifests []*Manifest
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning tokenizer directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Tokenizer path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			dir := filepath.Join(basePath, entry.Name())

			manifest, err := l.LoadManifest(dir)
			if err != nil {
				l.logger.Error("Failed to load tokenizer manifest",
					zap.String("dir", dir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			manifests = append(manifests, manifest)
		}
	}

	if len(manifests) > 0 && len(errs) > 0 {
		l.logger.Warn("Some tokenizer manifests failed to load",
			zap.Int("loaded", len(manifests)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(manifests) == 0 {
		return nil, &NoManifestsFoundError{Paths: paths}
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Name < manifests[j].Name
	})

	return manifests, nil
}
