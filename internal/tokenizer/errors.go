package tokenizer

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// FileNotFoundError occurs when a tokenizer file referenced in a manifest doesn't exist.
type FileNotFoundError struct {
	ManifestPath string
	File         string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("tokenizer file '%s' not found (referenced in manifest '%s')",
		e.File, e.ManifestPath)
}

// LoadError occurs when the guest rejects a tokenizer or its files cannot be read.
type LoadError struct {
	TokenizerName string
	Err           error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load tokenizer '%s': %v", e.TokenizerName, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NotLoadedError occurs when an operation names a tokenizer that is not loaded.
type NotLoadedError struct {
	TokenizerName string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("tokenizer '%s' not loaded", e.TokenizerName)
}

// AlreadyLoadedError occurs when attempting to load a tokenizer name twice.
type AlreadyLoadedError struct {
	TokenizerName string
}

func (e *AlreadyLoadedError) Error() string {
	return fmt.Sprintf("tokenizer '%s' is already loaded", e.TokenizerName)
}

// NoManifestsFoundError occurs when no manifests are found in the configured paths.
type NoManifestsFoundError struct {
	Paths []string
}

func (e *NoManifestsFoundError) Error() string {
	return fmt.Sprintf("no tokenizer manifests found in paths: %v", e.Paths)
}
