package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/tokenbridge/pkg/protocol"
)

// ManifestFile is the file name looked up in each tokenizer directory.
const ManifestFile = "manifest.yaml"

// Manifest represents the tokenizer manifest.yaml structure.
type Manifest struct {
	Name          string                 `yaml:"name"`
	Kind          protocol.TokenizerKind `yaml:"kind"`
	Description   string                 `yaml:"description"`
	Files         Files                  `yaml:"files"`
	SpecialTokens map[string]uint32      `yaml:"special_tokens"`
	Regex         string                 `yaml:"regex"`

	// Internal fields
	dir string // Directory containing manifest
}

// Files names the tokenizer data files, relative to the manifest directory.
type Files struct {
	// tiktoken rank file
	BPE string `yaml:"bpe"`
	// huggingface tokenizer.json
	Model string `yaml:"model"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if !m.Kind.Valid() {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "kind",
			Message: fmt.Sprintf("unsupported kind: '%s' (must be one of: tiktoken, huggingface)", m.Kind),
		}
	}

	var required []struct{ field, file string }
	switch m.Kind {
	case protocol.TokenizerKindTiktoken:
		if m.Regex == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "regex",
				Message: "regex is required for tiktoken tokenizers",
			}
		}
		required = append(required, struct{ field, file string }{"files.bpe", m.Files.BPE})
	case protocol.TokenizerKindHuggingface:
		required = append(required, struct{ field, file string }{"files.model", m.Files.Model})
	}

	for _, r := range required {
		if r.file == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   r.field,
				Message: r.field + " is required",
			}
		}
		if _, err := os.Stat(m.resolve(r.file)); os.IsNotExist(err) {
			return &FileNotFoundError{
				ManifestPath: m.Path(),
				File:         r.file,
			}
		}
	}

	return nil
}

// LoadInput reads the tokenizer files and builds the guest load payload.
func (m *Manifest) LoadInput() (*protocol.LoadTokenizerInput, error) {
	switch m.Kind {
	case protocol.TokenizerKindTiktoken:
		bpe, err := os.ReadFile(m.resolve(m.Files.BPE))
		if err != nil {
			return nil, fmt.Errorf("failed to read bpe file: %w", err)
		}
		return &protocol.LoadTokenizerInput{
			Name: m.Name,
			Data: &protocol.TiktokenData{
				BPE:        bpe,
				SpecialBPE: m.specialBPE(),
				Regex:      m.Regex,
			},
		}, nil

	case protocol.TokenizerKindHuggingface:
		model, err := os.ReadFile(m.resolve(m.Files.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to read model file: %w", err)
		}
		return &protocol.LoadTokenizerInput{
			Name: m.Name,
			Data: &protocol.HuggingfaceData{Model: model},
		}, nil
	}

	return nil, fmt.Errorf("unsupported kind: '%s'", m.Kind)
}

// specialBPE lists special tokens ordered by rank, then by text.
func (m *Manifest) specialBPE() []protocol.SpecialToken {
	tokens := make([]protocol.SpecialToken, 0, len(m.SpecialTokens))
	for token, rank := range m.SpecialTokens {
		tokens = append(tokens, protocol.SpecialToken{Token: token, Rank: rank})
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Rank != tokens[j].Rank {
			return tokens[i].Rank < tokens[j].Rank
		}
		return tokens[i].Token < tokens[j].Token
	})
	return tokens
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

func (m *Manifest) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(m.dir, file)
}
