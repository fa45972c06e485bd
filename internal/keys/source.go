package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/firefly-engineering/keyrelay/internal/errors"
)

const (
	// EnvVar holds the comma-delimited key list checked before the file.
	EnvVar = "GEMINI_API_KEYS"

	// DefaultFile is the structured key file consulted when EnvVar is unset.
	DefaultFile = "api-keys.json"

	listDelimiter = ","
)

// Origin identifies where a store's keys were loaded from.
type Origin string

const (
	OriginNone Origin = "none"
	OriginEnv  Origin = "env"
	OriginFile Origin = "file"
)

// Source describes the two places keys can come from, in priority order.
type Source struct {
	// EnvList is the raw value of the environment list. It counts as present
	// whenever it is non-empty, even if it holds nothing but delimiters.
	EnvList string

	// File is the path of a structured key file (.json, .toml, .yaml, .yml).
	File string
}

// SourceFromEnv reads EnvVar from the process environment.
func SourceFromEnv(file string) Source {
	return Source{
		EnvList: os.Getenv(EnvVar),
		File:    file,
	}
}

// Load builds a store from src. A present environment list always wins,
// including when it filters down to zero keys. A missing file yields an
// empty store; an unreadable or malformed one is a config error.
func Load(src Source) (*Store, error) {
	if src.EnvList != "" {
		return newStore(ParseList(src.EnvList), OriginEnv), nil
	}

	if src.File == "" {
		return newStore(nil, OriginNone), nil
	}

	keys, err := ReadFile(src.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newStore(nil, OriginNone), nil
		}
		return nil, errors.ConfigError(fmt.Sprintf("failed to load API keys from %s", src.File), err)
	}
	return newStore(keys, OriginFile), nil
}

// ParseList splits a delimited key list, trimming whitespace and dropping empty items.
func ParseList(raw string) []string {
	var keys []string
	for _, part := range strings.Split(raw, listDelimiter) {
		if k := strings.TrimSpace(part); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// keyFile is the object form shared by all structured formats.
type keyFile struct {
	Keys []string `json:"keys" toml:"keys" yaml:"keys"`
}

// ReadFile parses a structured key file. The format is chosen by extension;
// anything other than .toml, .yaml or .yml is read as JSON.
func ReadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var keys []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var kf keyFile
		if _, err := toml.Decode(string(data), &kf); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		keys = kf.Keys
	case ".yaml", ".yml":
		keys, err = parseYAML(data)
	default:
		keys, err = parseJSON(data)
	}
	if err != nil {
		return nil, err
	}

	return cleanKeys(keys), nil
}

// parseJSON accepts either a bare array or an object with a "keys" array.
func parseJSON(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var keys []string
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return keys, nil
	}

	var kf keyFile
	if err := json.Unmarshal(trimmed, &kf); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return kf.Keys, nil
}

// parseYAML accepts either a sequence or a mapping with a "keys" sequence.
func parseYAML(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var keys []string
		if err := root.Decode(&keys); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return keys, nil
	}

	var kf keyFile
	if err := root.Decode(&kf); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return kf.Keys, nil
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
