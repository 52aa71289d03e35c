package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a settings file (TOML, YAML or JSON, detected from the
// extension with a content-sniffing fallback), updates every registered
// property present in the file, and notifies change listeners for each
// property whose value actually differs afterwards. Unregistered keys in the
// file are ignored. Returns ErrNotFound when the file does not exist.
func (s *Store) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("settings: failed to open %q: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("settings: failed to read %q: %w", path, err)
	}

	format := detectFileFormat(path)
	if format == "" {
		format = detectFormatFromContent(data)
		if format == "" {
			return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
		}
	}

	nested := make(map[string]any)
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &nested); err != nil {
			return fmt.Errorf("settings: failed to parse TOML file %q: %w", path, err)
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber() // preserve number precision
		if err := decoder.Decode(&nested); err != nil {
			return fmt.Errorf("settings: failed to parse JSON file %q: %w", path, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &nested); err != nil {
			return fmt.Errorf("settings: failed to parse YAML file %q: %w", path, err)
		}
	}

	flat := flattenMap(nested, "")

	// Commit under the lock, collect the names that changed, notify after.
	s.mu.Lock()
	var changed []string
	for name, value := range flat {
		it, registered := s.items[name]
		if !registered {
			continue
		}
		if !reflect.DeepEqual(it.currentValue, value) {
			changed = append(changed, name)
		}
		it.currentValue = value
		s.items[name] = it
	}
	s.mu.Unlock()

	for _, name := range changed {
		s.notify(name)
	}
	return nil
}

// Save writes the current values of all registered properties to path,
// marshalled according to the file extension (TOML by default), using an
// atomic temp-file-and-rename write.
func (s *Store) Save(path string) error {
	nested := make(map[string]any)
	for name, value := range s.snapshot() {
		setNestedValue(nested, name, value)
	}

	var data []byte
	var err error
	switch detectFileFormat(path) {
	case "json":
		data, err = json.MarshalIndent(nested, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(nested)
	default:
		var buf bytes.Buffer
		encoder := toml.NewEncoder(&buf)
		err = encoder.Encode(nested)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("settings: failed to marshal values for %q: %w", path, err)
	}

	return atomicWriteFile(path, data)
}

// atomicWriteFile performs an atomic file write via a sibling temp file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("settings: failed to create directory %q: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("settings: failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // no-op once renamed

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("settings: failed to write temporary file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("settings: failed to sync temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("settings: failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("settings: failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("settings: failed to rename temporary file to %q: %w", path, err)
	}
	return nil
}

// detectFileFormat determines format from the file extension.
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// detectFormatFromContent attempts detection by parsing. JSON is checked
// first because it is the strictest; YAML is a superset of JSON.
func detectFormatFromContent(data []byte) string {
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return "json"
	}
	var tomlTest any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return "toml"
	}
	var yamlTest any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return "yaml"
	}
	return ""
}
