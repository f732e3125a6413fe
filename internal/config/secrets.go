package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Secret names shared by the .secrets file and the environment
const (
	SecretEbayAppID   = "EBAY_APP_ID"
	SecretRapidAPIKey = "RAPIDAPI_KEY"
	SecretSerpAPIKey  = "SERPAPI_KEY"
)

// maxSecretLine bounds one KEY=VALUE line.
const maxSecretLine = 64 * 1024

// Secrets holds provider credentials read from the .secrets file.
// A nil *Secrets is valid and only consults the environment.
type Secrets struct {
	values map[string]string
}

// SecretsPath returns the .secrets path next to config.yaml
func SecretsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".secrets"), nil
}

// LoadSecrets reads the .secrets file. A missing file yields empty secrets.
func LoadSecrets() (*Secrets, error) {
	path, err := SecretsPath()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Secrets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets file: %w", err)
	}
	defer f.Close()

	s, err := ParseSecrets(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSecrets reads KEY=VALUE lines. Blank lines and # comments are
// skipped, an optional "export " prefix is accepted and surrounding quotes
// are removed from values.
func ParseSecrets(r io.Reader) (*Secrets, error) {
	s := &Secrets{values: map[string]string{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxSecretLine)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", n)
		}
		s.values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	return s, nil
}

// Lookup returns the value from .secrets, falling back to the environment
func (s *Secrets) Lookup(key string) string {
	if s != nil {
		if value := s.values[key]; value != "" {
			return value
		}
	}
	return strings.TrimSpace(os.Getenv(key))
}
