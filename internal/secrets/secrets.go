// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files and
// from a dotenv file, and applies them to the configuration.
//
// In the directory form each file is one secret: the filename is the key and
// the trimmed contents are the value. Recognised keys: openai-api-key,
// image-api-key, search-api-key. The dotenv form uses OPENAI_API_KEY,
// IMAGE_API_KEY and SEARCH_API_KEY.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Key names in the secrets directory.
const (
	OpenAIKey = "openai-api-key"
	ImageKey  = "image-api-key"
	SearchKey = "search-api-key"
)

// envKeys maps dotenv variables to secrets directory key names.
var envKeys = map[string]string{
	"OPENAI_API_KEY": OpenAIKey,
	"IMAGE_API_KEY":  ImageKey,
	"SEARCH_API_KEY": SearchKey,
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *slog.Logger) (map[string]string, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", logging.String("name", name), logging.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// LoadEnv reads a dotenv file and returns the recognised keys under their
// directory names. A missing file yields an empty map.
func LoadEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	out := make(map[string]string)
	for env, key := range envKeys {
		if v := strings.TrimSpace(vars[env]); v != "" {
			out[key] = v
		}
	}
	return out, nil
}

// Merge returns the union of maps; later maps win.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Apply fills empty API keys in cfg from secrets. Keys already set by the
// config file or environment are kept. The image key falls back to the
// text key.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = secrets[OpenAIKey]
	}
	if cfg.Image.APIKey == "" {
		cfg.Image.APIKey = secrets[ImageKey]
	}
	if cfg.Image.APIKey == "" {
		cfg.Image.APIKey = cfg.AI.APIKey
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = secrets[SearchKey]
	}
}
