package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// envSections are the configuration sections that environment variables may
// populate. Variables outside these sections are ignored.
var envSections = map[string]bool{
	"store":     true,
	"embedding": true,
	"log":       true,
	"server":    true,
	"ingest":    true,
	"telemetry": true,
	// legacy names
	"chroma": true,
	"ollama": true,
}

// LoadWithFile loads configuration from a YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STORE_HOST, EMBEDDING_MODEL, etc.)
//  2. YAML config file (~/.config/ragdocs/config.yaml)
//  3. Hardcoded defaults
//
// A missing config file is not an error. Existing files must have 0600 or
// 0400 permissions and live under ~/.config/ragdocs/ or /etc/ragdocs/.
//
// Environment variables are mapped by splitting on the first underscore:
//
//	STORE_HOST      -> store.host
//	EMBEDDING_MODEL -> embedding.model
//	INGEST_CHUNK_SIZE -> ingest.chunk_size
//
// CHROMA_HOST, CHROMA_PORT and OLLAMA_EMBEDDING are accepted as fallbacks for
// STORE_HOST, STORE_PORT and EMBEDDING_MODEL.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ragdocs", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if err := loadFile(k, configPath); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyAliases(k, &cfg)
	applyDefaults(&cfg, k.Exists)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFile loads the YAML file at path into k if it exists.
func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate using the opened descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps an environment variable name to a koanf key.
// Returning "" makes the env provider skip the variable.
func envKey(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	if !envSections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// applyAliases fills store and embedding settings from their legacy names
// when the canonical keys are absent.
func applyAliases(k *koanf.Koanf, cfg *Config) {
	if !k.Exists("store.host") && k.Exists("chroma.host") {
		cfg.Store.Host = k.String("chroma.host")
	}
	if !k.Exists("store.port") && k.Exists("chroma.port") {
		cfg.Store.Port = k.Int("chroma.port")
	}
	if !k.Exists("embedding.model") && k.Exists("ollama.embedding") {
		cfg.Embedding.Model = k.String("ollama.embedding")
	}
}

// LoadDotEnv loads KEY=VALUE pairs from .env files into the process
// environment. Variables already set are left untouched and missing files
// are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that do not exist yet are validated as given.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ragdocs"),
		"/etc/ragdocs",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/ragdocs/ or /etc/ragdocs/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
