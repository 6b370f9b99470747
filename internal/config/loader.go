package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hookd/internal/auth"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// Supports both single-file mode (all config in one file) and multi-file mode (via include array).
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	// If include array exists, load and merge included files
	allPaths := []string{absPath}
	if len(cfg.Include) > 0 {
		visited := map[string]bool{absPath: true}
		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
		for path := range visited {
			if path != absPath {
				allPaths = append(allPaths, path)
			}
		}
	}

	cfg = applyConfigDefaults(cfg)

	// Hash-verify all configuration files (root config + all includes)
	if err := verifyAllConfigHashes(allPaths); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $HOOKD_CONFIG_DIR, ~/.config/hookd, /etc/hookd, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("HOOKD_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "hookd")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/hookd"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	legacyConfigPath := "./config.yaml"
	if _, err := os.Stat(legacyConfigPath); err == nil {
		return legacyConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $HOOKD_CONFIG_DIR, ~/.config/hookd, /etc/hookd, ./config.yaml)")
}

// DiscoverAllConfigFiles returns absolute paths to all configuration files in the include tree.
func DiscoverAllConfigFiles(configPath string) ([]string, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := collectIncludes(cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func collectIncludes(includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		absPath, err := resolveInclude(i, includePath, baseDir)
		if err != nil {
			return err
		}
		if visited[absPath] {
			continue
		}
		visited[absPath] = true

		partial, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		if len(partial.Include) > 0 {
			if err := collectIncludes(partial.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadIncludes recursively loads and merges files from the include array.
// visited tracks loaded files to prevent cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		absPath, err := resolveInclude(i, includePath, baseDir)
		if err != nil {
			return err
		}

		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}
		visited[absPath] = true

		includedCfg, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}

		deepMergeConfig(cfg, includedCfg)

		if len(includedCfg.Include) > 0 {
			if err := loadIncludes(cfg, includedCfg.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}

	return nil
}

func resolveInclude(i int, includePath, baseDir string) (string, error) {
	includePath = interpolateEnv(includePath)

	resolvedPath := includePath
	if !filepath.IsAbs(includePath) {
		resolvedPath = filepath.Join(baseDir, includePath)
	}

	absPath, err := filepath.Abs(resolvedPath)
	if err != nil {
		return "", fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
	}

	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s\n"+
				"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
		}
		return "", fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
	}
	return absPath, nil
}

// loadConfigFile loads and parses a single config file without defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}

	return &cfg, nil
}

// deepMergeConfig merges src into dst, with src taking precedence for
// non-zero values. Handler registrations are appended so document order
// across files is preserved.
func deepMergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.LogFormat != "" {
		dst.Service.LogFormat = src.Service.LogFormat
	}

	if src.State.Path != "" {
		dst.State.Path = src.State.Path
	}

	if src.Source != "" {
		dst.Source = src.Source
	}

	if src.API.Enabled {
		dst.API.Enabled = src.API.Enabled
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if src.API.Auth.APIKey != "" {
		dst.API.Auth.APIKey = src.API.Auth.APIKey
	}
	dst.API.Auth.Tokens = append(dst.API.Auth.Tokens, src.API.Auth.Tokens...)

	if len(src.Handlers) > 0 {
		dst.Handlers = append(dst.Handlers, src.Handlers...)
	}
}

func verifyAllConfigHashes(paths []string) error {
	// Group paths by directory to avoid loading the same checksums file multiple times
	dirToFiles := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		dirToFiles[dir] = append(dirToFiles[dir], path)
	}

	for dir, files := range dirToFiles {
		checksums, err := LoadChecksums(dir)
		if err != nil {
			// If .checksums is missing, we skip verification for this directory.
			continue
		}

		for _, path := range files {
			basename := filepath.Base(path)
			expectedHash, ok := checksums.Hashes[basename]
			if !ok {
				return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
					"Run: hookd config lock --config %s", basename, dir, dir)
			}

			if err := VerifyFileHash(path, expectedHash); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"If you edited this file intentionally, run: hookd config lock --config %s", path, err, dir)
			}
		}
	}

	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Source == "" {
		cfg.Source = defaults.Source
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	switch cfg.Source {
	case SourceConfig, SourceSQLite:
	default:
		return fmt.Errorf("source must be %q or %q (got %q)", SourceConfig, SourceSQLite, cfg.Source)
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	for i, tok := range cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if m := envVarPattern.FindStringSubmatch(tok.Token); m != nil {
			return fmt.Errorf("%s.token: environment variable ${%s} is not set", field, m[1])
		}
		if tok.Token == "" {
			return fmt.Errorf("%s.token is required", field)
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("%s.scopes must not be empty", field)
		}
		for _, scope := range tok.Scopes {
			if err := auth.ValidateScope(scope); err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
		}
	}

	for i, reg := range cfg.Handlers {
		if err := reg.Validate(); err != nil {
			return fmt.Errorf("handlers[%d]: %w", i, err)
		}
	}

	return nil
}
