// Package config handles loading, saving, and resolving mirrorkeeper's
// machine configuration file: the set of targets to mirror and the runtime
// defaults applied when syncing them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/skaphos/mirrorkeeper/internal/model"
)

const (
	// LocalConfigFilename is the per-directory mirrorkeeper config file.
	LocalConfigFilename = ".mirrorkeeper.json"
	// CurrentVersion is the schema version written by this build. Loading an
	// older version runs it through the migrations table below.
	CurrentVersion = 2
)

// Defaults holds default values applied to targets that do not override them.
type Defaults struct {
	Concurrency       int    `json:"concurrency"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	MissingPolicy     string `json:"missing_policy"`
	RegistryStaleDays int    `json:"registry_stale_days"`
}

// Config is the machine-level mirrorkeeper configuration: schema version,
// the targets to mirror, and runtime defaults.
type Config struct {
	Version  int            `json:"version"`
	Targets  []model.Target `json:"targets"`
	Defaults Defaults       `json:"defaults"`
	// Language is the BCP-47-ish locale code CLI output messages are
	// rendered in. mirrorkeeper's core only stores and validates this
	// value; the CLI collaborator owns the actual message catalog.
	Language string `json:"language,omitempty"`
}

// DefaultLanguage is the locale assumed when a config doesn't set one.
const DefaultLanguage = "en"

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		Version:  CurrentVersion,
		Language: DefaultLanguage,
		Defaults: Defaults{
			Concurrency:       8,
			TimeoutSeconds:    60,
			MissingPolicy:     "skip",
			RegistryStaleDays: 30,
		},
	}
}

// languagePattern matches a bare ISO 639-1 code or a code-region pair, e.g.
// "en" or "pt-BR".
var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// ValidLanguage reports whether code is an acceptable value for Language.
func ValidLanguage(code string) bool {
	return languagePattern.MatchString(code)
}

// ConfigDir returns the platform-appropriate config directory path.
// It checks, in order: the override parameter, MIRRORKEEPER_CONFIG env var,
// and finally os.UserConfigDir()/mirrorkeeper.
func ConfigDir(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return filepath.Dir(override), nil
		}
		return override, nil
	}

	if env := os.Getenv("MIRRORKEEPER_CONFIG"); env != "" {
		if isConfigFilePath(env) {
			return filepath.Dir(env), nil
		}
		return env, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "mirrorkeeper"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.json"), nil
	}

	if env := os.Getenv("MIRRORKEEPER_CONFIG"); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.json"), nil
	}

	dir, err := ConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// InitConfigPath resolves where "mirrorkeeper config init" should write.
// Order: explicit override, MIRRORKEEPER_CONFIG, then local dotfile in cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv("MIRRORKEEPER_CONFIG") != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, MIRRORKEEPER_CONFIG, nearest local dotfile in
// cwd/parents, then the global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv("MIRRORKEEPER_CONFIG") != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for
// .mirrorkeeper.json. It returns an empty string when none is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// rawConfig is the on-disk shape before migration, kept separate from Config
// so that migrations can interpret fields that changed meaning across
// versions without the strongly typed Config getting in the way.
type rawConfig map[string]json.RawMessage

// migration transforms a decoded raw document from one version to the next.
// Each entry is keyed by the version it upgrades FROM.
var migrations = map[int]func(rawConfig) error{
	1: migrateV1ToV2,
}

// migrateV1ToV2 renames the v1 "registry_stale_days" top-level field (which
// lived next to "defaults" in the pre-target schema) into
// "defaults.registry_stale_days", and defaults "targets" to an empty list
// when absent, matching the config shape introduced for multi-target setups.
func migrateV1ToV2(raw rawConfig) error {
	if _, ok := raw["targets"]; !ok {
		raw["targets"] = json.RawMessage("[]")
	}
	if legacy, ok := raw["registry_stale_days"]; ok {
		var defaults map[string]json.RawMessage
		if existing, ok := raw["defaults"]; ok {
			if err := json.Unmarshal(existing, &defaults); err != nil {
				return fmt.Errorf("migrate v1->v2: decode defaults: %w", err)
			}
		}
		if defaults == nil {
			defaults = map[string]json.RawMessage{}
		}
		defaults["registry_stale_days"] = legacy
		merged, err := json.Marshal(defaults)
		if err != nil {
			return fmt.Errorf("migrate v1->v2: encode defaults: %w", err)
		}
		raw["defaults"] = merged
		delete(raw, "registry_stale_days")
	}
	raw["version"] = json.RawMessage(strconv.Itoa(2))
	return nil
}

// runMigrations walks raw forward from its declared version to
// CurrentVersion, applying each migration function in order.
func runMigrations(raw rawConfig) error {
	version := 1
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return fmt.Errorf("decode config version: %w", err)
		}
	}
	for version < CurrentVersion {
		migrate, ok := migrations[version]
		if !ok {
			return fmt.Errorf("no migration registered from config version %d", version)
		}
		if err := migrate(raw); err != nil {
			return err
		}
		next := version
		if v, ok := raw["version"]; ok {
			_ = json.Unmarshal(v, &next)
		}
		if next <= version {
			return fmt.Errorf("migration from version %d made no progress", version)
		}
		version = next
	}
	return nil
}

// Load reads, migrates, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := runMigrations(raw); err != nil {
		return nil, fmt.Errorf("migrate config %s: %w", path, err)
	}
	migrated, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(migrated, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	applyDefaultFallbacks(&cfg)
	return &cfg, nil
}

func applyDefaultFallbacks(cfg *Config) {
	d := DefaultConfig().Defaults
	if cfg.Defaults.Concurrency == 0 {
		cfg.Defaults.Concurrency = d.Concurrency
	}
	if cfg.Defaults.TimeoutSeconds == 0 {
		cfg.Defaults.TimeoutSeconds = d.TimeoutSeconds
	}
	if cfg.Defaults.MissingPolicy == "" {
		cfg.Defaults.MissingPolicy = d.MissingPolicy
	}
	if cfg.Defaults.RegistryStaleDays == 0 {
		cfg.Defaults.RegistryStaleDays = d.RegistryStaleDays
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
}

func validate(cfg *Config) error {
	if cfg.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}
	if cfg.Language != "" && !ValidLanguage(cfg.Language) {
		return fmt.Errorf("config: invalid language code %q", cfg.Language)
	}
	seen := map[string]bool{}
	for _, t := range cfg.Targets {
		if t.ID == "" {
			return errors.New("config: target missing id")
		}
		if seen[t.ID] {
			return fmt.Errorf("config: duplicate target id %q", t.ID)
		}
		seen[t.ID] = true
		switch t.ProviderKind {
		case model.ProviderAzureDevOps, model.ProviderGitHub, model.ProviderGitLab:
		default:
			return fmt.Errorf("config: target %q has unsupported provider_kind %q", t.ID, t.ProviderKind)
		}
		switch t.MissingPolicy {
		case "", "archive", "remove", "skip":
		default:
			return fmt.Errorf("config: target %q has unsupported missing_policy %q", t.ID, t.MissingPolicy)
		}
	}
	return nil
}

// Save atomically writes cfg to path: marshal to a temp file in the same
// directory, fsync is skipped (matching the teacher's WriteFile-based save),
// then rename over the destination so readers never observe a partial file.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if err := validate(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.json") {
		return true
	}
	return strings.ToLower(filepath.Ext(path)) == ".json"
}
