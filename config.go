package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".url-labeler"

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath *string
	PromptPath   *string
}

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/classifier-prompt.md
var defaultPromptTemplate string

//go:embed config/response-template.json
var defaultResponseTemplate string

// AgentSettings configures the language-model collaborator
type AgentSettings struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// FetchSettings configures page scraping
type FetchSettings struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxChars int           `yaml:"max_chars"`
	Format   string        `yaml:"format"`
}

// FilterSettings configures the --filter-browsers dataset filter
type FilterSettings struct {
	Applications []string `yaml:"applications"`
	URLContains  string   `yaml:"url_contains"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	Topic       string         `yaml:"topic"`
	Agent       AgentSettings  `yaml:"agent"`
	Fetch       FetchSettings  `yaml:"fetch"`
	Thresholds  Thresholds     `yaml:"thresholds"`
	Filters     FilterSettings `yaml:"filters"`
	FastForward int            `yaml:"fast_forward"`
	Log         LogSettings    `yaml:"log"`
}

// UnmarshalYAML fills a thresholds block field by field, so a block that sets
// only one bound keeps the default for the other
func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		High *float64 `yaml:"high"`
		Low  *float64 `yaml:"low"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*t = DefaultThresholds
	if raw.High != nil {
		t.High = *raw.High
	}
	if raw.Low != nil {
		t.Low = *raw.Low
	}
	return nil
}

// Config holds settings and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig loads settings, honoring an explicit settings path when given
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	var (
		settings *Settings
		err      error
	)

	if overrides != nil && overrides.SettingsPath != nil {
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		if err := ensureConfigExists(); err != nil {
			return nil, fmt.Errorf("ensuring config files exist: %w", err)
		}
		settings, err = loadSettings(getConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		settings.Log.Level = level
	}

	return &Config{Settings: settings, Overrides: overrides}, nil
}

// PromptTemplate returns the classifier prompt template (override file or embedded)
func (c *Config) PromptTemplate() (string, error) {
	if c.Overrides != nil && c.Overrides.PromptPath != nil {
		content, err := os.ReadFile(*c.Overrides.PromptPath)
		if err != nil {
			return "", fmt.Errorf("reading prompt template %s: %w", *c.Overrides.PromptPath, err)
		}
		return string(content), nil
	}
	return defaultPromptTemplate, nil
}

// ResponseTemplate returns the JSON shape the model is asked to answer with
func (c *Config) ResponseTemplate() string {
	return strings.TrimSpace(defaultResponseTemplate)
}

// loadSettings loads settings from YAML file with fallback to embedded defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte(defaultSettings)
	} else if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

// loadSettingsRequired loads settings from YAML file, failing if file doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

func parseSettings(data []byte) (*Settings, error) {
	settings := Settings{Thresholds: DefaultThresholds}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	settings.applyDefaults()

	if settings.Thresholds.Low > settings.Thresholds.High {
		return nil, fmt.Errorf("thresholds.low (%v) is above thresholds.high (%v)",
			settings.Thresholds.Low, settings.Thresholds.High)
	}

	return &settings, nil
}

func (s *Settings) applyDefaults() {
	if s.Topic == "" {
		s.Topic = "healthcare revenue cycle work"
	}
	if s.Agent.Provider == "" {
		s.Agent.Provider = ProviderLLMKit
	}
	if s.Agent.Model == "" {
		s.Agent.Model = "claude-3-opus-20240229"
	}
	if s.Agent.MaxTokens <= 0 {
		s.Agent.MaxTokens = 4096
	}
	if s.Agent.SystemPrompt == "" {
		s.Agent.SystemPrompt = "You are a text processor"
	}
	if s.Fetch.Timeout <= 0 {
		s.Fetch.Timeout = 10 * time.Second
	}
	if s.Fetch.MaxChars <= 0 {
		s.Fetch.MaxChars = 200
	}
	if s.Fetch.Format == "" {
		s.Fetch.Format = FormatText
	}
	if s.Thresholds == (Thresholds{}) {
		// an empty "thresholds:" key decodes as null
		s.Thresholds = DefaultThresholds
	}
	if s.FastForward <= 0 {
		s.FastForward = 10
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
}

// getConfigPath returns the path to a config file in the config directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and writes settings.yaml if needed
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}

	return nil
}

// Rules are the precedence substrings matched against the url column
type Rules struct {
	ExcludeURLs []string `json:"exclude_urls" yaml:"exclude_urls"`
	IncludeURLs []string `json:"include_urls" yaml:"include_urls"`
}

// LoadRules reads the classification config. JSON files are decoded as JSON,
// anything else as YAML.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}

	var rules Rules
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rules)
	} else {
		err = yaml.Unmarshal(data, &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	return &rules, nil
}

// loadEnvFiles loads .env files in priority order: ENV_FILE alone when set,
// otherwise .env.local then .env. Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	return nil
}
