package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models launchpath.yml.
type Config struct {
	Pipeline PipelineConfig  `yaml:"pipeline"`
	Tasks    TasksConfig     `yaml:"tasks"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// PipelineConfig controls the onboarding pipeline. The delays are UI-pacing
// artifacts surfaced as configuration; the zero value runs the pipeline with
// no artificial waits.
type PipelineConfig struct {
	AutoValidate    bool     `yaml:"auto_validate"`
	GraceDelay      Duration `yaml:"grace_delay"`
	ValidationDelay Duration `yaml:"validation_delay"`
	GenerationDelay Duration `yaml:"generation_delay"`
}

type TasksConfig struct {
	Catalog []CatalogTask `yaml:"catalog"`
}

// CatalogTask is one entry of the fixed registration-task catalog. Today the
// same ordered list is generated for every validated idea; branching on idea
// attributes would happen here.
type CatalogTask struct {
	Title         string   `yaml:"title"`
	Description   string   `yaml:"description"`
	Category      string   `yaml:"category"`
	Priority      string   `yaml:"priority"`
	EstimatedTime string   `yaml:"estimated_time"`
	Resources     []string `yaml:"resources"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Duration wraps time.Duration for YAML values like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

var validCategories = map[string]bool{
	"legal": true, "business": true, "technical": true, "marketing": true, "financial": true,
}

var validPriorities = map[string]bool{
	"high": true, "medium": true, "low": true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Tasks.Catalog) == 0 {
		return fmt.Errorf("config.tasks.catalog is required")
	}
	for i, t := range c.Tasks.Catalog {
		if t.Title == "" {
			return fmt.Errorf("catalog entry %d has empty title", i)
		}
		if !validCategories[t.Category] {
			return fmt.Errorf("catalog entry %q has invalid category %q", t.Title, t.Category)
		}
		if !validPriorities[t.Priority] {
			return fmt.Errorf("catalog entry %q has invalid priority %q", t.Title, t.Priority)
		}
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	if c.Pipeline.GraceDelay < 0 || c.Pipeline.ValidationDelay < 0 || c.Pipeline.GenerationDelay < 0 {
		return fmt.Errorf("pipeline delays must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "launchpath.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when no file exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `pipeline:
  auto_validate: true
  grace_delay: 2s
  validation_delay: 2s
  generation_delay: 1s

tasks:
  catalog:
    - title: Register business name
      description: File a trade name registration with your state or local authority
      category: legal
      priority: high
      estimated_time: 1-2 weeks
      resources:
        - Secretary of State business portal
    - title: Choose business structure
      description: Decide between LLC, corporation, partnership, or sole proprietorship
      category: legal
      priority: high
      estimated_time: 1 week
      resources:
        - Small business legal guide
    - title: Open business bank account
      description: Separate personal and business finances with a dedicated account
      category: financial
      priority: high
      estimated_time: 2-3 days
      resources:
        - Business banking comparison
    - title: Write a business plan
      description: Document your model, market, and financial projections
      category: business
      priority: medium
      estimated_time: 2-4 weeks
      resources:
        - Lean canvas template
    - title: Set up a landing page
      description: Publish a simple site to collect interest and validate demand
      category: technical
      priority: medium
      estimated_time: 1 week
      resources: []
    - title: Plan launch marketing
      description: Outline channels, messaging, and a budget for your first campaign
      category: marketing
      priority: low
      estimated_time: 1-2 weeks
      resources: []
`
