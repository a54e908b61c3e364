package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sprintline/internal/domain"
)

// Config models sprintline.yml. One config row is stored per project.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"project"`
	Sprints struct {
		DefaultLengthDays      int     `yaml:"default_length_days"`
		DefaultPlannedVelocity float64 `yaml:"default_planned_velocity"`
	} `yaml:"sprints"`
	Effort struct {
		// Defaults maps work-item type to effort unit.
		Defaults map[string]string `yaml:"defaults"`
	} `yaml:"effort"`
	Validation struct {
		// AcceptanceCriteria is "warn" or "error"; controls whether a
		// user story without acceptance criteria is accepted.
		AcceptanceCriteria string `yaml:"acceptance_criteria"`
	} `yaml:"validation"`
	Analytics struct {
		VelocityWindow int `yaml:"velocity_window"`
	} `yaml:"analytics"`
}

// Acceptance-criteria enforcement levels for user stories.
const (
	PolicyWarn  = "warn"
	PolicyError = "error"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with spl project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Sprints.DefaultLengthDays < 0 {
		return fmt.Errorf("config.sprints.default_length_days must not be negative")
	}
	if c.Sprints.DefaultPlannedVelocity < 0 {
		return fmt.Errorf("config.sprints.default_planned_velocity must not be negative")
	}
	for itemType, unit := range c.Effort.Defaults {
		switch itemType {
		case domain.TypeEpic, domain.TypeFeature, domain.TypeUserStory, domain.TypeTask:
		default:
			return fmt.Errorf("config.effort.defaults has unknown work-item type %s", itemType)
		}
		if unit != domain.UnitStoryPoints && unit != domain.UnitHours {
			return fmt.Errorf("config.effort.defaults.%s must be story_points or hours", itemType)
		}
	}
	switch c.Validation.AcceptanceCriteria {
	case "", "warn", "error":
	default:
		return fmt.Errorf("config.validation.acceptance_criteria must be warn or error")
	}
	if c.Analytics.VelocityWindow < 0 {
		return fmt.Errorf("config.analytics.velocity_window must not be negative")
	}
	return nil
}

// SprintLengthDays returns the configured sprint length, defaulting to two weeks.
func (c *Config) SprintLengthDays() int {
	if c.Sprints.DefaultLengthDays > 0 {
		return c.Sprints.DefaultLengthDays
	}
	return 14
}

// VelocityWindow returns the rolling-average window, defaulting to three sprints.
func (c *Config) VelocityWindow() int {
	if c.Analytics.VelocityWindow > 0 {
		return c.Analytics.VelocityWindow
	}
	return 3
}

// EffortUnitFor returns the default effort unit for a work-item type.
func (c *Config) EffortUnitFor(itemType string) string {
	if unit, ok := c.Effort.Defaults[itemType]; ok {
		return unit
	}
	if itemType == domain.TypeTask {
		return domain.UnitHours
	}
	return domain.UnitStoryPoints
}

// AcceptanceCriteriaPolicy returns PolicyWarn or PolicyError.
func (c *Config) AcceptanceCriteriaPolicy() string {
	if c.Validation.AcceptanceCriteria == PolicyError {
		return PolicyError
	}
	return PolicyWarn
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sprintline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	cfg, err := FromYAML([]byte(fmt.Sprintf(defaultTemplate, projectID)))
	if err != nil {
		// The embedded template always parses; a broken build is the
		// only way to get here.
		panic(err)
	}
	return cfg
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

const defaultTemplate = `project:
  id: %s

sprints:
  default_length_days: 14
  default_planned_velocity: 0

effort:
  defaults:
    epic: story_points
    feature: story_points
    user_story: story_points
    task: hours

validation:
  acceptance_criteria: warn

analytics:
  velocity_window: 3
`
