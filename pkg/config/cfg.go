package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"runtime"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"folio/pkg/layout"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	PageConfig struct {
		Width       float64 `yaml:"width" validate:"gt=0"`
		FirstHeight float64 `yaml:"first_height" validate:"gte=0"`
		Height      float64 `yaml:"height" validate:"gt=0"`
	}

	LayoutConfig struct {
		Mode     string  `yaml:"mode" validate:"oneof=maximum minimum"`
		FontPath string  `yaml:"font_path" validate:"omitempty,file"`
		FontSize float64 `yaml:"font_size" validate:"gt=0"`
	}

	RenderConfig struct {
		Scale      float64 `yaml:"scale" validate:"gt=0,lte=16"`
		DrawLines  bool    `yaml:"draw_lines"`
		DrawImages bool    `yaml:"draw_images"`
	}

	BatchConfig struct {
		Workers int `yaml:"workers" validate:"gte=0"`
	}

	Config struct {
		Version int           `yaml:"version" validate:"eq=1"`
		Page    PageConfig    `yaml:"page"`
		Layout  LayoutConfig  `yaml:"layout"`
		Render  RenderConfig  `yaml:"render"`
		Batch   BatchConfig   `yaml:"batch"`
		Logging LoggingConfig `yaml:"logging"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// Only fields we defined are accepted, so yaml.Unmarshal cannot be used
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of the expanded configuration template and
// validates the result. An empty path returns the defaults.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates the default configuration from the template.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// PageLayout converts the page section for the layout engine.
func (c *Config) PageLayout() layout.PageConfig {
	return layout.PageConfig{
		Width:       c.Page.Width,
		FirstHeight: c.Page.FirstHeight,
		Height:      c.Page.Height,
	}
}

// LayoutMode returns the configured line breaking mode.
func (c *Config) LayoutMode() layout.Mode {
	m, _ := layout.ParseMode(c.Layout.Mode)
	return m
}

// Workers returns the number of concurrent batch workers.
func (c *Config) Workers() int {
	if c.Batch.Workers > 0 {
		return c.Batch.Workers
	}
	return runtime.NumCPU()
}
