package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/formcaptcha/internal/captcha"
)

var formIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FormsConfig lists the forms served by the application.
type FormsConfig struct {
	Forms []FormConfig `yaml:"forms"`
}

// FormConfig defines one form and its captcha element.
type FormConfig struct {
	ID      string        `yaml:"id"`
	Title   string        `yaml:"title"`
	Captcha CaptchaConfig `yaml:"captcha"`
}

// CaptchaConfig configures the captcha element of a form.
type CaptchaConfig struct {
	Name      string                  `yaml:"name"`
	Generator captcha.GeneratorConfig `yaml:"generator"`
	Options   captcha.Options         `yaml:"options"`
}

// DefaultForms returns the built-in contact form used when no forms file is
// configured.
func DefaultForms() FormsConfig {
	return FormsConfig{Forms: []FormConfig{{
		ID:    "contact",
		Title: "Contact us",
		Captcha: CaptchaConfig{
			Name:      "captcha",
			Generator: captcha.GeneratorConfig{Kind: captcha.KindNumeric, Min: 1, Max: 9},
			Options:   captcha.DefaultOptions(),
		},
	}}}
}

// LoadForms reads form definitions from path. An empty path yields
// DefaultForms. Options missing from the file keep their defaults.
func LoadForms(path string) (FormsConfig, error) {
	if path == "" {
		return DefaultForms(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FormsConfig{}, fmt.Errorf("read forms file %s: %w", path, err)
	}
	return ParseForms(data)
}

// ParseForms decodes YAML form definitions and validates them.
func ParseForms(data []byte) (FormsConfig, error) {
	var raw struct {
		Forms []yaml.Node `yaml:"forms"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return FormsConfig{}, fmt.Errorf("parse forms: %w", err)
	}

	cfg := FormsConfig{Forms: make([]FormConfig, 0, len(raw.Forms))}
	for i := range raw.Forms {
		form := FormConfig{Captcha: CaptchaConfig{
			Name:    "captcha",
			Options: captcha.DefaultOptions(),
		}}
		if err := raw.Forms[i].Decode(&form); err != nil {
			return FormsConfig{}, fmt.Errorf("parse form %d: %w", i, err)
		}
		cfg.Forms = append(cfg.Forms, form)
	}

	if err := cfg.Validate(); err != nil {
		return FormsConfig{}, err
	}
	return cfg, nil
}

// Validate checks form IDs and captcha generator settings.
func (c FormsConfig) Validate() error {
	if len(c.Forms) == 0 {
		return errors.New("at least one form must be defined")
	}

	seen := make(map[string]bool, len(c.Forms))
	for _, f := range c.Forms {
		if !formIDPattern.MatchString(f.ID) {
			return fmt.Errorf("invalid form id %q", f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate form id %q", f.ID)
		}
		seen[f.ID] = true

		if f.Captcha.Name == "" {
			return fmt.Errorf("form %s: captcha name cannot be empty", f.ID)
		}
		if _, err := captcha.NewGenerator(f.Captcha.Generator, nil); err != nil {
			return fmt.Errorf("form %s: %w", f.ID, err)
		}
	}
	return nil
}

// Find returns the form with the given ID.
func (c FormsConfig) Find(id string) (FormConfig, bool) {
	for _, f := range c.Forms {
		if f.ID == id {
			return f, true
		}
	}
	return FormConfig{}, false
}
