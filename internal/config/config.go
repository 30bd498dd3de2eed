package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-core-fx/config"
	"github.com/go-playground/validator/v10"
)

// EnvPath names the environment variable holding an explicit config file.
const EnvPath = "REPOLENS_CONFIG"

type apiConfig struct {
	BaseURL    string        `koanf:"base_url"    validate:"required,url"`
	Timeout    time.Duration `koanf:"timeout"     validate:"gte=0"`
	AuthScheme string        `koanf:"auth_scheme" validate:"omitempty,oneof=Token Bearer"`
}

type pollConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gte=1s"`
}

type pickerConfig struct {
	PageSize int `koanf:"page_size" validate:"min=1,max=100"`
}

type credentialsConfig struct {
	Path string `koanf:"path"`
}

type logConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

type exportsConfig struct {
	Dir string `koanf:"dir"`
}

type Config struct {
	API         apiConfig         `koanf:"api"`
	Poll        pollConfig        `koanf:"poll"`
	Picker      pickerConfig      `koanf:"picker"`
	Credentials credentialsConfig `koanf:"credentials"`
	Log         logConfig         `koanf:"log"`
	Exports     exportsConfig     `koanf:"exports"`
}

func Default() Config {
	//nolint:mnd //default values
	return Config{
		API: apiConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    15 * time.Second,
			AuthScheme: "Token",
		},
		Poll: pollConfig{
			Interval: 5 * time.Second,
		},
		Picker: pickerConfig{
			PageSize: 10,
		},
		Log: logConfig{
			Level: "info",
		},
		Exports: exportsConfig{
			Dir: ".",
		},
	}
}

// New loads the defaults overlaid with the YAML file named by
// REPOLENS_CONFIG, or <UserConfigDir>/repolens/config.yaml when that exists.
func New() (Config, error) {
	return Load(configFile())
}

// Load overlays the defaults with the YAML file at path. An empty path
// yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	options := []config.Option{}
	if path != "" {
		options = append(options, config.WithLocalYAML(path))
	}

	if err := config.Load(&cfg, options...); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate rejects settings the client cannot work with. Errors name the
// offending YAML key, e.g. picker.page_size.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe))
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	// Namespace is Config.<section>.<key>.
	_, key, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", key)
	case "url":
		return fmt.Errorf("%s must be an absolute URL, got %q", key, fe.Value())
	case "oneof":
		return fmt.Errorf("%s must be one of %s, got %q", key, fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Errorf("%s must be at least %s, got %v", key, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Errorf("%s must be at most %s, got %v", key, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", key, fe.Tag())
	}
}

func configFile() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(dir, "repolens", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
