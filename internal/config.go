package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Catalogs   CatalogsConfig    `yaml:"catalogs"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Schema     SchemaConfig      `yaml:"schema"`
	Formatting FormattingConfig  `yaml:"formatting"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Catalogs.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Schema.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CatalogsConfig holds the directory of cached schema catalogs, one
// <modelID>.json file per model.
type CatalogsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the catalogs configuration.
func (c *CatalogsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SchemaConfig controls how catalogs are resolved.
type SchemaConfig struct {
	// Strict rejects catalogs with malformed tuples or duplicate
	// [category][name] pairs instead of skipping and logging them.
	Strict  bool `yaml:"strict"`
	Workers int  `yaml:"workers"`
}

// Validate validates the schema configuration.
func (c *SchemaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// FormattingConfig lists the parameters displayed as fractional inches.
// Empty lists fall back to the built-in Revit parameter names.
type FormattingConfig struct {
	FractionalInches     []string `yaml:"fractional_inches"`
	FeetFractionalInches []string `yaml:"feet_fractional_inches"`
}

// Overrides returns the formatting overrides to apply.
func (c *FormattingConfig) Overrides() attr.FormatOverrides {
	o := attr.DefaultFormatOverrides()
	if len(c.FractionalInches) > 0 {
		o.FractionalInches = c.FractionalInches
	}
	if len(c.FeetFractionalInches) > 0 {
		o.FeetFractionalInches = c.FeetFractionalInches
	}
	return o
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Catalogs: CatalogsConfig{
			Path: "./catalogs",
		},
		SQLite: SQLiteConfig{
			Path: "./tandem.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Schema: SchemaConfig{
			Workers: 4,
		},
	}
}
