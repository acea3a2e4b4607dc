// ABOUTME: Configuration for fieldsync
// ABOUTME: Loads a JSON file from the XDG config dir, then applies .env and FIELDSYNC_* overrides
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	// AppName names the XDG directories fieldsync uses.
	AppName = "fieldsync"

	// ConfigFileName is the config file inside the XDG config dir.
	ConfigFileName = "config.json"
)

type Config struct {
	DBPath string `json:"db_path" validate:"required"`
	// ImportActor is the email of the actor scheduled passes run as.
	ImportActor string        `json:"import_actor,omitempty" validate:"omitempty,email"`
	HubSpot     HubSpotConfig `json:"hubspot"`
	HTTP        HTTPConfig    `json:"http"`
	Log         LogConfig     `json:"log"`
	Sync        SyncConfig    `json:"sync"`
	Jobs        JobsConfig    `json:"jobs"`
}

type HubSpotConfig struct {
	// Token is a private app access token. When empty a stored OAuth token is used.
	Token             string  `json:"token,omitempty"`
	ClientID          string  `json:"client_id,omitempty"`
	ClientSecret      string  `json:"client_secret,omitempty"`
	BaseURL           string  `json:"base_url,omitempty" validate:"omitempty,url"`
	RequestsPerSecond float64 `json:"requests_per_second" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr string `json:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=auto json console"`
}

type SyncConfig struct {
	PassTimeout  Duration `json:"pass_timeout"`
	Limit        int      `json:"limit" validate:"gte=0,lte=100"`
	PullSchedule string   `json:"pull_schedule,omitempty"`
	PushSchedule string   `json:"push_schedule,omitempty"`
}

type JobsConfig struct {
	Workers  int      `json:"workers" validate:"gte=1"`
	Capacity int      `json:"capacity" validate:"gte=1"`
	Timeout  Duration `json:"timeout"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		HubSpot: HubSpotConfig{
			RequestsPerSecond: 9,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "auto"},
		Sync: SyncConfig{
			PassTimeout:  Duration(5 * time.Minute),
			Limit:        100,
			PullSchedule: "*/15 * * * *",
			PushSchedule: "*/5 * * * *",
		},
		Jobs: JobsConfig{
			Workers:  2,
			Capacity: 64,
			Timeout:  Duration(2 * time.Minute),
		},
	}
}

// DefaultPath returns the XDG path of the config file.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, ConfigFileName)
}

// Load reads the config at path (DefaultPath when empty). A missing file
// yields defaults. Environment variables, including those from an optional
// .env file in the working directory, override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields from FIELDSYNC_* variables.
func (c *Config) applyEnv() error {
	fields := map[string]*string{
		"FIELDSYNC_DB_PATH":               &c.DBPath,
		"FIELDSYNC_IMPORT_ACTOR":          &c.ImportActor,
		"FIELDSYNC_HUBSPOT_TOKEN":         &c.HubSpot.Token,
		"FIELDSYNC_HUBSPOT_CLIENT_ID":     &c.HubSpot.ClientID,
		"FIELDSYNC_HUBSPOT_CLIENT_SECRET": &c.HubSpot.ClientSecret,
		"FIELDSYNC_HUBSPOT_BASE_URL":      &c.HubSpot.BaseURL,
		"FIELDSYNC_HTTP_ADDR":             &c.HTTP.Addr,
		"FIELDSYNC_LOG_LEVEL":             &c.Log.Level,
		"FIELDSYNC_LOG_FORMAT":            &c.Log.Format,
		"FIELDSYNC_PULL_SCHEDULE":         &c.Sync.PullSchedule,
		"FIELDSYNC_PUSH_SCHEDULE":         &c.Sync.PushSchedule,
	}
	for key, field := range fields {
		if v, ok := os.LookupEnv(key); ok {
			*field = v
		}
	}

	if v, ok := os.LookupEnv("FIELDSYNC_PASS_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FIELDSYNC_PASS_TIMEOUT: %w", err)
		}
		c.Sync.PassTimeout = Duration(d)
	}
	if v, ok := os.LookupEnv("FIELDSYNC_JOB_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FIELDSYNC_JOB_WORKERS: %w", err)
		}
		c.Jobs.Workers = n
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the config to path (DefaultPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
