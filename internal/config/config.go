package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "framesmith"

// Environment variables consulted by Load.
const (
	EnvAPIKey       = "FRAMESMITH_API_KEY"
	EnvConfigPath   = "FRAMESMITH_CONFIG"
	EnvNotifySecret = "FRAMESMITH_NOTIFY_SECRET"
)

type Config struct {
	API        APIConfig        `yaml:"api" validate:"required"`
	Limits     Limits           `yaml:"limits" validate:"required"`
	Retry      RetryConfig      `yaml:"retry" validate:"required"`
	Completion CompletionConfig `yaml:"completion" validate:"required"`
	Notify     NotifyConfig     `yaml:"notify"`
	Storage    StorageConfig    `yaml:"storage" validate:"required"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" validate:"required"`
	Log        LogConfig        `yaml:"log" validate:"required"`
}

type APIConfig struct {
	// APIKey may be empty here when the key lives in the encrypted store.
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"min=1s,max=10m"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"min=0,max=6000"`
	ImageModel        string        `yaml:"image_model"`
	VideoModel        string        `yaml:"video_model"`
	AspectRatio       string        `yaml:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16 1:1 4:3 3:4"`
	Resolution        string        `yaml:"resolution" validate:"omitempty,oneof=480p 720p 1080p"`
	Style             string        `yaml:"style"`
}

type CompletionConfig struct {
	Mode         string        `yaml:"mode" validate:"required,oneof=poll webhook both"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"min=100ms,max=1m"`
	MaxPolls     int           `yaml:"max_polls" validate:"min=1,max=10000"`
	Timeout      time.Duration `yaml:"timeout" validate:"min=1s,max=1h"`
	// CallbackURL is registered with the API so it pushes completions to
	// the receiver. Required for webhook modes.
	CallbackURL string `yaml:"callback_url" validate:"required_unless=Mode poll,omitempty,url"`
	ListenAddr  string `yaml:"listen_addr" validate:"required_unless=Mode poll,omitempty,hostname_port"`
	// CallbackSecret verifies inbound pushes when set.
	CallbackSecret string `yaml:"callback_secret"`
}

type NotifyConfig struct {
	URL               string `yaml:"url" validate:"omitempty,url,startswith=http"`
	Secret            string `yaml:"secret"`
	RequestsPerMinute int    `yaml:"requests_per_minute" validate:"min=0,max=6000"`
	// Events selects which outcomes are sent: all, completed, failed,
	// images or videos.
	Events string `yaml:"events" validate:"omitempty,oneof=all completed failed images videos"`
}

// Enabled reports whether outbound webhooks are configured.
func (n NotifyConfig) Enabled() bool {
	return n.URL != ""
}

type StorageConfig struct {
	Backend       string `yaml:"backend" validate:"required,oneof=file sqlite redis mongo memory"`
	Dir           string `yaml:"dir" validate:"required_if=Backend file,required_if=Backend sqlite"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"min=0,max=15"`
	MongoURI      string `yaml:"mongo_uri" validate:"required_if=Backend mongo"`
	MongoDatabase string `yaml:"mongo_database"`
	// RunNaming picks how new runs are keyed: uuid, timestamp or descriptive.
	RunNaming string `yaml:"run_naming" validate:"omitempty,oneof=uuid timestamp descriptive"`
}

type SchedulerConfig struct {
	ParagraphConcurrency int  `yaml:"paragraph_concurrency" validate:"min=1,max=16"`
	Transitions          bool `yaml:"transitions"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// Default returns a complete, valid configuration without an API key.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:           "https://automation.pillowpotion.com",
			Timeout:           60 * time.Second,
			RequestsPerMinute: 30,
			ImageModel:        "imagen-4",
			VideoModel:        "veo-3-fast",
			AspectRatio:       "16:9",
			Resolution:        "720p",
		},
		Limits: DefaultLimits(),
		Retry:  DefaultRetry(),
		Completion: CompletionConfig{
			Mode:         "poll",
			PollInterval: 3 * time.Second,
			MaxPolls:     120,
			Timeout:      6 * time.Minute,
			ListenAddr:   "127.0.0.1:8787",
		},
		Notify: NotifyConfig{RequestsPerMinute: 60, Events: "all"},
		Storage: StorageConfig{
			Backend:   "file",
			Dir:       DataDir(),
			RunNaming: "uuid",
		},
		Scheduler: SchedulerConfig{
			ParagraphConcurrency: 1,
			Transitions:          true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env, the YAML file at path (or the default location), then
// applies environment overrides and validates. A missing file is not an
// error; defaults are used.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = Path()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Storage.Dir = expandTilde(cfg.Storage.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.API.APIKey = key
	} else if strings.HasPrefix(c.API.APIKey, "${") {
		c.API.APIKey = os.Getenv(strings.Trim(c.API.APIKey, "${}"))
	}
	if secret := os.Getenv(EnvNotifySecret); secret != "" {
		c.Notify.Secret = secret
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Save writes cfg as YAML. The API key is replaced by an environment
// placeholder so it never lands on disk in clear text.
func Save(cfg *Config, path string) error {
	out := *cfg
	if out.API.APIKey != "" {
		out.API.APIKey = "${" + EnvAPIKey + "}"
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Path resolves the config file location: FRAMESMITH_CONFIG, then
// XDG_CONFIG_HOME, then ~/.config.
func Path() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName, "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName, "config.yaml")
}

// DataDir is XDG_DATA_HOME/framesmith or ~/.local/share/framesmith.
func DataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
