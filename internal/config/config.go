package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samsaffron/llm-gateway/internal/llm"
	"github.com/samsaffron/llm-gateway/internal/session"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appName = "llm-gateway"

type Config struct {
	Serve     ServeConfig               `mapstructure:"serve" yaml:"serve"`
	Store     StoreConfig               `mapstructure:"store" yaml:"store"`
	Client    ClientConfig              `mapstructure:"client" yaml:"client"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Log       LogConfig                 `mapstructure:"log" yaml:"log"`
}

type ServeConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
	// AllowedOrigins is the CORS allow list. Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
	// AppURL and AppTitle are sent to OpenRouter as referer and title.
	AppURL   string `mapstructure:"app_url" yaml:"app_url,omitempty"`
	AppTitle string `mapstructure:"app_title" yaml:"app_title,omitempty"`
}

type StoreConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path,omitempty"`
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

type ClientConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Token  string `mapstructure:"token" yaml:"token,omitempty"`
	UserID string `mapstructure:"user_id" yaml:"user_id,omitempty"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// ProviderConfig holds one provider family's credential. Keys accept the
// same forms as ResolveValue.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format" yaml:"format"`
}

// envFallbacks lists the environment variables consulted, in order, when a
// provider has no key in the config file.
var envFallbacks = map[llm.ProviderKind][]string{
	llm.KindGemini:     {"API_KEY", "GEMINI_API_KEY"},
	llm.KindOpenRouter: {"OPENROUTER_API_KEY"},
	llm.KindGroq:       {"GROQ_API_KEY"},
	llm.KindOpenAI:     {"OPENAI_API_KEY"},
	llm.KindAnthropic:  {"ANTHROPIC_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("serve.app_title", "LLM Gateway")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("client.url", "http://127.0.0.1:8080")
	v.SetDefault("client.model", "gemini-2.5-flash")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error. A .env file in the working
// directory is loaded first so it can supply provider keys.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve expands secret references and applies environment fallbacks.
func (c *Config) resolve() error {
	var err error
	if c.Serve.Token, err = ResolveValue(c.Serve.Token); err != nil {
		return fmt.Errorf("serve.token: %w", err)
	}
	if c.Client.Token, err = ResolveValue(c.Client.Token); err != nil {
		return fmt.Errorf("client.token: %w", err)
	}
	if c.Store.DSN, err = ResolveValue(c.Store.DSN); err != nil {
		return fmt.Errorf("store.dsn: %w", err)
	}
	if c.Serve.Token == "" {
		c.Serve.Token = os.Getenv("LLM_GATEWAY_TOKEN")
	}
	if c.Client.Token == "" {
		c.Client.Token = c.Serve.Token
	}
	if c.Store.DSN == "" {
		c.Store.DSN = os.Getenv("DATABASE_URL")
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for _, kind := range llm.Kinds {
		name := kind.String()
		p := c.Providers[name]
		if p.APIKey, err = ResolveValue(p.APIKey); err != nil {
			return fmt.Errorf("providers.%s.api_key: %w", name, err)
		}
		if p.BaseURL, err = ResolveValue(p.BaseURL); err != nil {
			return fmt.Errorf("providers.%s.base_url: %w", name, err)
		}
		for _, env := range envFallbacks[kind] {
			if p.APIKey != "" {
				break
			}
			p.APIKey = os.Getenv(env)
		}
		c.Providers[name] = p
	}
	return nil
}

// ProviderConfigs returns the gateway configuration of every provider kind.
// Kinds without a key are still present; the gateway reports the missing
// credential when a request routes to them.
func (c *Config) ProviderConfigs() map[llm.ProviderKind]llm.ProviderConfig {
	out := make(map[llm.ProviderKind]llm.ProviderConfig, len(llm.Kinds))
	for _, kind := range llm.Kinds {
		p := c.Providers[kind.String()]
		out[kind] = llm.ProviderConfig{
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			AppURL:   c.Serve.AppURL,
			AppTitle: c.Serve.AppTitle,
		}
	}
	return out
}

// ConfiguredProviders reports which provider kinds have a credential.
func (c *Config) ConfiguredProviders() map[string]bool {
	out := make(map[string]bool, len(llm.Kinds))
	for _, kind := range llm.Kinds {
		out[kind.String()] = strings.TrimSpace(c.Providers[kind.String()].APIKey) != ""
	}
	return out
}

// SessionConfig maps the store section onto the conversation store.
func (c *Config) SessionConfig() session.Config {
	return session.Config{Driver: c.Store.Driver, Path: c.Store.Path, DSN: c.Store.DSN}
}

func configDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Default returns the configuration written by `config init`. Provider keys
// reference environment variables rather than holding secrets.
func Default() *Config {
	providers := make(map[string]ProviderConfig, len(llm.Kinds))
	for _, kind := range llm.Kinds {
		providers[kind.String()] = ProviderConfig{APIKey: "$" + envFallbacks[kind][0]}
	}
	return &Config{
		Serve:     ServeConfig{Addr: "127.0.0.1:8080", AppTitle: "LLM Gateway"},
		Store:     StoreConfig{Driver: "sqlite"},
		Client:    ClientConfig{URL: "http://127.0.0.1:8080", Model: "gemini-2.5-flash"},
		Providers: providers,
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
