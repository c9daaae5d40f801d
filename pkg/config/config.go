package config

import (
	"os"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/huandu/go-clone"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AppName   = "forkchat"
	EnvPrefix = "FORKCHAT"
)

type ServerSettings struct {
	Address     string   `mapstructure:"address" yaml:"address"`
	CORSOrigins []string `mapstructure:"cors-origins" yaml:"cors-origins"`
}

type StorageSettings struct {
	// Backend is one of memory, file, sqlite, pebble.
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type PromptsSettings struct {
	// Path of the YAML preset file. Empty keeps presets in memory.
	Path string `mapstructure:"path" yaml:"path"`
}

type ProviderSettings struct {
	APIKey  string `mapstructure:"api-key" yaml:"api-key"`
	BaseURL string `mapstructure:"base-url" yaml:"base-url,omitempty"`
}

func (p ProviderSettings) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

type ProvidersSettings struct {
	Anthropic ProviderSettings `mapstructure:"anthropic" yaml:"anthropic"`
	Gemini    ProviderSettings `mapstructure:"gemini" yaml:"gemini"`
	DeepSeek  ProviderSettings `mapstructure:"deepseek" yaml:"deepseek"`
	Kimi      ProviderSettings `mapstructure:"kimi" yaml:"kimi"`
	// Echo enables the offline echo provider.
	Echo bool `mapstructure:"echo" yaml:"echo"`
}

// For returns the settings of a keyed provider.
func (p ProvidersSettings) For(name providers.Name) (ProviderSettings, bool) {
	switch name {
	case providers.Anthropic:
		return p.Anthropic, true
	case providers.Gemini:
		return p.Gemini, true
	case providers.DeepSeek:
		return p.DeepSeek, true
	case providers.Kimi:
		return p.Kimi, true
	case providers.Echo:
		return ProviderSettings{}, false
	}
	return ProviderSettings{}, false
}

type DefaultsSettings struct {
	Provider        string `mapstructure:"provider" yaml:"provider"`
	Model           string `mapstructure:"model" yaml:"model"`
	ThinkingEnabled bool   `mapstructure:"thinking" yaml:"thinking"`
}

type SummarizerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller"`
}

type Settings struct {
	Server     ServerSettings     `mapstructure:"server" yaml:"server"`
	Storage    StorageSettings    `mapstructure:"storage" yaml:"storage"`
	Prompts    PromptsSettings    `mapstructure:"prompts" yaml:"prompts"`
	Providers  ProvidersSettings  `mapstructure:"providers" yaml:"providers"`
	Defaults   DefaultsSettings   `mapstructure:"defaults" yaml:"defaults"`
	Summarizer SummarizerSettings `mapstructure:"summarizer" yaml:"summarizer"`
	Log        LogSettings        `mapstructure:"log" yaml:"log"`
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Redacted returns a copy with API keys masked, for printing.
func (s *Settings) Redacted() *Settings {
	ret := s.Clone()
	for _, p := range []*ProviderSettings{&ret.Providers.Anthropic, &ret.Providers.Gemini, &ret.Providers.DeepSeek, &ret.Providers.Kimi} {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
	}
	return ret
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors-origins", []string{"*"})
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.path", "data/chats")
	v.SetDefault("prompts.path", "data/prompts.yaml")
	v.SetDefault("providers.echo", false)
	v.SetDefault("defaults.provider", "Anthropic")
	v.SetDefault("defaults.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("defaults.thinking", true)
	v.SetDefault("summarizer.enabled", true)
	v.SetDefault("summarizer.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.with-caller", false)
}

// conventionalEnv lists the unprefixed variables each API key also answers to.
var conventionalEnv = map[string][]string{
	"providers.anthropic.api-key": {"ANTHROPIC_API_KEY"},
	"providers.gemini.api-key":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"providers.deepseek.api-key":  {"DEEPSEEK_API_KEY"},
	"providers.kimi.api-key":      {"KIMI_API_KEY", "MOONSHOT_API_KEY"},
}

// NewViper returns a viper instance with defaults, env binding and the
// standard config search path.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for key, names := range conventionalEnv {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))}, names...)
		_ = v.BindEnv(args...)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/." + AppName)
		v.AddConfigPath("/etc/" + AppName)
		if xdgConfigPath, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(xdgConfigPath + "/" + AppName)
		}
	}
	return v
}

// LoadDotEnv loads the given .env files (".env" when none) without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("could not load env file")
		}
	}
}

// Load reads the config file, if any, and decodes the settings.
func Load(v *viper.Viper) (*Settings, error) {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		log.Debug().Msg("no config file found, using defaults and environment")
	} else if err != nil {
		return nil, errors.Wrap(err, "could not read config file")
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("config", v.ConfigFileUsed()).Msg("Loaded configuration")
	return s, nil
}

func (s *Settings) Validate() error {
	if _, err := providers.ParseName(s.Defaults.Provider); err != nil {
		return errors.Wrap(err, "defaults.provider")
	}
	switch s.Storage.Backend {
	case "memory", "file", "sqlite", "pebble":
	default:
		return errors.Errorf("storage.backend: unknown backend %q", s.Storage.Backend)
	}
	return nil
}
