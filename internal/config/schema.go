// Package config loads steward's configuration from environment variables
// only (see SPEC_FULL.md §6); there is no on-disk config file. Onboard()
// instead scaffolds the two skill-discovery directories read by
// internal/skills.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds steward's runtime configuration.
type Config struct {
	Telegram  TelegramConfig
	Discord   DiscordConfig
	WhatsApp  WhatsAppConfig
	Webhook   WebhookConfig
	Providers ProvidersConfig
	Cache     CacheConfig

	AuthorizedUsers []string
	HQChatID        string
	AutoCallEnabled bool

	SkillsUniversalDir string
	SkillsLocalDir     string

	MemoryDBPath string
	StateDBPath  string

	NightlyAutonomousCron string
}

// TelegramConfig configures the primary long-polling platform adapter.
type TelegramConfig struct {
	Enabled bool
	Token   string
}

// DiscordConfig configures the optional Discord channel.
type DiscordConfig struct {
	Enabled bool
	Token   string
	GuildID string
}

// WhatsAppConfig configures the optional WhatsApp channel.
type WhatsAppConfig struct {
	Enabled   bool
	DBPath    string
	AllowFrom []string
}

// WebhookConfig configures the secondary HTTP-webhook-driven platform and
// the shared-secret signature validation for C13's /webhook endpoint.
type WebhookConfig struct {
	Enabled      bool
	SharedSecret string
	ListenAddr   string
	APIKey       string
}

// ProvidersConfig configures the upstream AI providers. A provider is
// enabled when its API key env var is set; see Load().
type ProvidersConfig struct {
	OpenAI    *ProviderConfig
	Anthropic *ProviderConfig
	Gemini    *ProviderConfig
}

// ProviderConfig holds a single upstream AI provider's credential.
type ProviderConfig struct {
	APIKey string
}

// CacheConfig is the AI router's cache configuration contract from §4.4.
type CacheConfig struct {
	Enabled bool
	TTL     int // seconds; 0 = never expires
	MaxSize int
}

// Validate fails fast on invalid configuration, matching exit code 1 in §6.
func (c CacheConfig) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be >= 0, got %d", c.TTL)
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("CACHE_MAX_SIZE must be > 0, got %d", c.MaxSize)
	}
	return nil
}

// Load reads configuration from environment variables per SPEC_FULL.md §6.
func Load() (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			Token:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			Enabled: os.Getenv("TELEGRAM_BOT_TOKEN") != "",
		},
		Discord: DiscordConfig{
			Token:   os.Getenv("DISCORD_BOT_TOKEN"),
			Enabled: os.Getenv("DISCORD_BOT_TOKEN") != "",
			GuildID: os.Getenv("DISCORD_GUILD_ID"),
		},
		WhatsApp: WhatsAppConfig{
			DBPath:  os.Getenv("WHATSAPP_DB_PATH"),
			Enabled: os.Getenv("WHATSAPP_ENABLED") == "true",
		},
		Webhook: WebhookConfig{
			SharedSecret: os.Getenv("WEBHOOK_SHARED_SECRET"),
			Enabled:      os.Getenv("WEBHOOK_SHARED_SECRET") != "",
			ListenAddr:   envDefault("LISTEN_ADDR", ":8080"),
			APIKey:       os.Getenv("API_KEY"),
		},
		HQChatID:           os.Getenv("HQ_CHAT_ID"),
		AutoCallEnabled:    os.Getenv("AUTO_CALL_ENABLED") == "true",
		SkillsUniversalDir: envDefault("SKILLS_UNIVERSAL_DIR", "./skills/universal"),
		SkillsLocalDir:     envDefault("SKILLS_LOCAL_DIR", "./skills/local"),

		MemoryDBPath:          envDefault("MEMORY_DB_PATH", "./data/memory.db"),
		StateDBPath:           envDefault("STATE_DB_PATH", "./data/state.db"),
		NightlyAutonomousCron: envDefault("NIGHTLY_AUTONOMOUS_CRON", "0 2 * * *"),
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Providers.OpenAI = &ProviderConfig{APIKey: key}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Providers.Anthropic = &ProviderConfig{APIKey: key}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Providers.Gemini = &ProviderConfig{APIKey: key}
	}

	if ids := os.Getenv("AUTHORIZED_USERS"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.AuthorizedUsers = append(cfg.AuthorizedUsers, id)
			}
		}
	}
	if from := os.Getenv("WHATSAPP_ALLOW_FROM"); from != "" {
		for _, num := range strings.Split(from, ",") {
			num = strings.TrimSpace(num)
			if num != "" {
				cfg.WhatsApp.AllowFrom = append(cfg.WhatsApp.AllowFrom, num)
			}
		}
	}

	cacheEnabled := true
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_ENABLED %q: %w", v, err)
		}
		cacheEnabled = parsed
	}
	ttl := 300
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_TTL_SECONDS %q: %w", v, err)
		}
		ttl = parsed
	}
	maxSize := 100
	if v := os.Getenv("CACHE_MAX_SIZE"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_MAX_SIZE %q: %w", v, err)
		}
		maxSize = parsed
	}
	cfg.Cache = CacheConfig{Enabled: cacheEnabled, TTL: ttl, MaxSize: maxSize}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, err
	}

	if cfg.Telegram.Token == "" && !cfg.Webhook.Enabled && !cfg.Discord.Enabled && !cfg.WhatsApp.Enabled {
		return nil, fmt.Errorf("no messaging adapter configured: set TELEGRAM_BOT_TOKEN, WEBHOOK_SHARED_SECRET, DISCORD_BOT_TOKEN, or WHATSAPP_ENABLED")
	}

	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
