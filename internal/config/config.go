// Package config loads application configuration from environment variables
// and the watch file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the full application configuration.
type Config struct {
	Timezone  string
	CronSpec  string
	WatchFile string

	Report   ReportConfig
	Crawler  CrawlerConfig
	Storage  StorageConfig
	AI       AIConfig
	Push     PushConfig
	Channels ChannelsConfig
	Server   ServerConfig
}

// ReportConfig holds analysis-mode parameters for the stats engine.
type ReportConfig struct {
	// Mode is one of "incremental", "current" or "daily".
	Mode                string
	RankThreshold       int
	MaxNewsPerKeyword   int // 0 = unlimited
	SortByPositionFirst bool
	// PlatformMode re-buckets matched titles by source platform instead of
	// by keyword group.
	PlatformMode bool
	SimilarityThreshold float64
	RankWeight          float64
	CountWeight         float64
}

// CrawlerConfig holds hotlist and RSS fetch parameters.
type CrawlerConfig struct {
	APIBase         string
	RequestInterval int // milliseconds between platform requests
	Retries         int
	TimeoutSec      int
	EnableCrawler   bool
	EnableRSS       bool
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	// Backend is one of "local", "sqlite", "postgres" or "s3".
	Backend  string
	LocalDir string
	SQLite   string // file path
	DB       DBConfig
	S3       S3Config
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host    string
	Port    int
	User    string
	Pass    string
	DBName  string
	SSLMode string
}

// DSN returns a PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Pass +
		"@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
}

// AIConfig holds the analysis model parameters. Model names use the
// "provider/model" form; fallback models come from the watch file.
type AIConfig struct {
	Enabled    bool
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
	MaxNews    int // per-group cap fed into the prompt, 0 = unlimited
}

// PushConfig holds the dispatch window parameters.
type PushConfig struct {
	WindowEnabled bool
	WindowStart   string // HH:MM inclusive
	WindowEnd     string // HH:MM exclusive
	OncePerDay    bool
}

// ServerConfig holds HTTP report-server parameters.
type ServerConfig struct {
	Port string
	Host string
}

/// Addr returns the full listen address (host:port).
func (c ServerConfig) Addr() string {
	return c.Host + c.Port
}

// ChannelsConfig holds one config variant per supported channel kind. A
// channel is active when its variant's Enabled method reports true.
type ChannelsConfig struct {
	Feishu   FeishuConfig
	DingTalk DingTalkConfig
	WeCom    WeComConfig
	Telegram TelegramConfig
	Slack    SlackConfig
	Ntfy     NtfyConfig
	Bark     BarkConfig
	Webhook  WebhookConfig
	Email    EmailConfig
}

// FeishuConfig holds the Feishu group-bot webhook.
type FeishuConfig struct {
	WebhookURL string
}

func (c FeishuConfig) Enabled() bool { return c.WebhookURL != "" }

// DingTalkConfig holds the DingTalk group-bot webhook.
type DingTalkConfig struct {
	WebhookURL string
}

func (c DingTalkConfig) Enabled() bool { return c.WebhookURL != "" }

// WeComConfig holds the WeCom (enterprise WeChat) group-bot webhook.
// MsgType selects "markdown" or "text" payloads.
type WeComConfig struct {
	WebhookURL string
	MsgType    string
}

func (c WeComConfig) Enabled() bool { return c.WebhookURL != "" }

// TelegramConfig holds bot-API credentials for a single chat.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

func (c TelegramConfig) Enabled() bool { return c.BotToken != "" && c.ChatID != "" }

// SlackConfig holds the incoming-webhook URL.
type SlackConfig struct {
	WebhookURL string
}

func (c SlackConfig) Enabled() bool { return c.WebhookURL != "" }

// NtfyConfig holds the ntfy server, topic and optional access token.
type NtfyConfig struct {
	ServerURL string
	Topic     string
	Token     string
}

func (c NtfyConfig) Enabled() bool { return c.ServerURL != "" && c.Topic != "" }

// BarkConfig holds the Bark device push URL.
type BarkConfig struct {
	URL string
}

func (c BarkConfig) Enabled() bool { return c.URL != "" }

// WebhookConfig holds a generic JSON webhook endpoint.
type WebhookConfig struct {
	URL string
}

func (c WebhookConfig) Enabled() bool { return c.URL != "" }

// EmailConfig holds SMTP delivery parameters.
type EmailConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

func (c EmailConfig) Enabled() bool { return c.Host != "" && c.From != "" && c.To != "" }

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Timezone:  envOr("TIMEZONE", "Asia/Shanghai"),
		CronSpec:  envOr("CRON_SPEC", "*/30 * * * *"),
		WatchFile: envOr("WATCH_FILE", "config/watch.yaml"),
		Report: ReportConfig{
			Mode:                envOr("REPORT_MODE", "daily"),
			RankThreshold:       envOrInt("RANK_THRESHOLD", 5),
			MaxNewsPerKeyword:   envOrInt("MAX_NEWS_PER_KEYWORD", 3),
			SortByPositionFirst: envOrBool("SORT_BY_POSITION_FIRST", false),
			PlatformMode:        envOrBool("PLATFORM_MODE", false),
			SimilarityThreshold: envOrFloat("SIMILARITY_THRESHOLD", 0.7),
			RankWeight:          envOrFloat("RANK_WEIGHT", 0.6),
			CountWeight:         envOrFloat("COUNT_WEIGHT", 0.4),
		},
		Crawler: CrawlerConfig{
			APIBase:         envOr("CRAWLER_API_BASE", "https://newsnow.busiyi.world/api/s"),
			RequestInterval: envOrInt("CRAWLER_REQUEST_INTERVAL", 1000),
			Retries:         envOrInt("CRAWLER_RETRIES", 2),
			TimeoutSec:      envOrInt("CRAWLER_TIMEOUT_SEC", 10),
			EnableCrawler:   envOrBool("ENABLE_CRAWLER", true),
			EnableRSS:       envOrBool("ENABLE_RSS", true),
		},
		Storage: StorageConfig{
			Backend:  envOr("STORAGE_BACKEND", "local"),
			LocalDir: envOr("STORAGE_LOCAL_DIR", "output"),
			SQLite:   envOr("STORAGE_SQLITE_PATH", "output/trendwire.db"),
			DB: DBConfig{
				Host:    envOr("DB_HOST", "localhost"),
				Port:    envOrInt("DB_PORT", 5432),
				User:    envOr("DB_USER", "trendwire"),
				Pass:    envOr("DB_PASS", "trendwire"),
				DBName:  envOr("DB_NAME", "trendwire"),
				SSLMode: envOr("DB_SSLMODE", "disable"),
			},
			S3: S3Config{
				Endpoint:  envOr("S3_ENDPOINT", ""),
				Bucket:    envOr("S3_BUCKET", "trendwire-data"),
				AccessKey: envOr("S3_ACCESS_KEY", ""),
				SecretKey: envOr("S3_SECRET_KEY", ""),
				Region:    envOr("S3_REGION", "auto"),
				Prefix:    envOr("S3_PREFIX", "trendwire"),
			},
		},
		AI: AIConfig{
			Enabled:    envOrBool("AI_ANALYSIS_ENABLED", false),
			APIKey:     envOr("AI_API_KEY", ""),
			BaseURL:    envOr("AI_BASE_URL", "https://api.openai.com/v1"),
			Model:      envOr("AI_MODEL", "openai/gpt-4o-mini"),
			TimeoutSec: envOrInt("AI_TIMEOUT_SEC", 120),
			MaxNews:    envOrInt("AI_MAX_NEWS", 50),
		},
		Push: PushConfig{
			WindowEnabled: envOrBool("PUSH_WINDOW_ENABLED", false),
			WindowStart:   envOr("PUSH_WINDOW_START", "08:00"),
			WindowEnd:     envOr("PUSH_WINDOW_END", "22:00"),
			OncePerDay:    envOrBool("PUSH_ONCE_PER_DAY", false),
		},
		Channels: ChannelsConfig{
			Feishu:   FeishuConfig{WebhookURL: envOr("FEISHU_WEBHOOK_URL", "")},
			DingTalk: DingTalkConfig{WebhookURL: envOr("DINGTALK_WEBHOOK_URL", "")},
			WeCom: WeComConfig{
				WebhookURL: envOr("WEWORK_WEBHOOK_URL", ""),
				MsgType:    envOr("WEWORK_MSG_TYPE", "markdown"),
			},
			Telegram: TelegramConfig{
				BotToken: envOr("TELEGRAM_BOT_TOKEN", ""),
				ChatID:   envOr("TELEGRAM_CHAT_ID", ""),
			},
			Slack: SlackConfig{WebhookURL: envOr("SLACK_WEBHOOK_URL", "")},
			Ntfy: NtfyConfig{
				ServerURL: envOr("NTFY_SERVER_URL", ""),
				Topic:     envOr("NTFY_TOPIC", ""),
				Token:     envOr("NTFY_TOKEN", ""),
			},
			Bark:    BarkConfig{URL: envOr("BARK_URL", "")},
			Webhook: WebhookConfig{URL: envOr("GENERIC_WEBHOOK_URL", "")},
			Email: EmailConfig{
				Host: envOr("SMTP_HOST", ""),
				Port: envOrInt("SMTP_PORT", 465),
				User: envOr("SMTP_USER", ""),
				Pass: envOr("SMTP_PASS", ""),
				From: envOr("SMTP_FROM", ""),
				To:   envOr("SMTP_TO", ""),
			},
		},
		Server: ServerConfig{
			Port: envOr("SERVER_PORT", ":8080"),
			Host: envOr("SERVER_HOST", ""),
		},
	}
}

// Validate checks invariants that must hold before the pipeline starts.
// Violations are fatal configuration errors.
func (c Config) Validate() error {
	switch c.Report.Mode {
	case "incremental", "current", "daily":
	default:
		return fmt.Errorf("config: unknown report mode %q", c.Report.Mode)
	}
	switch c.Storage.Backend {
	case "local", "sqlite", "postgres", "s3":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Report.SimilarityThreshold <= 0 || c.Report.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity threshold %v out of (0, 1]", c.Report.SimilarityThreshold)
	}
	if c.Report.MaxNewsPerKeyword < 0 {
		return fmt.Errorf("config: max news per keyword must not be negative")
	}
	if c.AI.Enabled {
		if c.AI.APIKey == "" {
			return fmt.Errorf("config: AI analysis enabled but AI_API_KEY is empty")
		}
		if !strings.Contains(c.AI.Model, "/") {
			return fmt.Errorf("config: AI model %q must use provider/model form", c.AI.Model)
		}
	}
	if c.Push.WindowEnabled {
		if err := validateClock(c.Push.WindowStart); err != nil {
			return fmt.Errorf("config: push window start: %w", err)
		}
		if err := validateClock(c.Push.WindowEnd); err != nil {
			return fmt.Errorf("config: push window end: %w", err)
		}
	}
	return nil
}

func validateClock(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%q is not HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("%q has an invalid hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("%q has an invalid minute", s)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
