package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config contém as configurações da aplicação
type Config struct {
	DataPath     string `envconfig:"DATA_PATH" default:"./galaxo_data.json" validate:"required"`
	BackupDir    string `envconfig:"BACKUP_DIR" default:"./Backup" validate:"required"`
	BackupPrefix string `envconfig:"BACKUP_PREFIX" default:"galaxo_data_backup_" validate:"required"`
	BackupKeep   int    `envconfig:"BACKUP_KEEP" default:"5" validate:"min=1"`

	GraphQLURL string `envconfig:"GRAPHQL_URL" default:"https://www.galaxus.ch/api/graphql" validate:"required,url"`
	HistoryURL string `envconfig:"HISTORY_URL" default:"https://www.galaxus.ch/graphql/o/690220b748da1f61bfd7e73d7bf89b53/priceChartQuery" validate:"required,url"`
	SiteURL    string `envconfig:"SITE_URL" default:"https://www.galaxus.ch" validate:"required,url"`

	MaxRetries       int           `envconfig:"MAX_RETRIES" default:"5" validate:"min=1"`
	BackoffFactor    time.Duration `envconfig:"BACKOFF_FACTOR" default:"1s" validate:"gte=0"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s" validate:"gt=0"`
	RetryJitter      float64       `envconfig:"RETRY_JITTER" default:"0" validate:"gte=0,lte=1"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"10" validate:"min=1,max=100"`
	ChangeThreshold  float64       `envconfig:"CHANGE_THRESHOLD" default:"2" validate:"gte=0"`
	CheckInterval    time.Duration `envconfig:"CHECK_INTERVAL" default:"30m" validate:"gte=1m"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Vazio desativa o cache de histórico
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	HistoryCacheTTL time.Duration `envconfig:"HISTORY_CACHE_TTL" default:"6h" validate:"gte=0"`

	// Vazio desativa o espelho SQLite
	DatabasePath string `envconfig:"DATABASE_PATH"`

	// Vazio desativa o bot; o chat ID é opcional
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" default:"0"`

	// Vazio desativa a API HTTP
	APIAddr      string `envconfig:"API_ADDR" default:":8080"`
	APIRateLimit int    `envconfig:"API_RATE_LIMIT" default:"60" validate:"min=1"`
}

// Load carrega as configurações das variáveis de ambiente e as valida
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: valores inválidos: %w", err)
	}
	return &cfg, nil
}

// BotEnabled indica se o bot do Telegram deve ser iniciado
func (c *Config) BotEnabled() bool {
	return c.TelegramBotToken != ""
}
