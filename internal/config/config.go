package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Bot       BotConfig
	Fees      FeeConfig
	Exchanges map[string]ExchangeConfig
	Upstream  UpstreamConfig
	Fallback  FallbackConfig
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Notify    NotifyConfig
}

// BotConfig defines what the bot watches and how often.
type BotConfig struct {
	Assets           []string      `mapstructure:"assets"`
	Exchanges        []string      `mapstructure:"exchanges"`
	ThresholdPercent float64       `mapstructure:"threshold_percent"`
	TradeSize        float64       `mapstructure:"trade_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	AutoStart        bool          `mapstructure:"auto_start"`
	RecentTrades     int           `mapstructure:"recent_trades"`
	SummaryEvery     int           `mapstructure:"summary_every"`
}

// FeeConfig holds the fee applied to exchanges without their own entry.
type FeeConfig struct {
	DefaultTakerFeePercent float64 `mapstructure:"default_taker_fee_percent"`
}

// ExchangeConfig defines settings for a specific exchange.
type ExchangeConfig struct {
	TakerFeePercent float64 `mapstructure:"taker_fee_percent"`
}

// UpstreamConfig configures the ticker aggregator and the retry policy.
type UpstreamConfig struct {
	Source          string            `mapstructure:"source"`
	BaseURL         string            `mapstructure:"base_url"`
	APIKey          string            `mapstructure:"api_key"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	MinCallInterval time.Duration     `mapstructure:"min_call_interval"`
	BackoffBase     time.Duration     `mapstructure:"backoff_base"`
	MaxAttempts     int               `mapstructure:"max_attempts"`
	QuoteTargets    []string          `mapstructure:"quote_targets"`
	ExchangeAliases map[string]string `mapstructure:"exchange_aliases"`
}

// FallbackConfig configures the synthetic price generator.
type FallbackConfig struct {
	BaselinePrices      map[string]float64 `mapstructure:"baseline_prices"`
	DefaultBaseline     float64            `mapstructure:"default_baseline"`
	MaxDeviationPercent float64            `mapstructure:"max_deviation_percent"`
	Seed                uint64             `mapstructure:"seed"`
}

// ServerConfig defines the HTTP control surface.
type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	StatusPushInterval time.Duration `mapstructure:"status_push_interval"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	BufferLines int    `mapstructure:"buffer_lines"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Enabled   bool
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string `mapstructure:"sslmode"`
	QueueSize int    `mapstructure:"queue_size"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

// NotifyConfig defines outbound notification channels.
type NotifyConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	Telegram  TelegramConfig
	Redis     RedisConfig
}

// TelegramConfig enables the Telegram sender when Token is set.
type TelegramConfig struct {
	Token  string
	ChatID string `mapstructure:"chat_id"`
}

// RedisConfig defines the Redis pub/sub sender.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

// MaxUpstreamAttempts bounds upstream.max_attempts.
const MaxUpstreamAttempts = 10

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.assets", []string{"bitcoin", "ethereum", "solana", "binancecoin", "ripple"})
	v.SetDefault("bot.exchanges", []string{"binance", "coinbase", "kraken", "kucoin", "bybit"})
	v.SetDefault("bot.threshold_percent", 0.8)
	v.SetDefault("bot.trade_size", 1.0)
	v.SetDefault("bot.poll_interval", 120*time.Second)
	v.SetDefault("bot.auto_start", false)
	v.SetDefault("bot.recent_trades", 10)
	v.SetDefault("bot.summary_every", 10)

	v.SetDefault("fees.default_taker_fee_percent", 0.2)
	v.SetDefault("exchanges", map[string]any{})

	v.SetDefault("upstream.source", "aggregator")
	v.SetDefault("upstream.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("upstream.min_call_interval", 2*time.Second)
	v.SetDefault("upstream.backoff_base", 15*time.Second)
	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.quote_targets", []string{"USD", "USDT"})
	v.SetDefault("upstream.exchange_aliases", map[string]string{})

	v.SetDefault("fallback.baseline_prices", map[string]float64{
		"bitcoin":     68000.0,
		"ethereum":    2000.0,
		"solana":      85.0,
		"binancecoin": 620.0,
		"ripple":      1.40,
	})
	v.SetDefault("fallback.default_baseline", 100.0)
	v.SetDefault("fallback.max_deviation_percent", 1.5)
	v.SetDefault("fallback.seed", 1)

	v.SetDefault("server.addr", "127.0.0.1:5000")
	v.SetDefault("server.status_push_interval", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.buffer_lines", 40)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "hunter")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "hunter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.queue_size", 64)

	v.SetDefault("notify.queue_size", 128)
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.redis.enabled", false)
	v.SetDefault("notify.redis.addr", "localhost:6379")
	v.SetDefault("notify.redis.password", "")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.channel", "hunter:events")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and HUNTER_* variables apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("HUNTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("config: read: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("config: unmarshal: %w", err)
	}
	return config, nil
}

// Validate checks the values the pipeline cannot run without.
func (c Config) Validate() error {
	var errs []error
	if len(c.Bot.Assets) == 0 {
		errs = append(errs, errors.New("bot.assets must not be empty"))
	}
	if len(c.Bot.Exchanges) == 0 {
		errs = append(errs, errors.New("bot.exchanges must not be empty"))
	}
	if c.Bot.ThresholdPercent < 0 {
		errs = append(errs, errors.New("bot.threshold_percent must be >= 0"))
	}
	if c.Bot.TradeSize <= 0 {
		errs = append(errs, errors.New("bot.trade_size must be > 0"))
	}
	if c.Bot.PollInterval <= 0 {
		errs = append(errs, errors.New("bot.poll_interval must be > 0"))
	}
	if c.Upstream.MaxAttempts < 1 || c.Upstream.MaxAttempts > MaxUpstreamAttempts {
		errs = append(errs, fmt.Errorf("upstream.max_attempts must be between 1 and %d", MaxUpstreamAttempts))
	}
	if c.Upstream.BackoffBase <= 0 {
		errs = append(errs, errors.New("upstream.backoff_base must be > 0"))
	}
	if c.Fees.DefaultTakerFeePercent < 0 {
		errs = append(errs, errors.New("fees.default_taker_fee_percent must be >= 0"))
	}
	for name, ex := range c.Exchanges {
		if ex.TakerFeePercent < 0 {
			errs = append(errs, fmt.Errorf("exchanges.%s.taker_fee_percent must be >= 0", name))
		}
	}
	if c.Fallback.MaxDeviationPercent < 0 {
		errs = append(errs, errors.New("fallback.max_deviation_percent must be >= 0"))
	}
	return errors.Join(errs...)
}

// TakerFees returns the per-exchange taker fee percentages.
func (c Config) TakerFees() map[string]float64 {
	fees := make(map[string]float64, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		fees[name] = ex.TakerFeePercent
	}
	return fees
}
