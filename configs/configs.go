// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// LogLevel is a logrus level name ("debug", "info", "warn", ...).
	LogLevel string `split_words:"true" default:"info"`

	// Desk contains the instrument and candle settings.
	Desk DeskConfig

	// Feed contains trade feed settings.
	Feed FeedConfig

	// AI contains settings for the trade plan analysis bridge.
	AI AIConfig

	// Recorder contains batching settings for the persistence sinks.
	Recorder RecorderConfig

	// Kafka contains Kafka connection settings for candle and plan topics.
	Kafka KafkaConfig

	// ClickHouse contains the database connection settings.
	ClickHouse ClickHouseConfig

	// Redis contains the snapshot cache settings.
	Redis RedisConfig

	// Server contains the HTTP API settings.
	Server ServerConfig
}

// DeskConfig holds the tracked instrument and the account parameters
// used for position sizing.
type DeskConfig struct {
	// Symbol is the instrument tracked at startup (e.g., "BTCUSDT").
	Symbol string `split_words:"true" default:"BTCUSDT"`

	AccountBalance float64 `split_words:"true" default:"10000"`
	Leverage       float64 `split_words:"true" default:"10"`
	RiskPercentage float64 `split_words:"true" default:"1"`

	// CandleInterval is the fixed wall-clock candle bucket.
	CandleInterval time.Duration `split_words:"true" default:"5s"`

	// PriceStep is the footprint bucket size.
	PriceStep float64 `split_words:"true" default:"0.5"`

	// HistorySize bounds the candle and open interest rings.
	HistorySize int `split_words:"true" default:"100"`

	// OrderFlowInterval is how often the order book, liquidations and
	// open interest are refreshed.
	OrderFlowInterval time.Duration `split_words:"true" default:"5s"`

	// PublishInterval throttles snapshot updates driven by trades.
	PublishInterval time.Duration `split_words:"true" default:"250ms"`
}

// FeedConfig holds trade feed settings.
type FeedConfig struct {
	// BinanceURL is the base WebSocket stream URL.
	BinanceURL string `split_words:"true" default:"wss://stream.binance.com:9443/ws"`

	// LiveSymbols are served from Binance; every other symbol is simulated.
	LiveSymbols []string `split_words:"true" default:"BTCUSDT,ETHUSDT,SOLUSDT"`

	// SimulatedTicksPerSecond paces the synthetic tick generator.
	SimulatedTicksPerSecond float64 `split_words:"true" default:"4"`
}

// AIConfig holds settings for the trade plan analysis bridge.
type AIConfig struct {
	// APIKey is the Gemini API key. Without it the mock analyst is used.
	APIKey  string `split_words:"true"`
	BaseURL string `split_words:"true" default:"https://generativelanguage.googleapis.com"`
	Model   string `split_words:"true" default:"gemini-2.5-flash"`

	// Timeout bounds a single analysis request.
	Timeout time.Duration `split_words:"true" default:"60s"`

	// Cooldown is the minimum gap between analysis requests.
	Cooldown time.Duration `split_words:"true" default:"90s"`

	// FallbackCooldown replaces Cooldown while in fallback mode.
	FallbackCooldown time.Duration `split_words:"true" default:"15s"`

	// FallbackRetry is how long fallback mode lasts after a rate limit.
	FallbackRetry time.Duration `split_words:"true" default:"90s"`

	// AutoAnalyze requests a plan once enough candles have been collected.
	AutoAnalyze bool `split_words:"true" default:"false"`
}

// RecorderConfig holds settings for batch processing.
type RecorderConfig struct {
	// BatchSize is the maximum number of items to accumulate before flushing.
	BatchSize int `split_words:"true" default:"50"`

	// BatchTimeout is the maximum time to wait before flushing.
	BatchTimeout time.Duration `split_words:"true" default:"10s"`

	// Buffer is the capacity of the recorder input channel.
	Buffer int `split_words:"true" default:"256"`

	// MaxAttempts bounds the writes of one batch to one sink.
	MaxAttempts int           `split_words:"true" default:"3"`
	RetryDelay  time.Duration `split_words:"true" default:"2s"`

	// BreakerFailures consecutive failed batches open a sink's breaker for
	// BreakerTimeout.
	BreakerFailures int           `split_words:"true" default:"5"`
	BreakerTimeout  time.Duration `split_words:"true" default:"1m"`
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Enabled bool `split_words:"true" default:"false"`

	// Broker is the Kafka broker address (e.g., "localhost:9092").
	Broker string `split_words:"true" default:"localhost:9092"`

	// CandleTopic receives every closed candle.
	CandleTopic string `split_words:"true" default:"flowscope_candles"`

	// PlanTopic receives every trade plan.
	PlanTopic string `split_words:"true" default:"flowscope_plans"`
}

// ClickHouseConfig holds the database connection settings.
type ClickHouseConfig struct {
	Enabled  bool   `split_words:"true" default:"false"`
	User     string `split_words:"true" default:"user"`
	Password string `split_words:"true" default:"password"`
	Host     string `split_words:"true" default:"localhost"`
	TCPPort  string `split_words:"true" default:"9000"`
	DB       string `split_words:"true" default:"db"`
}

// RedisConfig holds the snapshot cache settings.
type RedisConfig struct {
	Enabled  bool          `split_words:"true" default:"false"`
	Addr     string        `split_words:"true" default:"localhost:6379"`
	Password string        `split_words:"true"`
	DB       int           `split_words:"true" default:"0"`
	TTL      time.Duration `split_words:"true" default:"30s"`
	Interval time.Duration `split_words:"true" default:"1s"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `split_words:"true" default:":8080"`
}

// DSN constructs the ClickHouse DSN.
func (c ClickHouseConfig) DSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%s/%s?dial_timeout=10s&read_timeout=20s",
		c.User, c.Password, c.Host, c.TCPPort, c.DB,
	)
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() (*AppConfig, error) {
	_ = godotenv.Load() // Ignore error - .env is optional

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Desk.HistorySize <= 0 {
		return nil, fmt.Errorf("load config: DESK_HISTORY_SIZE must be positive, got %d", cfg.Desk.HistorySize)
	}
	if cfg.Desk.CandleInterval <= 0 {
		return nil, fmt.Errorf("load config: DESK_CANDLE_INTERVAL must be positive, got %s", cfg.Desk.CandleInterval)
	}
	return &cfg, nil
}
