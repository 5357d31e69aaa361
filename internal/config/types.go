package config

// Config is the top-level configuration carrier.
type Config struct {
	App      AppConfig      `toml:"app"`
	Database DatabaseConfig `toml:"database"`
	Market   MarketConfig   `toml:"market"`
	Broker   BrokerConfig   `toml:"broker"`
	Worker   WorkerConfig   `toml:"worker"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

type DatabaseConfig struct {
	Path          string `toml:"path"`
	EquityLogPath string `toml:"equity_log_path"`
}

type MarketConfig struct {
	CacheTTLSeconds     int `toml:"cache_ttl_seconds"`
	QuoteTimeoutSeconds int `toml:"quote_timeout_seconds"`
	MaxParallelQuotes   int `toml:"max_parallel_quotes"`
}

// BrokerConfig selects the order execution backend. Mode is resolved once at
// construction time; there is no runtime switching.
type BrokerConfig struct {
	Mode string    `toml:"mode"` // "simulated" | "kis"
	KIS  KISConfig `toml:"kis"`
}

// KISConfig describes access to the Korea Investment & Securities Open API.
type KISConfig struct {
	BaseURL        string `toml:"base_url"`
	AppKey         string `toml:"app_key"`
	AppSecret      string `toml:"app_secret"`
	AccountNo      string `toml:"account_no"`
	AccountCode    string `toml:"account_code"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type WorkerConfig struct {
	IntervalSeconds int     `toml:"interval_seconds"`
	DefaultQuantity float64 `toml:"default_quantity"`
	RunOnStart      bool    `toml:"run_on_start"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}
