package config

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultDatabasePath      = "data/stockpilot.db"
	defaultEquityLogPath     = "data/equity.db"
	defaultMarketCacheTTL    = 60
	defaultMarketQuoteTO     = 5
	defaultMarketMaxParallel = 4
	defaultBrokerMode        = "simulated"
	defaultKISBaseURL        = "https://openapi.koreainvestment.com:9443"
	defaultKISAccountCode    = "01"
	defaultKISTimeout        = 15
	defaultWorkerInterval    = 60
	defaultWorkerQuantity    = 1
	defaultServerAddr        = ":8080"
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Database.EquityLogPath == "" {
		c.Database.EquityLogPath = defaultEquityLogPath
	}
	if c.Market.CacheTTLSeconds <= 0 {
		c.Market.CacheTTLSeconds = defaultMarketCacheTTL
	}
	if c.Market.QuoteTimeoutSeconds <= 0 {
		c.Market.QuoteTimeoutSeconds = defaultMarketQuoteTO
	}
	if c.Market.MaxParallelQuotes <= 0 {
		c.Market.MaxParallelQuotes = defaultMarketMaxParallel
	}
	if c.Broker.Mode == "" {
		c.Broker.Mode = defaultBrokerMode
	}
	if c.Broker.KIS.BaseURL == "" {
		c.Broker.KIS.BaseURL = defaultKISBaseURL
	}
	if c.Broker.KIS.AccountCode == "" {
		c.Broker.KIS.AccountCode = defaultKISAccountCode
	}
	if c.Broker.KIS.TimeoutSeconds <= 0 {
		c.Broker.KIS.TimeoutSeconds = defaultKISTimeout
	}
	if c.Worker.IntervalSeconds <= 0 {
		c.Worker.IntervalSeconds = defaultWorkerInterval
	}
	if c.Worker.DefaultQuantity <= 0 {
		c.Worker.DefaultQuantity = defaultWorkerQuantity
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
}
