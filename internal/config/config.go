package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Relayer  RelayerConfig  `mapstructure:"relayer"`
	Session  SessionConfig  `mapstructure:"session"`
	Book     BookConfig     `mapstructure:"book"`
	Builder  BuilderConfig  `mapstructure:"builder"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr    string   `mapstructure:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	SubmitAttempts int           `mapstructure:"submit_attempts"`
}

type ChainConfig struct {
	RPCURL  string `mapstructure:"rpc_url"`
	ChainID int64  `mapstructure:"chain_id"`
	// PrivateKey enables direct (non-relayed) approval transactions. Leave
	// empty to run the gateway read-only against the chain.
	PrivateKey          string        `mapstructure:"private_key"`
	CollateralToken     string        `mapstructure:"collateral_token"`
	ConditionalTokens   string        `mapstructure:"conditional_tokens"`
	CTFExchange         string        `mapstructure:"ctf_exchange"`
	NegRiskExchange     string        `mapstructure:"neg_risk_exchange"`
	ProxyFactory        string        `mapstructure:"proxy_factory"`
	ProxyInitCodeHash   string        `mapstructure:"proxy_init_code_hash"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
}

type RelayerConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TxType         string        `mapstructure:"tx_type"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	DeployWaitMax  time.Duration `mapstructure:"deploy_wait_max"`
	DeployPollTick time.Duration `mapstructure:"deploy_poll_tick"`
}

type SessionConfig struct {
	CookieName    string        `mapstructure:"cookie_name"`
	EncryptionKey string        `mapstructure:"encryption_key"`
	TTL           time.Duration `mapstructure:"ttl"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
}

type BookConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// BuilderConfig carries optional order-attribution credentials. When the
// secret is empty no builder headers are attached.
type BuilderConfig struct {
	Name   string `mapstructure:"name"`
	APIKey string `mapstructure:"api_key"`
	Secret string `mapstructure:"secret"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CacheSweep   string `mapstructure:"cache_sweep"`
	JournalSweep string `mapstructure:"journal_sweep"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("exchange.base_url", "https://clob.polymarket.com")
	v.SetDefault("exchange.timeout", "15s")
	v.SetDefault("exchange.submit_timeout", "12s")
	v.SetDefault("exchange.submit_attempts", 3)
	v.SetDefault("chain.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chain.chain_id", 137)
	v.SetDefault("chain.collateral_token", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	v.SetDefault("chain.conditional_tokens", "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	v.SetDefault("chain.ctf_exchange", "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	v.SetDefault("chain.neg_risk_exchange", "0xC5d563A36AE78145C45a50134d48A1215220f80a")
	v.SetDefault("chain.proxy_factory", "0xaB45c5A4B0c941a2F231C04C3f49182e1A254052")
	v.SetDefault("chain.receipt_poll_interval", "2s")
	v.SetDefault("chain.receipt_timeout", "120s")
	v.SetDefault("relayer.url", "https://relayer-v2.polymarket.com")
	v.SetDefault("relayer.timeout", "30s")
	v.SetDefault("relayer.tx_type", "PROXY")
	v.SetDefault("relayer.session_ttl", "10m")
	v.SetDefault("relayer.deploy_wait_max", "120s")
	v.SetDefault("relayer.deploy_poll_tick", "2s")
	v.SetDefault("session.cookie_name", "pt_session")
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("book.poll_interval", "5s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.cache_sweep", "@every 1m")
	v.SetDefault("cron.journal_sweep", "@every 5m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
