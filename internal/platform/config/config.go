package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the swap service
type Config struct {
	Ethereum      EthereumConfig      `mapstructure:"ethereum"`
	Uniswap       UniswapConfig       `mapstructure:"uniswap"`
	Swap          SwapConfig          `mapstructure:"swap"`
	Wallet        WalletConfig        `mapstructure:"wallet"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// EthereumConfig holds Ethereum connection configuration
type EthereumConfig struct {
	ChainID       uint64          `mapstructure:"chain_id"`
	WebSocketURLs []string        `mapstructure:"websocket_urls"`
	RPCEndpoints  []RPCEndpoint   `mapstructure:"rpc_endpoints"`
	Reconnect     ReconnectConfig `mapstructure:"reconnect"`
}

// RPCEndpoint represents an Ethereum RPC endpoint
type RPCEndpoint struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

// ReconnectConfig holds WebSocket reconnection settings
type ReconnectConfig struct {
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	Jitter     float64       `mapstructure:"jitter"`
}

// UniswapConfig holds Uniswap V3 contract configuration
type UniswapConfig struct {
	FactoryAddress   string `mapstructure:"factory_address"`
	QuoterAddress    string `mapstructure:"quoter_address"`
	RouterAddress    string `mapstructure:"router_address"`
	WETHAddress      string `mapstructure:"weth_address"`
	USDCAddress      string `mapstructure:"usdc_address"`
	PoolInitCodeHash string `mapstructure:"pool_init_code_hash"`
	FeeTier          uint32 `mapstructure:"fee_tier"`
	// FallbackRate is the static USDC-per-ETH rate used when both live quote
	// tiers are unavailable. Last resort only; quotes derived from it are
	// tagged non-authoritative.
	FallbackRate int64 `mapstructure:"fallback_rate"`
}

// SwapConfig holds swap pipeline settings
type SwapConfig struct {
	// Slippage tolerance bounds in basis points. Requested tolerance is
	// clamped into [MinEffectiveSlippageBPS, MaxSlippageBPS] at plan build
	// time; the effective floor applies even when the user asks for less.
	MinSlippageBPS          int64 `mapstructure:"min_slippage_bps"`
	MaxSlippageBPS          int64 `mapstructure:"max_slippage_bps"`
	MinEffectiveSlippageBPS int64 `mapstructure:"min_effective_slippage_bps"`

	DeadlineWindow   time.Duration `mapstructure:"deadline_window"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`

	// Fixed gas ceilings per call type; headroom over typical usage rather
	// than per-transaction estimation in the fast path.
	GasLimitSwap      uint64 `mapstructure:"gas_limit_swap"`
	GasLimitMulticall uint64 `mapstructure:"gas_limit_multicall"`
	GasLimitApprove   uint64 `mapstructure:"gas_limit_approve"`

	// GasPriceMultiplierBPS scales the suggested base fee (12000 = 1.2x) to
	// reduce stuck-transaction risk under congestion.
	GasPriceMultiplierBPS int64 `mapstructure:"gas_price_multiplier_bps"`
}

// WalletConfig holds wallet/session configuration
type WalletConfig struct {
	// PrivateKey is the hex-encoded signing key. Normally injected via the
	// WALLET_PRIVATE_KEY environment variable, never the config file.
	PrivateKey string `mapstructure:"private_key"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	// Notifications can be disabled entirely; the service then uses a no-op
	// publisher.
	NotificationsEnabled bool `mapstructure:"notifications_enabled"`
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	L1MaxSize  int           `mapstructure:"l1_max_size"`
	L2TTL      time.Duration `mapstructure:"l2_ttl"`
	BalanceTTL time.Duration `mapstructure:"balance_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.BindEnv("wallet.private_key", "WALLET_PRIVATE_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Ethereum defaults (mainnet)
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.reconnect.max_backoff", "30s")
	v.SetDefault("ethereum.reconnect.jitter", 0.2)

	// Uniswap V3 mainnet deployment
	v.SetDefault("uniswap.factory_address", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v.SetDefault("uniswap.quoter_address", "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
	v.SetDefault("uniswap.router_address", "0xE592427A0AEce92De3Edee1F18E0157C05861564")
	v.SetDefault("uniswap.weth_address", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	v.SetDefault("uniswap.usdc_address", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	v.SetDefault("uniswap.pool_init_code_hash", "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
	v.SetDefault("uniswap.fee_tier", 3000)
	v.SetDefault("uniswap.fallback_rate", 3000)

	// Swap pipeline defaults
	v.SetDefault("swap.min_slippage_bps", 10)   // 0.1%
	v.SetDefault("swap.max_slippage_bps", 500)  // 5%
	v.SetDefault("swap.min_effective_slippage_bps", 10)
	v.SetDefault("swap.deadline_window", "20m")
	v.SetDefault("swap.debounce_interval", "300ms")
	v.SetDefault("swap.gas_limit_swap", 1000000)
	v.SetDefault("swap.gas_limit_multicall", 1200000)
	v.SetDefault("swap.gas_limit_approve", 100000)
	v.SetDefault("swap.gas_price_multiplier_bps", 12000) // 1.2x

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AWS defaults
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_topic_arn", "")
	v.SetDefault("aws.notifications_enabled", false)

	// Cache defaults
	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l2_ttl", "60s")
	v.SetDefault("cache.balance_ttl", "12s") // roughly one block

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// FallbackRateBase returns the static fallback rate as a base-unit amount of
// USDC per whole ETH.
func (u *UniswapConfig) FallbackRateBase(usdcDecimals int) *big.Int {
	rate := big.NewInt(u.FallbackRate)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(usdcDecimals)), nil)
	return rate.Mul(rate, scale)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Ethereum.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}

	if c.Uniswap.FeeTier == 0 {
		return fmt.Errorf("uniswap fee tier is required")
	}

	if c.Uniswap.FallbackRate <= 0 {
		return fmt.Errorf("fallback rate must be > 0")
	}

	if c.Swap.MinSlippageBPS <= 0 || c.Swap.MaxSlippageBPS <= c.Swap.MinSlippageBPS {
		return fmt.Errorf("invalid slippage bounds: min=%d max=%d", c.Swap.MinSlippageBPS, c.Swap.MaxSlippageBPS)
	}

	if c.Swap.DeadlineWindow <= 0 {
		return fmt.Errorf("deadline window must be positive")
	}

	if c.Swap.GasPriceMultiplierBPS < 10000 {
		return fmt.Errorf("gas price multiplier must be >= 10000 bps (1.0x)")
	}

	if c.AWS.NotificationsEnabled && c.AWS.SNSTopicARN == "" {
		return fmt.Errorf("SNS topic ARN is required when notifications are enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
