package configloader

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"x402_gateway/internal/pkg/utils"
)

// DefaultFacilitatorURL is used when no facilitator is configured anywhere.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// ServerConfig holds the HTTP server configuration. Timeouts are seconds.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PaymentConfig describes how protected routes charge for access.
type PaymentConfig struct {
	Network           string `yaml:"network"` // canonical name, CAIP-2 or chain ID
	PayTo             string `yaml:"payTo"`
	DefaultPrice      string `yaml:"defaultPrice"`      // static-price routes, e.g. "$0.01"
	DefaultBudget     string `yaml:"defaultBudget"`     // budget routes without an X-Budget header
	MaxTimeoutSeconds int    `yaml:"maxTimeoutSeconds"` // authorization validity window
	Description       string `yaml:"description"`
}

// FacilitatorConfig holds the configuration for the facilitator client.
type FacilitatorConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	MaxRetries           int    `yaml:"maxRetries"`
	RetryDelayMs         int64  `yaml:"retryDelayMs"`
}

// CDPConfig holds Coinbase Developer Platform API credentials. Both values
// can come from the environment instead of the file.
type CDPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	KeyID     string `yaml:"keyID"`
	KeySecret string `yaml:"keySecret"`
}

// GateConfig holds configuration for the payment gate service.
type GateConfig struct {
	ReplayCleanupMinutes int `yaml:"replayCleanupMinutes"`
}

// PricingConfig holds configuration for the pricing service.
type PricingConfig struct {
	CacheTTLMinutes int `yaml:"cacheTTLMinutes"`
}

// RpcClientConfig holds configuration for blockchain RPC clients.
type RpcClientConfig struct {
	DefaultTimeoutMs int64 `yaml:"defaultTimeoutMs"`
	RateLimit        int   `yaml:"rateLimit"`
	BurstLimit       int   `yaml:"burstLimit"`
	MaxRetries       int   `yaml:"maxRetries"`
	RetryDelayMs     int64 `yaml:"retryDelayMs"`
	MaxWalletsPerRPC int   `yaml:"maxWalletsPerRpcBatch"`
}

// EndpointConfig names one paid resource the payer should exercise.
type EndpointConfig struct {
	Path      string `yaml:"path"`
	Method    string `yaml:"method"`
	Budget    string `yaml:"budget"`    // sent as X-Budget when non-empty
	MaxAmount string `yaml:"maxAmount"` // per-endpoint cap, overrides payer.maxPaymentAmount
}

// PayerConfig holds the paying client configuration.
type PayerConfig struct {
	ResourceBaseURL       string           `yaml:"resourceBaseURL"`
	RequestTimeoutMillis  int64            `yaml:"requestTimeoutMillis"`
	MaxConcurrentRequests int              `yaml:"maxConcurrentRequests"`
	RequestsPerSecond     int              `yaml:"requestsPerSecond"`
	BurstLimit            int              `yaml:"burstLimit"`
	MaxPaymentAmount      string           `yaml:"maxPaymentAmount"` // refuse quotes above this, e.g. "$1"
	Endpoints             []EndpointConfig `yaml:"endpoints"`
}

// AssetsConfig points at per-network payment asset overrides.
type AssetsConfig struct {
	Dir string `yaml:"dir"`
}

// WalletsConfig points at the payer key file.
type WalletsConfig struct {
	File string `yaml:"file"`
}

// Config is the top-level configuration structure shared by the resource
// server and the paying client.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Swagger     SwaggerConfig     `yaml:"swagger"`
	Payment     PaymentConfig     `yaml:"payment"`
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	CDP         CDPConfig         `yaml:"cdp"`
	Gate        GateConfig        `yaml:"gate"`
	Pricing     PricingConfig     `yaml:"pricing"`
	RpcClient   RpcClientConfig   `yaml:"rpcClient"`
	Payer       PayerConfig       `yaml:"payer"`
	Assets      AssetsConfig      `yaml:"assets"`
	Wallets     WalletsConfig     `yaml:"wallets"`
}

// Load reads the YAML configuration file, applies defaults and folds in the
// environment overrides used in deployment (PORT, NETWORK, PAY_TO,
// FACILITATOR_URL, CDP_API_KEY_ID, CDP_API_KEY_SECRET, RESOURCE_SERVER_URL).
// A missing file is not an error: the result is defaults plus environment.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Warnf("Config file %s not found, using defaults and environment", path)
			var cfg Config
			applyEnvOverrides(&cfg)
			applyDefaults(&cfg)
			return &cfg, nil
		}
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = utils.FirstNonEmpty(os.Getenv("PORT"), cfg.Server.Port)
	cfg.Payment.Network = utils.FirstNonEmpty(os.Getenv("NETWORK"), cfg.Payment.Network)
	cfg.Payment.PayTo = utils.FirstNonEmpty(os.Getenv("PAY_TO"), cfg.Payment.PayTo)
	cfg.Facilitator.BaseURL = utils.FirstNonEmpty(os.Getenv("FACILITATOR_URL"), cfg.Facilitator.BaseURL)
	cfg.CDP.KeyID = utils.FirstNonEmpty(os.Getenv("CDP_API_KEY_ID"), cfg.CDP.KeyID)
	cfg.CDP.KeySecret = utils.FirstNonEmpty(os.Getenv("CDP_API_KEY_SECRET"), cfg.CDP.KeySecret)
	cfg.Payer.ResourceBaseURL = utils.FirstNonEmpty(os.Getenv("RESOURCE_SERVER_URL"), cfg.Payer.ResourceBaseURL)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60
	}

	if cfg.Payment.Network == "" {
		cfg.Payment.Network = "base-sepolia"
		logrus.Infof("Payment network not set, defaulting to %s", cfg.Payment.Network)
	}
	if cfg.Payment.DefaultPrice == "" {
		cfg.Payment.DefaultPrice = "$0.01"
	}
	if cfg.Payment.DefaultBudget == "" {
		cfg.Payment.DefaultBudget = "$0.001"
	}
	if cfg.Payment.MaxTimeoutSeconds == 0 {
		cfg.Payment.MaxTimeoutSeconds = 60
		logrus.Infof("Payment maxTimeoutSeconds not set, defaulting to %d", cfg.Payment.MaxTimeoutSeconds)
	}

	if cfg.Facilitator.BaseURL == "" {
		cfg.Facilitator.BaseURL = DefaultFacilitatorURL
		logrus.Infof("Facilitator baseURL not set, defaulting to %s", cfg.Facilitator.BaseURL)
	}
	if cfg.Facilitator.RequestTimeoutMillis == 0 {
		cfg.Facilitator.RequestTimeoutMillis = 10000
	}
	if cfg.Facilitator.MaxRetries == 0 {
		cfg.Facilitator.MaxRetries = 3
	}
	if cfg.Facilitator.RetryDelayMs == 0 {
		cfg.Facilitator.RetryDelayMs = 500
	}

	if cfg.Gate.ReplayCleanupMinutes == 0 {
		cfg.Gate.ReplayCleanupMinutes = 10
	}
	if cfg.Pricing.CacheTTLMinutes == 0 {
		cfg.Pricing.CacheTTLMinutes = 5
	}

	if cfg.RpcClient.DefaultTimeoutMs == 0 {
		cfg.RpcClient.DefaultTimeoutMs = 10000
	}
	if cfg.RpcClient.RateLimit == 0 {
		cfg.RpcClient.RateLimit = 10
	}
	if cfg.RpcClient.BurstLimit == 0 {
		cfg.RpcClient.BurstLimit = 20
	}
	if cfg.RpcClient.MaxRetries == 0 {
		cfg.RpcClient.MaxRetries = 3
	}
	if cfg.RpcClient.RetryDelayMs == 0 {
		cfg.RpcClient.RetryDelayMs = 500
	}
	if cfg.RpcClient.MaxWalletsPerRPC == 0 {
		cfg.RpcClient.MaxWalletsPerRPC = 50
	}

	if cfg.Payer.RequestTimeoutMillis == 0 {
		// Settlement waits for an on-chain transaction, so the paying side
		// needs far more slack than an ordinary API call.
		cfg.Payer.RequestTimeoutMillis = 30000
	}
	if cfg.Payer.MaxConcurrentRequests == 0 {
		cfg.Payer.MaxConcurrentRequests = 4
	}
	if cfg.Payer.RequestsPerSecond == 0 {
		cfg.Payer.RequestsPerSecond = 5
	}
	if cfg.Payer.BurstLimit == 0 {
		cfg.Payer.BurstLimit = 10
	}
	if cfg.Payer.MaxPaymentAmount == "" {
		cfg.Payer.MaxPaymentAmount = "$1"
		logrus.Infof("Payer maxPaymentAmount not set, defaulting to %s", cfg.Payer.MaxPaymentAmount)
	}

	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = "data/assets"
	}
	if cfg.Wallets.File == "" {
		cfg.Wallets.File = "data/wallets.txt"
	}
}
