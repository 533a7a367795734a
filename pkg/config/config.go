package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"twap_oracle/pkg/data"
	"twap_oracle/pkg/p2p/discovery"
	"twap_oracle/pkg/security"
	"twap_oracle/pkg/stream"
)

const (
	DefaultStreamURL       = "https://sepolia.starknet.a5a.ch"
	DefaultContractAddress = "0x36031daa264c24520b11d93af622c848b2499b66b41d611bac95e13cfca131a"
	DefaultEventSelector   = "0x280bb2099800026f90c334a3a23888ffe718a2920ffbbf4f44c6d3d5efb613c"
)

// ErrMissing is returned when a required setting is empty.
var ErrMissing = errors.New("required setting is missing")

// Config holds all configuration settings for the node
type Config struct {
	Stream      StreamConfig      `mapstructure:"stream"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Signing     SigningConfig     `mapstructure:"signing"`
	P2P         P2PConfig         `mapstructure:"p2p"`
	Server      ServerConfig      `mapstructure:"server"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Indexer     IndexerConfig     `mapstructure:"indexer"`
	Publisher   PublisherConfig   `mapstructure:"publisher"`
	Log         LogConfig         `mapstructure:"log"`
}

// StreamConfig points the indexer at an Apibara stream
type StreamConfig struct {
	URL             string `mapstructure:"url"`
	APIKey          string `mapstructure:"api_key"`
	StartingBlock   uint64 `mapstructure:"starting_block"`
	ContractAddress string `mapstructure:"contract_address"`
	Selector        string `mapstructure:"selector"`
	BatchSize       uint64 `mapstructure:"batch_size"`
}

// RedisConfig holds the time-series store connection settings
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SigningConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// P2PConfig holds gossip network settings
type P2PConfig struct {
	ListenAddress     string        `mapstructure:"listen_address"`
	BootstrapPeers    string        `mapstructure:"bootstrap_peers"`
	Topic             string        `mapstructure:"topic"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MDNSServiceTag    string        `mapstructure:"mdns_service_tag"`
	EnableDHT         bool          `mapstructure:"enable_dht"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	MaxPeers          int           `mapstructure:"max_peers"`
	QueueSize         int           `mapstructure:"queue_size"`
	MaxPeriod         uint64        `mapstructure:"max_period"`
}

// Peers returns the bootstrap multiaddrs with empty entries dropped.
func (c P2PConfig) Peers() []string {
	return discovery.SplitPeerList(c.BootstrapPeers)
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AggregationConfig selects the TWAP rule
type AggregationConfig struct {
	Rule          string `mapstructure:"rule"`
	DefaultPeriod uint64 `mapstructure:"default_period"`
}

// IndexerConfig holds the restart policy of the indexer supervisor
type IndexerConfig struct {
	Backoff BackoffConfig `mapstructure:"backoff"`
}

type BackoffConfig struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	MaxRestarts         int           `mapstructure:"max_restarts"`
	ResetAfter          time.Duration `mapstructure:"reset_after"`
}

// PublisherConfig drives the periodic attestation publisher. An empty
// schedule disables it.
type PublisherConfig struct {
	Schedule string   `mapstructure:"schedule"`
	Pairs    []string `mapstructure:"pairs"`
	Period   uint64   `mapstructure:"period"`
}

// Enabled reports whether periodic publishing is configured.
func (c PublisherConfig) Enabled() bool {
	return c.Schedule != "" && len(c.Pairs) > 0
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Debug      bool   `mapstructure:"debug"`
}

// envBindings maps config keys to their historical environment names.
var envBindings = map[string]string{
	"stream.url":              "APIBARA_URL",
	"stream.api_key":          "APIBARA_API_KEY",
	"stream.starting_block":   "STARTING_BLOCK",
	"stream.contract_address": "CONTRACT_ADDRESS",
	"stream.selector":         "EVENT_SELECTOR",
	"redis.url":               "REDIS_URL",
	"signing.private_key":     "PRIVATE_KEY",
	"p2p.listen_address":      "P2P_LISTEN_ADDR",
	"p2p.bootstrap_peers":     "P2P_BOOTSTRAP_PEERS",
	"server.host":             "SERVER_HOST",
	"server.port":             "SERVER_PORT",
	"aggregation.rule":        "TWAP_RULE",
	"log.level":               "LOG_LEVEL",
}

// Load reads defaults, then the optional config file, then .env and the
// process environment, in increasing priority.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set default configuration values
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, will rely on defaults and env vars
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}
	v.SetEnvPrefix("TWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.url", DefaultStreamURL)
	v.SetDefault("stream.api_key", "")
	v.SetDefault("stream.starting_block", 0)
	v.SetDefault("stream.contract_address", DefaultContractAddress)
	v.SetDefault("stream.selector", DefaultEventSelector)
	v.SetDefault("stream.batch_size", 1)

	v.SetDefault("redis.url", "redis://127.0.0.1:6379")
	v.SetDefault("redis.key_prefix", data.DefaultKeyPrefix)

	v.SetDefault("signing.private_key", "")

	v.SetDefault("p2p.listen_address", "/ip4/0.0.0.0/tcp/61234")
	v.SetDefault("p2p.bootstrap_peers", "")
	v.SetDefault("p2p.topic", "twap-updates")
	v.SetDefault("p2p.heartbeat_interval", "10s")
	v.SetDefault("p2p.mdns_service_tag", "twap-oracle")
	v.SetDefault("p2p.enable_dht", false)
	v.SetDefault("p2p.dial_timeout", "15s")
	v.SetDefault("p2p.max_peers", 50)
	v.SetDefault("p2p.queue_size", 256)
	v.SetDefault("p2p.max_period", 0)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("aggregation.rule", string(data.RuleMean))
	v.SetDefault("aggregation.default_period", 3600)

	v.SetDefault("indexer.backoff.initial_interval", "1s")
	v.SetDefault("indexer.backoff.max_interval", "1m")
	v.SetDefault("indexer.backoff.multiplier", 2.0)
	v.SetDefault("indexer.backoff.randomization_factor", 0.2)
	v.SetDefault("indexer.backoff.max_restarts", 0)
	v.SetDefault("indexer.backoff.reset_after", "5m")

	v.SetDefault("publisher.schedule", "")
	v.SetDefault("publisher.pairs", []string{})
	v.SetDefault("publisher.period", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.debug", false)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateStream(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if err := c.validateRedis(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	if err := c.validateSigning(); err != nil {
		return fmt.Errorf("signing config: %w", err)
	}
	if err := c.validateP2P(); err != nil {
		return fmt.Errorf("p2p config: %w", err)
	}
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.validateAggregation(); err != nil {
		return fmt.Errorf("aggregation config: %w", err)
	}
	if err := c.validateIndexer(); err != nil {
		return fmt.Errorf("indexer config: %w", err)
	}
	if err := c.validatePublisher(); err != nil {
		return fmt.Errorf("publisher config: %w", err)
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.URL == "" {
		return fmt.Errorf("url: %w", ErrMissing)
	}
	if c.Stream.APIKey == "" {
		return fmt.Errorf("api_key (APIBARA_API_KEY): %w", ErrMissing)
	}
	if _, err := stream.FeltFromHex(c.Stream.ContractAddress); err != nil {
		return fmt.Errorf("contract_address: %w", err)
	}
	if _, err := stream.FeltFromHex(c.Stream.Selector); err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	if c.Stream.BatchSize == 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("url: %w", ErrMissing)
	}
	if c.Redis.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}
	return nil
}

func (c *Config) validateSigning() error {
	if c.Signing.PrivateKey == "" {
		return fmt.Errorf("private_key (PRIVATE_KEY): %w", ErrMissing)
	}
	if _, err := security.NewSigner(c.Signing.PrivateKey); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateP2P() error {
	if _, err := multiaddr.NewMultiaddr(c.P2P.ListenAddress); err != nil {
		return fmt.Errorf("listen_address %q: %w", c.P2P.ListenAddress, err)
	}
	if _, err := discovery.ParseBootstrapPeers(c.P2P.Peers()); err != nil {
		return err
	}
	if c.P2P.Topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if c.P2P.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.P2P.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive")
	}
	if c.P2P.MaxPeers < 0 {
		return fmt.Errorf("max_peers cannot be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateAggregation() error {
	if _, err := data.ParseRule(c.Aggregation.Rule); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIndexer() error {
	b := c.Indexer.Backoff
	if b.InitialInterval <= 0 || b.MaxInterval < b.InitialInterval {
		return fmt.Errorf("backoff intervals must be positive with max >= initial")
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}
	if b.RandomizationFactor < 0 || b.RandomizationFactor > 1 {
		return fmt.Errorf("backoff randomization_factor must be between 0 and 1")
	}
	return nil
}

func (c *Config) validatePublisher() error {
	if c.Publisher.Schedule != "" && len(c.Publisher.Pairs) == 0 {
		return fmt.Errorf("pairs cannot be empty when a schedule is set")
	}
	return nil
}

// GetLogLevel returns a zap log level based on the configured string
func (c *Config) GetLogLevel() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "info":
		level.SetLevel(zap.InfoLevel)
	case "warn":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}
	return level
}
