package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APIBARA_API_KEY", "dna_test")
	t.Setenv("PRIVATE_KEY", testKey)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := []byte(`
stream:
  starting_block: 50000
  batch_size: 4
redis:
  key_prefix: "test:"
p2p:
  listen_address: /ip4/127.0.0.1/tcp/4001
  heartbeat_interval: 5s
  enable_dht: true
aggregation:
  rule: time_weighted
publisher:
  schedule: "@every 1m"
  pairs: [BTC/USD, ETH/USD]
  period: 600
`)
	require.NoError(t, os.WriteFile(configPath, configContent, 0644))

	t.Run("LoadValidConfig", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load(configPath)
		require.NoError(t, err)

		assert.Equal(t, uint64(50000), cfg.Stream.StartingBlock)
		assert.Equal(t, uint64(4), cfg.Stream.BatchSize)
		assert.Equal(t, "test:", cfg.Redis.KeyPrefix)
		assert.Equal(t, "/ip4/127.0.0.1/tcp/4001", cfg.P2P.ListenAddress)
		assert.Equal(t, 5*time.Second, cfg.P2P.HeartbeatInterval)
		assert.True(t, cfg.P2P.EnableDHT)
		assert.Equal(t, "time_weighted", cfg.Aggregation.Rule)
		assert.True(t, cfg.Publisher.Enabled())
		assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, cfg.Publisher.Pairs)
		assert.Equal(t, uint64(600), cfg.Publisher.Period)
	})

	t.Run("EnvironmentOverride", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("STARTING_BLOCK", "123")
		t.Setenv("TWAP_RULE", "mean")
		t.Setenv("LOG_LEVEL", "error")

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, uint64(123), cfg.Stream.StartingBlock)
		assert.Equal(t, "mean", cfg.Aggregation.Rule)
		assert.Equal(t, "error", cfg.Log.Level)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		setRequiredEnv(t)
		invalidPath := filepath.Join(tmpDir, "invalid.yaml")
		require.NoError(t, os.WriteFile(invalidPath, []byte("invalid: [yaml: syntax"), 0644))

		cfg, err := Load(invalidPath)
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("DefaultValues", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
		require.NoError(t, err)

		assert.Equal(t, DefaultStreamURL, cfg.Stream.URL)
		assert.Equal(t, DefaultContractAddress, cfg.Stream.ContractAddress)
		assert.Equal(t, DefaultEventSelector, cfg.Stream.Selector)
		assert.Equal(t, uint64(1), cfg.Stream.BatchSize)
		assert.Equal(t, "redis://127.0.0.1:6379", cfg.Redis.URL)
		assert.Equal(t, "spot:", cfg.Redis.KeyPrefix)
		assert.Equal(t, "/ip4/0.0.0.0/tcp/61234", cfg.P2P.ListenAddress)
		assert.Equal(t, "twap-updates", cfg.P2P.Topic)
		assert.Equal(t, 10*time.Second, cfg.P2P.HeartbeatInterval)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "mean", cfg.Aggregation.Rule)
		assert.Equal(t, uint64(3600), cfg.Aggregation.DefaultPeriod)
		assert.Equal(t, time.Second, cfg.Indexer.Backoff.InitialInterval)
		assert.Equal(t, 5*time.Minute, cfg.Indexer.Backoff.ResetAfter)
		assert.False(t, cfg.Publisher.Enabled())
		assert.Empty(t, cfg.P2P.Peers())
	})

	t.Run("MissingRequired", func(t *testing.T) {
		t.Setenv("APIBARA_API_KEY", "")
		t.Setenv("PRIVATE_KEY", testKey)

		_, err := Load("")
		assert.ErrorIs(t, err, ErrMissing)
	})
}

func TestBootstrapPeersFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("P2P_BOOTSTRAP_PEERS",
		"/ip4/10.0.0.1/tcp/61234/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN, ,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"/ip4/10.0.0.1/tcp/61234/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"},
		cfg.P2P.Peers())
}

func validConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:             DefaultStreamURL,
			APIKey:          "dna_test",
			ContractAddress: DefaultContractAddress,
			Selector:        DefaultEventSelector,
			BatchSize:       1,
		},
		Redis:   RedisConfig{URL: "redis://127.0.0.1:6379", KeyPrefix: "spot:"},
		Signing: SigningConfig{PrivateKey: testKey},
		P2P: P2PConfig{
			ListenAddress:     "/ip4/0.0.0.0/tcp/61234",
			Topic:             "twap-updates",
			HeartbeatInterval: 10 * time.Second,
			QueueSize:         256,
		},
		Server:      ServerConfig{Host: "0.0.0.0", Port: 3000},
		Aggregation: AggregationConfig{Rule: "mean", DefaultPeriod: 3600},
		Indexer: IndexerConfig{Backoff: BackoffConfig{
			InitialInterval: time.Second,
			MaxInterval:     time.Minute,
			Multiplier:      2,
		}},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name         string
		modifyConfig func(*Config)
		wantErr      bool
		errSubstr    string
	}{
		{
			name:         "ValidConfig",
			modifyConfig: func(c *Config) {},
		},
		{
			name:         "MissingAPIKey",
			modifyConfig: func(c *Config) { c.Stream.APIKey = "" },
			wantErr:      true,
			errSubstr:    "api_key",
		},
		{
			name:         "MalformedContract",
			modifyConfig: func(c *Config) { c.Stream.ContractAddress = "0xnothex" },
			wantErr:      true,
			errSubstr:    "contract_address",
		},
		{
			name:         "MalformedPrivateKey",
			modifyConfig: func(c *Config) { c.Signing.PrivateKey = "0x1234" },
			wantErr:      true,
			errSubstr:    "invalid private key",
		},
		{
			name:         "BadListenAddress",
			modifyConfig: func(c *Config) { c.P2P.ListenAddress = "0.0.0.0:61234" },
			wantErr:      true,
			errSubstr:    "listen_address",
		},
		{
			name:         "BadBootstrapPeer",
			modifyConfig: func(c *Config) { c.P2P.BootstrapPeers = "/ip4/10.0.0.1/tcp/1" },
			wantErr:      true,
			errSubstr:    "invalid peer address",
		},
		{
			name:         "InvalidPort",
			modifyConfig: func(c *Config) { c.Server.Port = 70000 },
			wantErr:      true,
			errSubstr:    "invalid port number",
		},
		{
			name:         "UnknownRule",
			modifyConfig: func(c *Config) { c.Aggregation.Rule = "median" },
			wantErr:      true,
			errSubstr:    "aggregation config",
		},
		{
			name:         "BadBackoff",
			modifyConfig: func(c *Config) { c.Indexer.Backoff.Multiplier = 0.5 },
			wantErr:      true,
			errSubstr:    "multiplier",
		},
		{
			name:         "ScheduleWithoutPairs",
			modifyConfig: func(c *Config) { c.Publisher.Schedule = "@every 1m" },
			wantErr:      true,
			errSubstr:    "pairs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyConfig(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		logLevel  string
		wantLevel string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"WARN", "warn"},
		{"error", "error"},
		{"invalid", "info"},
		{"", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.logLevel, func(t *testing.T) {
			cfg := &Config{Log: LogConfig{Level: tt.logLevel}}
			assert.Equal(t, tt.wantLevel, cfg.GetLogLevel().String())
		})
	}
}
