package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "copy-trader-service"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	Port                    map[string]string         `mapstructure:"port"`
	Exchange                ExchangeConfig            `mapstructure:"exchange"`
	Leaders                 map[string]AccountConfig  `mapstructure:"leaders"`
	Followers               map[string]FollowerConfig `mapstructure:"followers"`
	Replication             ReplicationConfig         `mapstructure:"replication"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Journal                 JournalConfig             `mapstructure:"journal"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type ExchangeConfig struct {
	RestURL string `mapstructure:"rest_url"`
	WsURL   string `mapstructure:"ws_url"`
}

type AccountConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Subaccount string `mapstructure:"subaccount"`
}

// HasCredentials reports whether both key and secret are present. Accounts
// without credentials are skipped with a logged error, never fatal.
func (c AccountConfig) HasCredentials() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

type FollowerConfig struct {
	AccountConfig `mapstructure:",squash"`
	// Follows maps a leader id to a scale percent string like "50%".
	Follows map[string]string `mapstructure:"follows"`
}

type ReplicationConfig struct {
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	FollowerMaxInflight int64         `mapstructure:"follower_max_inflight"`
	LedgerCacheDSN      string        `mapstructure:"ledger_cache_dsn"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}

// FollowTables extracts the follower -> leader -> percent mapping used to
// build the follow graph, restricted to followers that hold credentials.
func (c *EnvConfig) FollowTables() map[string]map[string]string {
	tables := make(map[string]map[string]string)
	for followerID, follower := range c.Followers {
		if !follower.HasCredentials() {
			continue
		}
		if len(follower.Follows) == 0 {
			continue
		}
		tables[followerID] = follower.Follows
	}

	return tables
}
