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
	Engine   EngineConfig   `mapstructure:"engine"`
	HostFeed HostFeedConfig `mapstructure:"host_feed"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Sim      SimConfig      `mapstructure:"sim"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type EngineConfig struct {
	// Account is the engine's own identity: the default share receiver.
	Account string `mapstructure:"account"`
}

type HostFeedConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	BackoffMin time.Duration `mapstructure:"backoff_min"`
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Targets  []SweepTarget `mapstructure:"targets"`
}

type SweepTarget struct {
	Context      string `mapstructure:"context"`
	ResourceType string `mapstructure:"resource_type"`
}

// SimConfig seeds the in-memory bank and vault set so the service can run
// without a chain-backed collaborator.
type SimConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Balances map[string]string `mapstructure:"balances"` // resource type -> amount
	Vaults   []SimVault        `mapstructure:"vaults"`
}

type SimVault struct {
	ID          string `mapstructure:"id"`
	Asset       string `mapstructure:"asset"`
	TotalAssets string `mapstructure:"total_assets"`
	TotalSupply string `mapstructure:"total_supply"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VR")
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
	v.SetDefault("engine.account", "router")
	v.SetDefault("host_feed.enabled", false)
	v.SetDefault("host_feed.url", "")
	v.SetDefault("host_feed.backoff_min", "1s")
	v.SetDefault("host_feed.backoff_max", "30s")
	v.SetDefault("sweeper.enabled", false)
	v.SetDefault("sweeper.schedule", "@every 5m")
	v.SetDefault("sim.enabled", true)

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
