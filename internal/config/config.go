// Package config loads a node's config.json and .env overrides.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"corechain/pkg/utils"
)

// Config is the unified configuration for a corechain node, mirroring
// config.json.
type Config struct {
	BlockchainID    string   `mapstructure:"blockchain_id" json:"blockchain_id"`
	Fullnode        bool     `mapstructure:"fullnode" json:"fullnode"`
	MultiportMode   bool     `mapstructure:"multiport_mode" json:"multiport_mode"`
	SeedNodes       []string `mapstructure:"seed_nodes" json:"seed_nodes"`
	ListenAddr      string   `mapstructure:"listen_addr" json:"listen_addr"`
	ChainPath       string   `mapstructure:"chain_path" json:"chain_path"`
	WalletPath      string   `mapstructure:"wallet_path" json:"wallet_path"`
	ProtocolVersion string   `mapstructure:"protocol_version" json:"protocol_version"`
	NetworkVersion  string   `mapstructure:"networking_version" json:"networking_version"`
}

// ListenPort extracts the numeric port this node listens on from
// ListenAddr (e.g. ":8080" or "0.0.0.0:8080"), used to announce a
// reachable port to peers during admission.
func (c Config) ListenPort() (int, error) {
	_, portStr, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return 0, utils.Wrap(err, "parse listen_addr")
	}
	return strconv.Atoi(portStr)
}

func defaults() Config {
	return Config{
		Fullnode:        false,
		MultiportMode:   false,
		ListenAddr:      ":8080",
		ChainPath:       "blockchain.json",
		WalletPath:      "wallet.json",
		ProtocolVersion: "1.0.0",
		NetworkVersion:  "1.0.0",
	}
}

// Load reads config.json (and any ".env" overrides) from configDir. A
// missing config.json is fatal to the caller: the process has no
// network identity to operate under.
func Load(configDir string) (*Config, error) {
	_ = godotenv.Load(configDir + "/.env")

	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")
	v.SetEnvPrefix("corechain")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config.json")
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	if cfg.BlockchainID == "" {
		return nil, fmt.Errorf("config.json: blockchain_id is required")
	}
	return &cfg, nil
}
