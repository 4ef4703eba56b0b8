package rendezvous

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Broker      BrokerConfig      `toml:"broker"`
}

type CoordinatorConfig struct {
	URL       string `toml:"url"`
	ClientID  string `toml:"client_id"`
	ClientKey string `toml:"client_key"`
	DomainID  string `toml:"domain_id"`
	ChannelID string `toml:"channel_id"`
}

type BrokerConfig struct {
	Address string `toml:"address"`
	QoS     int    `toml:"qos"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
