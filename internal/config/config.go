package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Storage struct {
		CacheSize        int `json:"cache_size"`
		CompressMinBytes int `json:"compress_min_bytes"`
	} `json:"storage"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

// Default returns the configuration a fresh repository starts with.
func Default() *Config {
	var c Config
	c.Storage.CacheSize = 1000
	c.Storage.CompressMinBytes = 1024
	c.LogLevel = "info"
	return &c
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return config, nil
}

func Save(path string, c *Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
