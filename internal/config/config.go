package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// CONFIG STRUCTURE
type Config struct {
	Port             string `json:"port"`
	StorePath        string `json:"store_path"`
	LogDir           string `json:"log_dir"`
	LogLevel         string `json:"log_level"`
	RequestIntervalMS int   `json:"request_interval_ms"`
	PageloadDelayMS  int    `json:"pageload_delay_ms"`
	FetcherUserAgent string `json:"fetcher_user_agent"`
	FetcherTimeoutMS int    `json:"fetcher_timeout_ms"`
	UseBrowserFetcher bool  `json:"use_browser_fetcher"`
}

// LOAD CONFIG FROM FILE
func LoadConfig(path string) (*Config, error) {
	// READ CONFIG FILE
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// VALIDATE AS RAW JSON
	var raw json.RawMessage
	if err := json.Unmarshal(file, &raw); err != nil {
		return nil, err
	}

	// PARSE CONFIG JSON
	config := *GetDefaultConfig()
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	// ENSURE ALL PATHS ARE VALID
	config.StorePath = sanitizePath(config.StorePath)
	config.LogDir = sanitizePath(config.LogDir)

	return &config, nil
}

// SAVE CONFIG TO FILE
func SaveConfig(config *Config, path string) error {
	// MARSHAL CONFIG TO JSON
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	// WRITE CONFIG FILE
	return os.WriteFile(path, data, 0644)
}

// GET DEFAULT CONFIG
func GetDefaultConfig() *Config {
	return &Config{
		Port:              "8080",
		StorePath:         "./data/sitemaps.db",
		LogDir:            "./data/logs",
		LogLevel:          "info",
		RequestIntervalMS: 2000,
		PageloadDelayMS:   0,
		FetcherUserAgent:  "sitemapscraper/1.0",
		FetcherTimeoutMS:  30000,
		UseBrowserFetcher: false,
	}
}

// SANITIZE PATH TO ENSURE IT'S VALID
func sanitizePath(path string) string {
	// MAKE SURE PATH IS NOT EMPTY
	if path == "" {
		return "."
	}
	// CLEAN PATH
	return filepath.Clean(path)
}
