package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the optional TOML configuration file. Environment
// variables take precedence over every value here.
type fileConfig struct {
	Server    fileServer    `toml:"server"`
	AI        fileAI        `toml:"ai"`
	Log       fileLog       `toml:"log"`
	Telemetry fileTelemetry `toml:"telemetry"`
	Audit     fileAudit     `toml:"audit"`
}

type fileServer struct {
	Port string `toml:"port"`
}

type fileAI struct {
	APIKey      string     `toml:"api_key"`
	AccessKey   string     `toml:"access_key"`
	SecretKey   string     `toml:"secret_key"`
	BaseURL     string     `toml:"base_url"`
	Region      string     `toml:"region"`
	Temperature *float64   `toml:"temperature"`
	MaxTokens   *int       `toml:"max_tokens"`
	Models      fileModels `toml:"models"`
}

type fileModels struct {
	Pro   string `toml:"pro"`
	Flash string `toml:"flash"`
	Lite  string `toml:"lite"`
}

type fileLog struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type fileTelemetry struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

type fileAudit struct {
	DBPath string `toml:"db_path"`
}

func readFile(path string) (fileConfig, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fileConfig{}, fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}
	return cfg, nil
}
