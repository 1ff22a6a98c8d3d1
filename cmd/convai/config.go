package main

import (
	"fmt"
	"os"

	"github.com/koscakluka/ema-convai/core/messages"
	"gopkg.in/yaml.v3"
)

const (
	transportLiveKit   = "livekit"
	transportWebSocket = "websocket"

	audioMiniaudio = "miniaudio"
	audioPortaudio = "portaudio"
	audioNone      = "none"

	apiKeyEnv = "ELEVENLABS_API_KEY"
)

type config struct {
	AgentID          string              `yaml:"agent_id"`
	Token            string              `yaml:"token"`
	APIKey           string              `yaml:"api_key"`
	APIEndpoint      string              `yaml:"api_endpoint"`
	ServerURL        string              `yaml:"server_url"`
	Transport        string              `yaml:"transport"`
	Audio            string              `yaml:"audio"`
	UserID           string              `yaml:"user_id"`
	Overrides        *messages.Overrides `yaml:"overrides"`
	DynamicVariables map[string]any      `yaml:"dynamic_variables"`
}

func defaultConfig() config {
	return config{
		Transport: transportLiveKit,
		Audio:     audioMiniaudio,
	}
}

// loadConfig reads a YAML config file on top of the defaults. Values of the
// form ${VAR} are expanded from the environment before parsing.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.AgentID == "" && c.Token == "" {
		return fmt.Errorf("config: agent_id or token is required")
	}
	switch c.Transport {
	case transportLiveKit, transportWebSocket:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	switch c.Audio {
	case audioMiniaudio, audioPortaudio, audioNone:
	default:
		return fmt.Errorf("config: unknown audio backend %q", c.Audio)
	}
	return nil
}
