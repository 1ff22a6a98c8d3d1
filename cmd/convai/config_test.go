package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "convai.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CONVAI_TEST_KEY", "secret")
	path := writeConfig(t, `
agent_id: agent-1
api_key: ${CONVAI_TEST_KEY}
transport: websocket
audio: none
user_id: user-7
overrides:
  agent:
    first_message: Hi there
    language: hr
  tts:
    voice_id: voice-3
dynamic_variables:
  plan: pro
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.AgentID != "agent-1" || cfg.APIKey != "secret" || cfg.UserID != "user-7" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Transport != transportWebSocket || cfg.Audio != audioNone {
		t.Fatalf("expected transport and audio from the file, got %q and %q", cfg.Transport, cfg.Audio)
	}
	if cfg.Overrides == nil || cfg.Overrides.Agent == nil || *cfg.Overrides.Agent.FirstMessage != "Hi there" {
		t.Fatalf("expected agent overrides, got %+v", cfg.Overrides)
	}
	if cfg.Overrides.TTS == nil || *cfg.Overrides.TTS.VoiceID != "voice-3" {
		t.Fatalf("expected tts overrides, got %+v", cfg.Overrides.TTS)
	}
	if cfg.DynamicVariables["plan"] != "pro" {
		t.Fatalf("expected dynamic variables, got %v", cfg.DynamicVariables)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("expected defaults without a file, got %v", err)
	}
	if cfg.Transport != transportLiveKit || cfg.Audio != audioMiniaudio {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.HasPrefix(err.Error(), "config: read") {
		t.Fatalf("expected a read error, got %v", err)
	}

	path := writeConfig(t, "agent_id: [unterminated")
	if _, err := loadConfig(path); err == nil || !strings.HasPrefix(err.Error(), "config: parse") {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     config
		wantErr string
	}{
		{name: "agent id", cfg: config{AgentID: "agent-1", Transport: transportLiveKit, Audio: audioNone}},
		{name: "token only", cfg: config{Token: "tok", Transport: transportWebSocket, Audio: audioPortaudio}},
		{name: "neither", cfg: config{Transport: transportLiveKit, Audio: audioNone}, wantErr: "agent_id or token"},
		{name: "transport", cfg: config{AgentID: "agent-1", Transport: "carrier-pigeon", Audio: audioNone}, wantErr: "unknown transport"},
		{name: "audio", cfg: config{AgentID: "agent-1", Transport: transportLiveKit, Audio: "gramophone"}, wantErr: "unknown audio backend"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := testCase.cfg.validate()
			if testCase.wantErr == "" {
				if err != nil {
					t.Fatalf("expected config to be valid, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error containing %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")
	t.Setenv("CONVAI_UNUSED", "")
	path := writeConfig(t, "agent_id: from-file\ntransport: websocket\naudio: none\n")

	cmd := rootCmd()
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	if err := cmd.ParseFlags([]string{"--config", path, "--agent-id", "from-flag", "--env-file", writeEnv(t)}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	f := flags{
		configPath: path,
		envFile:    cmd.Flag("env-file").Value.String(),
		agentID:    "from-flag",
		transport:  cmd.Flag("transport").Value.String(),
		audio:      cmd.Flag("audio").Value.String(),
	}
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		t.Fatalf("expected config to resolve, got %v", err)
	}

	if cfg.AgentID != "from-flag" {
		t.Fatalf("expected flag to win over the file, got %q", cfg.AgentID)
	}
	if cfg.Transport != transportWebSocket || cfg.Audio != audioNone {
		t.Fatalf("expected unset flags to keep file values, got %q and %q", cfg.Transport, cfg.Audio)
	}
	if cfg.APIKey != "from-env" {
		t.Fatalf("expected api key from the environment, got %q", cfg.APIKey)
	}
}

func TestTransportHelpNamesPlaybackLimit(t *testing.T) {
	usage := rootCmd().Flag("transport").Usage
	if !strings.Contains(usage, "agent audio is only played over websocket") {
		t.Fatalf("expected transport help to state where agent audio plays, got %q", usage)
	}
}

func writeEnv(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CONVAI_UNUSED=1\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	return path
}
