package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	convai "github.com/koscakluka/ema-convai/core"
	"github.com/koscakluka/ema-convai/core/audio"
	"github.com/koscakluka/ema-convai/core/audio/miniaudio"
	"github.com/koscakluka/ema-convai/core/audio/portaudio"
	"github.com/koscakluka/ema-convai/core/events"
	"github.com/koscakluka/ema-convai/core/token"
	"github.com/koscakluka/ema-convai/core/transport/livekit"
	"github.com/koscakluka/ema-convai/core/transport/websocket"
	"github.com/spf13/cobra"
)

const portaudioBufferSize = 1024

type flags struct {
	configPath  string
	envFile     string
	logFile     string
	agentID     string
	token       string
	transport   string
	audio       string
	apiEndpoint string
	serverURL   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "convai",
		Short:         "Talk to a conversational agent from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.logFile)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "dotenv file to load, .env is tried when empty")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "write debug logs to this file")
	cmd.Flags().StringVar(&f.agentID, "agent-id", "", "agent to talk to")
	cmd.Flags().StringVar(&f.token, "token", "", "conversation token or signed URL, skips the token request")
	cmd.Flags().StringVar(&f.transport, "transport", transportLiveKit, "livekit or websocket, agent audio is only played over websocket")
	cmd.Flags().StringVar(&f.audio, "audio", audioMiniaudio, "miniaudio, portaudio or none")
	cmd.Flags().StringVar(&f.apiEndpoint, "api-endpoint", token.DefaultAPIEndpoint, "REST API used to fetch conversation tokens")
	cmd.Flags().StringVar(&f.serverURL, "server-url", "", "conversation server, defaults per transport")

	return cmd
}

// resolveConfig layers the config file, the environment and explicitly set
// flags, in that order.
func resolveConfig(cmd *cobra.Command, f flags) (config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil {
			return config{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return cfg, err
	}
	if key := os.Getenv(apiKeyEnv); key != "" && cfg.APIKey == "" {
		cfg.APIKey = key
	}

	changed := cmd.Flags().Changed
	if changed("agent-id") {
		cfg.AgentID = f.agentID
	}
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("audio") {
		cfg.Audio = f.audio
	}
	if changed("api-endpoint") {
		cfg.APIEndpoint = f.apiEndpoint
	}
	if changed("server-url") {
		cfg.ServerURL = f.serverURL
	}
	if changed("token") {
		cfg.Token = f.token
	}
	return cfg, cfg.validate()
}

func run(ctx context.Context, cfg config, logFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logOutput := io.Discard
	if logFile != "" {
		file, err := tea.LogToFile(logFile, "convai")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer file.Close()
		logOutput = file
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: slog.LevelDebug})))

	device, err := openAudioDevice(cfg.Audio)
	if err != nil {
		return err
	}
	if device != nil {
		defer device.Close()
	}

	m := newModel(ctx, startOptions(cfg)...)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.session = convai.NewSession(sessionOptions(cfg, device, program)...)

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	// the program may have been killed by a signal before the session ended
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.session.EndSession(endCtx)
}

type audioDevice interface {
	audio.Source
	audio.Sink
	Close()
}

func openAudioDevice(backend string) (audioDevice, error) {
	switch backend {
	case audioMiniaudio:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("open miniaudio device: %w", err)
		}
		return client, nil
	case audioPortaudio:
		client, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return nil, fmt.Errorf("open portaudio device: %w", err)
		}
		return client, nil
	default:
		return nil, nil
	}
}

func newTransport(cfg config, source audio.Source) convai.Transport {
	if cfg.Transport == transportWebSocket {
		opts := []websocket.Option{websocket.WithAgentID(cfg.AgentID)}
		if source != nil {
			opts = append(opts, websocket.WithAudioSource(source))
		}
		return websocket.New(opts...)
	}

	var opts []livekit.Option
	if source != nil {
		opts = append(opts, livekit.WithAudioSource(source))
	}
	return livekit.New(opts...)
}

func newTokenProvider(cfg config) *token.Client {
	opts := []token.Option{token.WithAPIKey(cfg.APIKey)}
	if cfg.APIEndpoint != "" {
		opts = append(opts, token.WithAPIEndpoint(cfg.APIEndpoint))
	}
	if cfg.Transport == transportWebSocket {
		opts = append(opts, token.WithSignedURL())
	}
	return token.NewClient(opts...)
}

func serverURL(cfg config) string {
	switch {
	case cfg.ServerURL != "":
		return cfg.ServerURL
	case cfg.Transport == transportWebSocket:
		return websocket.DefaultServerURL
	default:
		return livekit.DefaultServerURL
	}
}

func startOptions(cfg config) []convai.StartOption {
	opts := []convai.StartOption{
		convai.WithAgentID(cfg.AgentID),
		convai.WithUserID(cfg.UserID),
		convai.WithDynamicVariables(cfg.DynamicVariables),
	}
	if cfg.Token != "" {
		opts = append(opts, convai.WithConversationToken(cfg.Token))
	}
	if cfg.Overrides != nil {
		opts = append(opts, convai.WithOverrides(*cfg.Overrides))
	}
	return opts
}

func sessionOptions(cfg config, device audioDevice, program *tea.Program) []convai.SessionOption {
	var source audio.Source
	if device != nil {
		source = device
	}

	opts := []convai.SessionOption{
		convai.WithTransport(newTransport(cfg, source)),
		convai.WithTokenProvider(newTokenProvider(cfg)),
		convai.WithServerURL(serverURL(cfg)),
		convai.WithClientTools(localTimeTool(time.Now)),
		convai.WithStatusChangeCallback(func(status convai.Status) { program.Send(statusMsg(status)) }),
		convai.WithModeChangeCallback(func(mode convai.Mode) { program.Send(modeMsg(mode)) }),
		convai.WithMessageCallback(func(message convai.Message) { program.Send(messageMsg(message)) }),
		convai.WithTentativeTranscriptCallback(func(transcript string) { program.Send(tentativeMsg(transcript)) }),
		convai.WithMuteChangeCallback(func(muted bool) { program.Send(muteMsg(muted)) }),
		convai.WithCanSendFeedbackChangeCallback(func(canSend bool) { program.Send(feedbackMsg(canSend)) }),
		convai.WithErrorCallback(func(err error) { program.Send(errorMsg{err: err}) }),
		convai.WithDisconnectCallback(func(details convai.DisconnectDetails) { program.Send(disconnectMsg(details)) }),
		convai.WithDebugCallback(func(debug convai.Debug) {
			slog.Debug("session debug", "kind", string(debug.Kind), "event", debug.EventType, "error", debug.Err)
		}),
	}

	if device != nil {
		opts = append(opts,
			convai.WithConversationMetadataCallback(func(metadata events.ConversationMetadata) {
				checkPlaybackFormat(metadata.AgentOutputAudioFormat, device, program)
			}),
			convai.WithAudioChunkCallback(func(chunk []byte) {
				if err := device.SendAudio(chunk); err != nil {
					slog.Warn("failed to play agent audio", "error", err)
				}
			}),
			convai.WithInterruptionCallback(func(events.Interruption) { device.ClearBuffer() }),
		)
	}
	return opts
}

func checkPlaybackFormat(format string, sink audio.Sink, program *tea.Program) {
	if format == "" {
		return
	}
	announced, ok := audio.ParseOutputFormat(format)
	if !ok || announced != sink.EncodingInfo() {
		program.Send(errorMsg{err: fmt.Errorf("agent audio format %s does not match the playback device", format)})
	}
}
