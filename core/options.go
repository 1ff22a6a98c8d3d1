package convai

import (
	"context"

	"github.com/koscakluka/ema-convai/core/events"
	"github.com/koscakluka/ema-convai/core/messages"
	"github.com/koscakluka/ema-convai/core/transport"
)

// Transport carries protocol messages between the session and the
// conversation server. Adapters live under core/transport.
type Transport interface {
	Connect(ctx context.Context, serverURL, token string) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	// Messages and States return the streams of the current connection and
	// are read after Connect succeeds.
	Messages() <-chan []byte
	States() <-chan transport.State
	SetMuted(muted bool) error
	IsMuted() bool
}

// AgentSpeakingReporter is implemented by transports that can tell when the
// agent is speaking, e.g. from WebRTC active speaker updates.
type AgentSpeakingReporter interface {
	AgentSpeaking() <-chan bool
}

type TokenProvider interface {
	FetchToken(ctx context.Context, agentID string) (string, error)
}

type SessionOption func(*Session)

func WithTransport(t Transport) SessionOption {
	return func(s *Session) { s.transport = t }
}

func WithTokenProvider(provider TokenProvider) SessionOption {
	return func(s *Session) { s.tokenProvider = provider }
}

// WithServerURL overrides the transport server URL. It has to point to the
// same region as the token provider.
func WithServerURL(serverURL string) SessionOption {
	return func(s *Session) { s.serverURL = serverURL }
}

// WithClientTools registers tools the agent may call on this client. A tool
// registered twice replaces the earlier registration.
func WithClientTools(tools ...ClientTool) SessionOption {
	return func(s *Session) {
		for _, tool := range tools {
			s.tools[tool.Name] = tool
		}
	}
}

type sessionCallbacks struct {
	onConnect                 func(conversationID string)
	onDisconnect              func(details DisconnectDetails)
	onStatusChange            func(status Status)
	onModeChange              func(mode Mode)
	onMessage                 func(message Message)
	onTentativeTranscript     func(transcript string)
	onAgentResponsePart       func(part events.AgentResponsePart)
	onAgentResponseCorrection func(correction events.AgentResponseCorrection)
	onTentativeAgentResponse  func(response string)
	onAudioChunk              func(audio []byte)
	onVADScore                func(score float64)
	onInterruption            func(interruption events.Interruption)
	onUnhandledClientToolCall func(call events.ClientToolCall)
	onMCPToolCall             func(call events.MCPToolCall)
	onMCPConnectionStatus     func(status events.MCPConnectionStatus)
	onAgentToolResponse       func(response events.AgentToolResponse)
	onConversationMetadata    func(metadata events.ConversationMetadata)
	onASRInitiationMetadata   func(metadata events.ASRInitiationMetadata)
	onCanSendFeedbackChange   func(canSendFeedback bool)
	onMuteChange              func(isMuted bool)
	onError                   func(err error)
	onDebug                   func(debug Debug)
}

// WithConnectCallback is called once the server has confirmed the
// conversation and assigned it an id.
func WithConnectCallback(callback func(conversationID string)) SessionOption {
	return func(s *Session) { s.callbacks.onConnect = callback }
}

// WithDisconnectCallback is called once per session end, whatever ended it.
func WithDisconnectCallback(callback func(details DisconnectDetails)) SessionOption {
	return func(s *Session) { s.callbacks.onDisconnect = callback }
}

// WithStatusChangeCallback is called after every distinct status
// transition.
func WithStatusChangeCallback(callback func(status Status)) SessionOption {
	return func(s *Session) { s.callbacks.onStatusChange = callback }
}

func WithModeChangeCallback(callback func(mode Mode)) SessionOption {
	return func(s *Session) { s.callbacks.onModeChange = callback }
}

// WithMessageCallback receives final user transcripts and agent responses.
func WithMessageCallback(callback func(message Message)) SessionOption {
	return func(s *Session) { s.callbacks.onMessage = callback }
}

func WithTentativeTranscriptCallback(callback func(transcript string)) SessionOption {
	return func(s *Session) { s.callbacks.onTentativeTranscript = callback }
}

func WithAgentResponsePartCallback(callback func(part events.AgentResponsePart)) SessionOption {
	return func(s *Session) { s.callbacks.onAgentResponsePart = callback }
}

func WithAgentResponseCorrectionCallback(callback func(correction events.AgentResponseCorrection)) SessionOption {
	return func(s *Session) { s.callbacks.onAgentResponseCorrection = callback }
}

func WithTentativeAgentResponseCallback(callback func(response string)) SessionOption {
	return func(s *Session) { s.callbacks.onTentativeAgentResponse = callback }
}

// WithAudioChunkCallback receives decoded agent audio in the output format
// announced by the conversation metadata.
//
// The slice is passed through as-is and the callback runs inline on the
// inbound path, it should not block.
func WithAudioChunkCallback(callback func(audio []byte)) SessionOption {
	return func(s *Session) { s.callbacks.onAudioChunk = callback }
}

func WithVADScoreCallback(callback func(score float64)) SessionOption {
	return func(s *Session) { s.callbacks.onVADScore = callback }
}

func WithInterruptionCallback(callback func(interruption events.Interruption)) SessionOption {
	return func(s *Session) { s.callbacks.onInterruption = callback }
}

// WithUnhandledClientToolCallCallback is called when the agent asks for a
// client tool that was never registered.
func WithUnhandledClientToolCallCallback(callback func(call events.ClientToolCall)) SessionOption {
	return func(s *Session) { s.callbacks.onUnhandledClientToolCall = callback }
}

func WithMCPToolCallCallback(callback func(call events.MCPToolCall)) SessionOption {
	return func(s *Session) { s.callbacks.onMCPToolCall = callback }
}

func WithMCPConnectionStatusCallback(callback func(status events.MCPConnectionStatus)) SessionOption {
	return func(s *Session) { s.callbacks.onMCPConnectionStatus = callback }
}

func WithAgentToolResponseCallback(callback func(response events.AgentToolResponse)) SessionOption {
	return func(s *Session) { s.callbacks.onAgentToolResponse = callback }
}

func WithConversationMetadataCallback(callback func(metadata events.ConversationMetadata)) SessionOption {
	return func(s *Session) { s.callbacks.onConversationMetadata = callback }
}

func WithASRInitiationMetadataCallback(callback func(metadata events.ASRInitiationMetadata)) SessionOption {
	return func(s *Session) { s.callbacks.onASRInitiationMetadata = callback }
}

// WithCanSendFeedbackChangeCallback is called whenever a new agent turn
// becomes rateable and when feedback for it has been given.
func WithCanSendFeedbackChangeCallback(callback func(canSendFeedback bool)) SessionOption {
	return func(s *Session) { s.callbacks.onCanSendFeedbackChange = callback }
}

func WithMuteChangeCallback(callback func(isMuted bool)) SessionOption {
	return func(s *Session) { s.callbacks.onMuteChange = callback }
}

// WithErrorCallback receives every error of the session, including those
// of background sends and tool executions that have no caller to return to.
func WithErrorCallback(callback func(err error)) SessionOption {
	return func(s *Session) { s.callbacks.onError = callback }
}

// WithDebugCallback receives every classified inbound envelope verbatim and
// the protocol anomalies that do not count as errors.
func WithDebugCallback(callback func(debug Debug)) SessionOption {
	return func(s *Session) { s.callbacks.onDebug = callback }
}

type StartOptions struct {
	AgentID           string
	ConversationToken string
	UserID            string
	Overrides         *messages.Overrides
	// CustomLLMExtraBody is forwarded to a custom LLM backend as-is.
	CustomLLMExtraBody map[string]any
	DynamicVariables   map[string]any
}

type StartOption func(*StartOptions)

// WithAgentID starts a conversation with a token fetched for the agent.
func WithAgentID(agentID string) StartOption {
	return func(o *StartOptions) { o.AgentID = agentID }
}

// WithConversationToken starts a conversation with a token issued
// elsewhere, e.g. by the application backend. It takes precedence over
// WithAgentID.
func WithConversationToken(token string) StartOption {
	return func(o *StartOptions) { o.ConversationToken = token }
}

func WithUserID(userID string) StartOption {
	return func(o *StartOptions) { o.UserID = userID }
}

func WithOverrides(overrides messages.Overrides) StartOption {
	return func(o *StartOptions) { o.Overrides = &overrides }
}

func WithCustomLLMExtraBody(body map[string]any) StartOption {
	return func(o *StartOptions) { o.CustomLLMExtraBody = body }
}

func WithDynamicVariables(variables map[string]any) StartOption {
	return func(o *StartOptions) { o.DynamicVariables = variables }
}
