package convai

import "github.com/koscakluka/ema-convai/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// newCallbackEventEmitter maps inbound events onto the registered
// callbacks. Session state is updated by the dispatcher before emitting.
func newCallbackEventEmitter(callbacks sessionCallbacks) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.ConversationMetadata:
			if callbacks.onConversationMetadata != nil {
				callbacks.onConversationMetadata(typedEvent)
			}
		case events.ASRInitiationMetadata:
			if callbacks.onASRInitiationMetadata != nil {
				callbacks.onASRInitiationMetadata(typedEvent)
			}
		case events.VADScore:
			if callbacks.onVADScore != nil {
				callbacks.onVADScore(typedEvent.Score)
			}
		case events.Interruption:
			if callbacks.onInterruption != nil {
				callbacks.onInterruption(typedEvent)
			}
		case events.UserTranscript:
			if callbacks.onMessage != nil {
				callbacks.onMessage(Message{Role: RoleUser, Text: typedEvent.Transcript, EventID: typedEvent.EventID})
			}
		case events.TentativeUserTranscript:
			if callbacks.onTentativeTranscript != nil {
				callbacks.onTentativeTranscript(typedEvent.Transcript)
			}
		case events.AgentResponse:
			if callbacks.onMessage != nil {
				callbacks.onMessage(Message{Role: RoleAgent, Text: typedEvent.Response, EventID: typedEvent.EventID})
			}
		case events.AgentResponsePart:
			if callbacks.onAgentResponsePart != nil {
				callbacks.onAgentResponsePart(typedEvent)
			}
		case events.AgentResponseCorrection:
			if callbacks.onAgentResponseCorrection != nil {
				callbacks.onAgentResponseCorrection(typedEvent)
			}
		case events.TentativeAgentResponse:
			if callbacks.onTentativeAgentResponse != nil {
				callbacks.onTentativeAgentResponse(typedEvent.Response)
			}
		case events.Audio:
			if callbacks.onAudioChunk != nil {
				callbacks.onAudioChunk(typedEvent.Audio)
			}
		case events.MCPToolCall:
			if callbacks.onMCPToolCall != nil {
				callbacks.onMCPToolCall(typedEvent)
			}
		case events.MCPConnectionStatus:
			if callbacks.onMCPConnectionStatus != nil {
				callbacks.onMCPConnectionStatus(typedEvent)
			}
		case events.AgentToolResponse:
			if callbacks.onAgentToolResponse != nil {
				callbacks.onAgentToolResponse(typedEvent)
			}
		case events.ClientToolCall:
			if callbacks.onUnhandledClientToolCall != nil {
				callbacks.onUnhandledClientToolCall(typedEvent)
			}
		case events.Unknown:
			logger.Debug("unhandled inbound event", "type", typedEvent.Type)
			if callbacks.onDebug != nil {
				callbacks.onDebug(Debug{Kind: DebugUnhandledEvent, EventType: typedEvent.Type, Payload: typedEvent.Raw()})
			}
		}
	}
}
