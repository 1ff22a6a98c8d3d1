// Package events defines the typed inbound event contract of the
// conversation protocol and decodes raw envelopes into it.
//
// Every envelope is a JSON object with a string `type` and a nested object
// carrying the payload, usually named after the type with an `_event`
// suffix. [Decode] maps each known type to exactly one Go type; anything
// else becomes [Unknown] so new protocol events are never dropped.
//
// conversation events
//
//   - ConversationMetadata (conversation_initiation_metadata): conversation
//     id and the negotiated audio formats.
//   - ASRInitiationMetadata (asr_initiation_metadata): speech recognizer
//     metadata, passed through untouched.
//   - Ping (ping): keepalive, must be answered with a pong carrying the
//     same event id.
//   - VADScore (vad_score): voice activity probability of the user audio.
//   - Interruption (interruption): the user interrupted the agent.
//
// transcript events
//
//   - UserTranscript (user_transcript): final transcript of user speech.
//   - TentativeUserTranscript (tentative_user_transcript): interim
//     transcript that may still change.
//
// agent events
//
//   - AgentResponse (agent_response): complete agent turn text.
//   - AgentResponsePart (agent_response_part, agent_chat_response_part):
//     streamed piece of an agent text response.
//   - AgentResponseCorrection (agent_response_correction): agent turn text
//     truncated after an interruption.
//   - TentativeAgentResponse (internal_tentative_agent_response): draft
//     response before it is spoken.
//   - Audio (audio): chunk of agent speech.
//
// tool events
//
//   - ClientToolCall (client_tool_call): the agent asks the client to run a
//     registered tool.
//   - MCPToolCall (mcp_tool_call): state of a server-side MCP tool call.
//   - MCPConnectionStatus (mcp_connection_status): MCP integration health.
//   - AgentToolResponse (agent_tool_response): a tool the agent ran itself
//     has finished.
//
// Event ids correlate agent turns with feedback and corrections. They are
// optional on most events, so they are modelled as *int.
package events
