package events

import "encoding/json"

const (
	KindClientToolCall      Kind = "client_tool_call"
	KindMCPToolCall         Kind = "mcp_tool_call"
	KindMCPConnectionStatus Kind = "mcp_connection_status"
	KindAgentToolResponse   Kind = "agent_tool_response"
)

// ClientToolCall asks the client to run one of its registered tools.
type ClientToolCall struct {
	Base
	ToolName   string
	ToolCallID string
	Parameters map[string]any
	// ExpectsResponse is false for fire-and-forget tools, in which case no
	// result should be sent back.
	ExpectsResponse bool
}

type clientToolCallPayload struct {
	ToolName        *string        `json:"tool_name"`
	ToolCallID      *string        `json:"tool_call_id"`
	Parameters      map[string]any `json:"parameters"`
	ExpectsResponse *bool          `json:"expects_response"`
}

func decodeClientToolCall(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[clientToolCallPayload](fields, KindClientToolCall, "client_tool_call")
	if err != nil {
		return nil, err
	}
	if payload.ToolName == nil || *payload.ToolName == "" {
		return nil, missingField(KindClientToolCall, "client_tool_call.tool_name")
	}
	if payload.ToolCallID == nil || *payload.ToolCallID == "" {
		return nil, missingField(KindClientToolCall, "client_tool_call.tool_call_id")
	}

	parameters := payload.Parameters
	if parameters == nil {
		parameters = map[string]any{}
	}
	expectsResponse := true
	if payload.ExpectsResponse != nil {
		expectsResponse = *payload.ExpectsResponse
	}

	return ClientToolCall{
		Base:            NewBase(KindClientToolCall, raw),
		ToolName:        *payload.ToolName,
		ToolCallID:      *payload.ToolCallID,
		Parameters:      parameters,
		ExpectsResponse: expectsResponse,
	}, nil
}

type MCPToolCallState string

const (
	MCPToolCallLoading          MCPToolCallState = "loading"
	MCPToolCallAwaitingApproval MCPToolCallState = "awaiting_approval"
	MCPToolCallSuccess          MCPToolCallState = "success"
	MCPToolCallFailure          MCPToolCallState = "failure"
)

type MCPToolCall struct {
	Base
	ServiceID           string
	ToolCallID          string
	ToolName            string
	ToolDescription     string
	Parameters          map[string]any
	CallTimestamp       string
	State               MCPToolCallState
	ApprovalTimeoutSecs *int
	Result              json.RawMessage
	ErrorMessage        string
}

type mcpToolCallPayload struct {
	ServiceID           string           `json:"service_id"`
	ToolCallID          *string          `json:"tool_call_id"`
	ToolName            string           `json:"tool_name"`
	ToolDescription     string           `json:"tool_description"`
	Parameters          map[string]any   `json:"parameters"`
	Timestamp           string           `json:"timestamp"`
	State               MCPToolCallState `json:"state"`
	ApprovalTimeoutSecs *int             `json:"approval_timeout_secs"`
	Result              json.RawMessage  `json:"result"`
	ErrorMessage        string           `json:"error_message"`
}

func decodeMCPToolCall(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[mcpToolCallPayload](fields, KindMCPToolCall, "mcp_tool_call")
	if err != nil {
		return nil, err
	}
	if payload.ToolCallID == nil || *payload.ToolCallID == "" {
		return nil, missingField(KindMCPToolCall, "mcp_tool_call.tool_call_id")
	}

	return MCPToolCall{
		Base:                NewBase(KindMCPToolCall, raw),
		ServiceID:           payload.ServiceID,
		ToolCallID:          *payload.ToolCallID,
		ToolName:            payload.ToolName,
		ToolDescription:     payload.ToolDescription,
		Parameters:          payload.Parameters,
		CallTimestamp:       payload.Timestamp,
		State:               payload.State,
		ApprovalTimeoutSecs: payload.ApprovalTimeoutSecs,
		Result:              payload.Result,
		ErrorMessage:        payload.ErrorMessage,
	}, nil
}

type MCPIntegration struct {
	IntegrationID   string `json:"integration_id"`
	IntegrationType string `json:"integration_type"`
	IsConnected     bool   `json:"is_connected"`
	ToolCount       int    `json:"tool_count"`
}

type MCPConnectionStatus struct {
	Base
	Integrations []MCPIntegration
}

type mcpConnectionStatusPayload struct {
	Integrations []MCPIntegration `json:"integrations"`
}

func decodeMCPConnectionStatus(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[mcpConnectionStatusPayload](fields, KindMCPConnectionStatus, "mcp_connection_status")
	if err != nil {
		return nil, err
	}

	return MCPConnectionStatus{Base: NewBase(KindMCPConnectionStatus, raw), Integrations: payload.Integrations}, nil
}

// AgentToolResponse reports a tool the agent executed on its side, such
// as the built-in end_call tool.
type AgentToolResponse struct {
	Base
	ToolName   string
	ToolCallID string
	ToolType   string
	IsError    bool
	EventID    *int
}

type agentToolResponsePayload struct {
	ToolName   *string `json:"tool_name"`
	ToolCallID string  `json:"tool_call_id"`
	ToolType   string  `json:"tool_type"`
	IsError    bool    `json:"is_error"`
	EventID    *int    `json:"event_id"`
}

func decodeAgentToolResponse(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[agentToolResponsePayload](fields, KindAgentToolResponse, "agent_tool_response")
	if err != nil {
		return nil, err
	}
	if payload.ToolName == nil || *payload.ToolName == "" {
		return nil, missingField(KindAgentToolResponse, "agent_tool_response.tool_name")
	}

	return AgentToolResponse{
		Base:       NewBase(KindAgentToolResponse, raw),
		ToolName:   *payload.ToolName,
		ToolCallID: payload.ToolCallID,
		ToolType:   payload.ToolType,
		IsError:    payload.IsError,
		EventID:    payload.EventID,
	}, nil
}
