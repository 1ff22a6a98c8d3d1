package convai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-convai/core/events"
	"github.com/koscakluka/ema-convai/core/messages"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type ClientToolFunc func(ctx context.Context, parameters map[string]any) (any, error)

// ClientTool is a capability the agent can invoke on this client. A nil or
// empty string result sends nothing back to the agent.
type ClientTool struct {
	Name        string
	Description string
	// Schema describes the accepted parameters. Properties it lists as
	// required are checked before Execute runs.
	Schema  *jsonschema.Schema
	Execute ClientToolFunc
}

func NewClientTool(name, description string, execute ClientToolFunc) ClientTool {
	return ClientTool{Name: name, Description: description, Execute: execute}
}

// NewTypedClientTool builds a tool whose parameters are decoded into P. The
// schema is reflected from P, fields without omitempty are required.
func NewTypedClientTool[P any, R any](name, description string, execute func(ctx context.Context, parameters P) (R, error)) ClientTool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(new(P))

	return ClientTool{
		Name:        name,
		Description: description,
		Schema:      schema,
		Execute: func(ctx context.Context, parameters map[string]any) (any, error) {
			encoded, err := json.Marshal(parameters)
			if err != nil {
				return nil, fmt.Errorf("failed to encode parameters: %w", err)
			}

			var typed P
			if err := json.Unmarshal(encoded, &typed); err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
			return execute(ctx, typed)
		},
	}
}

func (t ClientTool) validate(parameters map[string]any) error {
	if t.Schema == nil {
		return nil
	}

	for _, required := range t.Schema.Required {
		if _, ok := parameters[required]; !ok {
			return fmt.Errorf("missing required parameter %q", required)
		}
	}
	return nil
}

// handleClientToolCall runs the requested tool on its own goroutine so slow
// tools do not hold up inbound events.
func (s *Session) handleClientToolCall(ctx context.Context, call events.ClientToolCall) {
	tool, ok := s.tools[call.ToolName]
	if !ok || tool.Execute == nil {
		logger.WarnContext(ctx, "agent called an unregistered client tool", "tool", call.ToolName, "tool_call_id", call.ToolCallID)
		s.emit(call)
		return
	}

	s.goWorker("client tool "+call.ToolName, func(ctx context.Context) error {
		result, err := s.executeClientTool(ctx, tool, call)
		if err != nil {
			s.reportError(&ToolExecutionError{ToolName: call.ToolName, ToolCallID: call.ToolCallID, Err: err})
			if call.ExpectsResponse {
				s.enqueueSend(messages.ClientToolError(call.ToolCallID, err.Error()))
			}
			return nil
		}

		if call.ExpectsResponse && !emptyResult(result) {
			s.enqueueSend(messages.ClientToolResult(call.ToolCallID, result))
		}
		return nil
	})
}

func (s *Session) executeClientTool(ctx context.Context, tool ClientTool, call events.ClientToolCall) (result any, err error) {
	ctx, span := tracer.Start(ctx, "execute client tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.ToolName),
		attribute.String("tool.call_id", call.ToolCallID),
	)

	started := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tool panicked: %v", recovered)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		clientToolDuration.Record(ctx, float64(time.Since(started).Milliseconds()), metric.WithAttributes(
			attribute.String("tool.name", call.ToolName),
			attribute.Bool("tool.error", err != nil),
		))
	}()

	if err := tool.validate(call.Parameters); err != nil {
		return nil, err
	}
	return tool.Execute(ctx, call.Parameters)
}

func emptyResult(result any) bool {
	switch typed := result.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	default:
		return false
	}
}
