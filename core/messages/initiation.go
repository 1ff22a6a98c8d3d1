package messages

// Overrides adjust the agent configuration for a single conversation. Nil
// groups and nil fields are left out of the envelope so the agent keeps its
// configured value.
type Overrides struct {
	Agent        *AgentOverrides        `json:"agent,omitempty" yaml:"agent,omitempty"`
	TTS          *TTSOverrides          `json:"tts,omitempty" yaml:"tts,omitempty"`
	Conversation *ConversationOverrides `json:"conversation,omitempty" yaml:"conversation,omitempty"`
}

func (o *Overrides) isEmpty() bool {
	return o == nil || (o.Agent == nil && o.TTS == nil && o.Conversation == nil)
}

type AgentOverrides struct {
	Prompt       *PromptOverrides `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	FirstMessage *string          `json:"first_message,omitempty" yaml:"first_message,omitempty"`
	Language     *string          `json:"language,omitempty" yaml:"language,omitempty"`
}

type PromptOverrides struct {
	Prompt *string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

type TTSOverrides struct {
	VoiceID *string `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
}

type ConversationOverrides struct {
	TextOnly *bool `json:"text_only,omitempty" yaml:"text_only,omitempty"`
}

type SourceInfo struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

// InitiationOptions is everything a client may send when a conversation
// starts.
type InitiationOptions struct {
	UserID             string
	Overrides          *Overrides
	CustomLLMExtraBody map[string]any
	DynamicVariables   map[string]any
}

type ConversationInitiationEnvelope struct {
	Type               Type           `json:"type"`
	ConfigOverride     *Overrides     `json:"conversation_config_override,omitempty"`
	CustomLLMExtraBody map[string]any `json:"custom_llm_extra_body,omitempty"`
	DynamicVariables   map[string]any `json:"dynamic_variables,omitempty"`
	UserID             string         `json:"user_id,omitempty"`
	SourceInfo         SourceInfo     `json:"source_info"`
}

func (m ConversationInitiationEnvelope) MessageType() Type { return m.Type }

func ConversationInitiation(opts InitiationOptions) ConversationInitiationEnvelope {
	envelope := ConversationInitiationEnvelope{
		Type:       TypeConversationInitiation,
		UserID:     opts.UserID,
		SourceInfo: SourceInfo{Source: SourceName, Version: SourceVersion},
	}

	if !opts.Overrides.isEmpty() {
		envelope.ConfigOverride = opts.Overrides
	}
	if len(opts.CustomLLMExtraBody) > 0 {
		envelope.CustomLLMExtraBody = opts.CustomLLMExtraBody
	}
	if len(opts.DynamicVariables) > 0 {
		envelope.DynamicVariables = opts.DynamicVariables
	}

	return envelope
}
