package streaming

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound message type discriminators (spec.md §3).
const (
	TypeAuthorize          = "authorize"
	TypePong               = "pong"
	TypeChatMessage        = "chat_message"
	TypeInterruptStream    = "interrupt_stream"
	TypeFetchBackgrounds   = "fetch_backgrounds"
	TypeFetchAvatarConfigs = "fetch_avatar_configs"
	TypeSwitchAvatarConfig = "switch_avatar_config"
)

// Outbound event type discriminators (spec.md §3).
const (
	TypeAuthorizeSuccess     = "authorize_success"
	TypeAuthorizeError       = "authorize_error"
	TypePing                 = "ping"
	TypeError                = "error"
	TypeStreamStart          = "stream_start"
	TypeStreamToken          = "stream_token"
	TypeTTSReadyChunk        = "tts_ready_chunk"
	TypeStreamEnd            = "stream_end"
	TypeInterrupted          = "interrupted"
	TypeBackgroundFiles      = "background_files"
	TypeAvatarConfigFiles    = "avatar_config_files"
	TypeAvatarConfigSwitched = "avatar_config_switched"
	TypeSetModelAndConf      = "set_model_and_conf"
)

// InboundMessage is the closed set of client-to-server message variants.
// Each concrete type below implements it via the unexported inboundMessage
// marker method, preventing variants from being added outside this package.
type InboundMessage interface {
	inboundMessage()
	Type() string
}

type AuthorizeMessage struct {
	Token string `json:"token"`
}

func (AuthorizeMessage) inboundMessage() {}
func (AuthorizeMessage) Type() string    { return TypeAuthorize }

type PongMessage struct{}

func (PongMessage) inboundMessage() {}
func (PongMessage) Type() string    { return TypePong }

type ChatMessage struct {
	Content   string         `json:"content"`
	UserID    string         `json:"user_id"`
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id,omitempty"`
	Persona   string         `json:"persona,omitempty"`
	Images    []string       `json:"images,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (ChatMessage) inboundMessage() {}
func (ChatMessage) Type() string    { return TypeChatMessage }

type InterruptStreamMessage struct {
	TurnID string `json:"turn_id,omitempty"`
}

func (InterruptStreamMessage) inboundMessage() {}
func (InterruptStreamMessage) Type() string    { return TypeInterruptStream }

type FetchBackgroundsMessage struct{}

func (FetchBackgroundsMessage) inboundMessage() {}
func (FetchBackgroundsMessage) Type() string    { return TypeFetchBackgrounds }

type FetchAvatarConfigsMessage struct{}

func (FetchAvatarConfigsMessage) inboundMessage() {}
func (FetchAvatarConfigsMessage) Type() string    { return TypeFetchAvatarConfigs }

type SwitchAvatarConfigMessage struct {
	File string `json:"file"`
}

func (SwitchAvatarConfigMessage) inboundMessage() {}
func (SwitchAvatarConfigMessage) Type() string    { return TypeSwitchAvatarConfig }

// OutboundEvent is the closed set of server-to-client event variants.
type OutboundEvent interface {
	outboundEvent()
	Type() string
}

type AuthorizeSuccessEvent struct {
	ConnectionID string `json:"connection_id"`
}

func (AuthorizeSuccessEvent) outboundEvent() {}
func (AuthorizeSuccessEvent) Type() string   { return TypeAuthorizeSuccess }

type AuthorizeErrorEvent struct {
	Error string `json:"error"`
}

func (AuthorizeErrorEvent) outboundEvent() {}
func (AuthorizeErrorEvent) Type() string   { return TypeAuthorizeError }

type PingEvent struct{}

func (PingEvent) outboundEvent() {}
func (PingEvent) Type() string   { return TypePing }

type ErrorEvent struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func (ErrorEvent) outboundEvent() {}
func (ErrorEvent) Type() string   { return TypeError }

type StreamStartEvent struct {
	TurnID    string `json:"turn_id"`
	SessionID string `json:"session_id"`
}

func (StreamStartEvent) outboundEvent() {}
func (StreamStartEvent) Type() string   { return TypeStreamStart }

// StreamTokenEvent is emitted alongside TTSReadyChunkEvent per the Open
// Question resolution in DESIGN.md: both are forwarded, stream_token for an
// optional client-side typing effect, tts_ready_chunk as the contractual
// synthesis-ready text (P4 is verified against tts_ready_chunk only).
type StreamTokenEvent struct {
	Chunk string `json:"chunk"`
	Node  string `json:"node,omitempty"`
}

func (StreamTokenEvent) outboundEvent() {}
func (StreamTokenEvent) Type() string   { return TypeStreamToken }

type TTSReadyChunkEvent struct {
	Chunk   string `json:"chunk"`
	Emotion string `json:"emotion,omitempty"`
}

func (TTSReadyChunkEvent) outboundEvent() {}
func (TTSReadyChunkEvent) Type() string   { return TypeTTSReadyChunk }

type StreamEndEvent struct {
	TurnID    string `json:"turn_id"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (StreamEndEvent) outboundEvent() {}
func (StreamEndEvent) Type() string   { return TypeStreamEnd }

type InterruptedEvent struct {
	TurnID string `json:"turn_id"`
	Reason string `json:"reason"`
}

func (InterruptedEvent) outboundEvent() {}
func (InterruptedEvent) Type() string   { return TypeInterrupted }

type BackgroundFilesEvent struct {
	Files []string `json:"files"`
}

func (BackgroundFilesEvent) outboundEvent() {}
func (BackgroundFilesEvent) Type() string   { return TypeBackgroundFiles }

type AvatarConfigFilesEvent struct {
	Configs []string `json:"configs"`
}

func (AvatarConfigFilesEvent) outboundEvent() {}
func (AvatarConfigFilesEvent) Type() string   { return TypeAvatarConfigFiles }

type AvatarConfigSwitchedEvent struct {
	File string `json:"file"`
}

func (AvatarConfigSwitchedEvent) outboundEvent() {}
func (AvatarConfigSwitchedEvent) Type() string   { return TypeAvatarConfigSwitched }

type SetModelAndConfEvent struct {
	Model         string         `json:"model,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

func (SetModelAndConfEvent) outboundEvent() {}
func (SetModelAndConfEvent) Type() string   { return TypeSetModelAndConf }

// envelope is used only to sniff the "type" discriminator from an inbound
// frame before dispatching to the variant-specific strict decode.
type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses a single inbound JSON frame into its concrete
// [InboundMessage] variant. Unknown types and frames with fields not defined
// on their variant are rejected — the caller should translate a non-nil
// error into an outbound error{code:400} event per spec.md §4.9, not crash
// the connection.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("streaming: codec: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeAuthorize:
		var m AuthorizeMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypePong:
		var m PongMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeChatMessage:
		var m ChatMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeInterruptStream:
		var m InterruptStreamMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeFetchBackgrounds:
		var m FetchBackgroundsMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeFetchAvatarConfigs:
		var m FetchAvatarConfigsMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeSwitchAvatarConfig:
		var m SwitchAvatarConfigMessage
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("streaming: codec: unknown message type %q", env.Type)
	}
}

// strictDecode decodes data into v, rejecting any field not present on v's
// type. "type" itself is deliberately absent from every variant struct — it
// is consumed by the envelope sniff in DecodeInbound, not by the variant —
// so it is stripped from a copy of the frame before the strict decode runs;
// otherwise DisallowUnknownFields would reject every valid frame on its own
// discriminator. This is the same discipline [config.LoadFromReader] applies
// via yaml.v3's KnownFields(true), carried over to the JSON wire protocol.
func strictDecode(data []byte, v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("streaming: codec: decode %T: %w", v, err)
	}
	delete(fields, "type")

	stripped, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("streaming: codec: decode %T: %w", v, err)
	}

	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("streaming: codec: decode %T: %w", v, err)
	}
	return nil
}

// EncodeOutbound serializes ev as a JSON object with its "type" discriminator
// set alongside its variant-specific fields.
func EncodeOutbound(ev OutboundEvent) ([]byte, error) {
	// Marshal the variant's own fields, then splice in "type" by round-tripping
	// through a map — the variant structs never carry a Type field themselves,
	// so there is no risk of the two disagreeing.
	fieldsJSON, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("streaming: codec: encode %T: %w", ev, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return nil, fmt.Errorf("streaming: codec: encode %T: %w", ev, err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	typeJSON, err := json.Marshal(ev.Type())
	if err != nil {
		return nil, fmt.Errorf("streaming: codec: encode %T: %w", ev, err)
	}
	fields["type"] = typeJSON

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("streaming: codec: encode %T: %w", ev, err)
	}
	return out, nil
}
