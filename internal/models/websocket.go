package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type FrameType string

const (
	FrameEvent FrameType = "event"
	FrameAck   FrameType = "ack"
)

type ActionType string

const (
	ActionChannelJoin ActionType = "channel_join"
	ActionTypingStart ActionType = "typing_start"
	ActionTypingStop  ActionType = "typing_stop"
	ActionVoiceJoin   ActionType = "voice.join"
	ActionVoiceLeave  ActionType = "voice.leave"
	ActionVoiceSignal ActionType = "voice.signal"
)

type EventName string

const (
	EventPresenceUpdate        EventName = "presence.update"
	EventServerUpdated         EventName = "server.updated"
	EventChannelCreated        EventName = "channel.created"
	EventChannelUpdated        EventName = "channel.updated"
	EventChannelDeleted        EventName = "channel.deleted"
	EventMessageCreated        EventName = "message.created"
	EventMessageUpdated        EventName = "message.updated"
	EventMessageDeleted        EventName = "message.deleted"
	EventReactionAdded         EventName = "reaction.added"
	EventReactionRemoved       EventName = "reaction.removed"
	EventDirectMessageCreated  EventName = "direct.message.created"
	EventDirectMessageUpdated  EventName = "direct.message.updated"
	EventDirectMessageDeleted  EventName = "direct.message.deleted"
	EventDirectReactionAdded   EventName = "direct.reaction.added"
	EventDirectReactionRemoved EventName = "direct.reaction.removed"
	EventDirectThreadCreated   EventName = "direct.thread.created"
	EventTypingStart           EventName = "typing.start"
	EventTypingStop            EventName = "typing.stop"
	EventVoiceJoined           EventName = "voice.joined"
	EventVoiceLeft             EventName = "voice.left"
	EventVoiceSignal           EventName = "voice.signal"
)

// Ack error codes sent back to the requesting connection.
const (
	CodeBadRequest         = "bad_request"
	CodeUnknownAction      = "unknown_action"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeInvalidChannelType = "invalid_channel_type"
	CodeRateLimited        = "rate_limited"
	CodeUnavailable        = "unavailable"
)

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrMalformedAction   = errors.New("malformed action payload")
	ErrMissingChannelID  = errors.New("missing channelId")
	ErrMissingSignalData = errors.New("missing signal data")
)

// InboundFrame is the envelope of every client to gateway message.
type InboundFrame struct {
	ID     uint64          `json:"id"`
	Action ActionType      `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Action is one of the closed set of inbound action variants below.
type Action interface {
	Type() ActionType
}

type ChannelJoin struct{ ChannelID string }

type TypingStart struct{ ChannelID string }

type TypingStop struct{ ChannelID string }

type VoiceJoin struct{ ChannelID string }

type VoiceLeave struct{ ChannelID string }

// VoiceSignal carries an opaque WebRTC signaling payload.
type VoiceSignal struct {
	ChannelID string
	Data      json.RawMessage
}

func (ChannelJoin) Type() ActionType { return ActionChannelJoin }
func (TypingStart) Type() ActionType { return ActionTypingStart }
func (TypingStop) Type() ActionType  { return ActionTypingStop }
func (VoiceJoin) Type() ActionType   { return ActionVoiceJoin }
func (VoiceLeave) Type() ActionType  { return ActionVoiceLeave }
func (VoiceSignal) Type() ActionType { return ActionVoiceSignal }

type channelPayload struct {
	ChannelID *string         `json:"channelId"`
	Data      json.RawMessage `json:"data"`
}

// DecodeAction validates a frame and converts it into its typed variant.
func DecodeAction(f InboundFrame) (Action, error) {
	switch f.Action {
	case ActionChannelJoin, ActionTypingStart, ActionTypingStop,
		ActionVoiceJoin, ActionVoiceLeave, ActionVoiceSignal:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, f.Action)
	}

	var p channelPayload
	if len(f.Data) > 0 && !isNull(f.Data) {
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
	}
	if p.ChannelID == nil || *p.ChannelID == "" {
		return nil, ErrMissingChannelID
	}
	channelID := *p.ChannelID

	switch f.Action {
	case ActionChannelJoin:
		return ChannelJoin{ChannelID: channelID}, nil
	case ActionTypingStart:
		return TypingStart{ChannelID: channelID}, nil
	case ActionTypingStop:
		return TypingStop{ChannelID: channelID}, nil
	case ActionVoiceJoin:
		return VoiceJoin{ChannelID: channelID}, nil
	case ActionVoiceLeave:
		return VoiceLeave{ChannelID: channelID}, nil
	default:
		if len(p.Data) == 0 || isNull(p.Data) {
			return nil, ErrMissingSignalData
		}
		return VoiceSignal{ChannelID: channelID, Data: p.Data}, nil
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type Ack struct {
	Type  FrameType `json:"type"`
	ID    uint64    `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

// VoiceJoinAck always serializes users, an empty roster included.
type VoiceJoinAck struct {
	Ack
	Users []string `json:"users"`
}

func NewAck(id uint64) Ack {
	return Ack{Type: FrameAck, ID: id, OK: true}
}

func NewNack(id uint64, code string) Ack {
	return Ack{Type: FrameAck, ID: id, OK: false, Error: code}
}

// Event is the envelope of every gateway to client message that is not an ack.
type Event struct {
	Type  FrameType `json:"type"`
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

type TypingPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

type VoiceMemberPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

type VoiceSignalPayload struct {
	ChannelID string          `json:"channelId"`
	From      string          `json:"from"`
	Data      json.RawMessage `json:"data"`
}

type PresencePayload struct {
	UserID string     `json:"userId"`
	Status UserStatus `json:"status"`
}
