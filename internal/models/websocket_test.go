package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Action
		wantErr error
	}{
		{
			name:  "channel join",
			frame: `{"id":1,"action":"channel_join","data":{"channelId":"c1"}}`,
			want:  ChannelJoin{ChannelID: "c1"},
		},
		{
			name:  "typing start",
			frame: `{"id":2,"action":"typing_start","data":{"channelId":"c1"}}`,
			want:  TypingStart{ChannelID: "c1"},
		},
		{
			name:  "typing stop",
			frame: `{"id":3,"action":"typing_stop","data":{"channelId":"c1"}}`,
			want:  TypingStop{ChannelID: "c1"},
		},
		{
			name:  "voice join",
			frame: `{"id":4,"action":"voice.join","data":{"channelId":"v1"}}`,
			want:  VoiceJoin{ChannelID: "v1"},
		},
		{
			name:  "voice leave",
			frame: `{"id":5,"action":"voice.leave","data":{"channelId":"v1"}}`,
			want:  VoiceLeave{ChannelID: "v1"},
		},
		{
			name:  "voice signal",
			frame: `{"id":6,"action":"voice.signal","data":{"channelId":"v1","data":{"sdp":"x"}}}`,
			want:  VoiceSignal{ChannelID: "v1", Data: json.RawMessage(`{"sdp":"x"}`)},
		},
		{
			name:    "unknown action",
			frame:   `{"id":7,"action":"message_send","data":{"channelId":"c1"}}`,
			wantErr: ErrUnknownAction,
		},
		{
			name:    "missing data",
			frame:   `{"id":8,"action":"channel_join"}`,
			wantErr: ErrMissingChannelID,
		},
		{
			name:    "null data",
			frame:   `{"id":8,"action":"channel_join","data":null}`,
			wantErr: ErrMissingChannelID,
		},
		{
			name:    "empty channel id",
			frame:   `{"id":9,"action":"typing_start","data":{"channelId":""}}`,
			wantErr: ErrMissingChannelID,
		},
		{
			name:    "wrong shape",
			frame:   `{"id":10,"action":"voice.join","data":{"channelId":42}}`,
			wantErr: ErrMalformedAction,
		},
		{
			name:    "signal without payload",
			frame:   `{"id":11,"action":"voice.signal","data":{"channelId":"v1"}}`,
			wantErr: ErrMissingSignalData,
		},
		{
			name:    "signal with null payload",
			frame:   `{"id":12,"action":"voice.signal","data":{"channelId":"v1","data":null}}`,
			wantErr: ErrMissingSignalData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f InboundFrame
			require.NoError(t, json.Unmarshal([]byte(tt.frame), &f))

			got, err := DecodeAction(f)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, f.Action, got.Type())
		})
	}
}

func TestAckEncoding(t *testing.T) {
	b, err := json.Marshal(NewAck(3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","id":3,"ok":true}`, string(b))

	b, err = json.Marshal(NewNack(4, CodeForbidden))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","id":4,"ok":false,"error":"forbidden"}`, string(b))

	b, err = json.Marshal(VoiceJoinAck{Ack: NewAck(5), Users: []string{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","id":5,"ok":true,"users":[]}`, string(b))
}

func TestEventEncoding(t *testing.T) {
	b, err := json.Marshal(Event{
		Type:  FrameEvent,
		Event: EventPresenceUpdate,
		Data:  PresencePayload{UserID: "u1", Status: StatusOffline},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","event":"presence.update","data":{"userId":"u1","status":"OFFLINE"}}`, string(b))
}
