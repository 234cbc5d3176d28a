package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"chat-gateway/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceJoinAnnouncesToExistingParticipants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aSess, a := h.connect("alice")
	bSess, b := h.connect("bob")

	users, err := aSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	users, err = bSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	joined := a.events(t, models.EventVoiceJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, models.VoiceMemberPayload{ChannelID: "v1", UserID: "bob"},
		decode[models.VoiceMemberPayload](t, joined[0]))
	assert.Empty(t, b.events(t, models.EventVoiceJoined))

	roster, err := h.gw.Roster("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, roster)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.VoiceParticipants))
}

func TestVoiceJoinIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aSess, a := h.connect("alice")
	bSess, _ := h.connect("bob")

	_, err := aSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	_, err = bSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)

	users, err := bSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
	assert.Len(t, a.events(t, models.EventVoiceJoined), 1)

	roster, err := h.gw.Roster("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, roster)
}

func TestVoiceJoinRejectsTextChannel(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.connect("alice")

	_, err := sess.JoinVoice(context.Background(), "c1")
	require.ErrorIs(t, err, ErrInvalidChannelType)
	assert.Equal(t, models.CodeInvalidChannelType, Code(err))

	_, err = sess.JoinVoice(context.Background(), "v1")
	require.NoError(t, err)
	dave, _ := h.connect("dave")
	_, err = dave.JoinVoice(context.Background(), "v1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVoiceSwitchingChannelsLeavesPrevious(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aSess, a := h.connect("alice")
	bSess, _ := h.connect("bob")

	_, err := aSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	_, err = bSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)

	_, err = bSess.JoinVoice(ctx, "v2")
	require.NoError(t, err)

	left := a.events(t, models.EventVoiceLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", decode[models.VoiceMemberPayload](t, left[0]).UserID)

	v1, err := h.gw.Roster("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, v1)
	v2, err := h.gw.Roster("v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, v2)
}

func TestVoiceLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aSess, a := h.connect("alice")
	bSess, b := h.connect("bob")

	_, err := aSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	_, err = bSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)

	require.NoError(t, bSess.LeaveVoice("v1"))
	require.NoError(t, bSess.LeaveVoice("v1"))
	require.NoError(t, bSess.LeaveVoice("v2"))

	assert.Len(t, a.events(t, models.EventVoiceLeft), 1)
	assert.Empty(t, b.events(t, models.EventVoiceLeft))

	require.NoError(t, aSess.LeaveVoice("v1"))
	st := h.stats()
	assert.Equal(t, 0, st.VoiceRooms)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.VoiceParticipants))
}

func TestVoiceLeftOnDisconnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aSess, a := h.connect("alice")
	bSess, _ := h.connect("bob")

	_, err := aSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	_, err = bSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)

	bSess.Close()
	left := a.events(t, models.EventVoiceLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", decode[models.VoiceMemberPayload](t, left[0]).UserID)

	roster, err := h.gw.Roster("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, roster)
}

func TestVoiceSignalRelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aSess, a := h.connect("alice")
	bSess, b := h.connect("bob")
	cSess, c := h.connect("carol")

	for _, sess := range []*Session{aSess, bSess, cSess} {
		_, err := sess.JoinVoice(ctx, "v1")
		require.NoError(t, err)
	}

	t.Run("broadcast excludes sender", func(t *testing.T) {
		require.NoError(t, aSess.Signal("v1", json.RawMessage(`{"sdp":"offer"}`)))
		assert.Empty(t, a.events(t, models.EventVoiceSignal))
		for _, tr := range []*fakeTransport{b, c} {
			got := tr.events(t, models.EventVoiceSignal)
			require.Len(t, got, 1)
			payload := decode[models.VoiceSignalPayload](t, got[0])
			assert.Equal(t, "alice", payload.From)
			assert.Equal(t, "v1", payload.ChannelID)
			assert.JSONEq(t, `{"sdp":"offer"}`, string(payload.Data))
		}
	})

	t.Run("addressed to one participant", func(t *testing.T) {
		b.reset()
		c.reset()
		require.NoError(t, aSess.Signal("v1", json.RawMessage(`{"to":"carol","candidate":"x"}`)))
		assert.Empty(t, b.events(t, models.EventVoiceSignal))
		assert.Len(t, c.events(t, models.EventVoiceSignal), 1)
	})

	t.Run("unknown target is dropped", func(t *testing.T) {
		b.reset()
		c.reset()
		require.NoError(t, aSess.Signal("v1", json.RawMessage(`{"to":"zed"}`)))
		assert.Empty(t, b.events(t, models.EventVoiceSignal))
		assert.Empty(t, c.events(t, models.EventVoiceSignal))
	})

	t.Run("non-participant is refused", func(t *testing.T) {
		require.NoError(t, cSess.LeaveVoice("v1"))
		err := cSess.Signal("v1", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrForbidden)
		assert.ErrorIs(t, cSess.Signal("v2", json.RawMessage(`{}`)), ErrForbidden)
	})
}

func TestVoiceSignalNeverReachesSender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inVoice, a1 := h.connect("alice")
	second, a2 := h.connect("alice")
	bSess, b := h.connect("bob")
	for _, sess := range []*Session{inVoice, bSess} {
		_, err := sess.JoinVoice(ctx, "v1")
		require.NoError(t, err)
	}

	// Alice's other connection speaks for the same participant.
	require.NoError(t, second.Signal("v1", json.RawMessage(`{"sdp":"x"}`)))
	assert.Empty(t, a1.events(t, models.EventVoiceSignal))
	assert.Empty(t, a2.events(t, models.EventVoiceSignal))
	assert.Len(t, b.events(t, models.EventVoiceSignal), 1)

	require.NoError(t, inVoice.Signal("v1", json.RawMessage(`{"to":"alice"}`)))
	assert.Empty(t, a1.events(t, models.EventVoiceSignal))
	assert.Empty(t, a2.events(t, models.EventVoiceSignal))
	assert.Len(t, b.events(t, models.EventVoiceSignal), 1)
}
