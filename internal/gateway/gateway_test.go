package gateway

import (
	"context"
	"errors"
	"slices"
	"testing"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/metrics"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRejectsBadTokens(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		token  string
		want   error
		reason string
	}{
		{"missing", "", auth.ErrMissingToken, "missing_token"},
		{"blank", "   ", auth.ErrMissingToken, "missing_token"},
		{"refresh token", "refresh:alice", auth.ErrWrongTokenKind, "wrong_token_kind"},
		{"garbage", "not-a-token", auth.ErrInvalidToken, "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := h.gw.Connect(context.Background(), tt.token, &fakeTransport{})
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.reason, AuthReason(err))
		})
	}

	assert.Equal(t, 0, h.stats().Connections)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.HandshakeFailures.WithLabelValues("missing_token")))
}

func TestConnectSnapshotFailureRegistersNothing(t *testing.T) {
	h := newHarness(t)
	h.dir.fail(errDirectoryDown)

	sess, err := h.gw.Connect(context.Background(), "access:alice", &fakeTransport{})
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, models.CodeUnavailable, Code(err))
	assert.Equal(t, "snapshot_failed", AuthReason(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.HandshakeFailures.WithLabelValues("snapshot_failed")))

	st := h.stats()
	assert.Equal(t, 0, st.Connections)
	assert.Equal(t, 0, st.OnlineActors)
}

func TestConnectSubscribesMembershipRooms(t *testing.T) {
	h := newHarness(t)
	_, alice := h.connect("alice")
	_, dave := h.connect("dave")
	alice.reset()
	dave.reset()

	require.NoError(t, h.gw.EmitServerUpdated("s1", map[string]string{"id": "s1"}))
	require.NoError(t, h.gw.EmitDirectMessageCreated("d1", map[string]string{"id": "m1"}))
	require.NoError(t, h.gw.EmitDirectThreadCreated("alice", map[string]string{"id": "d2"}))
	require.NoError(t, h.gw.EmitServerUpdated("s2", map[string]string{"id": "s2"}))

	got := alice.events(t)
	require.Len(t, got, 3)
	assert.Equal(t, models.EventServerUpdated, got[0].Event)
	assert.Equal(t, models.EventDirectMessageCreated, got[1].Event)
	assert.Equal(t, models.EventDirectThreadCreated, got[2].Event)

	got = dave.events(t)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"s2"}`, string(got[0].Data))
}

func TestChannelEventsStayInChannel(t *testing.T) {
	h := newHarness(t)
	aliceSess, alice := h.connect("alice")
	_, bob := h.connect("bob")

	require.NoError(t, aliceSess.JoinChannel(context.Background(), "c1"))
	require.NoError(t, h.gw.EmitMessageCreated("c1", map[string]string{"id": "m1"}))

	assert.Len(t, alice.events(t, models.EventMessageCreated), 1)
	assert.Empty(t, bob.events(t, models.EventMessageCreated))
}

func TestJoinChannelAccess(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		user    string
		channel string
		want    error
		code    string
	}{
		{"not a member", "dave", "c1", ErrForbidden, models.CodeForbidden},
		{"insufficient role", "alice", "c-admin", ErrForbidden, models.CodeForbidden},
		{"banned", "eve", "c1", ErrForbidden, models.CodeForbidden},
		{"unknown channel", "alice", "nope", ErrNotFound, models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, tr := h.connect(tt.user)
			defer sess.Close()

			err := sess.JoinChannel(context.Background(), tt.channel)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.code, Code(err))

			require.NoError(t, h.gw.EmitMessageCreated(tt.channel, map[string]string{"id": "m1"}))
			assert.Empty(t, tr.events(t, models.EventMessageCreated))
		})
	}

	t.Run("admin channel for admin", func(t *testing.T) {
		sess, _ := h.connect("carol")
		defer sess.Close()
		assert.NoError(t, sess.JoinChannel(context.Background(), "c-admin"))
	})
}

func TestJoinChannelDirectoryFailure(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.connect("alice")
	h.dir.fail(errDirectoryDown)

	err := sess.JoinChannel(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSessionClosedActionsFail(t *testing.T) {
	h := newHarness(t)
	sess, tr := h.connect("alice")
	sess.Close()
	sess.Close()

	assert.True(t, tr.isClosed())
	assert.ErrorIs(t, sess.JoinChannel(context.Background(), "c1"), ErrConnectionClosed)
	assert.ErrorIs(t, sess.StopTyping("c1"), ErrConnectionClosed)
	assert.Equal(t, 0, h.stats().Connections)
}

func TestPresenceFollowsConnectionCount(t *testing.T) {
	h := newHarness(t)
	_, observer := h.connect("bob")

	presence := func() []models.PresencePayload {
		var out []models.PresencePayload
		for _, ev := range observer.events(t, models.EventPresenceUpdate) {
			p := decode[models.PresencePayload](t, ev)
			if p.UserID == "alice" {
				out = append(out, p)
			}
		}
		return out
	}

	first, _ := h.connect("alice")
	second, _ := h.connect("alice")
	require.Equal(t, []models.PresencePayload{{UserID: "alice", Status: models.StatusOnline}}, presence())

	online, err := h.gw.Online("alice")
	require.NoError(t, err)
	assert.True(t, online)

	first.Close()
	assert.Len(t, presence(), 1)
	online, err = h.gw.Online("alice")
	require.NoError(t, err)
	assert.True(t, online)

	second.Close()
	assert.Equal(t, []models.PresencePayload{
		{UserID: "alice", Status: models.StatusOnline},
		{UserID: "alice", Status: models.StatusOffline},
	}, presence())

	online, err = h.gw.Online("alice")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresenceIsScopedToServers(t *testing.T) {
	h := newHarness(t)
	_, dave := h.connect("dave")
	h.connect("alice")

	for _, ev := range dave.events(t, models.EventPresenceUpdate) {
		assert.NotEqual(t, "alice", decode[models.PresencePayload](t, ev).UserID)
	}
}

func TestJoinRoomForActorReachesEveryConnection(t *testing.T) {
	h := newHarness(t)
	_, phone := h.connect("dave")
	_, laptop := h.connect("dave")

	require.NoError(t, h.gw.JoinServerRoomForUser("dave", "s1"))
	require.NoError(t, h.gw.EmitChannelCreated("s1", map[string]string{"id": "c9"}))
	assert.Len(t, phone.events(t, models.EventChannelCreated), 1)
	assert.Len(t, laptop.events(t, models.EventChannelCreated), 1)

	require.NoError(t, h.gw.LeaveRoomForActor("dave", ServerRoom("s1")))
	require.NoError(t, h.gw.EmitChannelCreated("s1", map[string]string{"id": "c10"}))
	assert.Len(t, phone.events(t, models.EventChannelCreated), 1)

	// No live connections is a no-op.
	assert.NoError(t, h.gw.JoinServerRoomForUser("nobody", "s1"))
}

func TestRevokeServerWithdrawsAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aliceSess, alice := h.connect("alice")
	bobSess, bob := h.connect("bob")

	require.NoError(t, aliceSess.JoinChannel(ctx, "c1"))
	require.NoError(t, bobSess.JoinChannel(ctx, "c1"))
	require.NoError(t, aliceSess.StartTyping(ctx, "c1"))
	_, err := aliceSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	_, err = bobSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	bob.reset()

	h.dir.removeMember("s1", "alice")
	require.NoError(t, h.gw.RevokeServer("alice", "s1"))

	assert.Len(t, bob.events(t, models.EventTypingStop), 1)
	left := bob.events(t, models.EventVoiceLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", decode[models.VoiceMemberPayload](t, left[0]).UserID)

	alice.reset()
	require.NoError(t, h.gw.EmitMessageCreated("c1", map[string]string{"id": "m1"}))
	require.NoError(t, h.gw.EmitServerUpdated("s1", map[string]string{"id": "s1"}))
	assert.Empty(t, alice.events(t))
	assert.Len(t, bob.events(t, models.EventMessageCreated), 1)

	users, err := h.gw.Roster("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
	assert.Equal(t, 0, h.stats().TypingMarks)

	// Rejoining is refused once the directory no longer lists the member.
	assert.ErrorIs(t, aliceSess.JoinChannel(ctx, "c1"), ErrForbidden)
}

func TestDisconnectActorClosesEveryConnection(t *testing.T) {
	h := newHarness(t)
	_, a := h.connect("alice")
	_, b := h.connect("alice")
	_, bob := h.connect("bob")

	require.NoError(t, h.gw.DisconnectActor("alice"))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.False(t, bob.isClosed())

	st := h.stats()
	assert.Equal(t, 1, st.Connections)
	assert.Equal(t, 1, st.OnlineActors)
}

func TestSlowConsumerIsClosed(t *testing.T) {
	h := newHarness(t)
	_, alice := h.connect("alice")
	_, bob := h.connect("bob")

	alice.mu.Lock()
	alice.full = true
	alice.mu.Unlock()

	require.NoError(t, h.gw.EmitServerUpdated("s1", map[string]string{"id": "s1"}))
	assert.True(t, alice.isClosed())
	assert.False(t, bob.isClosed())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FramesDropped))
}

func TestStopClosesTransports(t *testing.T) {
	h := newHarness(t)
	sess, tr := h.connect("alice")
	require.NoError(t, sess.StartTyping(context.Background(), "c1"))

	ctx, cancel := context.WithCancel(context.Background())
	otherMetrics := metrics.NewGateway(prometheus.NewRegistry())
	other := New(h.dir, fakeVerifier{}, Options{Clock: h.clock, Metrics: otherMetrics, Logger: logger.Nop()})
	go other.Run(ctx)
	otherSess, otherTr := newSessionOn(t, other, "bob")
	cancel()
	<-other.Done()

	assert.True(t, otherTr.isClosed())
	assert.ErrorIs(t, otherSess.JoinChannel(context.Background(), "c1"), ErrGatewayStopped)
	_, err := other.Stats()
	assert.True(t, errors.Is(err, ErrGatewayStopped))

	late, err := other.Connect(context.Background(), "access:carol", &fakeTransport{})
	assert.Nil(t, late)
	assert.ErrorIs(t, err, ErrGatewayStopped)
	assert.Equal(t, "gateway_stopped", AuthReason(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(otherMetrics.HandshakeFailures.WithLabelValues("gateway_stopped")))

	assert.False(t, tr.isClosed())
}

func newSessionOn(t *testing.T, g *Gateway, user string) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	sess, err := g.Connect(context.Background(), "access:"+user, tr)
	require.NoError(t, err)
	return sess, tr
}

func TestRoomKeys(t *testing.T) {
	assert.Equal(t, Room("server:s1"), ServerRoom("s1"))
	assert.Equal(t, "voice", VoiceRoom("v1").Kind())
	assert.Equal(t, "v1", VoiceRoom("v1").ID())
	assert.Equal(t, "a:b", DirectRoom("a:b").ID())
}

func TestEmitHelpersTargetRoomKind(t *testing.T) {
	h := newHarness(t)
	_, alice := h.connect("alice") // server:s1, direct:d1, user:alice
	carolSess, carol := h.connect("carol")
	require.NoError(t, carolSess.JoinChannel(context.Background(), "c1")) // + server:s1, user:carol
	_, dave := h.connect("dave") // server:s2, user:dave

	observers := map[string]*fakeTransport{"alice": alice, "carol": carol, "dave": dave}
	payload := map[string]string{"id": "x1"}

	tests := []struct {
		event     models.EventName
		emit      func() error
		receivers []string
	}{
		{models.EventServerUpdated, func() error { return h.gw.EmitServerUpdated("s2", payload) }, []string{"dave"}},
		{models.EventChannelCreated, func() error { return h.gw.EmitChannelCreated("s2", payload) }, []string{"dave"}},
		{models.EventChannelUpdated, func() error { return h.gw.EmitChannelUpdated("s2", payload) }, []string{"dave"}},
		{models.EventChannelDeleted, func() error { return h.gw.EmitChannelDeleted("s2", payload) }, []string{"dave"}},
		{models.EventMessageCreated, func() error { return h.gw.EmitMessageCreated("c1", payload) }, []string{"carol"}},
		{models.EventMessageUpdated, func() error { return h.gw.EmitMessageUpdated("c1", payload) }, []string{"carol"}},
		{models.EventMessageDeleted, func() error { return h.gw.EmitMessageDeleted("c1", payload) }, []string{"carol"}},
		{models.EventReactionAdded, func() error { return h.gw.EmitReactionAdded("c1", payload) }, []string{"carol"}},
		{models.EventReactionRemoved, func() error { return h.gw.EmitReactionRemoved("c1", payload) }, []string{"carol"}},
		{models.EventDirectMessageCreated, func() error { return h.gw.EmitDirectMessageCreated("d1", payload) }, []string{"alice"}},
		{models.EventDirectMessageUpdated, func() error { return h.gw.EmitDirectMessageUpdated("d1", payload) }, []string{"alice"}},
		{models.EventDirectMessageDeleted, func() error { return h.gw.EmitDirectMessageDeleted("d1", payload) }, []string{"alice"}},
		{models.EventDirectReactionAdded, func() error { return h.gw.EmitDirectReactionAdded("d1", payload) }, []string{"alice"}},
		{models.EventDirectReactionRemoved, func() error { return h.gw.EmitDirectReactionRemoved("d1", payload) }, []string{"alice"}},
		{models.EventDirectThreadCreated, func() error { return h.gw.EmitDirectThreadCreated("carol", payload) }, []string{"carol"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			for _, tr := range observers {
				tr.reset()
			}
			require.NoError(t, tt.emit())

			for name, tr := range observers {
				got := tr.events(t)
				if !slices.Contains(tt.receivers, name) {
					assert.Empty(t, got, name)
					continue
				}
				require.Len(t, got, 1, name)
				assert.Equal(t, tt.event, got[0].Event)
				assert.JSONEq(t, `{"id":"x1"}`, string(got[0].Data))
			}
		})
	}
}

func TestSessionSubscribeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sess, tr := h.connect("dave")
	room := ChannelRoom("c2")
	rooms := h.stats().Rooms

	require.NoError(t, sess.Subscribe(room))
	require.NoError(t, sess.Subscribe(room))
	assert.Equal(t, rooms+1, h.stats().Rooms)

	require.NoError(t, h.gw.Emit(room, models.EventMessageCreated, map[string]string{"id": "m1"}))
	assert.Len(t, tr.events(t, models.EventMessageCreated), 1)

	require.NoError(t, sess.Unsubscribe(room))
	require.NoError(t, sess.Unsubscribe(room))
	assert.Equal(t, rooms, h.stats().Rooms)

	tr.reset()
	require.NoError(t, h.gw.Emit(room, models.EventMessageCreated, map[string]string{"id": "m2"}))
	assert.Empty(t, tr.events(t))

	// A closed session subscribes nothing.
	sess.Close()
	require.NoError(t, sess.Subscribe(room))
	assert.Equal(t, 0, h.stats().Rooms)
}

func TestCloseChannelReleasesState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aliceSess, alice := h.connect("alice")
	bobSess, bob := h.connect("bob")
	require.NoError(t, aliceSess.JoinChannel(ctx, "c1"))
	require.NoError(t, bobSess.JoinChannel(ctx, "c1"))
	require.NoError(t, aliceSess.StartTyping(ctx, "c1"))
	_, err := aliceSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	_, err = bobSess.JoinVoice(ctx, "v1")
	require.NoError(t, err)
	alice.reset()
	bob.reset()

	require.NoError(t, h.gw.CloseChannel("c1"))
	require.NoError(t, h.gw.EmitMessageCreated("c1", map[string]string{"id": "m1"}))
	assert.Empty(t, alice.events(t, models.EventMessageCreated))
	assert.Empty(t, bob.events(t, models.EventMessageCreated))
	assert.Equal(t, 0, h.stats().TypingMarks)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.TypingMarks))

	require.NoError(t, h.gw.CloseChannel("v1"))
	users, err := h.gw.Roster("v1")
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 0, h.stats().VoiceRooms)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.VoiceParticipants))

	assert.ErrorIs(t, bobSess.Signal("v1", []byte(`{"sdp":"x"}`)), ErrForbidden)
}
