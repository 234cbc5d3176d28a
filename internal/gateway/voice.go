package gateway

import (
	"context"
	"encoding/json"

	"chat-gateway/internal/models"
)

type participant struct {
	userID string
	conn   *connection
}

// roster lists a voice channel's participants in join order.
type roster struct {
	participants []*participant
}

func (r *roster) find(userID string) (int, *participant) {
	for i, p := range r.participants {
		if p.userID == userID {
			return i, p
		}
	}
	return -1, nil
}

func (r *roster) others(userID string) []string {
	users := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		if p.userID != userID {
			users = append(users, p.userID)
		}
	}
	return users
}

// JoinVoice adds the actor to a voice channel's roster and returns the
// other participants, whom the joiner is expected to call. Existing
// participants receive voice.joined. Joining again is a no-op that returns
// the current roster. A connection occupies one voice channel at a time, so
// joining a second channel leaves the first.
func (sess *Session) JoinVoice(ctx context.Context, channelID string) ([]string, error) {
	g := sess.gw
	ch, err := g.channelAccess(ctx, channelID, sess.ActorID)
	if err != nil {
		return nil, err
	}
	if ch.Type != models.ChannelVoice {
		return nil, ErrInvalidChannelType
	}

	var users []string
	err = g.exec(sess, func(s *state, conn *connection) error {
		r, ok := s.voice[channelID]
		if !ok {
			r = &roster{}
			s.voice[channelID] = r
		}
		if _, p := r.find(sess.ActorID); p != nil {
			users = r.others(sess.ActorID)
			return nil
		}

		if conn.voice != nil {
			g.leaveVoice(s, conn.actorID, conn.voice.channelID)
		}

		users = r.others(sess.ActorID)
		g.emit(s, VoiceRoom(channelID), models.EventVoiceJoined,
			models.VoiceMemberPayload{ChannelID: channelID, UserID: sess.ActorID}, nil)

		s.subscribe(conn, VoiceRoom(channelID))
		r.participants = append(r.participants, &participant{userID: sess.ActorID, conn: conn})
		conn.voice = &voiceState{channelID: channelID, serverID: ch.ServerID, joinedAt: g.clock.Now()}
		g.metrics.VoiceParticipants.Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// LeaveVoice removes the actor from the roster. Leaving a channel the actor
// is not in is a no-op.
func (sess *Session) LeaveVoice(channelID string) error {
	g := sess.gw
	return g.exec(sess, func(s *state, _ *connection) error {
		g.leaveVoice(s, sess.ActorID, channelID)
		return nil
	})
}

// leaveVoice removes actorID from channelID's roster and tells the
// remaining participants exactly once.
func (g *Gateway) leaveVoice(s *state, actorID, channelID string) {
	r, ok := s.voice[channelID]
	if !ok {
		return
	}
	i, p := r.find(actorID)
	if p == nil {
		return
	}
	r.participants = append(r.participants[:i], r.participants[i+1:]...)
	s.unsubscribe(p.conn, VoiceRoom(channelID))
	if p.conn.voice != nil && p.conn.voice.channelID == channelID {
		p.conn.voice = nil
	}
	if len(r.participants) == 0 {
		delete(s.voice, channelID)
	}
	g.metrics.VoiceParticipants.Dec()

	g.emit(s, VoiceRoom(channelID), models.EventVoiceLeft,
		models.VoiceMemberPayload{ChannelID: channelID, UserID: actorID}, nil)
}

type signalEnvelope struct {
	To string `json:"to"`
}

// Signal relays an opaque WebRTC payload to the channel's other
// participants, tagged with the sender. When the payload names a "to"
// participant only that participant receives it. The sender must be on
// the roster, and never receives its own signal.
func (sess *Session) Signal(channelID string, data json.RawMessage) error {
	g := sess.gw
	return g.exec(sess, func(s *state, _ *connection) error {
		r, ok := s.voice[channelID]
		if !ok {
			return forbidden("not in voice channel")
		}
		if _, p := r.find(sess.ActorID); p == nil {
			return forbidden("not in voice channel")
		}

		var env signalEnvelope
		// Payloads that are not objects are still relayed; only the
		// addressing field is ever read.
		_ = json.Unmarshal(data, &env)

		var targets []*participant
		switch {
		case env.To == sess.ActorID:
			// addressed to itself; dropped
		case env.To != "":
			if _, p := r.find(env.To); p != nil {
				targets = append(targets, p)
			}
		default:
			for _, p := range r.participants {
				if p.userID != sess.ActorID {
					targets = append(targets, p)
				}
			}
		}
		if len(targets) == 0 {
			return nil
		}

		payload := models.VoiceSignalPayload{ChannelID: channelID, From: sess.ActorID, Data: data}
		frame, ok := g.encode(models.EventVoiceSignal, payload)
		if !ok {
			return nil
		}
		g.metrics.EventsEmitted.WithLabelValues(string(models.EventVoiceSignal)).Inc()
		for _, p := range targets {
			g.deliver(p.conn, frame)
		}
		return nil
	})
}

// Roster returns the participants of a voice channel in join order.
func (g *Gateway) Roster(channelID string) ([]string, error) {
	var users []string
	err := g.do(func(s *state) {
		if r, ok := s.voice[channelID]; ok {
			users = r.others("")
		}
	})
	return users, err
}
