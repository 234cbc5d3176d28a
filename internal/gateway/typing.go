package gateway

import (
	"context"

	"chat-gateway/internal/models"

	"github.com/benbjohnson/clock"
)

type typingKey struct {
	channelID string
	userID    string
}

// typingMark is the single live expiry timer for a key. The map entry is
// replaced, never stacked, so a timer that fires after its mark was
// replaced finds a different pointer and does nothing.
type typingMark struct {
	timer *clock.Timer
}

// StartTyping broadcasts typing.start to the channel and (re)arms the quiet
// window for this actor. A second start before expiry replaces the timer.
func (sess *Session) StartTyping(ctx context.Context, channelID string) error {
	g := sess.gw
	if _, err := g.channelAccess(ctx, channelID, sess.ActorID); err != nil {
		return err
	}
	return g.exec(sess, func(s *state, _ *connection) error {
		key := typingKey{channelID: channelID, userID: sess.ActorID}
		if prev, ok := s.typing[key]; ok {
			prev.timer.Stop()
			delete(s.typing, key)
		}

		g.emit(s, ChannelRoom(channelID), models.EventTypingStart, typingPayload(key), nil)

		mark := &typingMark{}
		mark.timer = g.clock.AfterFunc(g.quietWindow, func() {
			g.post(func(s *state) { g.expireTyping(s, key, mark) })
		})
		s.typing[key] = mark
		g.metrics.TypingMarks.Set(float64(len(s.typing)))
		return nil
	})
}

// StopTyping cancels any live mark and broadcasts typing.stop even when the
// key was already idle.
func (sess *Session) StopTyping(channelID string) error {
	g := sess.gw
	return g.exec(sess, func(s *state, _ *connection) error {
		key := typingKey{channelID: channelID, userID: sess.ActorID}
		g.stopTyping(s, key)
		return nil
	})
}

func (g *Gateway) stopTyping(s *state, key typingKey) {
	if mark, ok := s.typing[key]; ok {
		mark.timer.Stop()
		delete(s.typing, key)
		g.metrics.TypingMarks.Set(float64(len(s.typing)))
	}
	g.emit(s, ChannelRoom(key.channelID), models.EventTypingStop, typingPayload(key), nil)
}

func (g *Gateway) expireTyping(s *state, key typingKey, mark *typingMark) {
	if current, ok := s.typing[key]; !ok || current != mark {
		return
	}
	delete(s.typing, key)
	g.metrics.TypingMarks.Set(float64(len(s.typing)))
	g.emit(s, ChannelRoom(key.channelID), models.EventTypingStop, typingPayload(key), nil)
}

// releaseTyping stops the actor's live marks in every channel for which
// release returns true.
func (g *Gateway) releaseTyping(s *state, actorID string, release func(channelID string) bool) {
	for key := range s.typing {
		if key.userID == actorID && release(key.channelID) {
			g.stopTyping(s, key)
		}
	}
}

func typingPayload(key typingKey) models.TypingPayload {
	return models.TypingPayload{ChannelID: key.channelID, UserID: key.userID}
}
