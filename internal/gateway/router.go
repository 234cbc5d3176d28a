package gateway

import (
	"context"

	"chat-gateway/internal/models"
)

func (s *state) subscribe(conn *connection, room Room) {
	if _, ok := conn.rooms[room]; ok {
		return
	}
	conn.rooms[room] = struct{}{}
	members, ok := s.rooms[room]
	if !ok {
		members = make(map[*connection]struct{})
		s.rooms[room] = members
	}
	members[conn] = struct{}{}
}

func (s *state) unsubscribe(conn *connection, room Room) {
	if _, ok := conn.rooms[room]; !ok {
		return
	}
	delete(conn.rooms, room)
	if room.Kind() == "channel" {
		delete(conn.channels, room.ID())
	}
	if members, ok := s.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
}

func (s *state) actorSubscribed(actorID string, room Room) bool {
	for conn := range s.actors[actorID] {
		if _, ok := conn.rooms[room]; ok {
			return true
		}
	}
	return false
}

// emit delivers an event to every connection in room except skip.
func (g *Gateway) emit(s *state, room Room, name models.EventName, payload any, skip *connection) {
	members := s.rooms[room]
	if len(members) == 0 {
		return
	}
	frame, ok := g.encode(name, payload)
	if !ok {
		return
	}
	g.metrics.EventsEmitted.WithLabelValues(string(name)).Inc()
	for conn := range members {
		if conn == skip {
			continue
		}
		g.deliver(conn, frame)
	}
}

func (g *Gateway) deliver(conn *connection, frame []byte) {
	if conn.transport.Send(frame) {
		return
	}
	// A consumer that cannot keep up is closed; its read side will
	// unregister it.
	g.metrics.FramesDropped.Inc()
	g.log.Warn("send buffer full for connection %s, closing", conn.id)
	conn.transport.Close()
}

// Emit delivers an event to every connection currently subscribed to room.
// Events emitted from one goroutine reach each connection in order.
func (g *Gateway) Emit(room Room, name models.EventName, payload any) error {
	return g.do(func(s *state) {
		g.emit(s, room, name, payload, nil)
	})
}

// Subscribe adds the session's connection to room. Callers are responsible
// for authorization.
func (sess *Session) Subscribe(room Room) error {
	return sess.gw.do(func(s *state) {
		if conn, ok := s.conns[sess.ID]; ok {
			s.subscribe(conn, room)
		}
	})
}

// Unsubscribe removes the session's connection from room.
func (sess *Session) Unsubscribe(room Room) error {
	return sess.gw.do(func(s *state) {
		if conn, ok := s.conns[sess.ID]; ok {
			s.unsubscribe(conn, room)
		}
	})
}

// JoinRoomForActor subscribes every live connection of actorID to room, so
// an actor who just gained access starts receiving its events without
// reconnecting.
func (g *Gateway) JoinRoomForActor(actorID string, room Room) error {
	return g.do(func(s *state) {
		for conn := range s.actors[actorID] {
			s.subscribe(conn, room)
		}
	})
}

// LeaveRoomForActor is the inverse of JoinRoomForActor.
func (g *Gateway) LeaveRoomForActor(actorID string, room Room) error {
	return g.do(func(s *state) {
		for conn := range s.actors[actorID] {
			s.unsubscribe(conn, room)
		}
	})
}

// RevokeServer withdraws everything an actor's connections hold through
// membership of serverID: the server room, every channel room of that
// server, typing marks in those channels and voice participation.
func (g *Gateway) RevokeServer(actorID, serverID string) error {
	return g.do(func(s *state) {
		revoked := make(map[string]struct{})
		for conn := range s.actors[actorID] {
			s.unsubscribe(conn, ServerRoom(serverID))
			for channelID, parent := range conn.channels {
				if parent == serverID {
					revoked[channelID] = struct{}{}
					s.unsubscribe(conn, ChannelRoom(channelID))
				}
			}
			if conn.voice != nil && conn.voice.serverID == serverID {
				g.leaveVoice(s, actorID, conn.voice.channelID)
			}
		}
		g.releaseTyping(s, actorID, func(channelID string) bool {
			_, ok := revoked[channelID]
			return ok
		})
		g.log.Info("revoked server %s for %s (%d channels)", serverID, actorID, len(revoked))
	})
}

// CloseChannel drops everything held in a deleted channel: its room
// subscriptions, typing marks and voice roster. Remaining participants see
// voice.left as each one is removed.
func (g *Gateway) CloseChannel(channelID string) error {
	return g.do(func(s *state) {
		for key, mark := range s.typing {
			if key.channelID == channelID {
				mark.timer.Stop()
				delete(s.typing, key)
			}
		}
		g.metrics.TypingMarks.Set(float64(len(s.typing)))

		if r, ok := s.voice[channelID]; ok {
			for _, p := range append([]*participant(nil), r.participants...) {
				g.leaveVoice(s, p.userID, channelID)
			}
		}

		room := ChannelRoom(channelID)
		for conn := range s.rooms[room] {
			s.unsubscribe(conn, room)
		}
	})
}

// JoinChannel subscribes the connection to a channel room after checking
// that the actor may read the channel.
func (sess *Session) JoinChannel(ctx context.Context, channelID string) error {
	ch, err := sess.gw.channelAccess(ctx, channelID, sess.ActorID)
	if err != nil {
		return err
	}
	return sess.gw.exec(sess, func(s *state, conn *connection) error {
		s.subscribe(conn, ChannelRoom(ch.ID))
		conn.channels[ch.ID] = ch.ServerID
		return nil
	})
}

// exec runs fn on the loop against the session's live connection.
func (g *Gateway) exec(sess *Session, fn func(*state, *connection) error) error {
	var opErr error
	err := g.do(func(s *state) {
		conn, err := s.live(sess)
		if err != nil {
			opErr = err
			return
		}
		opErr = fn(s, conn)
	})
	if err != nil {
		return err
	}
	return opErr
}
