package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-gateway/internal/auth"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type connection struct {
	id        string
	actorID   string
	transport Transport
	rooms     map[Room]struct{}
	// channels maps each subscribed channel to its parent server so that
	// revoking a server can find them.
	channels map[string]string
	voice    *voiceState
}

type voiceState struct {
	channelID string
	serverID  string
	joinedAt  time.Time
}

// Session is the handle for one authenticated connection. Its methods are
// the room-scoped actions a client may request.
type Session struct {
	ID      string
	ActorID string

	gw *Gateway
}

// Authenticate verifies a raw bearer token and returns the actor id.
func (g *Gateway) Authenticate(rawToken string) (string, error) {
	if strings.TrimSpace(rawToken) == "" {
		return "", auth.ErrMissingToken
	}
	return g.verifier.VerifyAccess(rawToken)
}

// Connect authenticates a new connection, snapshots its actor's server and
// direct-thread memberships and subscribes it to the matching rooms plus
// the actor's private user room. On error nothing is registered and the
// caller must close the transport.
func (g *Gateway) Connect(ctx context.Context, rawToken string, t Transport) (*Session, error) {
	actorID, err := g.Authenticate(rawToken)
	if err != nil {
		g.metrics.HandshakeFailures.WithLabelValues(AuthReason(err)).Inc()
		return nil, err
	}

	var servers, threads []string
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ids, err := g.directory.ServerIDsForUser(egctx, actorID)
		if err != nil {
			return fmt.Errorf("list servers: %w", err)
		}
		servers = ids
		return nil
	})
	eg.Go(func() error {
		ids, err := g.directory.DirectThreadIDsForUser(egctx, actorID)
		if err != nil {
			return fmt.Errorf("list direct threads: %w", err)
		}
		threads = ids
		return nil
	})
	if err := eg.Wait(); err != nil {
		g.metrics.HandshakeFailures.WithLabelValues(AuthReason(err)).Inc()
		return nil, unavailable("snapshot memberships", err)
	}

	sess := &Session{ID: uuid.NewString(), ActorID: actorID, gw: g}
	conn := &connection{
		id:        sess.ID,
		actorID:   actorID,
		transport: t,
		rooms:     make(map[Room]struct{}),
		channels:  make(map[string]string),
	}

	err = g.do(func(s *state) {
		s.conns[conn.id] = conn
		live, ok := s.actors[actorID]
		if !ok {
			live = make(map[*connection]struct{})
			s.actors[actorID] = live
		}
		live[conn] = struct{}{}

		for _, id := range servers {
			s.subscribe(conn, ServerRoom(id))
		}
		for _, id := range threads {
			s.subscribe(conn, DirectRoom(id))
		}
		s.subscribe(conn, UserRoom(actorID))

		g.metrics.Connections.Set(float64(len(s.conns)))
		g.publishOnline(s, conn)
	})
	if err != nil {
		g.metrics.HandshakeFailures.WithLabelValues(AuthReason(err)).Inc()
		return nil, err
	}

	g.log.Info("connection %s authenticated as %s (%d servers, %d threads)", conn.id, actorID, len(servers), len(threads))
	return sess, nil
}

// Close tears the connection down: subscriptions, typing marks and voice
// participation are released and presence is updated. It is idempotent.
func (sess *Session) Close() {
	g := sess.gw
	_ = g.do(func(s *state) {
		if conn, ok := s.conns[sess.ID]; ok {
			g.teardown(s, conn)
		}
	})
}

// DisconnectActor closes every live connection of an actor.
func (g *Gateway) DisconnectActor(actorID string) error {
	return g.do(func(s *state) {
		for conn := range s.actors[actorID] {
			g.teardown(s, conn)
		}
	})
}

func (g *Gateway) teardown(s *state, conn *connection) {
	delete(s.conns, conn.id)
	if live, ok := s.actors[conn.actorID]; ok {
		delete(live, conn)
	}

	if conn.voice != nil {
		g.leaveVoice(s, conn.actorID, conn.voice.channelID)
	}

	var servers []Room
	for room := range conn.rooms {
		if room.Kind() == "server" {
			servers = append(servers, room)
		}
		s.unsubscribe(conn, room)
	}

	g.releaseTyping(s, conn.actorID, func(channelID string) bool {
		return !s.actorSubscribed(conn.actorID, ChannelRoom(channelID))
	})

	if len(s.actors[conn.actorID]) == 0 {
		delete(s.actors, conn.actorID)
		g.publishOffline(s, conn.actorID, servers)
	}

	conn.transport.Close()
	g.metrics.Connections.Set(float64(len(s.conns)))
	g.log.Info("connection %s of %s closed", conn.id, conn.actorID)
}

// live returns the registered connection behind a session.
func (s *state) live(sess *Session) (*connection, error) {
	conn, ok := s.conns[sess.ID]
	if !ok {
		return nil, ErrConnectionClosed
	}
	return conn, nil
}
