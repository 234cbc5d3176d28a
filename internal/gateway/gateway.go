// Package gateway is the realtime membership and room-routing core. It binds
// authenticated connections to the rooms their actor may receive events
// for, keeps ephemeral typing, voice and presence state, and fans domain
// events out to rooms.
//
// All state lives in a single value owned by the Run loop. Every mutation
// is a closure executed on that loop, so no two mutations interleave.
// Membership Directory lookups happen on the caller's goroutine before the
// mutation is posted, and the mutation re-checks that its connection is
// still live.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"chat-gateway/internal/database"
	"chat-gateway/internal/metrics"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/benbjohnson/clock"
)

const DefaultQuietWindow = 7 * time.Second

// TokenVerifier resolves a bearer token to the actor it was issued to.
type TokenVerifier interface {
	VerifyAccess(raw string) (string, error)
}

// Transport is the outbound half of a client connection.
type Transport interface {
	// Send queues a frame without blocking. It returns false when the
	// frame could not be queued.
	Send(frame []byte) bool
	Close()
}

type Options struct {
	QuietWindow time.Duration
	Clock       clock.Clock
	Metrics     *metrics.Gateway
	Logger      *logger.Logger
}

type Gateway struct {
	directory   database.MembershipDirectory
	verifier    TokenVerifier
	quietWindow time.Duration
	clock       clock.Clock
	metrics     *metrics.Gateway
	log         *logger.Logger

	ops     chan func(*state)
	stopped chan struct{}
	state   *state
}

// state is owned by the Run loop; nothing else may touch it.
type state struct {
	conns  map[string]*connection
	actors map[string]map[*connection]struct{}
	rooms  map[Room]map[*connection]struct{}
	typing map[typingKey]*typingMark
	voice  map[string]*roster
}

func newState() *state {
	return &state{
		conns:  make(map[string]*connection),
		actors: make(map[string]map[*connection]struct{}),
		rooms:  make(map[Room]map[*connection]struct{}),
		typing: make(map[typingKey]*typingMark),
		voice:  make(map[string]*roster),
	}
}

func New(directory database.MembershipDirectory, verifier TokenVerifier, opts Options) *Gateway {
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = DefaultQuietWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewGateway(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logger.For("gateway")
	}
	return &Gateway{
		directory:   directory,
		verifier:    verifier,
		quietWindow: opts.QuietWindow,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		ops:         make(chan func(*state)),
		stopped:     make(chan struct{}),
		state:       newState(),
	}
}

// Run executes state mutations until ctx is cancelled, then releases every
// connection and timer.
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.stopped)
	for {
		select {
		case op := <-g.ops:
			op(g.state)
		case <-ctx.Done():
			g.shutdown(g.state)
			return
		}
	}
}

// Done is closed once Run has returned.
func (g *Gateway) Done() <-chan struct{} {
	return g.stopped
}

// do runs fn on the loop and waits for it to finish.
func (g *Gateway) do(fn func(*state)) error {
	done := make(chan struct{})
	select {
	case g.ops <- func(s *state) {
		defer close(done)
		fn(s)
	}:
	case <-g.stopped:
		return ErrGatewayStopped
	}
	<-done
	return nil
}

// post queues fn without waiting for it to run. Timer callbacks use it.
func (g *Gateway) post(fn func(*state)) {
	select {
	case g.ops <- fn:
	case <-g.stopped:
	}
}

func (g *Gateway) shutdown(s *state) {
	for key, mark := range s.typing {
		mark.timer.Stop()
		delete(s.typing, key)
	}
	for _, conn := range s.conns {
		conn.transport.Close()
	}
	g.state = newState()
	g.metrics.Connections.Set(0)
	g.metrics.OnlineActors.Set(0)
	g.metrics.TypingMarks.Set(0)
	g.metrics.VoiceParticipants.Set(0)
	g.log.Info("gateway stopped, released %d connections", len(s.conns))
}

// Stats is a point-in-time view of the gateway's state sizes.
type Stats struct {
	Connections  int `json:"connections"`
	OnlineActors int `json:"onlineActors"`
	Rooms        int `json:"rooms"`
	TypingMarks  int `json:"typingMarks"`
	VoiceRooms   int `json:"voiceRooms"`
}

func (g *Gateway) Stats() (Stats, error) {
	var st Stats
	err := g.do(func(s *state) {
		st = Stats{
			Connections:  len(s.conns),
			OnlineActors: len(s.actors),
			Rooms:        len(s.rooms),
			TypingMarks:  len(s.typing),
			VoiceRooms:   len(s.voice),
		}
	})
	return st, err
}

// encode builds the wire frame for an event once so it can be shared by
// every recipient.
func (g *Gateway) encode(name models.EventName, payload any) ([]byte, bool) {
	frame, err := json.Marshal(models.Event{Type: models.FrameEvent, Event: name, Data: payload})
	if err != nil {
		g.log.Error("Error marshaling %s event: %v", name, err)
		return nil, false
	}
	return frame, true
}
