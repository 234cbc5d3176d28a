package gateway

import "chat-gateway/internal/models"

// publishOnline fires on an actor's 0 to 1 live-connection edge only.
// conn must already be registered in s.actors.
func (g *Gateway) publishOnline(s *state, conn *connection) {
	if len(s.actors[conn.actorID]) != 1 {
		return
	}
	g.metrics.OnlineActors.Set(float64(len(s.actors)))
	payload := models.PresencePayload{UserID: conn.actorID, Status: models.StatusOnline}
	for room := range conn.rooms {
		if room.Kind() == "server" {
			g.emit(s, room, models.EventPresenceUpdate, payload, nil)
		}
	}
}

// publishOffline fires on the 1 to 0 edge, to the server rooms the last
// connection held.
func (g *Gateway) publishOffline(s *state, actorID string, servers []Room) {
	g.metrics.OnlineActors.Set(float64(len(s.actors)))
	payload := models.PresencePayload{UserID: actorID, Status: models.StatusOffline}
	for _, room := range servers {
		g.emit(s, room, models.EventPresenceUpdate, payload, nil)
	}
}

// Online reports whether the actor has at least one live connection.
func (g *Gateway) Online(actorID string) (bool, error) {
	var online bool
	err := g.do(func(s *state) {
		online = len(s.actors[actorID]) > 0
	})
	return online, err
}
