package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/metrics"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type memberKey struct{ serverID, userID string }

type fakeDirectory struct {
	mu       sync.Mutex
	members  map[memberKey]models.Role
	banned   map[memberKey]bool
	channels map[string]*models.Channel
	threads  map[string][]string
	failWith error
}

func newFakeDirectory() *fakeDirectory {
	d := &fakeDirectory{
		members:  make(map[memberKey]models.Role),
		banned:   make(map[memberKey]bool),
		channels: make(map[string]*models.Channel),
		threads:  make(map[string][]string),
	}
	d.addMember("s1", "alice", models.RoleMember)
	d.addMember("s1", "bob", models.RoleMember)
	d.addMember("s1", "carol", models.RoleAdmin)
	d.addMember("s1", "eve", models.RoleMember)
	d.banned[memberKey{"s1", "eve"}] = true
	d.addMember("s2", "dave", models.RoleMember)

	d.addChannel("c1", "s1", models.ChannelText, models.RoleMember)
	d.addChannel("c-admin", "s1", models.ChannelText, models.RoleAdmin)
	d.addChannel("v1", "s1", models.ChannelVoice, models.RoleMember)
	d.addChannel("v2", "s1", models.ChannelVoice, models.RoleMember)
	d.addChannel("c2", "s2", models.ChannelText, models.RoleMember)

	d.threads["alice"] = []string{"d1"}
	d.threads["bob"] = []string{"d1"}
	return d
}

func (d *fakeDirectory) addMember(serverID, userID string, role models.Role) {
	d.members[memberKey{serverID, userID}] = role
}

func (d *fakeDirectory) removeMember(serverID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, memberKey{serverID, userID})
}

func (d *fakeDirectory) addChannel(id, serverID string, typ models.ChannelType, minRole models.Role) {
	d.channels[id] = &models.Channel{ID: id, ServerID: serverID, Name: id, Type: typ, MinRole: minRole}
}

func (d *fakeDirectory) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWith = err
}

func (d *fakeDirectory) ServerIDsForUser(_ context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return nil, d.failWith
	}
	var ids []string
	for key := range d.members {
		if key.userID == userID {
			ids = append(ids, key.serverID)
		}
	}
	return ids, nil
}

func (d *fakeDirectory) DirectThreadIDsForUser(_ context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return nil, d.failWith
	}
	return d.threads[userID], nil
}

func (d *fakeDirectory) GetChannel(_ context.Context, channelID string) (*models.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return nil, d.failWith
	}
	ch, ok := d.channels[channelID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *ch
	return &copied, nil
}

func (d *fakeDirectory) GetMember(_ context.Context, serverID, userID string) (*models.ServerMember, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	role, ok := d.members[memberKey{serverID, userID}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.ServerMember{ServerID: serverID, UserID: userID, Role: role}, nil
}

func (d *fakeDirectory) IsBanned(_ context.Context, serverID, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.banned[memberKey{serverID, userID}], nil
}

// fakeVerifier accepts "access:<user>" and reports "refresh:<user>" as the
// wrong kind.
type fakeVerifier struct{}

func (fakeVerifier) VerifyAccess(raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, "access:"):
		return strings.TrimPrefix(raw, "access:"), nil
	case strings.HasPrefix(raw, "refresh:"):
		return "", auth.ErrWrongTokenKind
	default:
		return "", auth.ErrInvalidToken
	}
}

type received struct {
	Event models.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (f *fakeTransport) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// events returns the received events, filtered by name when names are
// given.
func (f *fakeTransport) events(t *testing.T, names ...models.EventName) []received {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []received
	for _, frame := range f.frames {
		var ev received
		require.NoError(t, json.Unmarshal(frame, &ev))
		if len(names) == 0 {
			out = append(out, ev)
			continue
		}
		for _, n := range names {
			if ev.Event == n {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func decode[T any](t *testing.T, ev received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

type harness struct {
	t       *testing.T
	gw      *Gateway
	dir     *fakeDirectory
	clock   *clock.Mock
	metrics *metrics.Gateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		dir:     newFakeDirectory(),
		clock:   clock.NewMock(),
		metrics: metrics.NewGateway(prometheus.NewRegistry()),
	}
	h.gw = New(h.dir, fakeVerifier{}, Options{
		QuietWindow: DefaultQuietWindow,
		Clock:       h.clock,
		Metrics:     h.metrics,
		Logger:      logger.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go h.gw.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.gw.Done()
	})
	return h
}

func (h *harness) connect(user string) (*Session, *fakeTransport) {
	h.t.Helper()
	tr := &fakeTransport{}
	sess, err := h.gw.Connect(context.Background(), "access:"+user, tr)
	require.NoError(h.t, err)
	return sess, tr
}

func (h *harness) stats() Stats {
	h.t.Helper()
	st, err := h.gw.Stats()
	require.NoError(h.t, err)
	return st
}

var errDirectoryDown = errors.New("directory down")
