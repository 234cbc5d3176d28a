// Package websocket carries gateway sessions over gorilla/websocket
// connections: it decodes inbound action frames, dispatches them to the
// session and writes acknowledgments and events back.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chat-gateway/internal/config"
	"chat-gateway/internal/gateway"
	"chat-gateway/internal/metrics"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

type Options struct {
	SendBuffer  int
	ReadLimit   int64
	PingPeriod  time.Duration
	PongWait    time.Duration
	ActionRate  float64
	ActionBurst int
}

// OptionsFromConfig maps the gateway config section onto transport options.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{
		SendBuffer:  cfg.SendBuffer,
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		PongWait:    cfg.PongWait,
		ActionRate:  cfg.ActionRate,
		ActionBurst: cfg.ActionBurst,
	}
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.ActionRate <= 0 {
		o.ActionRate = 20
	}
	if o.ActionBurst <= 0 {
		o.ActionBurst = 40
	}
	return o
}

// Client is one websocket connection. It implements gateway.Transport.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	opts    Options
	limiter *rate.Limiter
	metrics *metrics.Gateway
	log     *logger.Logger
}

func NewClient(conn *websocket.Conn, opts Options, m *metrics.Gateway) *Client {
	opts = opts.withDefaults()
	if m == nil {
		m = metrics.NewGateway(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.ActionRate), opts.ActionBurst),
		metrics: m,
		log:     logger.For("websocket").With("remote", conn.RemoteAddr().String()),
	}
}

// Context is cancelled when the client closes.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues a frame for the write pump. It never blocks.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the socket. It is safe to
// call from any goroutine and more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// Reject closes a connection whose handshake failed, telling the peer why.
func (c *Client) Reject(err error) {
	code := websocket.ClosePolicyViolation
	if errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, gateway.ErrGatewayStopped) {
		code = websocket.CloseTryAgainLater
	}
	msg := websocket.FormatCloseMessage(code, gateway.AuthReason(err))
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Close()
	c.conn.Close()
}

// ReadPump reads action frames until the socket fails, then tears the
// session down.
func (c *Client) ReadPump(sess *gateway.Session) {
	defer func() {
		sess.Close()
		c.Close()
	}()

	c.conn.SetReadLimit(c.opts.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("WebSocket error: %v", err)
			}
			break
		}
		c.handle(sess, message)
	}
}

func (c *Client) handle(sess *gateway.Session, message []byte) {
	// Every frame spends budget, malformed ones included.
	allowed := c.limiter.Allow()

	var frame models.InboundFrame
	err := json.Unmarshal(message, &frame)
	if !allowed {
		c.reject(frame, models.CodeRateLimited, nil)
		return
	}
	if err != nil {
		c.reject(frame, models.CodeBadRequest, err)
		return
	}

	action, err := models.DecodeAction(frame)
	if err != nil {
		c.reject(frame, gateway.Code(err), err)
		return
	}

	switch a := action.(type) {
	case models.ChannelJoin:
		err = sess.JoinChannel(c.ctx, a.ChannelID)
	case models.TypingStart:
		err = sess.StartTyping(c.ctx, a.ChannelID)
	case models.TypingStop:
		err = sess.StopTyping(a.ChannelID)
	case models.VoiceJoin:
		users, err := sess.JoinVoice(c.ctx, a.ChannelID)
		ack := models.VoiceJoinAck{Ack: models.NewAck(frame.ID), Users: users}
		if err != nil {
			c.countRejected(frame, gateway.Code(err), err)
			ack = models.VoiceJoinAck{Ack: models.NewNack(frame.ID, gateway.Code(err)), Users: []string{}}
		}
		c.reply(ack)
		return
	case models.VoiceLeave:
		err = sess.LeaveVoice(a.ChannelID)
	case models.VoiceSignal:
		err = sess.Signal(a.ChannelID, a.Data)
	}

	if err != nil {
		c.reject(frame, gateway.Code(err), err)
		return
	}
	c.reply(models.NewAck(frame.ID))
}

func (c *Client) reject(frame models.InboundFrame, code string, err error) {
	c.countRejected(frame, code, err)
	c.reply(models.NewNack(frame.ID, code))
}

func (c *Client) countRejected(frame models.InboundFrame, code string, err error) {
	action := string(frame.Action)
	if frame.Action == "" {
		action = "none"
	}
	c.metrics.ActionsRejected.WithLabelValues(action, code).Inc()
	if errors.Is(err, gateway.ErrUnavailable) {
		c.log.Error("%s failed: %v", action, err)
		return
	}
	c.log.Debug("%s rejected with %s: %v", action, code, err)
}

func (c *Client) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("Error marshaling ack: %v", err)
		return
	}
	if !c.Send(data) {
		c.metrics.FramesDropped.Inc()
		c.Close()
	}
}

// WritePump drains the send queue and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Error("Write error: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
