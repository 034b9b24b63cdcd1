// Package ws implements the WebSocket fan-out hub (C9) from spec.md §4.9:
// per-connection lifecycle and limits, channel subscription, a Redis pub/sub
// bridge across instances, and presence tracking.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/computor-platform/computor-api/internal/cluster"
)

// CloseCodeLimitExceeded is sent when WS_MAX_TOTAL_CONNECTIONS or
// WS_MAX_CONNECTIONS_PER_USER is exceeded.
const CloseCodeLimitExceeded = 4008

// ChannelKind restricts subscribe() to the channel kinds from §4.9.
type ChannelKind string

const (
	ChannelCourse          ChannelKind = "course"
	ChannelCourseContent   ChannelKind = "course_content"
	ChannelSubmissionGroup ChannelKind = "submission_group"
)

// AuthorizeChannel is supplied by the caller (the HTTP layer, which has
// access to internal/authz) to decide whether a principal may subscribe to
// one channel.
type AuthorizeChannel func(ctx context.Context, userID string, kind ChannelKind, resourceID string) (bool, error)

// Config bounds the hub per §4.9.
type Config struct {
	MaxTotalConnections   int
	MaxConnectionsPerUser int
	PresenceTTL           time.Duration
	SendTimeout           time.Duration
}

// Connection is one accepted socket, single-threaded cooperative per §5.
type Connection struct {
	ID       string
	UserID   string
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.Mutex
	channels map[string]bool
}

func newConnection(id, userID string, conn *websocket.Conn) *Connection {
	return &Connection{ID: id, UserID: userID, conn: conn, send: make(chan []byte, 32), channels: make(map[string]bool)}
}

// WritePump drains send onto the socket until it is closed. Callers run this
// in its own goroutine per connection.
func (c *Connection) WritePump() {
	for msg := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

type Hub struct {
	cfg      Config
	redis    *redis.Client
	cluster  *cluster.Cluster
	authorize AuthorizeChannel

	mu                 sync.RWMutex
	connections        map[string][]*Connection
	channelSubscribers map[string]map[string]bool // channel -> set of user ids
	localChannels      map[string]bool            // channels this instance has a redis Subscribe open for
	totalConnections   int

	subCancel map[string]context.CancelFunc
}

func NewHub(cfg Config, redisClient *redis.Client, cl *cluster.Cluster, authorize AuthorizeChannel) *Hub {
	return &Hub{
		cfg:                cfg,
		redis:              redisClient,
		cluster:            cl,
		authorize:          authorize,
		connections:        make(map[string][]*Connection),
		channelSubscribers: make(map[string]map[string]bool),
		localChannels:      make(map[string]bool),
		subCancel:          make(map[string]context.CancelFunc),
	}
}

// Register admits a new connection, enforcing the global and per-user
// connection caps. On rejection, it closes the socket with code 4008 and
// returns an error; callers must not use the connection further.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Connection, error) {
	h.mu.Lock()
	if h.cfg.MaxTotalConnections > 0 && h.totalConnections >= h.cfg.MaxTotalConnections {
		h.mu.Unlock()
		closeWithLimit(conn)
		return nil, fmt.Errorf("global connection limit reached")
	}
	if h.cfg.MaxConnectionsPerUser > 0 && len(h.connections[userID]) >= h.cfg.MaxConnectionsPerUser {
		h.mu.Unlock()
		closeWithLimit(conn)
		return nil, fmt.Errorf("per-user connection limit reached")
	}

	c := newConnection(fmt.Sprintf("%s-%d", userID, time.Now().UnixNano()), userID, conn)
	h.connections[userID] = append(h.connections[userID], c)
	h.totalConnections++
	h.mu.Unlock()

	go c.WritePump()
	h.setPresence(context.Background(), userID, true)
	return c, nil
}

func closeWithLimit(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(CloseCodeLimitExceeded, "connection limit exceeded")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// Unregister removes a connection and, per the §4.9 cancellation rule,
// unsubscribes it from every local channel, dropping the Redis bridge
// subscription if it was the last local subscriber on that channel.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	conns := h.connections[c.UserID]
	for i, existing := range conns {
		if existing == c {
			h.connections[c.UserID] = append(conns[:i], conns[i+1:]...)
			h.totalConnections--
			break
		}
	}
	if len(h.connections[c.UserID]) == 0 {
		delete(h.connections, c.UserID)
	}

	c.mu.Lock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()
	h.mu.Unlock()

	for _, ch := range channels {
		h.unsubscribeLocked(c, ch)
	}

	close(c.send)

	if len(h.connections) == 0 || len(h.userConnections(c.UserID)) == 0 {
		h.setPresence(context.Background(), c.UserID, false)
	}
}

func (h *Hub) userConnections(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connections[userID]
}

// SubscribeResult reports the per-channel outcome of a Subscribe batch: each
// channel in the request succeeds or fails independently of the others.
type SubscribeResult struct {
	Channel string
	OK      bool
	Reason  string
}

// Subscribe validates and subscribes the connection to each channel,
// opening a Redis bridge subscription the first time any local connection
// needs a given channel. A failure on one channel (bad syntax, not
// authorized) never aborts the rest of the batch; every channel gets its
// own result.
func (h *Hub) Subscribe(ctx context.Context, c *Connection, channels []string) ([]SubscribeResult, error) {
	results := make([]SubscribeResult, 0, len(channels))
	for _, ch := range channels {
		kind, resourceID, err := parseChannel(ch)
		if err != nil {
			results = append(results, SubscribeResult{Channel: ch, OK: false, Reason: err.Error()})
			continue
		}
		if h.authorize != nil {
			ok, err := h.authorize(ctx, c.UserID, kind, resourceID)
			if err != nil {
				results = append(results, SubscribeResult{Channel: ch, OK: false, Reason: err.Error()})
				continue
			}
			if !ok {
				results = append(results, SubscribeResult{Channel: ch, OK: false, Reason: "not authorized to subscribe to this channel"})
				continue
			}
		}
		h.subscribeLocked(ctx, c, ch)
		results = append(results, SubscribeResult{Channel: ch, OK: true})
	}
	return results, nil
}

func (h *Hub) subscribeLocked(ctx context.Context, c *Connection, channel string) {
	h.mu.Lock()
	if h.channelSubscribers[channel] == nil {
		h.channelSubscribers[channel] = make(map[string]bool)
	}
	h.channelSubscribers[channel][c.UserID] = true

	needsBridge := !h.localChannels[channel]
	if needsBridge {
		h.localChannels[channel] = true
	}
	h.mu.Unlock()

	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()

	if needsBridge {
		h.openBridge(ctx, channel)
	}
}

func (h *Hub) Unsubscribe(c *Connection, channel string) {
	h.unsubscribeLocked(c, channel)
}

func (h *Hub) unsubscribeLocked(c *Connection, channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()

	h.mu.Lock()
	subs := h.channelSubscribers[channel]
	lastLocalSubscriber := false
	if subs != nil {
		delete(subs, c.UserID)
		if len(subs) == 0 {
			delete(h.channelSubscribers, channel)
			delete(h.localChannels, channel)
			lastLocalSubscriber = true
		}
	}
	var cancel context.CancelFunc
	if lastLocalSubscriber {
		cancel = h.subCancel[channel]
		delete(h.subCancel, channel)
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// openBridge subscribes this instance to Redis for channel, fanning received
// events out to local subscribers.
func (h *Hub) openBridge(ctx context.Context, channel string) {
	bridgeCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.subCancel[channel] = cancel
	h.mu.Unlock()

	sub := h.redis.Subscribe(bridgeCtx, redisChannelName(channel))
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.fanOutLocal(channel, []byte(msg.Payload))
			}
		}
	}()
}

// Publish sends payload to every subscriber of channel across the cluster
// via Redis PUBLISH.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	return h.redis.Publish(ctx, redisChannelName(channel), payload).Err()
}

func (h *Hub) fanOutLocal(channel string, payload []byte) {
	h.mu.RLock()
	subs := h.channelSubscribers[channel]
	userIDs := make([]string, 0, len(subs))
	for uid := range subs {
		userIDs = append(userIDs, uid)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, uid := range userIDs {
		for _, c := range h.userConnections(uid) {
			wg.Add(1)
			go func(c *Connection) {
				defer wg.Done()
				h.sendWithTimeout(c, payload)
			}(c)
		}
	}
	wg.Wait()
}

// Send delivers payload directly to one connection's write pump, bypassing
// channel fan-out. Used for per-connection protocol replies such as
// subscribe acknowledgements.
func (h *Hub) Send(c *Connection, payload []byte) {
	h.sendWithTimeout(c, payload)
}

func (h *Hub) sendWithTimeout(c *Connection, payload []byte) {
	timeout := h.cfg.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case c.send <- payload:
	case <-time.After(timeout):
	}
}

func (h *Hub) setPresence(ctx context.Context, userID string, online bool) {
	ttl := h.cfg.PresenceTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key := "presence:" + userID
	if online {
		_ = h.redis.Set(ctx, key, "online", ttl).Err()
	} else {
		_ = h.redis.Del(ctx, key).Err()
	}
	if h.cluster != nil {
		_ = h.cluster.BroadcastPresence(ctx, cluster.PresenceEvent{UserID: userID, Online: online})
	}
}

// RefreshPresence re-extends every currently connected user's presence TTL;
// callers run this on a ticker.
func (h *Hub) RefreshPresence(ctx context.Context) {
	h.mu.RLock()
	userIDs := make([]string, 0, len(h.connections))
	for uid := range h.connections {
		userIDs = append(userIDs, uid)
	}
	h.mu.RUnlock()

	for _, uid := range userIDs {
		h.setPresence(ctx, uid, true)
	}
}

func redisChannelName(channel string) string { return "ws:" + channel }

func parseChannel(channel string) (ChannelKind, string, error) {
	parts := strings.SplitN(channel, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid channel format %q, expected \"kind:id\"", channel)
	}
	kind := ChannelKind(parts[0])
	switch kind {
	case ChannelCourse, ChannelCourseContent, ChannelSubmissionGroup:
		return kind, parts[1], nil
	default:
		return "", "", fmt.Errorf("unknown channel kind %q", parts[0])
	}
}

// Envelope is the JSON frame published and received over a channel.
type Envelope struct {
	Channel string          `json:"channel"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}
