package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	commonlog "reno_server/server/common/log"
)

type WSClient struct {
	UserID string
	ConnID string
	Conn   *websocket.Conn
	mu     sync.Mutex
}

// Hub fans live notifications out to connected websockets. With Redis
// configured, dispatch goes through pub/sub so every instance delivers
// to its own connections; without it, delivery is local only.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[string]*WSClient
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

const notifyEventsChannel = "notify:events"

type hubEvent struct {
	Kind    string          `json:"kind"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewHub() *Hub {
	return &Hub{clients: map[string]map[string]*WSClient{}}
}

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

func (h *Hub) StartRedisSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, notifyEventsChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopRedisSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = map[string]*WSClient{}
	}
	h.clients[client.UserID][client.ConnID] = client
}

func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client.ConnID)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	_ = client.Conn.Close()
}

func (h *Hub) NotifyUser(userID string, payload any) {
	if h.publishNotifyUser(userID, payload) {
		return
	}
	count := h.notifyUserLocal(userID, payload)
	commonlog.Debugf("hub local dispatch user=%s fanout=%d", userID, count)
}

func (h *Hub) notifyUserLocal(userID string, payload any) int {
	h.mu.RLock()
	conns := h.clients[userID]
	h.mu.RUnlock()

	count := 0
	for _, client := range conns {
		client.WriteJSON(payload)
		count++
	}
	return count
}

func (h *Hub) publishNotifyUser(userID string, payload any) bool {
	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return false
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	event := hubEvent{Kind: "notify_user", UserID: userID, Payload: payloadRaw}
	b, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if err := redisClient.Publish(context.Background(), notifyEventsChannel, b).Err(); err != nil {
		commonlog.Warnf("hub publish user=%s: %v", userID, err)
		return false
	}
	return true
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		if event.Kind != "notify_user" || len(event.Payload) == 0 {
			continue
		}
		var payload any
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			continue
		}
		count := h.notifyUserLocal(event.UserID, payload)
		commonlog.Debugf("hub consume user=%s fanout=%d", event.UserID, count)
	}
}

func (c *WSClient) WriteJSON(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.Conn.WriteJSON(payload)
}
