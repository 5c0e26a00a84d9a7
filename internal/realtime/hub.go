// Package realtime 通过 WebSocket 把拍卖出价推送给所有在线客户端。
package realtime

import (
	"context"
	"errors"

	"dessert_market/internal/bidding"
	"dessert_market/internal/metrics"

	"github.com/sirupsen/logrus"
)

var ErrHubStopped = errors.New("realtime: hub stopped")

const sendBuffer = 64

type client struct {
	userID string
	send   chan []byte
}

type direct struct {
	to  *client
	msg []byte
}

// Hub 单个 goroutine 持有全部客户端；写不进去的慢客户端会被踢掉。
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	direct     chan direct
	count      chan chan int
	done       chan struct{}

	clients map[*client]struct{}
	log     *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan direct, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		log:        log.WithField("component", "hub"),
	}
}

// Run 阻塞直到 ctx 取消；退出时关闭所有客户端。
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.ClientConnected()
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			for c := range h.clients {
				h.deliver(c, msg)
			}
		case d := <-h.direct:
			if _, ok := h.clients[d.to]; ok {
				h.deliver(d.to, d.msg)
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) deliver(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.log.WithField("user_id", c.userID).Warn("evicting slow client")
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.ClientDisconnected()
}

// Broadcast 发给所有客户端。
func (h *Hub) Broadcast(ctx context.Context, msg []byte) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyBid 单实例部署时直接作为出价通知器。
func (h *Hub) NotifyBid(ctx context.Context, u bidding.UpdateBid) error {
	b, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	return h.Broadcast(ctx, b)
}

// Clients 当前在线数。
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) join(userID string) (*client, bool) {
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
		return c, true
	case <-h.done:
		return nil, false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) sendTo(c *client, msg []byte) {
	select {
	case h.direct <- direct{to: c, msg: msg}:
	case <-h.done:
	}
}
