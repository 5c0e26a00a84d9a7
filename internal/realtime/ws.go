package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dessert_market/internal/bidding"
	"dessert_market/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// BidSubmitter 按配置的出价规则处理出价。
type BidSubmitter interface {
	Submit(ctx context.Context, listingID uint, amount decimal.Decimal, userID string) (*bidding.UpdateBid, error)
}

type Handler struct {
	hub  *Hub
	bids BidSubmitter
	log  *logrus.Entry
}

func NewHandler(hub *Hub, bids BidSubmitter, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{hub: hub, bids: bids, log: log.WithField("component", "ws")}
}

// Serve 需要挂在 RequireAuth 之后，出价人取自令牌。
func (h *Handler) Serve(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "missing token"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	cl, ok := h.hub.join(claims.UserID)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return
	}
	log := h.log.WithField("user_id", claims.UserID)
	log.Debug("client connected")

	done := make(chan struct{})
	go h.writeLoop(conn, cl, done)

	h.readLoop(c.Request.Context(), conn, cl)

	h.hub.leave(cl)
	<-done
	log.Debug("client disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, cl *client) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.reply(cl, errorMessage{Type: TypeError, Message: "malformed message"})
			continue
		}
		switch in.Type {
		case TypePlaceBid:
			h.placeBid(ctx, cl, in)
		default:
			h.reply(cl, errorMessage{Type: TypeError, Message: "unknown message type"})
		}
	}
}

// placeBid 被接受的出价由通知器广播给所有人（含出价人）；被拒的只回给出价人。
func (h *Handler) placeBid(ctx context.Context, cl *client, in inbound) {
	_, err := h.bids.Submit(ctx, in.ListingID, in.Amount, cl.userID)
	if err == nil {
		return
	}
	h.reply(cl, RejectedMessage{
		Type:      TypeBidRejected,
		ListingID: in.ListingID,
		Amount:    in.Amount.StringFixed(2),
		Reason:    bidding.Reason(err),
		Message:   err.Error(),
	})
}

func (h *Handler) reply(cl *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.hub.sendTo(cl, b)
}

func (h *Handler) writeLoop(conn *websocket.Conn, cl *client, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub 已移除该客户端
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				h.drain(cl)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				h.drain(cl)
				return
			}
		}
	}
}

// drain 写失败后继续消费 send，直到 hub 关闭它。
func (h *Handler) drain(cl *client) {
	go func() {
		for range cl.send {
		}
	}()
}
