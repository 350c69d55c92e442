// README: Websocket gateway bridging Redis pub/sub channels to connected driver clients.
package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quickbite/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Mobile clients connect from app webviews; origin checks happen at the LB.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades driver connections to websockets and forwards their
// channels' events. Slow or dead clients are dropped, not buffered forever.
type Gateway struct {
	pub *RedisPublisher
	log *logrus.Logger
}

func NewGateway(pub *RedisPublisher, log *logrus.Logger) *Gateway {
	return &Gateway{pub: pub, log: log}
}

// ServeDriver subscribes the connection to the driver's personal channel, the
// city channel (when known), and the shared withdraw channel, then forwards
// raw event payloads until either side goes away.
func (g *Gateway) ServeDriver(w http.ResponseWriter, r *http.Request, driverID types.ID, cityToken string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	channels := []string{ChannelDriver(driverID), ChannelBroadcast}
	if cityToken != "" {
		channels = append(channels, ChannelCity(cityToken))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := g.pub.Subscribe(ctx, channels...)
	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	g.log.WithFields(logrus.Fields{
		"driver_id": driverID,
		"channels":  channels,
	}).Info("driver websocket connected")

	go g.readPump(cancel, conn)
	g.writePump(ctx, conn, sub)
}

// writePump forwards pub/sub payloads and keeps the connection alive with pings.
func (g *Gateway) writePump(ctx context.Context, conn *websocket.Conn, sub *redis.PubSub) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames; drivers send nothing we act on, but reading
// is required to process control frames and notice disconnects.
func (g *Gateway) readPump(cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
