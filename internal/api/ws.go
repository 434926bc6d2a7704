package api

import (
	"context"
	"net/http"
	"time"

	"student-bulk-import/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Subscriber opens the pub/sub channel a user's push events arrive on.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) *redis.PubSub
}

// PushHandler forwards a user's push events to their websocket.
type PushHandler struct {
	subscriber Subscriber
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

func NewPushHandler(subscriber Subscriber, allowedOrigin string) *PushHandler {
	return &PushHandler{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		log: logger.For("push"),
	}
}

func (p *PushHandler) Serve(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	conn, err := p.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		p.log.Warn().Err(err).Str("user_id", userID).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := p.subscriber.Subscribe(ctx, userID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		p.log.Error().Err(err).Str("user_id", userID).Msg("Failed to subscribe to push channel")
		return
	}

	log := p.log.With().Str("user_id", userID).Logger()
	log.Debug().Msg("Push client connected")

	// The read loop only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Push client disconnected")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Debug().Err(err).Msg("Failed to write push event")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
