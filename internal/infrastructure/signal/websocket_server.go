package signal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ServerConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
	AllowedOrigins []string

	// Per-connection inbound rate; zero disables limiting.
	MessagesPerSecond float64
	Burst             int
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 256,
		MaxMessageSize: 64 * 1024,
	}
}

type WebSocketServer struct {
	router   *Router
	upgrader websocket.Upgrader
	config   ServerConfig
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(router *Router, config ServerConfig, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		router: router,
		config: config,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts every origin when none are configured, otherwise
// only the listed hosts (or "*").
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// RegisterRoutes mounts the room websocket endpoint.
func (s *WebSocketServer) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/room/:room_id", s.HandleWebSocket)
}

func (s *WebSocketServer) HandleWebSocket(c *gin.Context) {
	roomID := c.Param("room_id")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Serve(c.Writer, c.Request, domain.RoomID(roomID))
}

// Serve upgrades the request and runs the session until the client goes
// away. Frames are handled in arrival order on this goroutine.
func (s *WebSocketServer) Serve(w http.ResponseWriter, r *http.Request, roomID domain.RoomID) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	conn := newWSConn(ws, s.config.SendBufferSize, s.config.PingInterval, s.config.WriteTimeout)

	var limiter *rate.Limiter
	if s.config.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.config.MessagesPerSecond), s.config.Burst)
	}

	session, err := s.router.Open(roomID, conn, limiter)
	if err != nil {
		s.logger.Errorw("failed to register session", "room_id", roomID, "error", err)
		_ = ws.Close()
		return
	}

	go conn.writePump()
	defer func() {
		_ = conn.Close()
		s.router.Close(context.Background(), session)
	}()

	ws.SetReadLimit(s.config.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	})

	ctx := r.Context()
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debugw("websocket read failed", "room_id", roomID, "session", session.Handle, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.config.PongTimeout))

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		s.router.Handle(ctx, session, data)
	}
}
