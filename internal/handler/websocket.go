package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chat_server/internal/config"
	"chat_server/internal/service"
	"chat_server/internal/ws"
	"chat_server/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin is enforced by the deployment proxy.
	},
}

// WebSocketHandler performs the authentication handshake and hands the
// upgraded connection to the real-time subsystem. A bad token refuses
// the connection before the upgrade: no partial state is ever created
// for an unauthenticated client.
type WebSocketHandler struct {
	authService service.AuthService
	hub         *ws.Hub
	proto       *ws.Protocol
	cfg         config.ChatConfig
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, hub *ws.Hub, proto *ws.Protocol, cfg config.ChatConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		hub:         hub,
		proto:       proto,
		cfg:         cfg,
		log:         log,
	}
}

func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	identity, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := ws.NewClient(conn, identity.UserID, identity.Username, h.hub, h.proto, h.cfg, h.log)
	client.Run(c.Request.Context())
}

// bearerToken accepts the token from the Authorization header or, for
// browser websocket clients that cannot set headers, a query parameter.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}
