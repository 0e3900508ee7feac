package live

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parnass/internal/middleware"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler upgrades streams from the given origins. With no origins every
// origin is accepted.
func NewHandler(hub *Hub, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// RegisterRoutes mounts GET /tenants/:tenantId/live. The token may come from
// ?token= since browsers cannot set headers on the handshake.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/tenants/:tenantId/live",
		middleware.TokenFromQuery("token"),
		auth,
		middleware.RequireTenantAdmin("tenantId"),
		h.Stream,
	)
}

func (h *Handler) Stream(c *gin.Context) {
	tenantID := c.Param("tenantId")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Warn("live upgrade failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	h.hub.Serve(conn, tenantID)
}
