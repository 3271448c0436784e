package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/notify"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Handler upgrades /ws/{cid} requests and registers the socket as the
// notification channel for that correlation id. Clients are not expected to
// send anything; the read loop only detects disconnects and answers pings.
type Handler struct {
	registry  *notify.Registry
	jwtSecret string
	upgrader  websocket.Upgrader
}

func NewHandler(registry *notify.Registry, jwtSecret string, corsOrigins []string) *Handler {
	return &Handler{
		registry:  registry,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(corsOrigins),
		},
	}
}

// Serve authenticates, upgrades and then blocks until the peer goes away.
// The token rides in a query parameter or the session cookie because
// browser WebSocket clients cannot set an Authorization header.
func (h *Handler) Serve(c echo.Context) error {
	cid := c.Param("cid")
	if cid == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing correlation id"})
	}

	token := c.QueryParam("token")
	if token == "" {
		if cookie, err := c.Cookie(middleware.SessionCookie); err == nil {
			token = cookie.Value
		}
	}
	userID, _, err := middleware.ParseToken(token, h.jwtSecret)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing token"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}

	ch := notify.NewChannel(&wsConn{conn: conn})
	h.registry.Register(cid, ch)
	log.Debug().Str("cid", cid).Str("user_id", userID).Msg("notification socket connected")

	go h.ping(conn, ch)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.registry.Unregister(cid, ch)
	ch.Close()
	log.Debug().Str("cid", cid).Msg("notification socket closed")
	return nil
}

// ping keeps the connection alive until the channel is closed. WriteControl
// is safe to call concurrently with the channel's writer goroutine.
func (h *Handler) ping(conn *websocket.Conn, ch *notify.Channel) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ch.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				ch.Close()
				return
			}
		}
	}
}

// wsConn adapts a gorilla connection to the notify transport. All event
// writes come from the channel's single writer goroutine.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteEvent(ev notify.Event) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(ev)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
