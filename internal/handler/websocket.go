package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"flightmap/internal/domain"
	"flightmap/internal/geo"
	"flightmap/internal/hub"
	"flightmap/internal/session"
	"flightmap/internal/store"
)

type WSHandler struct {
	hub      *hub.Hub
	store    *store.Store
	sessions session.Deps
	stats    *Stats
	logger   *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.Store, sessions session.Deps, stats *Stats, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, store: s, sessions: sessions, stats: stats, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type SearchPayload struct {
	Number string `json:"number"`
}

type RoutePayload struct {
	Flight domain.AircraftPoint `json:"flight"`
	Route  *domain.Route        `json:"route,omitempty"`
}

type NoticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ServeWS runs one viewer session over a websocket. Inbound messages and
// snapshot notices are handled by a single goroutine that owns the session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)
	h.stats.IncWSConnections()
	defer h.stats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	inbound := make(chan WSMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sessionLoop(ctx, client, inbound)
	}()

	h.readLoop(ctx, conn, client, inbound)

	cancel()
	<-done
	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client, inbound chan<- WSMessage) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}
		h.stats.IncWSMessagesIn()

		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *WSHandler) sessionLoop(ctx context.Context, client *hub.Client, inbound <-chan WSMessage) {
	s := session.New(client.ID, h.sessions, h.logger)
	defer s.Close()

	if snap := h.store.Snapshot(); snap != nil {
		s.Refresh(snap)
		h.push(client, s)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case snap := <-client.Reload:
			s.Refresh(snap)
			h.push(client, s)

		case msg := <-inbound:
			h.handleMessage(client, s, msg)
		}
	}
}

func (h *WSHandler) handleMessage(client *hub.Client, s *session.Session, msg WSMessage) {
	switch msg.Type {
	case "viewport":
		var vp geo.Viewport
		if err := json.Unmarshal(msg.Payload, &vp); err != nil {
			h.notice(client, "error", "invalid viewport payload")
			return
		}
		if err := s.SetViewport(vp); err != nil {
			h.notice(client, "error", err.Error())
			return
		}
		h.push(client, s)

	case "filters":
		criteria := s.Filters()
		if err := json.Unmarshal(msg.Payload, &criteria); err != nil {
			h.notice(client, "error", "invalid filters payload")
			return
		}
		s.SetFilters(criteria)
		h.push(client, s)

	case "settings":
		settings := s.Settings()
		if err := json.Unmarshal(msg.Payload, &settings); err != nil {
			h.notice(client, "error", "invalid settings payload")
			return
		}
		if err := s.SetSettings(settings); err != nil {
			h.notice(client, "warning", err.Error())
		}
		h.push(client, s)

	case "search":
		var payload SearchPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Number == "" {
			h.notice(client, "error", "invalid search payload")
			return
		}
		h.search(client, s, payload.Number)

	case "click":
		var px geo.Point
		if err := json.Unmarshal(msg.Payload, &px); err != nil {
			h.notice(client, "error", "invalid click payload")
			return
		}
		p, ok := s.Click(px)
		if !ok {
			return
		}
		payload := RoutePayload{Flight: p}
		if route, err := h.sessions.Classifier.ResolveRoute(p); err == nil {
			payload.Route = &route
		}
		h.send(client, "route", payload)

	case "stats":
		st, ok := s.RenderStats()
		if !ok {
			h.notice(client, "info", "point rendering is off")
			return
		}
		h.send(client, "stats", st)

	case "ping":
		h.send(client, "pong", nil)

	default:
		h.logger.Debug("unknown message type", "client_id", client.ID, "type", msg.Type)
	}
}

// search answers with the route and the updated view, or only a notice when
// the flight is unknown or its route cannot be drawn.
func (h *WSHandler) search(client *hub.Client, s *session.Session, number string) {
	p, route, err := s.Search(number)
	if err != nil {
		h.notice(client, "warning", err.Error())
		return
	}

	h.send(client, "route", RoutePayload{Flight: p, Route: &route})
	h.push(client, s)
}

// push sends the current view: a frame in LOD mode, markers otherwise.
func (h *WSHandler) push(client *hub.Client, s *session.Session) {
	if frame, ok := s.Frame(); ok {
		h.send(client, "frame", frame)
		return
	}
	h.send(client, "selection", newSelectionPayload(s))
}

func (h *WSHandler) notice(client *hub.Client, level, message string) {
	h.send(client, "notice", NoticePayload{Level: level, Message: message})
}

func (h *WSHandler) send(client *hub.Client, msgType string, payload interface{}) {
	data, err := json.Marshal(outMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode message", "client_id", client.ID, "type", msgType, "error", err)
		return
	}
	if !client.Enqueue(data) {
		h.logger.Debug("failed to send message, buffer full", "client_id", client.ID, "type", msgType)
		return
	}
	h.stats.IncWSMessagesOut()
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
