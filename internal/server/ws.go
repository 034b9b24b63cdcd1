package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/ws"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Data     any      `json:"data,omitempty"`
}

type wsSubscribeAck struct {
	Kind    string             `json:"kind"`
	Results []ws.SubscribeResult `json:"results"`
}

// ServeWebSocket handles GET /ws (§4.9). The handshake itself can't carry an
// Authorization header from a browser client, so the bearer credential is
// accepted as a "token" query parameter here and resolved the same way as
// any other request.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if t, ok := bearerToken(r); ok {
			token = t
		}
	}
	if token == "" {
		writeError(w, r, apierr.Unauthorized("missing bearer credential"))
		return
	}

	p, err := s.resolvePrincipal(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c, err := s.wsHub.Register(p.UserID, conn)
	if err != nil {
		// Register already closed the socket with code 4008 on rejection.
		return
	}
	defer s.wsHub.Unregister(c)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			results, err := s.wsHub.Subscribe(r.Context(), c, msg.Channels)
			if err != nil {
				continue
			}
			ack, err := json.Marshal(wsSubscribeAck{Kind: "subscribe_result", Results: results})
			if err != nil {
				continue
			}
			s.wsHub.Send(c, ack)
		case "unsubscribe":
			for _, ch := range msg.Channels {
				s.wsHub.Unsubscribe(c, ch)
			}
		case "publish":
			payload, err := json.Marshal(ws.Envelope{Channel: msg.Channel, Kind: "message", Data: marshalData(msg.Data)})
			if err != nil {
				continue
			}
			_ = s.wsHub.Publish(r.Context(), msg.Channel, payload)
		}
	}
}

func marshalData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
