package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/microbet-engine-poc/pkg/contracts/events"
)

// ClientMsg é a mensagem de controle enviada pelo cliente.
type ClientMsg struct {
	Type   string `json:"type"` // subscribe | unsubscribe | ping
	UserID string `json:"userId"`
}

// client serializa escritas na conexão: broadcast e resposta de ping
// podem disparar ao mesmo tempo e o gorilla aceita um único escritor
// concorrente por conexão.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Hub gerencia conexões WebSocket de acompanhamento de liquidações.
// subs: userId -> conjunto de conexões inscritas.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria o hub com política customizada de origem (CORS).
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão. Cada cliente pode
// se inscrever em múltiplos userIds (ex: painel de operação).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cl := &client{conn: conn}
	defer conn.Close()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.UserID]; !ok {
				h.subs[msg.UserID] = make(map[*client]struct{})
			}
			h.subs[msg.UserID][cl] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.UserID]; ok {
				delete(m, cl)
				if len(m) == 0 {
					delete(h.subs, msg.UserID)
				}
			}
			h.mu.Unlock()
		case "ping":
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			_ = cl.write(websocket.TextMessage, pong)
		}
	}
	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for _, set := range h.subs {
		delete(set, cl)
	}
	h.mu.Unlock()
}

// Broadcast envia a liquidação para os clientes inscritos no usuário.
func (h *Hub) Broadcast(e events.BetSettled) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.subs[e.UserID]))
	for c := range h.subs[e.UserID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, _ := json.Marshal(e)
	for _, c := range conns {
		_ = c.write(websocket.TextMessage, b)
	}
}
