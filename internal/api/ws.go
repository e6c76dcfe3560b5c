package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is the frame exchanged on /v1/ws.
//
//	client: {"type":"subscribe","id":"<solveId or *>"} | {"type":"unsubscribe","id":...} | {"type":"ping"}
//	server: {"type":"subscribed","id":...} | {"type":"event","id":...,"payload":{type,data}} | {"type":"error","payload":{"message":...}} | {"type":"pong"}
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSHandler streams solve events of the caller's tenant over a WebSocket.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	subs := map[string]chan SSEEvent{} // solve id or "*" -> channel
	defer func() {
		for id, ch := range subs {
			s.Broker.Unsubscribe(solveTopic(p.Tenant, id), ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" {
				_ = write(wsMessage{Type: "error", Payload: json.RawMessage(`{"message":"id required"}`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = write(wsMessage{Type: "subscribed", ID: msg.ID})
				continue
			}
			ch := s.Broker.Subscribe(solveTopic(p.Tenant, msg.ID))
			subs[msg.ID] = ch
			_ = write(wsMessage{Type: "subscribed", ID: msg.ID})
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					payload, _ := json.Marshal(evt)
					if err := write(wsMessage{Type: "event", ID: id, Payload: payload}); err != nil {
						return
					}
				}
			}(msg.ID, ch)
		case "unsubscribe":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(solveTopic(p.Tenant, msg.ID), ch)
				delete(subs, msg.ID)
			}
		default:
			_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: json.RawMessage(`{"message":"unknown message type"}`)})
		}
	}
}
