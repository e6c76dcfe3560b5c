// Package main runs a demo WebSocket client for solve events: it subscribes
// to a fresh solve id, posts a solve under that id and prints the events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoRequest = `{
  "time_matrix": [[0,600,900,1200],[600,0,300,700],[900,300,0,400],[1200,700,400,0]],
  "time_windows": [[0,86400],[0,36000],[0,86400],[0,86400]],
  "service_times": [0,120,60,0],
  "start_index": 0,
  "end_index": 3
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	solveID := uuid.New().String()

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: solveID}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s %s: %s", m.Type, m.ID, string(m.Payload))
		}
	}()

	time.Sleep(200 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader([]byte(demoRequest)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Solve-Id", solveID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	log.Printf("HTTP %d solve=%s: %s", resp.StatusCode, resp.Header.Get("X-Solve-Id"), bytes.TrimSpace(body))

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
