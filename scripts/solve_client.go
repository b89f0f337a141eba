// Package main runs a demo client: submit a small problem, solve it, and
// stream the solve events over WebSocket.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoProblem = `{
  "name": "demo",
  "nodes": [
    {"id": 0, "kind": "depot"},
    {"id": 1, "kind": "pickup", "serviceTimeMin": 2},
    {"id": 2, "kind": "delivery", "serviceTimeMin": 2},
    {"id": 3, "kind": "depot"}
  ],
  "edges": [
    {"origin": 0, "destination": 1, "travelTimeMin": 10, "distance": 5},
    {"origin": 1, "destination": 2, "travelTimeMin": 10, "distance": 5},
    {"origin": 2, "destination": 3, "travelTimeMin": 10, "distance": 5},
    {"origin": 0, "destination": 3, "travelTimeMin": 25, "distance": 12}
  ],
  "requests": [
    {"id": 1, "origin": 1, "destination": 2, "demand": 3,
     "pickupWindow": {"start": 0, "end": 120}, "deliveryWindow": {"start": 0, "end": 240}}
  ],
  "vehicles": [
    {"id": 1, "capacity": 5, "startDepot": 0, "endDepot": 3}
  ]
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a problem
	resp, err := http.Post(base+"/v1/problems", "application/json", bytes.NewReader([]byte(demoProblem)))
	if err != nil {
		log.Fatal(err)
	}
	var prob struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&prob); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Problem ID: %s", prob.ID)

	// Start a solve
	resp, err = http.Post(base+"/v1/problems/"+prob.ID+"/solve", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		log.Fatal(err)
	}
	var solve struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&solve); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Solve ID: %s", solve.ID)

	// Connect WS and subscribe to the solve's events
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solves/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"solveId": solve.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
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
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}

	// Fetch the finished trips
	resp, err = http.Get(base + "/v1/solves/" + solve.ID + "/trips")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	log.Printf("Trips (%d): %s", resp.StatusCode, out.String())
}
