package gateway

import (
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxControlSize = 4096
)

var frameSep = []byte{'\n'}

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// controlMsg is what peers may send upstream. Commands go through the REST API.
type controlMsg struct {
	Type string `json:"type"`
	Ping int64  `json:"ping"`
}

type pongMsg struct {
	Type     string `json:"type"`
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

// enqueue is a non-blocking send; a full buffer drops the message. Callers
// hold the hub lock so send cannot be closed underneath them.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeBatch(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeBatch writes first plus whatever is already queued as a single text
// frame, one envelope per line.
func (c *Client) writeBatch(first []byte) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(first)
	drainQueued(w, c.send)
	return w.Close()
}

func drainQueued(w io.Writer, queue chan []byte) {
	for n := len(queue); n > 0; n-- {
		next, ok := <-queue
		if !ok {
			return
		}
		w.Write(frameSep)
		w.Write(next)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(maxControlSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		c.handleControl(msg)
	}
}

// handleControl answers {"type":"ping","ping":<ms>} with a pong and treats
// {"type":"resync"} as a request for a fresh snapshot.
func (c *Client) handleControl(msg controlMsg) {
	switch {
	case msg.Type == "resync":
		c.hub.resync(c)
	case msg.Type == "ping" || msg.Ping > 0:
		pong, _ := json.Marshal(pongMsg{Type: "pong", Ping: msg.Ping, ServerTS: time.Now().UnixMilli()})
		c.hub.mu.RLock()
		defer c.hub.mu.RUnlock()
		if c.hub.clients[c] {
			c.enqueue(pong)
		}
	}
}
