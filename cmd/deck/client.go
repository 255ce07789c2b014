package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/interview-assistant/internal/ipc"
)

// client is one IPC connection to the gateway. Reads happen on a single
// goroutine; writes may come from any tea.Cmd.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func dialGateway(url string) (*client, error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	hello, err := json.Marshal(ipc.Hello{Client: "deck"})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return &client{conn: conn}, nil
}

func (c *client) send(ch ipc.Channel, payload any) error {
	data, err := ipc.Encode(ch, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// next blocks for the next text frame.
func (c *client) next() (ipc.Message, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return ipc.Message{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg ipc.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return ipc.Message{}, fmt.Errorf("decode event: %w", err)
		}
		return msg, nil
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
