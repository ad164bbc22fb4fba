// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/classroomlive/sessionengine/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn is one realtime endpoint: a websocket connection plus the bits of
// the Unbound -> Joined(role,session) -> [Disconnected(grace)] -> Terminal
// state machine that live on the endpoint itself (the rest — disconnect
// grace timers — live on the Engine, per the design notes' "registered on
// the Session Engine, not the endpoint").
type Conn struct {
	id   string
	ws   *websocket.Conn
	send registry.Outbound

	mu          sync.Mutex
	role        registry.Role
	sessionCode string
	name        string
	joined      bool

	idleTimer      *time.Timer
	done           chan struct{}
	disconnectOnce sync.Once
}

// Reply enqueues event for delivery to this endpoint only. It works
// identically before and after the endpoint has joined a room, since Conn
// drains its own channel regardless of registry membership.
func (c *Conn) Reply(event any) {
	select {
	case c.send <- event:
	default:
	}
}

func (c *Conn) setJoined(role registry.Role, code, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
	c.sessionCode = code
	c.name = name
	c.joined = true
}

func (c *Conn) state() (role registry.Role, code, name string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role, c.sessionCode, c.name, c.joined
}

func (c *Conn) resetIdle(d time.Duration) {
	if c.idleTimer != nil {
		c.idleTimer.Reset(d)
	}
}

// ServeWS upgrades r into a websocket and drives it against e until the
// connection closes. Adapted from the teacher's EventHandler.WebSocket
// pump: a ping ticker, a read loop that both detects close and feeds
// inbound frames to the engine, and a write loop selecting on the
// endpoint's outbound channel, the ping ticker, and a done signal.
func ServeWS(e *Engine, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(registry.Outbound, registry.SendBufferSize),
		done: make(chan struct{}),
	}
	c.idleTimer = time.AfterFunc(e.idleTimeout, func() { e.forceIdleDisconnect(c) })
	defer c.idleTimer.Stop()
	defer e.disconnectEndpoint(c)

	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	go func() {
		defer close(c.done)
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			e.Handle(c, raw)
		}
	}()

	for {
		select {
		case event := <-c.send:
			if err := ws.WriteJSON(event); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
