package ws

import (
    "encoding/json"
    "log"
    "time"

    "github.com/gorilla/websocket"

    "github.com/ucampus/attendance_backend/internal/attendance"
)

const (
    writeWait      = 10 * time.Second
    pongWait       = 60 * time.Second
    pingPeriod     = (pongWait * 9) / 10
    sendBufferSize = 256
)

type feedMessage struct {
    sessionID string
    payload   []byte
}

// FeedHub fans accepted check-in/out events out to host and lab-manager
// dashboards. Clients subscribe to a single session, admins may watch all.
// The hub holds connections only; it is never an authority on attendance
// state.
type FeedHub struct {
    register   chan *feedClient
    unregister chan *feedClient
    broadcast  chan feedMessage
    clients    map[*feedClient]struct{}
}

func NewFeedHub() *FeedHub {
    return &FeedHub{
        register:   make(chan *feedClient),
        unregister: make(chan *feedClient),
        broadcast:  make(chan feedMessage, sendBufferSize),
        clients:    make(map[*feedClient]struct{}),
    }
}

func (h *FeedHub) Run() {
    for {
        select {
        case client := <-h.register:
            h.clients[client] = struct{}{}
        case client := <-h.unregister:
            if _, ok := h.clients[client]; ok {
                delete(h.clients, client)
                close(client.send)
                client.conn.Close()
            }
        case msg := <-h.broadcast:
            for client := range h.clients {
                if !client.allowAll && client.sessionID != msg.sessionID {
                    continue
                }
                select {
                case client.send <- msg.payload:
                default:
                    delete(h.clients, client)
                    close(client.send)
                    client.conn.Close()
                }
            }
        }
    }
}

// PublishAttendance implements attendance.FeedPublisher.
func (h *FeedHub) PublishAttendance(event attendance.FeedEvent) {
    if h == nil {
        return
    }
    data, err := json.Marshal(event)
    if err != nil {
        log.Printf("ws: failed to marshal feed event: %v", err)
        return
    }
    h.broadcast <- feedMessage{sessionID: event.SessionID, payload: data}
}

type feedClient struct {
    hub       *FeedHub
    conn      *websocket.Conn
    send      chan []byte
    sessionID string
    allowAll  bool
}

func newFeedClient(hub *FeedHub, conn *websocket.Conn, sessionID string, allowAll bool) *feedClient {
    return &feedClient{
        hub:       hub,
        conn:      conn,
        send:      make(chan []byte, sendBufferSize),
        sessionID: sessionID,
        allowAll:  allowAll,
    }
}

func (c *feedClient) readPump() {
    defer func() {
        c.hub.unregister <- c
    }()
    c.conn.SetReadLimit(512)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })
    for {
        if _, _, err := c.conn.ReadMessage(); err != nil {
            break
        }
    }
}

func (c *feedClient) writePump() {
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
            w, err := c.conn.NextWriter(websocket.TextMessage)
            if err != nil {
                return
            }
            if _, err := w.Write(msg); err != nil {
                return
            }
            if err := w.Close(); err != nil {
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
