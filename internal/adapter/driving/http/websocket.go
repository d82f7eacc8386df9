package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    protocol.Subprotocols(),
	// TODO: restrict to the deployed web origin once the frontend has a fixed host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient implements port.Client over one websocket. Outbound frames go
// through a bounded queue drained by writePump, so Send never blocks.
type WSClient struct {
	conn  *websocket.Conn
	codec protocol.Codec
	send  chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, codec protocol.Codec, buffer int) *WSClient {
	return &WSClient{
		conn:  conn,
		codec: codec,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

func (c *WSClient) Send(ev domain.Event) error {
	data, err := protocol.EncodeEvent(c.codec, ev)
	if err != nil {
		return domain.NewError("encode "+ev.Kind.String(), err)
	}

	select {
	case <-c.done:
		return domain.ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return domain.ErrSlowConsumer
	}
}

// Close asks writePump to send a close frame and drop the socket.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	msgType := websocket.TextMessage
	if c.codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msgType, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	codec, err := protocol.ByName(conn.Subprotocol())
	if err != nil {
		log.Error().Err(err).Msg("Unsupported subprotocol")
		conn.Close()
		return
	}

	client := newWSClient(conn, codec, h.sendBuffer)
	clientID := h.Dispatcher.Connect(client)

	l := log.With().Str("conn_id", clientID.String()).Str("codec", codec.Name()).Logger()
	ctx := l.WithContext(r.Context())
	l.Info().Msg("New client connected")

	go client.writePump()

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Dispatcher.Disconnect(clientID)
	}()

	conn.SetReadLimit(h.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// listening for browser
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		cmd, err := protocol.DecodeCommand(codec, data)
		if err != nil {
			h.Dispatcher.Refuse(ctx, clientID, err)
			continue
		}
		h.Dispatcher.Handle(ctx, clientID, cmd)
	}
}
