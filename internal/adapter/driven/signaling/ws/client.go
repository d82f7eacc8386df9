package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/Wyydra/duo/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 256
)

// Client is the peer side of the signaling connection.
type Client struct {
	serverURL string
	codec     protocol.Codec
	conn      *websocket.Conn

	events   chan domain.Event
	outgoing chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

var _ port.SignalSender = (*Client)(nil)

func NewClient(serverURL string, codec protocol.Codec) *Client {
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		events:    make(chan domain.Event, queueSize),
		outgoing:  make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
}

// Connect dials the server, negotiating the client's codec as subprotocol.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{c.codec.Name()},
	}

	conn, _, err := dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if conn.Subprotocol() != c.codec.Name() {
		conn.Close()
		return fmt.Errorf("server does not speak %s", c.codec.Name())
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Events is closed when the connection ends.
func (c *Client) Events() <-chan domain.Event {
	return c.events
}

// Send queues cmd without blocking.
func (c *Client) Send(cmd domain.Command) error {
	data, err := protocol.EncodeCommand(c.codec, cmd)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return domain.ErrConnClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	default:
		return domain.ErrSlowConsumer
	}
}

func (c *Client) SendSignal(env domain.Envelope) error {
	return c.Send(domain.Command{Kind: domain.CommandSignal, Signal: env})
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.Close()
		close(c.events)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Signaling connection lost")
			}
			return
		}

		ev, err := protocol.DecodeEvent(c.codec, data)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping undecodable event")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
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
		case data := <-c.outgoing:
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
