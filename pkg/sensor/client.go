package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-facecast/pkg/face"
	"github.com/teslashibe/go-facecast/pkg/protocol"
)

// HelloTimeout bounds how long Hello waits for the welcome.
const HelloTimeout = 5 * time.Second

// Client is the device side of the sensor protocol.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to a sensor endpoint such as ws://host:8080/ws/sensor/phone.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Hello introduces the device and waits for the welcome.
func (c *Client) Hello(device, token string) (*protocol.WelcomeData, error) {
	msg, err := protocol.NewHelloMessage(device, token)
	if err != nil {
		return nil, err
	}
	if err := c.send(msg); err != nil {
		return nil, err
	}

	c.conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		reply, err := c.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch reply.Type {
		case protocol.TypeWelcome:
			welcome, err := reply.GetWelcomeData()
			if err != nil {
				return nil, err
			}
			if !welcome.Authorized {
				return welcome, ErrBadToken
			}
			return welcome, nil
		case protocol.TypeError:
			e, err := reply.GetErrorData()
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, e.Message)
		}
	}
}

// SendFaces sends one sensor update.
func (c *Client) SendFaces(faces []face.TrackedFace) error {
	msg, err := protocol.NewFacesMessage(faces)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// SendRemoved reports faces the device stopped tracking.
func (c *Client) SendRemoved(ids []uuid.UUID) error {
	msg, err := protocol.NewRemovedMessage(ids)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Ping sends a ping; the pong arrives through ReadMessage.
func (c *Client) Ping() error {
	msg, err := protocol.NewMessage(protocol.TypePing, nil)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// ReadMessage blocks for the next message from the service.
func (c *Client) ReadMessage() (*protocol.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessage(data)
}

// Listen reads messages until the connection closes or ctx is done.
func (c *Client) Listen(ctx context.Context, fn func(*protocol.Message)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(msg)
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
