// Package client speaks the relay wire protocol from the user side.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"feedback-relay/domain/event"
	"feedback-relay/errors"
	"feedback-relay/protocol"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// Frame is one server frame, decoded lazily.
type Frame struct {
	Type string
	Body []byte
}

func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Body, v)
}

type Client struct {
	conn    net.Conn
	writeMu sync.Mutex
	http    *http.Client
	Welcome event.RegisterSuccess
}

// Dial connects and registers. A refused registration comes back as an
// error carrying the server's message.
func Dial(ctx context.Context, address, username string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("could not connect to relay at %s: %w", address, err)
	}
	c := &Client{conn: conn, http: &http.Client{Timeout: 30 * time.Second}}
	if err = c.send(ctx, protocol.Request{Type: protocol.TypeRegister, Username: username}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	frame, err := c.welcome(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if frame.Type != event.TypeRegisterSuccess {
		_ = conn.Close()
		var refusal event.Error
		_ = frame.Decode(&refusal)
		return nil, fmt.Errorf("registration refused: %s", refusal.Message)
	}
	if err = frame.Decode(&c.Welcome); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// welcome waits for the registration answer, skipping anything else.
func (c *Client) welcome(ctx context.Context) (Frame, error) {
	for {
		frame, err := c.Next(ctx)
		if err != nil {
			return Frame{}, err
		}
		if frame.Type == event.TypeRegisterSuccess || frame.Type == event.TypeError {
			return frame, nil
		}
	}
}

// Next blocks until the next frame arrives or ctx is done.
func (c *Client) Next(ctx context.Context) (Frame, error) {
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return Frame{}, err
	}
	// Unblocks the read once ctx is done, so ctx.Err() is always set first.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	body, err := protocol.ReadFrame(c.conn, protocol.MaxFrameSize)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		return Frame{}, err
	}
	var head struct {
		Type string `json:"type"`
	}
	if err = json.Unmarshal(body, &head); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	return Frame{Type: head.Type, Body: body}, nil
}

// NextOf skips frames until one of the given type shows up.
func (c *Client) NextOf(ctx context.Context, frameType string) (Frame, error) {
	for {
		frame, err := c.Next(ctx)
		if err != nil {
			return Frame{}, err
		}
		if frame.Type == frameType {
			return frame, nil
		}
	}
}

func (c *Client) SendText(ctx context.Context, content string) error {
	return c.send(ctx, protocol.Request{Type: protocol.TypeMessage, Content: content})
}

func (c *Client) SendFile(ctx context.Context, name string, data []byte) error {
	return c.send(ctx, protocol.Request{
		Type:    protocol.TypeFile,
		Name:    name,
		Size:    int64(len(data)),
		Content: base64.StdEncoding.EncodeToString(data),
	})
}

func (c *Client) RequestDownload(ctx context.Context, fileID string) error {
	return c.send(ctx, protocol.Request{Type: protocol.TypeDownloadFile, FileID: fileID})
}

func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.send(ctx, protocol.Request{Type: protocol.TypeMarkRead, MessageID: messageID})
}

func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, protocol.Request{Type: protocol.TypePing})
}

// Fetch downloads the bytes behind a URL handed out by the relay.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Close() error {
	err := c.conn.Close()
	if stderrors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) send(ctx context.Context, req protocol.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return protocol.WriteFrame(c.conn, req)
}
